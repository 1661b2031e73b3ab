package models

import "time"

// Metrics holds the evaluation metrics of one trained model. Validation-split
// values drive the predictor's uncertainty intervals.
type Metrics struct {
	TrainRMSE    float64 `json:"train_rmse"`
	ValRMSE      float64 `json:"val_rmse"`
	TrainMAE     float64 `json:"train_mae"`
	ValMAE       float64 `json:"val_mae"`
	TrainR2      float64 `json:"train_r2"`
	ValR2        float64 `json:"val_r2"`
	TrainMAPE    float64 `json:"train_mape"`
	ValMAPE      float64 `json:"val_mape"`
	ResidualMean float64 `json:"residual_mean"`
	ResidualStd  float64 `json:"residual_std"`
}

// Interval is an uncertainty band around an estimate. Lower is never negative.
type Interval struct {
	Lower           float64 `json:"lower"`
	Upper           float64 `json:"upper"`
	ConfidenceLevel float64 `json:"confidence_level"`
}

// ValueDriver ranks one feature's contribution to a valuation.
type ValueDriver struct {
	Feature          string  `json:"feature"`
	Importance       float64 `json:"importance"`
	Value            float64 `json:"value"`
	ImpactPercentage float64 `json:"impact_percentage"`
}

// PredictionResult is the full output of a valuation request.
type PredictionResult struct {
	PropertyType       string        `json:"property_type"`
	PredictedValue     float64       `json:"predicted_value"`
	ConfidenceInterval Interval      `json:"confidence_interval"`
	PredictionInterval Interval      `json:"prediction_interval"`
	ValueDrivers       []ValueDriver `json:"value_drivers,omitempty"`
}

// TrainingHistory records when models were last trained and with what
// results. It is consumed only by the retraining scheduler and rewritten
// atomically after each successful run.
type TrainingHistory struct {
	Date          time.Time          `json:"date"`
	PropertyTypes map[string]Metrics `json:"property_types"`
}
