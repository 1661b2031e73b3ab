package notify

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"valora/server/internal/valuation"
)

// Service posts training-run summaries to a configured webhook. An empty URL
// disables delivery without erroring, so callers can wire it unconditionally.
type Service struct {
	logger     *logrus.Logger
	client     *http.Client
	webhookURL string
}

// NewService creates a webhook notifier.
func NewService(webhookURL string, logger *logrus.Logger) *Service {
	return &Service{
		logger:     logger,
		webhookURL: webhookURL,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

type runSummary struct {
	CompletedAt time.Time         `json:"completed_at"`
	Trained     []trainedModel    `json:"trained"`
	Failed      map[string]string `json:"failed,omitempty"`
}

type trainedModel struct {
	PropertyType string  `json:"property_type"`
	Rows         int     `json:"rows"`
	ValRMSE      float64 `json:"val_rmse"`
	ValMAPE      float64 `json:"val_mape"`
	ValR2        float64 `json:"val_r2"`
}

// TrainingCompleted delivers a summary of a finished retraining run.
func (s *Service) TrainingCompleted(results map[string]*valuation.Result, failures map[string]error) error {
	if s.webhookURL == "" {
		return nil
	}

	summary := runSummary{CompletedAt: time.Now().UTC()}
	for pt, res := range results {
		summary.Trained = append(summary.Trained, trainedModel{
			PropertyType: pt,
			Rows:         res.Rows,
			ValRMSE:      res.Metrics.ValRMSE,
			ValMAPE:      res.Metrics.ValMAPE,
			ValR2:        res.Metrics.ValR2,
		})
	}
	sort.Slice(summary.Trained, func(i, j int) bool {
		return summary.Trained[i].PropertyType < summary.Trained[j].PropertyType
	})
	if len(failures) > 0 {
		summary.Failed = make(map[string]string, len(failures))
		for pt, err := range failures {
			summary.Failed[pt] = err.Error()
		}
	}

	payload, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("failed to marshal training summary: %w", err)
	}

	resp, err := s.client.Post(s.webhookURL, "application/json", bytes.NewBuffer(payload))
	if err != nil {
		return fmt.Errorf("failed to deliver training summary: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("webhook error (status %d): %s", resp.StatusCode, string(body))
	}

	s.logger.WithFields(logrus.Fields{
		"trained": len(summary.Trained),
		"failed":  len(failures),
	}).Info("Training summary delivered")
	return nil
}
