// Package artifacts persists training outputs per property type under a
// single model-store root. Every file is independently loadable JSON and is
// written via temp-file-then-rename so a concurrent reader never observes a
// partially written artifact.
package artifacts

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"

	"valora/server/internal/boosting"
	"valora/server/internal/models"
	"valora/server/internal/preprocess"
)

// ErrArtifactNotFound is returned when a requested artifact has never been
// written.
var ErrArtifactNotFound = errors.New("artifact not found")

// ModelArtifact bundles everything a predictor needs for one property type.
// Created by the trainer, immutable once written; a new training run
// supersedes it wholesale.
type ModelArtifact struct {
	PropertyType string               `json:"property_type"`
	Booster      *boosting.Booster    `json:"-"`
	Preprocessor *preprocess.Artifact `json:"-"`
	Importance   map[string]float64   `json:"importance"`
	Metrics      models.Metrics       `json:"metrics"`
	Params       boosting.Params      `json:"params"`
	TrainedAt    time.Time            `json:"trained_at"`
}

// Store reads and writes artifacts under a root directory. One training run
// is the sole writer for a property type; any number of readers may load
// already committed artifacts concurrently.
type Store struct {
	root   string
	logger *logrus.Logger
}

// NewStore creates the root directory if needed.
func NewStore(root string, logger *logrus.Logger) (*Store, error) {
	if logger == nil {
		logger = logrus.New()
		logger.SetFormatter(&logrus.JSONFormatter{})
		logger.SetOutput(os.Stdout)
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create model store root: %w", err)
	}
	return &Store{root: root, logger: logger}, nil
}

func (s *Store) modelPath(propertyType string) string {
	return filepath.Join(s.root, propertyType+"_model.json")
}

func (s *Store) preprocessorPath(propertyType string) string {
	return filepath.Join(s.root, propertyType+"_preprocessor.json")
}

func (s *Store) importancePath(propertyType string) string {
	return filepath.Join(s.root, propertyType+"_importance.json")
}

func (s *Store) metricsPath(propertyType string) string {
	return filepath.Join(s.root, propertyType+"_metrics.json")
}

func (s *Store) historyPath() string {
	return filepath.Join(s.root, "last_training.json")
}

// SaveModel persists all artifact files for one property type. Each file is
// committed atomically; on any failure the previously committed artifact
// stays intact.
func (s *Store) SaveModel(art *ModelArtifact) error {
	boosterData, err := art.Booster.Marshal()
	if err != nil {
		return fmt.Errorf("encode booster: %w", err)
	}

	type metricsFile struct {
		Metrics   models.Metrics  `json:"metrics"`
		Params    boosting.Params `json:"params"`
		TrainedAt time.Time       `json:"trained_at"`
	}

	writes := []struct {
		path string
		data interface{}
		raw  []byte
	}{
		{path: s.modelPath(art.PropertyType), raw: boosterData},
		{path: s.preprocessorPath(art.PropertyType), data: art.Preprocessor},
		{path: s.importancePath(art.PropertyType), data: art.Importance},
		{path: s.metricsPath(art.PropertyType), data: metricsFile{art.Metrics, art.Params, art.TrainedAt}},
	}

	for _, w := range writes {
		raw := w.raw
		if raw == nil {
			raw, err = json.MarshalIndent(w.data, "", " ")
			if err != nil {
				return fmt.Errorf("encode %s: %w", filepath.Base(w.path), err)
			}
		}
		if err := atomicWrite(w.path, raw); err != nil {
			return err
		}
	}

	s.logger.WithFields(logrus.Fields{
		"property_type": art.PropertyType,
		"path":          s.modelPath(art.PropertyType),
	}).Info("Model artifact saved")
	return nil
}

// LoadModel reads the committed artifact for a property type.
func (s *Store) LoadModel(propertyType string) (*ModelArtifact, error) {
	boosterData, err := os.ReadFile(s.modelPath(propertyType))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: no model for property type %q", ErrArtifactNotFound, propertyType)
		}
		return nil, fmt.Errorf("read model: %w", err)
	}
	booster, err := boosting.Unmarshal(boosterData)
	if err != nil {
		return nil, err
	}

	var prep preprocess.Artifact
	if err := readJSON(s.preprocessorPath(propertyType), &prep); err != nil {
		return nil, fmt.Errorf("read preprocessor: %w", err)
	}

	art := &ModelArtifact{
		PropertyType: propertyType,
		Booster:      booster,
		Preprocessor: &prep,
		Importance:   make(map[string]float64),
	}

	// Importance and metrics sidecars are optional on load: an artifact
	// written by an older run may lack them, and the predictor has
	// documented fallbacks.
	if err := readJSON(s.importancePath(propertyType), &art.Importance); err != nil && !errors.Is(err, os.ErrNotExist) {
		s.logger.WithError(err).WithField("property_type", propertyType).Warn("Failed to read importance sidecar")
	}
	var mf struct {
		Metrics   models.Metrics  `json:"metrics"`
		Params    boosting.Params `json:"params"`
		TrainedAt time.Time       `json:"trained_at"`
	}
	if err := readJSON(s.metricsPath(propertyType), &mf); err == nil {
		art.Metrics = mf.Metrics
		art.Params = mf.Params
		art.TrainedAt = mf.TrainedAt
	}

	return art, nil
}

// SaveHistory atomically rewrites the training-history record.
func (s *Store) SaveHistory(h *models.TrainingHistory) error {
	raw, err := json.MarshalIndent(h, "", " ")
	if err != nil {
		return fmt.Errorf("encode training history: %w", err)
	}
	return atomicWrite(s.historyPath(), raw)
}

// LoadHistory reads the training-history record; ErrArtifactNotFound when no
// training has ever completed.
func (s *Store) LoadHistory() (*models.TrainingHistory, error) {
	var h models.TrainingHistory
	data, err := os.ReadFile(s.historyPath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrArtifactNotFound
		}
		return nil, fmt.Errorf("read training history: %w", err)
	}
	if err := json.Unmarshal(data, &h); err != nil {
		return nil, fmt.Errorf("decode training history: %w", err)
	}
	return &h, nil
}

func readJSON(path string, out interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", filepath.Base(path), err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	return nil
}

func atomicWrite(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("commit %s: %w", filepath.Base(path), err)
	}
	return nil
}
