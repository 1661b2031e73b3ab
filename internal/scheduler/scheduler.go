package scheduler

import (
	"context"
	"errors"
	"os"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"valora/server/internal/artifacts"
	"valora/server/internal/models"
	"valora/server/internal/valuation"
)

// Policy controls how often models retrain.
type Policy string

const (
	PolicyDaily     Policy = "daily"
	PolicyWeekly    Policy = "weekly"
	PolicyMonthly   Policy = "monthly"
	PolicyQuarterly Policy = "quarterly"
	// PolicyMarketChange retrains whenever the market signal reports a
	// shift. With no signal wired it always retrains.
	PolicyMarketChange Policy = "market_change"
)

// ValidPolicy reports whether p is a supported retraining policy.
func ValidPolicy(p Policy) bool {
	switch p {
	case PolicyDaily, PolicyWeekly, PolicyMonthly, PolicyQuarterly, PolicyMarketChange:
		return true
	}
	return false
}

func (p Policy) maxAge() time.Duration {
	switch p {
	case PolicyDaily:
		return 24 * time.Hour
	case PolicyWeekly:
		return 7 * 24 * time.Hour
	case PolicyQuarterly:
		return 90 * 24 * time.Hour
	default:
		return 30 * 24 * time.Hour
	}
}

// MarketSignal reports whether market conditions have shifted enough to
// warrant retraining under PolicyMarketChange.
type MarketSignal interface {
	ShiftDetected() bool
}

// RecordSource supplies the training corpus for a scheduled run.
type RecordSource interface {
	AllRecords() ([]models.PropertyRecord, error)
}

// Notifier receives a summary after each completed retraining run.
type Notifier interface {
	TrainingCompleted(results map[string]*valuation.Result, failures map[string]error) error
}

// Scheduler periodically checks whether the models are due for retraining
// and runs the full training pipeline when they are. Checks are cheap and
// side-effect free; only a triggered run touches the artifact store.
type Scheduler struct {
	trainer  *valuation.Trainer
	store    *artifacts.Store
	source   RecordSource
	signal   MarketSignal
	notifier Notifier
	logger   *logrus.Logger

	policy        Policy
	tune          bool
	checkInterval time.Duration

	stopChan chan struct{}
	wg       sync.WaitGroup
	jobMutex sync.Mutex
	now      func() time.Time
}

// NewScheduler creates a scheduler. signal and notifier may be nil; a nil
// signal makes PolicyMarketChange always trigger.
func NewScheduler(trainer *valuation.Trainer, store *artifacts.Store, source RecordSource, signal MarketSignal, notifier Notifier, logger *logrus.Logger, policy Policy, tune bool, checkInterval time.Duration) *Scheduler {
	if logger == nil {
		logger = logrus.New()
		logger.SetFormatter(&logrus.JSONFormatter{})
		logger.SetOutput(os.Stdout)
		logger.SetLevel(logrus.InfoLevel)
	}
	if !ValidPolicy(policy) {
		policy = PolicyMonthly
	}
	if checkInterval <= 0 {
		checkInterval = time.Hour
	}

	return &Scheduler{
		trainer:       trainer,
		store:         store,
		source:        source,
		signal:        signal,
		notifier:      notifier,
		logger:        logger,
		policy:        policy,
		tune:          tune,
		checkInterval: checkInterval,
		stopChan:      make(chan struct{}),
		now:           time.Now,
	}
}

// Start begins the periodic retraining checks.
func (s *Scheduler) Start() {
	s.wg.Add(1)
	go s.run()
}

func (s *Scheduler) run() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.checkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case <-ticker.C:
			if _, err := s.RetrainIfNeeded(context.Background()); err != nil {
				s.logger.WithError(err).Error("Scheduled retraining failed")
			}
		}
	}
}

// Stop gracefully stops the scheduler.
func (s *Scheduler) Stop() {
	close(s.stopChan)
	s.wg.Wait()
}

// ShouldRetrain decides from the last recorded run. No history means the
// models have never trained, which always triggers.
func (s *Scheduler) ShouldRetrain(history *models.TrainingHistory) bool {
	if history == nil {
		return true
	}
	if s.policy == PolicyMarketChange {
		if s.signal == nil {
			return true
		}
		return s.signal.ShiftDetected()
	}
	return s.now().Sub(history.Date) > s.policy.maxAge()
}

// RetrainIfNeeded checks the policy against the stored history and, when
// due, retrains every property type and records the run. It reports whether
// a run happened. A check that does not trigger has no side effects.
func (s *Scheduler) RetrainIfNeeded(ctx context.Context) (bool, error) {
	s.jobMutex.Lock()
	defer s.jobMutex.Unlock()

	history, err := s.store.LoadHistory()
	if err != nil && !errors.Is(err, artifacts.ErrArtifactNotFound) {
		return false, err
	}

	if !s.ShouldRetrain(history) {
		s.logger.WithField("policy", string(s.policy)).Debug("Models are current, skipping retraining")
		return false, nil
	}

	records, err := s.source.AllRecords()
	if err != nil {
		return false, err
	}

	s.logger.WithFields(logrus.Fields{
		"policy": string(s.policy),
		"rows":   len(records),
	}).Info("Starting scheduled retraining")

	results, failures := s.trainer.TrainAll(ctx, records, s.tune)

	run := &models.TrainingHistory{
		Date:          s.now().UTC(),
		PropertyTypes: make(map[string]models.Metrics, len(results)),
	}
	for pt, res := range results {
		run.PropertyTypes[pt] = res.Metrics
	}
	if err := s.store.SaveHistory(run); err != nil {
		return true, err
	}

	if s.notifier != nil {
		if err := s.notifier.TrainingCompleted(results, failures); err != nil {
			s.logger.WithError(err).Error("Failed to send training notification")
		}
	}

	s.logger.WithFields(logrus.Fields{
		"trained": len(results),
		"failed":  len(failures),
	}).Info("Scheduled retraining complete")
	return true, nil
}
