package processor

import (
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"valora/server/config"
	"valora/server/internal/models"
	"valora/server/internal/queue"
)

// MockStore is a mock implementation of RecordStore
type MockStore struct {
	mock.Mock
}

func (m *MockStore) InsertRecords(records []*models.PropertyRecord) error {
	args := m.Called(records)
	return args.Error(0)
}

func TestNewBatchProcessor(t *testing.T) {
	// Setup
	mockStore := &MockStore{}
	logger := logrus.New()
	mockQueue := queue.NewRecordQueue(10, logger)
	cfg := &config.Config{}
	cfg.BatchProcessing.ProcessorCount = 2
	cfg.BatchProcessing.MaxRetries = 3

	// Test
	processor := NewBatchProcessor(mockStore, mockQueue, cfg, logger)

	// Assert
	assert.NotNil(t, processor)
	assert.Equal(t, mockStore, processor.store)
	assert.Equal(t, mockQueue, processor.queue)
	assert.Equal(t, cfg, processor.config)
	assert.Equal(t, logger, processor.logger)
}

func TestBatchProcessor_ProcessBatch(t *testing.T) {
	// Setup
	mockStore := &MockStore{}
	logger := logrus.New()
	mockQueue := queue.NewRecordQueue(10, logger)
	cfg := &config.Config{}
	cfg.BatchProcessing.ProcessorCount = 2
	cfg.BatchProcessing.MaxRetries = 2
	cfg.BatchProcessing.RetryDelay = 0

	processor := NewBatchProcessor(mockStore, mockQueue, cfg, logger)

	batch := []*models.PropertyRecord{
		{ID: 1, PropertyType: models.TypeSingleFamily},
		{ID: 2, PropertyType: models.TypeCondo},
	}

	// Test successful processing
	mockStore.On("InsertRecords", batch).Return(nil).Once()
	err := processor.processBatch(batch)
	assert.NoError(t, err)

	// Test retry on failure: initial attempt plus MaxRetries retries
	mockStore.On("InsertRecords", batch).Return(errors.New("db error")).Times(3)
	err = processor.processBatch(batch)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to process batch after 2 attempts")

	mockStore.AssertExpectations(t)
}

func TestBatchProcessor_StartStop(t *testing.T) {
	// Setup
	mockStore := &MockStore{}
	logger := logrus.New()
	mockQueue := queue.NewRecordQueue(10, logger)
	cfg := &config.Config{}
	cfg.BatchProcessing.ProcessorCount = 2

	processor := NewBatchProcessor(mockStore, mockQueue, cfg, logger)

	// Test Start
	processor.Start()
	time.Sleep(100 * time.Millisecond) // Give time for goroutines to start

	// Test Stop
	processor.Stop()
	// Verify graceful shutdown
	mockQueue.Close()
	assert.True(t, mockQueue.IsClosed())
}

func TestBatchProcessor_EndToEnd(t *testing.T) {
	// Setup
	mockStore := &MockStore{}
	logger := logrus.New()
	mockQueue := queue.NewRecordQueue(10, logger)
	cfg := &config.Config{}
	cfg.BatchProcessing.ProcessorCount = 1
	cfg.BatchProcessing.MaxRetries = 1

	processor := NewBatchProcessor(mockStore, mockQueue, cfg, logger)
	processor.Start()
	defer processor.Stop()
	mockQueue.Start()
	defer mockQueue.Close()

	done := make(chan struct{})
	batch := []*models.PropertyRecord{{PropertyType: models.TypeTownhouse}}
	mockStore.On("InsertRecords", batch).Run(func(mock.Arguments) { close(done) }).Return(nil).Once()

	assert.NoError(t, mockQueue.Push(batch))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("batch was not stored in time")
	}
	mockStore.AssertExpectations(t)
}
