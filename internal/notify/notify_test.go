package notify

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"valora/server/internal/models"
	"valora/server/internal/valuation"
)

func TestTrainingCompletedPostsSummary(t *testing.T) {
	var received runSummary
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	svc := NewService(server.URL, logrus.New())
	results := map[string]*valuation.Result{
		models.TypeSingleFamily: {
			PropertyType: models.TypeSingleFamily,
			Rows:         200,
			Metrics:      models.Metrics{ValRMSE: 21000, ValMAPE: 4.2, ValR2: 0.91},
		},
		models.TypeCondo: {
			PropertyType: models.TypeCondo,
			Rows:         80,
			Metrics:      models.Metrics{ValRMSE: 15000, ValMAPE: 5.1, ValR2: 0.88},
		},
	}
	failures := map[string]error{
		models.TypeMultiFamily: errors.New("no records for property type"),
	}

	require.NoError(t, svc.TrainingCompleted(results, failures))

	require.Len(t, received.Trained, 2)
	// Deterministic ordering by property type.
	assert.Equal(t, models.TypeCondo, received.Trained[0].PropertyType)
	assert.Equal(t, models.TypeSingleFamily, received.Trained[1].PropertyType)
	assert.Equal(t, 200, received.Trained[1].Rows)
	assert.Contains(t, received.Failed, models.TypeMultiFamily)
}

func TestTrainingCompletedWebhookError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	defer server.Close()

	svc := NewService(server.URL, logrus.New())
	err := svc.TrainingCompleted(nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 500")
}

func TestTrainingCompletedDisabledWithoutURL(t *testing.T) {
	svc := NewService("", logrus.New())
	assert.NoError(t, svc.TrainingCompleted(nil, nil))
}
