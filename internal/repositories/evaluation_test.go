package repositories

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"alfredoptarigan/ai-cv-evaluator/internal/models"
)

func TestStatusUpdatesProcessing(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	updates, err := statusUpdates(models.StatusProcessing, nil, now)
	require.NoError(t, err)

	assert.Equal(t, models.StatusProcessing, updates["status"])
	assert.Contains(t, updates, "attempts")
	assert.Contains(t, updates, "started_at")
	assert.Nil(t, updates["completed_at"])
	assert.Nil(t, updates["error_message"])
}

func TestStatusUpdatesCompletedRequiresResult(t *testing.T) {
	_, err := statusUpdates(models.StatusCompleted, nil, time.Now())
	require.Error(t, err)

	now := time.Now()
	updates, err := statusUpdates(models.StatusCompleted, &StatusPatch{Result: &models.EvaluationResult{
		CVMatchRate:    0.8,
		OverallSummary: "Strong hire.",
		TotalTokens:    1200,
	}}, now)
	require.NoError(t, err)
	assert.Equal(t, 0.8, updates["cv_match_rate"])
	assert.Equal(t, "Strong hire.", updates["overall_summary"])
	assert.Equal(t, now, updates["completed_at"])
	assert.Nil(t, updates["error_message"])
}

func TestStatusUpdatesFailedClearsResult(t *testing.T) {
	_, err := statusUpdates(models.StatusFailed, &StatusPatch{}, time.Now())
	require.Error(t, err)

	updates, err := statusUpdates(models.StatusFailed, &StatusPatch{ErrorMessage: "boom"}, time.Now())
	require.NoError(t, err)
	assert.Equal(t, "boom", updates["error_message"])
	for _, column := range resultColumns {
		assert.Nil(t, updates[column], column)
	}
	assert.NotNil(t, updates["completed_at"])
}

func TestStatusUpdatesRejectsQueued(t *testing.T) {
	_, err := statusUpdates(models.StatusQueued, nil, time.Now())
	assert.True(t, errors.Is(err, models.ErrInvalidTransition))
}
