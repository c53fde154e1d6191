package repository

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func setupMockAuditDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock, *AuditRepository) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	logger := zap.NewNop()
	repo := NewAuditRepository(db, logger)

	return db, mock, repo
}

func TestRecordDelivery_Success(t *testing.T) {
	db, mock, repo := setupMockAuditDB(t)
	defer db.Close()

	incidentID := uuid.New().String()
	providerID := "SM-abc123"
	attempt := &DeliveryAttempt{
		AttemptID:         uuid.New().String(),
		IncidentID:        &incidentID,
		GuardianID:        "guardian-1",
		WardID:            "ward-1",
		AlertType:         "FALL_DETECTED",
		Channel:           "sms",
		Success:           true,
		ProviderMessageID: &providerID,
		AttemptedAt:       time.Now(),
	}

	mock.ExpectExec(`INSERT INTO delivery_audit`).
		WithArgs(
			attempt.AttemptID,
			attempt.IncidentID,
			attempt.GuardianID,
			attempt.WardID,
			attempt.AlertType,
			attempt.Channel,
			attempt.Success,
			attempt.Error,
			attempt.ProviderMessageID,
			attempt.AttemptedAt,
		).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.RecordDelivery(context.Background(), attempt)

	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordDelivery_FailedAttemptWithError(t *testing.T) {
	db, mock, repo := setupMockAuditDB(t)
	defer db.Close()

	errMsg := "SMS provider returned 503"
	attempt := &DeliveryAttempt{
		AttemptID:   uuid.New().String(),
		GuardianID:  "guardian-1",
		WardID:      "ward-1",
		AlertType:   "SOS_TRIGGERED",
		Channel:     "sms",
		Success:     false,
		Error:       &errMsg,
		AttemptedAt: time.Now(),
	}

	mock.ExpectExec(`INSERT INTO delivery_audit`).
		WithArgs(
			attempt.AttemptID,
			nil,
			attempt.GuardianID,
			attempt.WardID,
			attempt.AlertType,
			attempt.Channel,
			false,
			&errMsg,
			nil,
			attempt.AttemptedAt,
		).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.RecordDelivery(context.Background(), attempt)

	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordDelivery_MissingFields(t *testing.T) {
	db, _, repo := setupMockAuditDB(t)
	defer db.Close()

	ctx := context.Background()

	err := repo.RecordDelivery(ctx, nil)
	assert.Error(t, err)

	err = repo.RecordDelivery(ctx, &DeliveryAttempt{GuardianID: "g-1"})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "attempt_id is required")

	err = repo.RecordDelivery(ctx, &DeliveryAttempt{AttemptID: "a-1"})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "guardian_id is required")
}

func TestListDeliveries_Success(t *testing.T) {
	db, mock, repo := setupMockAuditDB(t)
	defer db.Close()

	incidentID := uuid.New().String()
	now := time.Now()

	rows := sqlmock.NewRows([]string{
		"attempt_id", "incident_id", "guardian_id", "ward_id", "alert_type",
		"channel", "success", "error", "provider_message_id", "attempted_at",
	}).
		AddRow("a-1", incidentID, "g-1", "ward-1", "FALL_DETECTED",
			"sms", true, nil, "SM-1", now.Add(-2*time.Second)).
		AddRow("a-2", incidentID, "g-2", "ward-1", "FALL_DETECTED",
			"console", true, "sms delivery failed", nil, now)

	mock.ExpectQuery(`SELECT`).
		WithArgs(incidentID).
		WillReturnRows(rows)

	attempts, err := repo.ListDeliveries(context.Background(), incidentID)

	require.NoError(t, err)
	require.Len(t, attempts, 2)

	assert.Equal(t, "a-1", attempts[0].AttemptID)
	assert.Equal(t, "sms", attempts[0].Channel)
	assert.True(t, attempts[0].Success)
	require.NotNil(t, attempts[0].ProviderMessageID)
	assert.Equal(t, "SM-1", *attempts[0].ProviderMessageID)
	assert.Nil(t, attempts[0].Error)

	assert.Equal(t, "console", attempts[1].Channel)
	require.NotNil(t, attempts[1].Error)
	assert.Equal(t, "sms delivery failed", *attempts[1].Error)
	assert.Nil(t, attempts[1].ProviderMessageID)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListDeliveries_EmptyIncidentID(t *testing.T) {
	db, _, repo := setupMockAuditDB(t)
	defer db.Close()

	attempts, err := repo.ListDeliveries(context.Background(), "")

	assert.Error(t, err)
	assert.Nil(t, attempts)
	assert.Contains(t, err.Error(), "incident_id is required")
}
