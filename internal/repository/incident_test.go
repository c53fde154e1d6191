package repository

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"wardlink-alert/internal/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func setupMockIncidentDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock, *IncidentRepository) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	logger := zap.NewNop()
	repo := NewIncidentRepository(db, logger)

	return db, mock, repo
}

func incidentColumns() []string {
	return []string{
		"event_id", "ward_id", "alert_type", "priority", "status",
		"triggered_at", "handled_at", "latitude", "longitude", "accuracy",
		"description", "handler", "notes",
		"pre_incident_data", "notified_guardians", "metadata",
		"created_at", "updated_at",
	}
}

func sampleIncident() *models.Incident {
	now := time.Now()
	lat := 59.32932
	lng := 18.06858
	return &models.Incident{
		EventID:           uuid.New().String(),
		WardID:            uuid.New().String(),
		AlertType:         models.AlertFallDetected,
		Priority:          models.PriorityCritical,
		Status:            models.IncidentStatusActive,
		TriggeredAt:       now,
		Latitude:          &lat,
		Longitude:         &lng,
		PreIncidentData:   "{}",
		NotifiedGuardians: "[]",
		Metadata:          "{}",
		CreatedAt:         now,
		UpdatedAt:         now,
	}
}

func TestCreateIncident_Success(t *testing.T) {
	db, mock, repo := setupMockIncidentDB(t)
	defer db.Close()

	incident := sampleIncident()

	mock.ExpectExec(`INSERT INTO incident_events`).
		WithArgs(
			incident.EventID,
			incident.WardID,
			string(incident.AlertType),
			string(incident.Priority),
			incident.Status,
			incident.TriggeredAt,
			incident.HandledAt,
			incident.Latitude,
			incident.Longitude,
			incident.Accuracy,
			incident.Description,
			incident.Handler,
			incident.Notes,
			incident.PreIncidentData,
			incident.NotifiedGuardians,
			incident.Metadata,
			incident.CreatedAt,
			incident.UpdatedAt,
		).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.CreateIncident(context.Background(), incident)

	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateIncident_MissingFields(t *testing.T) {
	db, _, repo := setupMockIncidentDB(t)
	defer db.Close()

	ctx := context.Background()

	err := repo.CreateIncident(ctx, nil)
	assert.Error(t, err)

	err = repo.CreateIncident(ctx, &models.Incident{WardID: "w-1"})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "event_id is required")

	err = repo.CreateIncident(ctx, &models.Incident{EventID: "e-1"})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "ward_id is required")
}

func TestGetIncident_Success(t *testing.T) {
	db, mock, repo := setupMockIncidentDB(t)
	defer db.Close()

	eventID := uuid.New().String()
	now := time.Now()

	rows := sqlmock.NewRows(incidentColumns()).
		AddRow(
			eventID, "ward-1", "SOS_TRIGGERED", "EMERGENCY", "active",
			now, nil, 59.32932, 18.06858, 12.5,
			"Manual SOS", nil, nil,
			[]byte(`{"location_samples":[]}`), []byte(`[]`), []byte(`{}`),
			now, now,
		)

	mock.ExpectQuery(`SELECT`).
		WithArgs(eventID).
		WillReturnRows(rows)

	incident, err := repo.GetIncident(context.Background(), eventID)

	require.NoError(t, err)
	require.NotNil(t, incident)
	assert.Equal(t, eventID, incident.EventID)
	assert.Equal(t, models.AlertSOSTriggered, incident.AlertType)
	assert.Equal(t, models.PriorityEmergency, incident.Priority)
	require.NotNil(t, incident.Latitude)
	assert.InDelta(t, 59.32932, *incident.Latitude, 0.00001)
	assert.Nil(t, incident.HandledAt)
	assert.Equal(t, `{"location_samples":[]}`, incident.PreIncidentData)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetIncident_NotFound(t *testing.T) {
	db, mock, repo := setupMockIncidentDB(t)
	defer db.Close()

	mock.ExpectQuery(`SELECT`).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	incident, err := repo.GetIncident(context.Background(), "missing")

	assert.Error(t, err)
	assert.Nil(t, incident)
	assert.Contains(t, err.Error(), "incident not found")

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetIncident_JSONBDefaults(t *testing.T) {
	db, mock, repo := setupMockIncidentDB(t)
	defer db.Close()

	eventID := uuid.New().String()
	now := time.Now()

	// JSONB 列为空时回填默认值
	rows := sqlmock.NewRows(incidentColumns()).
		AddRow(
			eventID, "ward-1", "BATTERY_LOW", "LOW", "active",
			now, nil, nil, nil, nil,
			nil, nil, nil,
			nil, nil, nil,
			now, now,
		)

	mock.ExpectQuery(`SELECT`).
		WithArgs(eventID).
		WillReturnRows(rows)

	incident, err := repo.GetIncident(context.Background(), eventID)

	require.NoError(t, err)
	assert.Equal(t, "{}", incident.PreIncidentData)
	assert.Equal(t, "[]", incident.NotifiedGuardians)
	assert.Equal(t, "{}", incident.Metadata)
	assert.Nil(t, incident.Latitude)
	assert.Nil(t, incident.Description)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetRecentIncident_Found(t *testing.T) {
	db, mock, repo := setupMockIncidentDB(t)
	defer db.Close()

	now := time.Now()
	eventID := uuid.New().String()

	rows := sqlmock.NewRows(incidentColumns()).
		AddRow(
			eventID, "ward-1", "FALL_DETECTED", "CRITICAL", "active",
			now, nil, nil, nil, nil,
			nil, nil, nil,
			[]byte(`{}`), []byte(`[]`), []byte(`{}`),
			now, now,
		)

	mock.ExpectQuery(`SELECT`).
		WithArgs("ward-1", "FALL_DETECTED", sqlmock.AnyArg()).
		WillReturnRows(rows)

	incident, err := repo.GetRecentIncident(context.Background(), "ward-1", models.AlertFallDetected, 5)

	require.NoError(t, err)
	require.NotNil(t, incident)
	assert.Equal(t, eventID, incident.EventID)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetRecentIncident_NoneIsNotError(t *testing.T) {
	db, mock, repo := setupMockIncidentDB(t)
	defer db.Close()

	mock.ExpectQuery(`SELECT`).
		WithArgs("ward-1", "FALL_DETECTED", sqlmock.AnyArg()).
		WillReturnError(sql.ErrNoRows)

	incident, err := repo.GetRecentIncident(context.Background(), "ward-1", models.AlertFallDetected, 5)

	// 无记录不是错误（抑制检查放行）
	require.NoError(t, err)
	assert.Nil(t, incident)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetRecentIncident_ZeroWindowSkipsQuery(t *testing.T) {
	db, mock, repo := setupMockIncidentDB(t)
	defer db.Close()

	incident, err := repo.GetRecentIncident(context.Background(), "ward-1", models.AlertFallDetected, 0)

	require.NoError(t, err)
	assert.Nil(t, incident)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateNotifiedGuardians_Success(t *testing.T) {
	db, mock, repo := setupMockIncidentDB(t)
	defer db.Close()

	eventID := uuid.New().String()
	results := []models.DeliveryResult{
		{GuardianID: "g-1", Success: true, Channel: models.ChannelSMS, Timestamp: time.Now()},
		{GuardianID: "g-2", Success: true, Channel: models.ChannelConsole, Timestamp: time.Now()},
	}

	mock.ExpectExec(`UPDATE incident_events`).
		WithArgs(sqlmock.AnyArg(), eventID).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.UpdateNotifiedGuardians(context.Background(), eventID, results)

	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateNotifiedGuardians_NotFound(t *testing.T) {
	db, mock, repo := setupMockIncidentDB(t)
	defer db.Close()

	mock.ExpectExec(`UPDATE incident_events`).
		WithArgs(sqlmock.AnyArg(), "missing").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.UpdateNotifiedGuardians(context.Background(), "missing", nil)

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "incident not found")

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAcknowledgeIncident_Success(t *testing.T) {
	db, mock, repo := setupMockIncidentDB(t)
	defer db.Close()

	eventID := uuid.New().String()

	mock.ExpectExec(`UPDATE incident_events`).
		WithArgs(models.IncidentStatusAcknowledged, "handler-1", eventID, models.IncidentStatusActive).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.AcknowledgeIncident(context.Background(), eventID, "handler-1")

	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAcknowledgeIncident_NotActive(t *testing.T) {
	db, mock, repo := setupMockIncidentDB(t)
	defer db.Close()

	eventID := uuid.New().String()

	mock.ExpectExec(`UPDATE incident_events`).
		WithArgs(models.IncidentStatusAcknowledged, "handler-1", eventID, models.IncidentStatusActive).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.AcknowledgeIncident(context.Background(), eventID, "handler-1")

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "not found or not active")

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestResolveIncident_Success(t *testing.T) {
	db, mock, repo := setupMockIncidentDB(t)
	defer db.Close()

	eventID := uuid.New().String()
	notes := "False alarm, ward confirmed safe"

	mock.ExpectExec(`UPDATE incident_events`).
		WithArgs(models.IncidentStatusResolved, "handler-1", &notes, eventID,
			models.IncidentStatusActive, models.IncidentStatusAcknowledged).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.ResolveIncident(context.Background(), eventID, "handler-1", &notes)

	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestResolveIncident_MissingHandler(t *testing.T) {
	db, _, repo := setupMockIncidentDB(t)
	defer db.Close()

	err := repo.ResolveIncident(context.Background(), "e-1", "", nil)

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "handler_id is required")
}

func TestListIncidents_WithFilters(t *testing.T) {
	db, mock, repo := setupMockIncidentDB(t)
	defer db.Close()

	now := time.Now()
	wardID := "ward-1"
	status := string(models.IncidentStatusActive)
	filters := IncidentFilters{
		WardID: &wardID,
		Status: &status,
	}

	countRows := sqlmock.NewRows([]string{"count"}).AddRow(2)
	mock.ExpectQuery(`SELECT COUNT`).
		WithArgs(wardID, status).
		WillReturnRows(countRows)

	rows := sqlmock.NewRows(incidentColumns()).
		AddRow(
			"e-2", wardID, "FALL_DETECTED", "CRITICAL", "active",
			now, nil, nil, nil, nil, nil, nil, nil,
			[]byte(`{}`), []byte(`[]`), []byte(`{}`), now, now,
		).
		AddRow(
			"e-1", wardID, "SOS_TRIGGERED", "EMERGENCY", "active",
			now.Add(-time.Minute), nil, nil, nil, nil, nil, nil, nil,
			[]byte(`{}`), []byte(`[]`), []byte(`{}`), now, now,
		)

	mock.ExpectQuery(`SELECT`).
		WithArgs(wardID, status, 20, 0).
		WillReturnRows(rows)

	incidents, total, err := repo.ListIncidents(context.Background(), filters, 1, 20)

	require.NoError(t, err)
	assert.Equal(t, 2, total)
	require.Len(t, incidents, 2)
	assert.Equal(t, "e-2", incidents[0].EventID)
	assert.Equal(t, "e-1", incidents[1].EventID)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCountIncidents(t *testing.T) {
	db, mock, repo := setupMockIncidentDB(t)
	defer db.Close()

	priority := string(models.PriorityEmergency)
	filters := IncidentFilters{Priority: &priority}

	rows := sqlmock.NewRows([]string{"count"}).AddRow(7)
	mock.ExpectQuery(`SELECT COUNT`).
		WithArgs(priority).
		WillReturnRows(rows)

	count, err := repo.CountIncidents(context.Background(), filters)

	require.NoError(t, err)
	assert.Equal(t, 7, count)

	require.NoError(t, mock.ExpectationsWereMet())
}
