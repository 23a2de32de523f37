package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/hostelx-api/internal/models"
)

func strPtr(s string) *string { return &s }

func TestAuditRepositoryAppend(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewAuditRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO audit_entries")).
		WillReturnResult(sqlmock.NewResult(1, 1))

	method := models.GateMethodOverride
	entry := &models.AuditEntry{
		ActorID:       strPtr("guard-1"),
		ActorRole:     string(models.RoleSecurity),
		Action:        models.AuditActionGateOverride,
		Method:        &method,
		Justification: string(models.JustificationMedicalEmergency),
	}
	require.NoError(t, repo.Append(context.Background(), entry))
	assert.NotEmpty(t, entry.ID)
	assert.False(t, entry.CreatedAt.IsZero())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAuditRepositoryListFilters(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewAuditRepository(db)

	cols := []string{"id", "actor_id", "actor_role", "entity_id", "entity_kind", "action", "from_status", "to_status", "method", "justification", "ip_address", "created_at"}
	mock.ExpectQuery(`SELECT .* FROM audit_entries WHERE \(entity_id = \$1 AND action = \$2\)`).
		WithArgs("leave-1", models.AuditActionGateGrant).
		WillReturnRows(sqlmock.NewRows(cols).AddRow("a-1", "guard-1", "SECURITY", "leave-1", "LEAVE", "GATE_GRANT", "APPROVED", "CONSUMED", "CODE", "", "", time.Now()))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM audit_entries")).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	list, total, err := repo.List(context.Background(), models.AuditFilter{EntityID: "leave-1", Action: models.AuditActionGateGrant})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, list, 1)
	require.NotNil(t, list[0].Method)
	assert.Equal(t, models.GateMethodCode, *list[0].Method)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMemoryAuditStoreFiltersNewestFirst(t *testing.T) {
	s := NewMemoryAuditStore()
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, action := range []string{models.AuditActionSubmit, models.AuditActionTransition, models.AuditActionGateGrant} {
		require.NoError(t, s.Append(context.Background(), &models.AuditEntry{
			EntityID:  strPtr("leave-1"),
			Action:    action,
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}

	list, total, err := s.List(context.Background(), models.AuditFilter{EntityID: "leave-1"})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	assert.Equal(t, models.AuditActionGateGrant, list[0].Action)

	list, _, err = s.List(context.Background(), models.AuditFilter{Action: models.AuditActionSubmit})
	require.NoError(t, err)
	require.Len(t, list, 1)
}
