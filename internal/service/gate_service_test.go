package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/hostelx-api/internal/models"
	appErrors "github.com/noah-isme/hostelx-api/pkg/errors"
)

func TestVerifyRejectsMalformedCodes(t *testing.T) {
	h := newHarness(t)
	for _, raw := range []string{"", "12345", "1234567", "12a456", "１２３４５６"} {
		decision, err := h.gate.Verify(context.Background(), newActor(models.RoleSecurity), raw)
		require.NoError(t, err)
		assert.Equal(t, models.GateDeny, decision.Outcome, raw)
		assert.Equal(t, models.DenyNotFound, decision.Reason, raw)
		assert.Empty(t, decision.LeaveID)
	}
}

func TestVerifyConcurrentSingleGrant(t *testing.T) {
	h := newHarness(t)
	leave := h.submitLeave(t, newActor(models.RoleStudent), "2026-03-10", "2026-03-12")
	code := h.approve(t, leave.ID).Code()

	const verifiers = 32
	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		grants int
		denies = map[models.DenyReason]int{}
	)
	start := make(chan struct{})
	for i := 0; i < verifiers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			decision, err := h.gate.Verify(context.Background(), newActor(models.RoleSecurity), code)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				t.Errorf("verify: %v", err)
				return
			}
			if decision.Granted() {
				grants++
				return
			}
			denies[decision.Reason]++
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, 1, grants)
	assert.Equal(t, verifiers-1, denies[models.DenyAlreadyUsed])

	entries, total, err := h.audit.List(context.Background(), models.AuditFilter{EntityID: leave.ID, Action: models.AuditActionGateGrant})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, entries, 1)
	require.NotNil(t, entries[0].Method)
	assert.Equal(t, models.GateMethodCode, *entries[0].Method)
}

func TestVerifyIsIdempotentAfterConsumption(t *testing.T) {
	h := newHarness(t)
	leave := h.submitLeave(t, newActor(models.RoleStudent), "2026-03-10", "2026-03-12")
	code := h.approve(t, leave.ID).Code()
	security := newActor(models.RoleSecurity)

	first, err := h.gate.Verify(context.Background(), security, code)
	require.NoError(t, err)
	require.True(t, first.Granted())

	for i := 0; i < 3; i++ {
		again, err := h.gate.Verify(context.Background(), security, " "+code[:3]+" "+code[3:])
		require.NoError(t, err)
		assert.Equal(t, models.GateDeny, again.Outcome)
		assert.Equal(t, models.DenyAlreadyUsed, again.Reason)
		assert.Equal(t, leave.ID, again.LeaveID)
	}
}

func TestVerifyAnonymousCallerStillAudited(t *testing.T) {
	h := newHarness(t)
	leave := h.submitLeave(t, newActor(models.RoleStudent), "2026-03-10", "2026-03-12")
	code := h.approve(t, leave.ID).Code()

	decision, err := h.gate.Verify(context.Background(), models.Actor{}, code)
	require.NoError(t, err)
	require.True(t, decision.Granted())

	entries, _, err := h.audit.List(context.Background(), models.AuditFilter{Action: models.AuditActionGateGrant})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Nil(t, entries[0].ActorID)
	assert.Equal(t, string(models.RoleSecurity), entries[0].ActorRole)
	assert.Equal(t, decision.AuditID, entries[0].ID)
}

func TestVerifyDeniesExpiredAndPersistsExpiry(t *testing.T) {
	h := newHarness(t)
	leave := h.submitLeave(t, newActor(models.RoleStudent), "2026-03-10", "2026-03-11")
	code := h.approve(t, leave.ID).Code()

	h.clock.Advance(39*time.Hour + time.Minute)

	decision, err := h.gate.Verify(context.Background(), newActor(models.RoleSecurity), code)
	require.NoError(t, err)
	assert.Equal(t, models.DenyExpired, decision.Reason)
	assert.Equal(t, leave.ID, decision.LeaveID)

	stored, err := h.store.Get(context.Background(), leave.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusExpired, stored.Status)
	assert.Nil(t, stored.OTPConsumedAt)

	again, err := h.gate.Verify(context.Background(), newActor(models.RoleSecurity), code)
	require.NoError(t, err)
	assert.Equal(t, models.DenyExpired, again.Reason)
}

func TestVerifyLastInstantOfWindowStillGrants(t *testing.T) {
	h := newHarness(t)
	leave := h.submitLeave(t, newActor(models.RoleStudent), "2026-03-10", "2026-03-11")
	approved := h.approve(t, leave.ID)

	h.clock.Set(*approved.OTPValidUntil)

	decision, err := h.gate.Verify(context.Background(), newActor(models.RoleSecurity), approved.Code())
	require.NoError(t, err)
	assert.True(t, decision.Granted())
}

func TestVerifyDeniesBeforeWindowOpens(t *testing.T) {
	h := newHarness(t)
	leave := h.submitLeave(t, newActor(models.RoleStudent), "2026-03-14", "2026-03-16")
	code := h.approve(t, leave.ID).Code()

	decision, err := h.gate.Verify(context.Background(), newActor(models.RoleSecurity), code)
	require.NoError(t, err)
	assert.Equal(t, models.DenyNotYetValid, decision.Reason)

	stored, err := h.store.Get(context.Background(), leave.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusApproved, stored.Status)

	h.clock.Set(time.Date(2026, 3, 14, 6, 30, 0, 0, time.UTC))
	decision, err = h.gate.Verify(context.Background(), newActor(models.RoleSecurity), code)
	require.NoError(t, err)
	assert.True(t, decision.Granted())
}

func TestVerifyDeniesRejectedLeaveCodeAsUnknown(t *testing.T) {
	h := newHarness(t)
	decision, err := h.gate.Verify(context.Background(), newActor(models.RoleSecurity), "482913")
	require.NoError(t, err)
	assert.Equal(t, models.DenyNotFound, decision.Reason)
	assert.Empty(t, decision.StudentName)
}

func TestOverrideRequiresSecurityAndKnownJustification(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.gate.Override(ctx, models.Actor{}, string(models.JustificationMedicalEmergency), "")
	requireCode(t, err, appErrors.ErrUnauthorized.Code)

	for _, role := range []models.UserRole{models.RoleStudent, models.RoleWarden, models.RoleAdmin} {
		_, err := h.gate.Override(ctx, newActor(role), string(models.JustificationMedicalEmergency), "")
		requireCode(t, err, appErrors.ErrForbidden.Code)
	}

	_, err = h.gate.Override(ctx, newActor(models.RoleSecurity), "felt like it", "")
	requireCode(t, err, appErrors.ErrInvalidRequest.Code)

	_, err = h.gate.Override(ctx, newActor(models.RoleSecurity), string(models.JustificationDirectWardenCall), uuid.NewString())
	requireCode(t, err, appErrors.ErrNotFound.Code)

	complaint := seedRequest(t, h, models.KindComplaint, models.StatusPending)
	_, err = h.gate.Override(ctx, newActor(models.RoleSecurity), string(models.JustificationDirectWardenCall), complaint.ID)
	requireCode(t, err, appErrors.ErrInvalidRequest.Code)

	entries, total, err := h.audit.List(ctx, models.AuditFilter{Action: models.AuditActionGateOverride})
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Empty(t, entries)
}

func TestOverrideWithoutLeaveRecordsAudit(t *testing.T) {
	h := newHarness(t)
	security := newActor(models.RoleSecurity)

	decision, err := h.gate.Override(context.Background(), security, string(models.JustificationTechnicalFailure), "")
	require.NoError(t, err)
	assert.True(t, decision.Granted())
	assert.Equal(t, models.GateMethodOverride, decision.Method)
	require.NotEmpty(t, decision.AuditID)

	entries, _, err := h.audit.List(context.Background(), models.AuditFilter{Action: models.AuditActionGateOverride})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, decision.AuditID, entries[0].ID)
	assert.Equal(t, string(models.JustificationTechnicalFailure), entries[0].Justification)
	require.NotNil(t, entries[0].ActorID)
	assert.Equal(t, security.ID, *entries[0].ActorID)
	assert.Nil(t, entries[0].EntityID)
}

func TestOverrideConsumesLinkedLiveCode(t *testing.T) {
	h := newHarness(t)
	leave := h.submitLeave(t, newActor(models.RoleStudent), "2026-03-10", "2026-03-12")
	code := h.approve(t, leave.ID).Code()

	decision, err := h.gate.Override(context.Background(), newActor(models.RoleSecurity), string(models.JustificationMedicalEmergency), leave.ID)
	require.NoError(t, err)
	assert.True(t, decision.Granted())
	assert.Equal(t, leave.ID, decision.LeaveID)

	stored, err := h.store.Get(context.Background(), leave.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusConsumed, stored.Status)
	assert.Equal(t, 0, h.registry.Live())

	overrides, _, err := h.audit.List(context.Background(), models.AuditFilter{EntityID: leave.ID, Action: models.AuditActionGateOverride})
	require.NoError(t, err)
	require.Len(t, overrides, 1)
	assert.Equal(t, string(models.StatusApproved), overrides[0].FromStatus)
	assert.Empty(t, overrides[0].ToStatus)

	grants, _, err := h.audit.List(context.Background(), models.AuditFilter{EntityID: leave.ID, Action: models.AuditActionGateGrant})
	require.NoError(t, err)
	require.Len(t, grants, 1)
	assert.Equal(t, string(models.StatusConsumed), grants[0].ToStatus)
	require.NotNil(t, grants[0].Method)
	assert.Equal(t, models.GateMethodOverride, *grants[0].Method)

	after, err := h.gate.Verify(context.Background(), newActor(models.RoleSecurity), code)
	require.NoError(t, err)
	assert.Equal(t, models.DenyAlreadyUsed, after.Reason)
}

func TestOverrideExpiresLinkedLeavePastWindow(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	leave := h.submitLeave(t, newActor(models.RoleStudent), "2026-03-10", "2026-03-12")
	h.approve(t, leave.ID)

	h.clock.Advance(30 * 24 * time.Hour)

	decision, err := h.gate.Override(ctx, newActor(models.RoleSecurity), string(models.JustificationDirectWardenCall), leave.ID)
	require.NoError(t, err)
	assert.True(t, decision.Granted())

	stored, err := h.store.Get(ctx, leave.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusExpired, stored.Status)
	assert.Nil(t, stored.OTPConsumedAt)
	assert.Equal(t, 0, h.registry.Live())

	overrides, _, err := h.audit.List(ctx, models.AuditFilter{EntityID: leave.ID, Action: models.AuditActionGateOverride})
	require.NoError(t, err)
	require.Len(t, overrides, 1)
	assert.Equal(t, string(models.StatusExpired), overrides[0].FromStatus)
	assert.Empty(t, overrides[0].ToStatus)

	_, total, err := h.audit.List(ctx, models.AuditFilter{EntityID: leave.ID, Action: models.AuditActionGateGrant})
	require.NoError(t, err)
	assert.Zero(t, total)
}

func TestOverrideAuditStaysTrueWhenVerifyWinsConsume(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	leave := h.submitLeave(t, newActor(models.RoleStudent), "2026-03-10", "2026-03-12")
	code := h.approve(t, leave.ID).Code()

	store := &interleavedStore{MemoryRequestStore: h.store, before: func() {
		granted, err := h.gate.Verify(ctx, newActor(models.RoleSecurity), code)
		require.NoError(t, err)
		require.True(t, granted.Granted())
	}}
	gate := NewGateService(store, h.audit, h.issuer, h.lifecycle, zap.NewNop(), WithGateClock(h.clock))

	decision, err := gate.Override(ctx, newActor(models.RoleSecurity), string(models.JustificationTechnicalFailure), leave.ID)
	require.NoError(t, err)
	assert.True(t, decision.Granted())

	overrides, _, err := h.audit.List(ctx, models.AuditFilter{EntityID: leave.ID, Action: models.AuditActionGateOverride})
	require.NoError(t, err)
	require.Len(t, overrides, 1)
	assert.Empty(t, overrides[0].ToStatus)

	grants, _, err := h.audit.List(ctx, models.AuditFilter{EntityID: leave.ID, Action: models.AuditActionGateGrant})
	require.NoError(t, err)
	require.Len(t, grants, 1)
	require.NotNil(t, grants[0].Method)
	assert.Equal(t, models.GateMethodCode, *grants[0].Method)
}

func TestOverrideFailsClosedWhenAuditUnavailable(t *testing.T) {
	h := newHarness(t, withAudit(failingAudit{err: errors.New("disk full")}))
	leave := h.submitLeave(t, newActor(models.RoleStudent), "2026-03-10", "2026-03-12")
	code := h.approve(t, leave.ID).Code()

	_, err := h.gate.Override(context.Background(), newActor(models.RoleSecurity), string(models.JustificationPreAuthorizedExit), leave.ID)
	requireCode(t, err, appErrors.ErrDependencyFailure.Code)

	stored, err := h.store.Get(context.Background(), leave.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusApproved, stored.Status)
	assert.Equal(t, code, stored.Code())
	assert.Nil(t, stored.OTPConsumedAt)
}

func TestVerifyGrantSurvivesAuditFailure(t *testing.T) {
	h := newHarness(t, withAudit(failingAudit{err: errors.New("disk full")}))
	leave := h.submitLeave(t, newActor(models.RoleStudent), "2026-03-10", "2026-03-12")
	code := h.approve(t, leave.ID).Code()

	decision, err := h.gate.Verify(context.Background(), newActor(models.RoleSecurity), code)
	require.NoError(t, err)
	assert.True(t, decision.Granted())
}
