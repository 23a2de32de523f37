package repository

import (
	"context"
	"database/sql"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/hostelx-api/internal/models"
)

func seedLeave(t *testing.T, s *MemoryRequestStore, requester string) *models.Request {
	t.Helper()
	req := &models.Request{Kind: models.KindLeave, RequesterID: requester, Status: models.StatusPending}
	require.NoError(t, s.Create(context.Background(), req))
	return req
}

func approveWith(code string) func(*models.Request) error {
	return func(r *models.Request) error {
		until := time.Now().Add(time.Hour)
		r.Status = models.StatusApproved
		r.OTPCode = &code
		r.OTPValidUntil = &until
		return nil
	}
}

func TestMemoryRequestStoreGetMissing(t *testing.T) {
	s := NewMemoryRequestStore()
	_, err := s.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestMemoryRequestStoreReturnsCopies(t *testing.T) {
	s := NewMemoryRequestStore()
	req := seedLeave(t, s, "student-1")

	got, err := s.Get(context.Background(), req.ID)
	require.NoError(t, err)
	got.Status = models.StatusRejected

	again, err := s.Get(context.Background(), req.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, again.Status)
}

func TestMemoryRequestStoreVersionConflict(t *testing.T) {
	s := NewMemoryRequestStore()
	req := seedLeave(t, s, "student-1")

	_, err := s.Update(context.Background(), req.ID, 1, approveWith("111111"))
	require.NoError(t, err)
	_, err = s.Update(context.Background(), req.ID, 1, approveWith("222222"))
	assert.ErrorIs(t, err, ErrVersionConflict)
}

func TestMemoryRequestStoreConcurrentUpdatesOneWinner(t *testing.T) {
	s := NewMemoryRequestStore()
	req := seedLeave(t, s, "student-1")

	var wins int32
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Update(context.Background(), req.ID, 1, func(r *models.Request) error {
				r.Status = models.StatusRejected
				return nil
			})
			if err == nil {
				atomic.AddInt32(&wins, 1)
			}
		}()
	}
	wg.Wait()
	assert.EqualValues(t, 1, wins)
}

func TestMemoryRequestStoreRejectsDuplicateLiveCode(t *testing.T) {
	s := NewMemoryRequestStore()
	a := seedLeave(t, s, "student-1")
	b := seedLeave(t, s, "student-2")

	_, err := s.Update(context.Background(), a.ID, 1, approveWith("123456"))
	require.NoError(t, err)
	_, err = s.Update(context.Background(), b.ID, 1, approveWith("123456"))
	assert.ErrorIs(t, err, ErrDuplicateCode)

	// once consumed the digits may be handed out again
	_, err = s.Update(context.Background(), a.ID, 2, func(r *models.Request) error {
		now := time.Now()
		r.OTPConsumedAt = &now
		r.Status = models.StatusConsumed
		return nil
	})
	require.NoError(t, err)
	_, err = s.Update(context.Background(), b.ID, 1, approveWith("123456"))
	require.NoError(t, err)

	found, err := s.FindByCode(context.Background(), "123456")
	require.NoError(t, err)
	assert.Equal(t, b.ID, found.ID)
}

func TestMemoryRequestStoreSupersededCodeStopsResolving(t *testing.T) {
	s := NewMemoryRequestStore()
	a := seedLeave(t, s, "student-1")

	_, err := s.Update(context.Background(), a.ID, 1, approveWith("111111"))
	require.NoError(t, err)
	_, err = s.Update(context.Background(), a.ID, 2, approveWith("222222"))
	require.NoError(t, err)

	_, err = s.FindByCode(context.Background(), "111111")
	assert.ErrorIs(t, err, sql.ErrNoRows)
	found, err := s.FindByCode(context.Background(), "222222")
	require.NoError(t, err)
	assert.Equal(t, a.ID, found.ID)
}

func TestMemoryRequestStoreListScoping(t *testing.T) {
	s := NewMemoryRequestStore()
	seedLeave(t, s, "student-1")
	seedLeave(t, s, "student-2")
	require.NoError(t, s.Create(context.Background(), &models.Request{Kind: models.KindComplaint, RequesterID: "student-1", Status: models.StatusPending}))

	list, total, err := s.List(context.Background(), models.RequestFilter{RequesterID: "student-1"})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Len(t, list, 2)

	list, total, err = s.List(context.Background(), models.RequestFilter{Kinds: []models.RequestKind{models.KindLeave}})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	for _, r := range list {
		assert.Equal(t, models.KindLeave, r.Kind)
	}
}

func TestMemoryRequestStoreListOverdue(t *testing.T) {
	s := NewMemoryRequestStore()
	a := seedLeave(t, s, "student-1")
	_, err := s.Update(context.Background(), a.ID, 1, approveWith("654321"))
	require.NoError(t, err)

	ids, err := s.ListOverdue(context.Background(), time.Now(), 10)
	require.NoError(t, err)
	assert.Empty(t, ids)

	ids, err = s.ListOverdue(context.Background(), time.Now().Add(2*time.Hour), 10)
	require.NoError(t, err)
	assert.Equal(t, []string{a.ID}, ids)
}
