package service

import (
	"bytes"
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/hostelx-api/internal/repository"
	"github.com/noah-isme/hostelx-api/pkg/clock"
	appErrors "github.com/noah-isme/hostelx-api/pkg/errors"
)

func TestNormalizeCode(t *testing.T) {
	cases := []struct {
		raw  string
		want string
		ok   bool
	}{
		{raw: "123456", want: "123456", ok: true},
		{raw: " 123 456 ", want: "123456", ok: true},
		{raw: "12\t34\n56", want: "123456", ok: true},
		{raw: "000000", want: "000000", ok: true},
		{raw: "12345", ok: false},
		{raw: "1234567", ok: false},
		{raw: "12-456", ok: false},
		{raw: "abcdef", ok: false},
		{raw: "", ok: false},
	}
	for _, tc := range cases {
		got, ok := normalizeCode(tc.raw)
		assert.Equal(t, tc.ok, ok, tc.raw)
		if tc.ok {
			assert.Equal(t, tc.want, got, tc.raw)
		}
	}
}

func TestValidityWindowUsesGateTimezone(t *testing.T) {
	loc := time.FixedZone("WIB", 7*3600)
	start := time.Date(2026, 4, 1, 0, 0, 0, 0, loc)
	end := time.Date(2026, 4, 3, 0, 0, 0, 0, loc)

	from, until := validityWindow(start, end, loc)
	assert.True(t, from.Equal(time.Date(2026, 3, 31, 17, 0, 0, 0, time.UTC)))
	assert.True(t, until.Equal(time.Date(2026, 4, 3, 16, 59, 59, 999999999, time.UTC)))
}

func TestMintReservesDistinctCodes(t *testing.T) {
	fake := clock.Fake(testStart)
	registry := repository.NewMemoryCodeRegistry(fake.Now)
	issuer := NewOTPIssuer(registry, 8, zap.NewNop(), WithIssuerClock(fake))

	seen := map[string]struct{}{}
	for i := 0; i < 50; i++ {
		code, err := issuer.Mint(context.Background(), fmt.Sprintf("leave-%d", i), testStart.Add(24*time.Hour), "")
		require.NoError(t, err)
		assert.Len(t, code, 6)
		_, dup := seen[code]
		assert.False(t, dup)
		seen[code] = struct{}{}
	}
	assert.Equal(t, 50, registry.Live())
}

func TestMintSkipsAvoidedCode(t *testing.T) {
	fake := clock.Fake(testStart)
	registry := repository.NewMemoryCodeRegistry(fake.Now)
	// Two reads of three zero bytes followed by a non-zero draw.
	entropy := bytes.NewReader([]byte{0, 0, 0, 0, 0, 1})
	issuer := NewOTPIssuer(registry, 4, zap.NewNop(), WithIssuerClock(fake), WithIssuerRandom(entropy))

	code, err := issuer.Mint(context.Background(), "leave-1", testStart.Add(time.Hour), "000000")
	require.NoError(t, err)
	assert.Equal(t, "000001", code)
}

func TestMintExhaustsAgainstHeldCode(t *testing.T) {
	fake := clock.Fake(testStart)
	registry := repository.NewMemoryCodeRegistry(fake.Now)
	issuer := NewOTPIssuer(registry, 3, zap.NewNop(), WithIssuerClock(fake), WithIssuerRandom(zeroReader{}))

	_, err := issuer.Mint(context.Background(), "leave-1", testStart.Add(time.Hour), "")
	require.NoError(t, err)

	_, err = issuer.Mint(context.Background(), "leave-2", testStart.Add(time.Hour), "")
	require.Error(t, err)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrExhaustedRetries.Code))

	// Reservations lapse with the validity window.
	fake.Advance(2 * time.Hour)
	code, err := issuer.Mint(context.Background(), "leave-2", testStart.Add(4*time.Hour), "")
	require.NoError(t, err)
	assert.Equal(t, "000000", code)
}

func TestReleaseOnlyFreesOwnersReservation(t *testing.T) {
	fake := clock.Fake(testStart)
	registry := repository.NewMemoryCodeRegistry(fake.Now)
	issuer := NewOTPIssuer(registry, 3, zap.NewNop(), WithIssuerClock(fake), WithIssuerRandom(zeroReader{}))

	code, err := issuer.Mint(context.Background(), "leave-1", testStart.Add(time.Hour), "")
	require.NoError(t, err)

	issuer.Release(context.Background(), code, "leave-2")
	assert.Equal(t, 1, registry.Live())

	issuer.Release(context.Background(), code, "leave-1")
	assert.Equal(t, 0, registry.Live())
}
