package service

import (
	"context"
	"crypto/rand"
	"fmt"
	"io"
	"math/big"
	"time"
	"unicode"

	"go.uber.org/zap"

	"github.com/noah-isme/hostelx-api/pkg/clock"
	appErrors "github.com/noah-isme/hostelx-api/pkg/errors"
)

const (
	codeDigits = 6
	codeSpace  = 1_000_000
)

// CodeRegistry is the single serialization point for live access codes.
type CodeRegistry interface {
	Reserve(ctx context.Context, code, owner string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, code, owner string) error
}

// OTPIssuer mints six digit gate codes that are unique among live codes.
type OTPIssuer struct {
	registry    CodeRegistry
	maxAttempts int
	random      io.Reader
	clock       clock.Clock
	metrics     domainMetrics
	logger      *zap.Logger
}

// OTPIssuerOption configures the issuer.
type OTPIssuerOption func(*OTPIssuer)

// WithIssuerRandom overrides the entropy source.
func WithIssuerRandom(r io.Reader) OTPIssuerOption {
	return func(i *OTPIssuer) {
		if r != nil {
			i.random = r
		}
	}
}

// WithIssuerClock overrides the time source.
func WithIssuerClock(c clock.Clock) OTPIssuerOption {
	return func(i *OTPIssuer) {
		if c != nil {
			i.clock = c
		}
	}
}

// WithIssuerMetrics records issuance attempts.
func WithIssuerMetrics(m domainMetrics) OTPIssuerOption {
	return func(i *OTPIssuer) {
		if m != nil {
			i.metrics = m
		}
	}
}

// NewOTPIssuer constructs an issuer. maxAttempts bounds collision retries.
func NewOTPIssuer(registry CodeRegistry, maxAttempts int, logger *zap.Logger, opts ...OTPIssuerOption) *OTPIssuer {
	if maxAttempts <= 0 {
		maxAttempts = 16
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	i := &OTPIssuer{
		registry:    registry,
		maxAttempts: maxAttempts,
		random:      rand.Reader,
		clock:       clock.Real(),
		metrics:     noopMetrics{},
		logger:      logger,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(i)
		}
	}
	return i
}

// Mint reserves a fresh code for owner that stays reserved until validUntil.
// avoid is skipped so a re-issue never hands back the superseded code.
func (i *OTPIssuer) Mint(ctx context.Context, owner string, validUntil time.Time, avoid string) (string, error) {
	ttl := validUntil.Sub(i.clock.Now())
	for attempt := 1; attempt <= i.maxAttempts; attempt++ {
		code, err := i.draw()
		if err != nil {
			return "", appErrors.WrapAs(err, appErrors.ErrDependencyFailure, "failed to generate access code")
		}
		if code == avoid {
			continue
		}
		ok, err := i.registry.Reserve(ctx, code, owner, ttl)
		if err != nil {
			i.metrics.RecordCodeIssue("error", attempt)
			return "", appErrors.WrapAs(err, appErrors.ErrDependencyFailure, "access code registry unavailable")
		}
		if ok {
			i.metrics.RecordCodeIssue("issued", attempt)
			return code, nil
		}
		i.logger.Debug("access code collision", zap.Int("attempt", attempt))
	}
	i.metrics.RecordCodeIssue("exhausted", i.maxAttempts)
	return "", appErrors.Clone(appErrors.ErrExhaustedRetries, fmt.Sprintf("no free access code after %d attempts", i.maxAttempts))
}

// Release frees code so it can be handed out again. Failures are logged; the
// registry entry expires on its own.
func (i *OTPIssuer) Release(ctx context.Context, code, owner string) {
	if code == "" {
		return
	}
	if err := i.registry.Release(ctx, code, owner); err != nil {
		i.logger.Warn("failed to release access code", zap.String("entity_id", owner), zap.Error(err))
	}
}

func (i *OTPIssuer) draw() (string, error) {
	n, err := rand.Int(i.random, big.NewInt(codeSpace))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%0*d", codeDigits, n.Int64()), nil
}

// validityWindow spans from the first instant of start to the last instant of
// end, both read as calendar days in loc.
func validityWindow(start, end time.Time, loc *time.Location) (time.Time, time.Time) {
	from := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, loc)
	until := time.Date(end.Year(), end.Month(), end.Day(), 23, 59, 59, int(time.Second-time.Nanosecond), loc)
	return from, until
}

// normalizeCode strips whitespace and reports whether the rest is six digits.
func normalizeCode(raw string) (string, bool) {
	buf := make([]byte, 0, codeDigits)
	for _, r := range raw {
		switch {
		case unicode.IsSpace(r):
			continue
		case r >= '0' && r <= '9':
			if len(buf) == codeDigits {
				return "", false
			}
			buf = append(buf, byte(r))
		default:
			return "", false
		}
	}
	return string(buf), len(buf) == codeDigits
}
