package repository

import (
	"errors"

	"github.com/lib/pq"
)

var (
	// ErrVersionConflict is returned when a conditional update finds a newer version.
	ErrVersionConflict = errors.New("version conflict")
	// ErrDuplicateCode is returned when a write would give two live leaves the same code.
	ErrDuplicateCode = errors.New("access code already live")
)

const (
	pqUniqueViolation = "23505"
	liveCodeIndex     = "requests_live_otp_code_idx"
)

func isLiveCodeViolation(err error) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	return string(pqErr.Code) == pqUniqueViolation && pqErr.Constraint == liveCodeIndex
}
