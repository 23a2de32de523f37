package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/hostelx-api/internal/middleware"
	"github.com/noah-isme/hostelx-api/internal/models"
	appErrors "github.com/noah-isme/hostelx-api/pkg/errors"
)

func claimsFromContext(c *gin.Context) *models.JWTClaims {
	return middleware.Claims(c)
}

// actorFromContext returns the caller identity. The zero Actor stands for an
// anonymous caller; services decide whether that is acceptable.
func actorFromContext(c *gin.Context) models.Actor {
	return claimsFromContext(c).Actor()
}

func bindError(err error, msg string) error {
	return appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, msg)
}

func queryInt(c *gin.Context, key string) int {
	v, err := strconv.Atoi(c.Query(key))
	if err != nil {
		return 0
	}
	return v
}
