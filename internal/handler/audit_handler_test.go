package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/hostelx-api/internal/dto"
	"github.com/noah-isme/hostelx-api/internal/models"
	"github.com/noah-isme/hostelx-api/internal/service"
	appErrors "github.com/noah-isme/hostelx-api/pkg/errors"
)

type fakeAudit struct {
	lastQuery dto.AuditQuery
	err       error
}

func (f *fakeAudit) List(_ context.Context, _ models.Actor, query dto.AuditQuery) ([]models.AuditEntry, *models.Pagination, error) {
	f.lastQuery = query
	if f.err != nil {
		return nil, nil, f.err
	}
	return []models.AuditEntry{{ID: "a1", Action: models.AuditActionGateOverride}}, &models.Pagination{Page: 1, PageSize: 20, TotalCount: 1}, nil
}

func (f *fakeAudit) Export(_ context.Context, _ models.Actor, query dto.AuditQuery) (*service.ExportResult, error) {
	f.lastQuery = query
	if f.err != nil {
		return nil, f.err
	}
	return &service.ExportResult{Filename: "audit-20260310-090000.csv", ContentType: "text/csv", Body: []byte("Time,Action\n"), Rows: 0}, nil
}

func newAuditRouter(h *AuditHandler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(withClaims(wardenClaims))
	r.GET("/audit", h.List)
	r.GET("/audit/export", h.Export)
	return r
}

func TestAuditListForwardsFilters(t *testing.T) {
	svc := &fakeAudit{}
	rec := httptest.NewRecorder()
	newAuditRouter(NewAuditHandler(svc)).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/audit?action=GATE_OVERRIDE&from=2026-03-01T00:00:00Z", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "GATE_OVERRIDE", svc.lastQuery.Action)
	assert.Equal(t, "2026-03-01T00:00:00Z", svc.lastQuery.From)
	assert.Equal(t, 1, decodeEnvelope(t, rec).Pagination.TotalCount)
}

func TestAuditExportSetsAttachmentHeaders(t *testing.T) {
	rec := httptest.NewRecorder()
	newAuditRouter(NewAuditHandler(&fakeAudit{})).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/audit/export?format=csv", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv", rec.Header().Get("Content-Type"))
	assert.Equal(t, "attachment; filename=audit-20260310-090000.csv", rec.Header().Get("Content-Disposition"))
	assert.Equal(t, "0", rec.Header().Get("X-Export-Rows"))
}

func TestAuditExportForbidden(t *testing.T) {
	rec := httptest.NewRecorder()
	newAuditRouter(NewAuditHandler(&fakeAudit{err: appErrors.Clone(appErrors.ErrForbidden, "only administrators")})).
		ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/audit/export", nil))
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

type fakeMetrics struct{}

func (fakeMetrics) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("hostelx_gate_decisions_total 1\n"))
	})
}

func (fakeMetrics) Snapshot() models.SystemMetrics {
	return models.SystemMetrics{GateGrants: 3, GateDenials: 1}
}

func TestReadyReportsFailingDependency(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := NewMetricsHandler(fakeMetrics{}, map[string]ReadinessCheck{
		"postgres": func(context.Context) error { return nil },
		"redis":    func(context.Context) error { return errors.New("connection refused") },
	})
	r := gin.New()
	r.GET("/ready", h.Ready)
	r.GET("/metrics", h.Prometheus)
	r.GET("/metrics/summary", h.Summary)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "connection refused")

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Contains(t, rec.Body.String(), "hostelx_gate_decisions_total")

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics/summary", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"gate_grants":3`)
}
