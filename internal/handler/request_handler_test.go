package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/hostelx-api/internal/dto"
	"github.com/noah-isme/hostelx-api/internal/middleware"
	"github.com/noah-isme/hostelx-api/internal/models"
	appErrors "github.com/noah-isme/hostelx-api/pkg/errors"
)

type testEnvelope struct {
	Data       json.RawMessage        `json:"data"`
	Error      *appErrors.Error       `json:"error"`
	Pagination *models.Pagination     `json:"pagination"`
	Meta       map[string]interface{} `json:"meta"`
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) testEnvelope {
	t.Helper()
	var env testEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return env
}

func withClaims(claims *models.JWTClaims) gin.HandlerFunc {
	return func(c *gin.Context) {
		if claims != nil {
			c.Set(middleware.ContextUserKey, claims)
		}
		c.Next()
	}
}

func jsonRequest(method, path string, body interface{}) *http.Request {
	raw, _ := json.Marshal(body)
	req := httptest.NewRequest(method, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	return req
}

var (
	studentClaims  = &models.JWTClaims{UserID: "11111111-1111-1111-1111-111111111111", Role: models.RoleStudent, FullName: "Rina", Room: "B-204"}
	wardenClaims   = &models.JWTClaims{UserID: "22222222-2222-2222-2222-222222222222", Role: models.RoleWarden, FullName: "Pak Joko"}
	securityClaims = &models.JWTClaims{UserID: "33333333-3333-3333-3333-333333333333", Role: models.RoleSecurity, FullName: "Budi"}
)

type fakeLifecycle struct {
	lastActor  models.Actor
	lastID     string
	lastAction dto.TransitionRequest
	lastQuery  dto.ListRequestsQuery
	result     *models.Request
	list       []models.Request
	err        error
}

func (f *fakeLifecycle) SubmitComplaint(_ context.Context, actor models.Actor, req dto.SubmitComplaintRequest) (*models.Request, error) {
	f.lastActor = actor
	if f.err != nil {
		return nil, f.err
	}
	return &models.Request{ID: "c1", Kind: models.KindComplaint, RequesterID: actor.ID, Title: req.Title, Status: models.StatusPending, EvidenceRef: req.EvidenceRef}, nil
}

func (f *fakeLifecycle) SubmitLeave(_ context.Context, actor models.Actor, _ dto.SubmitLeaveRequest) (*models.Request, error) {
	f.lastActor = actor
	return f.result, f.err
}

func (f *fakeLifecycle) SubmitMedical(_ context.Context, actor models.Actor, _ dto.SubmitMedicalRequest) (*models.Request, error) {
	f.lastActor = actor
	return f.result, f.err
}

func (f *fakeLifecycle) Transition(_ context.Context, actor models.Actor, id string, req dto.TransitionRequest) (*models.Request, error) {
	f.lastActor, f.lastID, f.lastAction = actor, id, req
	return f.result, f.err
}

func (f *fakeLifecycle) Get(_ context.Context, actor models.Actor, id string) (*models.Request, error) {
	f.lastActor, f.lastID = actor, id
	return f.result, f.err
}

func (f *fakeLifecycle) List(_ context.Context, actor models.Actor, query dto.ListRequestsQuery) ([]models.Request, *models.Pagination, error) {
	f.lastActor, f.lastQuery = actor, query
	if f.err != nil {
		return nil, nil, f.err
	}
	return f.list, &models.Pagination{Page: 1, PageSize: 20, TotalCount: len(f.list)}, nil
}

type fakeLinker struct{}

func (fakeLinker) LinkFor(req *models.Request) string {
	if req.EvidenceRef == "" {
		return ""
	}
	return "/api/v1/evidence/signed-" + req.ID
}

type fakePasses struct{ err error }

func (f fakePasses) Render(context.Context, models.Actor, string) ([]byte, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []byte("%PDF-1.3 pass"), nil
}

func approvedLeave() *models.Request {
	code := "482913"
	from := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	until := time.Date(2026, 3, 12, 23, 59, 59, 0, time.UTC)
	return &models.Request{
		ID:            "44444444-4444-4444-4444-444444444444",
		Kind:          models.KindLeave,
		RequesterID:   studentClaims.UserID,
		Status:        models.StatusApproved,
		OTPCode:       &code,
		OTPValidFrom:  &from,
		OTPValidUntil: &until,
		OTPIssuedAt:   &from,
	}
}

func newRequestRouter(h *RequestHandler, claims *models.JWTClaims) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(withClaims(claims))
	r.POST("/complaints", h.SubmitComplaint)
	r.POST("/leaves", h.SubmitLeave)
	r.POST("/requests/:id/transitions", h.Transition)
	r.GET("/requests/:id", h.Get)
	r.GET("/requests", h.List)
	r.GET("/leaves/:id/pass.pdf", h.GatePass)
	return r
}

func TestSubmitComplaintReturnsCreatedWithEvidenceLink(t *testing.T) {
	svc := &fakeLifecycle{}
	r := newRequestRouter(NewRequestHandler(svc, nil, fakeLinker{}), studentClaims)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, jsonRequest(http.MethodPost, "/complaints", dto.SubmitComplaintRequest{
		Title: "Broken window", Description: "Room B-204", EvidenceRef: studentClaims.UserID + "/x.png",
	}))

	require.Equal(t, http.StatusCreated, rec.Code)
	env := decodeEnvelope(t, rec)
	var body dto.RequestResponse
	require.NoError(t, json.Unmarshal(env.Data, &body))
	assert.Equal(t, "Broken window", body.Title)
	assert.Equal(t, "/api/v1/evidence/signed-c1", body.EvidenceURL)
	assert.Equal(t, studentClaims.UserID, svc.lastActor.ID)
	assert.Equal(t, "B-204", svc.lastActor.Room)
}

func TestSubmitComplaintRejectsMalformedJSON(t *testing.T) {
	r := newRequestRouter(NewRequestHandler(&fakeLifecycle{}, nil, nil), studentClaims)
	req := httptest.NewRequest(http.MethodPost, "/complaints", bytes.NewBufferString("{"))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, appErrors.ErrValidation.Code, decodeEnvelope(t, rec).Error.Code)
}

func TestTransitionMapsServiceErrors(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{appErrors.Clone(appErrors.ErrInvalidTransition, "nope"), http.StatusConflict},
		{appErrors.Clone(appErrors.ErrForbidden, "nope"), http.StatusForbidden},
		{appErrors.Clone(appErrors.ErrDependencyFailure, "registry down"), http.StatusBadGateway},
		{appErrors.Clone(appErrors.ErrExhaustedRetries, "full"), http.StatusServiceUnavailable},
	}
	for _, tc := range cases {
		svc := &fakeLifecycle{err: tc.err}
		r := newRequestRouter(NewRequestHandler(svc, nil, nil), wardenClaims)
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, jsonRequest(http.MethodPost, "/requests/abc/transitions", dto.TransitionRequest{Action: "approve"}))
		assert.Equal(t, tc.status, rec.Code)
		assert.Equal(t, "abc", svc.lastID)
		assert.Equal(t, "approve", svc.lastAction.Action)
	}
}

func TestGetHidesCodeFromSecurity(t *testing.T) {
	svc := &fakeLifecycle{result: approvedLeave()}

	rec := httptest.NewRecorder()
	newRequestRouter(NewRequestHandler(svc, nil, nil), studentClaims).
		ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/requests/"+approvedLeave().ID, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"code":"482913"`)

	rec = httptest.NewRecorder()
	newRequestRouter(NewRequestHandler(svc, nil, nil), securityClaims).
		ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/requests/"+approvedLeave().ID, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "482913")
}

func TestListPassesFiltersAndPagination(t *testing.T) {
	svc := &fakeLifecycle{list: []models.Request{*approvedLeave()}}
	r := newRequestRouter(NewRequestHandler(svc, nil, nil), wardenClaims)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/requests?kind=leave&status=APPROVED&page=2&page_size=5", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, dto.ListRequestsQuery{Kind: "leave", Status: "APPROVED", Page: 2, PageSize: 5}, svc.lastQuery)
	env := decodeEnvelope(t, rec)
	require.NotNil(t, env.Pagination)
	assert.Equal(t, 1, env.Pagination.TotalCount)
}

func TestGatePassStreamsPDF(t *testing.T) {
	r := newRequestRouter(NewRequestHandler(&fakeLifecycle{}, fakePasses{}, nil), studentClaims)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/leaves/l1/pass.pdf", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "gate-pass-l1.pdf")

	r = newRequestRouter(NewRequestHandler(&fakeLifecycle{}, fakePasses{err: appErrors.Clone(appErrors.ErrNotFound, "leave not found")}, nil), studentClaims)
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/leaves/l1/pass.pdf", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
