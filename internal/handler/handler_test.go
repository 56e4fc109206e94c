package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/union-api/internal/dto"
	"github.com/noah-isme/union-api/internal/middleware"
	"github.com/noah-isme/union-api/internal/models"
	"github.com/noah-isme/union-api/internal/service"
	appErrors "github.com/noah-isme/union-api/pkg/errors"
	"github.com/noah-isme/union-api/pkg/jobs"
)

type responseEnvelope struct {
	Data  json.RawMessage `json:"data"`
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) responseEnvelope {
	t.Helper()
	var env responseEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return env
}

type fakeAuthService struct {
	lastReq models.LoginRequest
	res     *models.LoginResponse
	err     error
}

func (f *fakeAuthService) Login(_ context.Context, req models.LoginRequest) (*models.LoginResponse, error) {
	f.lastReq = req
	return f.res, f.err
}

type fakeElectionService struct {
	election   *models.Election
	err        error
	gotID      string
	gotStatus  models.ElectionStatus
	gotVote    dto.VoteRequest
	gotCreate  dto.CreateElectionRequest
	gotCaller  *models.Identity
	deleted    bool
	announced  bool
	candidates []dto.CandidateRequest
}

func (f *fakeElectionService) List(context.Context) ([]models.Election, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.election == nil {
		return []models.Election{}, nil
	}
	return []models.Election{*f.election}, nil
}

func (f *fakeElectionService) Get(_ context.Context, id string) (*models.Election, error) {
	f.gotID = id
	return f.election, f.err
}

func (f *fakeElectionService) Create(_ context.Context, identity *models.Identity, req dto.CreateElectionRequest) (*models.Election, error) {
	f.gotCaller = identity
	f.gotCreate = req
	return f.election, f.err
}

func (f *fakeElectionService) AddCandidate(_ context.Context, identity *models.Identity, id string, req dto.CandidateRequest) (*models.Election, error) {
	f.gotCaller = identity
	f.gotID = id
	f.candidates = append(f.candidates, req)
	return f.election, f.err
}

func (f *fakeElectionService) SetStatus(_ context.Context, identity *models.Identity, id string, status models.ElectionStatus) (*models.Election, error) {
	f.gotCaller = identity
	f.gotID = id
	f.gotStatus = status
	return f.election, f.err
}

func (f *fakeElectionService) Announce(_ context.Context, identity *models.Identity, id string) (*models.Election, error) {
	f.gotCaller = identity
	f.gotID = id
	f.announced = true
	return f.election, f.err
}

func (f *fakeElectionService) Delete(_ context.Context, identity *models.Identity, id string) error {
	f.gotCaller = identity
	f.gotID = id
	f.deleted = f.err == nil
	return f.err
}

func (f *fakeElectionService) Vote(_ context.Context, identity *models.Identity, id string, req dto.VoteRequest) (*dto.VoteResponse, error) {
	f.gotCaller = identity
	f.gotID = id
	f.gotVote = req
	if f.err != nil {
		return nil, f.err
	}
	return &dto.VoteResponse{Message: "Vote cast successfully"}, nil
}

type fakeResultService struct {
	results   *models.ElectionResults
	file      *service.ExportedFile
	err       error
	gotFormat dto.ExportFormat
}

func (f *fakeResultService) Results(context.Context, string) (*models.ElectionResults, error) {
	return f.results, f.err
}

func (f *fakeResultService) Export(_ context.Context, _ *models.Identity, _ string, format dto.ExportFormat) (*service.ExportedFile, error) {
	f.gotFormat = format
	return f.file, f.err
}

func newContext(method, target string, body string, identity *models.Identity) (*gin.Context, *httptest.ResponseRecorder) {
	gin.SetMode(gin.TestMode)
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	var reader *bytes.Buffer
	if body != "" {
		reader = bytes.NewBufferString(body)
	} else {
		reader = &bytes.Buffer{}
	}
	c.Request = httptest.NewRequest(method, target, reader)
	c.Request.Header.Set("Content-Type", "application/json")
	if identity != nil {
		c.Set(middleware.ContextIdentityKey, identity)
	}
	return c, rec
}

var testAdmin = &models.Identity{ID: "admin-1", Role: models.RoleAdmin, IsAdmin: true}

func TestAuthHandlerLogin(t *testing.T) {
	svc := &fakeAuthService{res: &models.LoginResponse{AccessToken: "token", User: models.UserInfo{ID: "u1"}}}
	h := NewAuthHandler(svc)

	c, rec := newContext(http.MethodPost, "/api/auth/login", `{"email":"a@union.test","password":"secret"}`, nil)
	c.Request.Header.Set("User-Agent", "handler-test")
	h.Login(c)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "a@union.test", svc.lastReq.Email)
	assert.Equal(t, "handler-test", svc.lastReq.UserAgent)
	assert.Contains(t, rec.Body.String(), `"access_token":"token"`)
}

func TestAuthHandlerLoginErrors(t *testing.T) {
	h := NewAuthHandler(&fakeAuthService{err: appErrors.ErrInvalidCredentials})

	c, rec := newContext(http.MethodPost, "/api/auth/login", `{"email":`, nil)
	h.Login(c)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, appErrors.ErrValidation.Code, decode(t, rec).Error.Code)

	c, rec = newContext(http.MethodPost, "/api/auth/login", `{"email":"a@union.test","password":"bad"}`, nil)
	h.Login(c)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, appErrors.ErrInvalidCredentials.Code, decode(t, rec).Error.Code)
}

func TestAuthHandlerMe(t *testing.T) {
	h := NewAuthHandler(&fakeAuthService{})

	c, rec := newContext(http.MethodGet, "/api/auth/me", "", nil)
	h.Me(c)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	c, rec = newContext(http.MethodGet, "/api/auth/me", "", testAdmin)
	h.Me(c)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"id":"admin-1"`)
}

func TestElectionHandlerCreate(t *testing.T) {
	svc := &fakeElectionService{election: &models.Election{ID: "e1", Status: models.ElectionStatusPending}}
	h := NewElectionHandler(svc, &fakeResultService{})

	body := `{"title":"Council","description":"Annual","startDate":"2026-01-01T00:00:00Z","endDate":"2026-01-02T00:00:00Z"}`
	c, rec := newContext(http.MethodPost, "/api/elections", body, testAdmin)
	h.Create(c)

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "Council", svc.gotCreate.Title)
	assert.Same(t, testAdmin, svc.gotCaller)
	assert.Contains(t, rec.Body.String(), `"id":"e1"`)

	c, rec = newContext(http.MethodPost, "/api/elections", `not-json`, testAdmin)
	h.Create(c)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestElectionHandlerGetNotFound(t *testing.T) {
	svc := &fakeElectionService{err: appErrors.Clone(appErrors.ErrNotFound, "election not found")}
	h := NewElectionHandler(svc, &fakeResultService{})

	c, rec := newContext(http.MethodGet, "/api/elections/missing", "", nil)
	c.Params = gin.Params{{Key: "id", Value: "missing"}}
	h.Get(c)

	require.Equal(t, http.StatusNotFound, rec.Code)
	env := decode(t, rec)
	assert.Equal(t, "NOT_FOUND", env.Error.Code)
	assert.Equal(t, "election not found", env.Error.Message)
	assert.Equal(t, "missing", svc.gotID)
}

func TestElectionHandlerListEmpty(t *testing.T) {
	h := NewElectionHandler(&fakeElectionService{}, &fakeResultService{})

	c, rec := newContext(http.MethodGet, "/api/elections", "", nil)
	h.List(c)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, string(decode(t, rec).Data))
}

func TestElectionHandlerUpdateStatus(t *testing.T) {
	svc := &fakeElectionService{election: &models.Election{ID: "e1", Status: models.ElectionStatusOngoing}}
	h := NewElectionHandler(svc, &fakeResultService{})

	c, rec := newContext(http.MethodPatch, "/api/elections/e1/status", `{"status":"Ongoing"}`, testAdmin)
	c.Params = gin.Params{{Key: "id", Value: "e1"}}
	h.UpdateStatus(c)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, models.ElectionStatusOngoing, svc.gotStatus)

	svc.err = appErrors.ErrInvalidTransition
	c, rec = newContext(http.MethodPatch, "/api/elections/e1/status", `{"status":"Pending"}`, testAdmin)
	c.Params = gin.Params{{Key: "id", Value: "e1"}}
	h.UpdateStatus(c)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_TRANSITION", decode(t, rec).Error.Code)
}

func TestElectionHandlerAddCandidateAndAnnounce(t *testing.T) {
	svc := &fakeElectionService{election: &models.Election{ID: "e1"}}
	h := NewElectionHandler(svc, &fakeResultService{})

	c, rec := newContext(http.MethodPost, "/api/elections/e1/candidates", `{"name":"Ada","department":"CS","platform":["Labs"]}`, testAdmin)
	c.Params = gin.Params{{Key: "id", Value: "e1"}}
	h.AddCandidate(c)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, svc.candidates, 1)
	assert.Equal(t, "Ada", svc.candidates[0].Name)

	c, rec = newContext(http.MethodPost, "/api/elections/e1/announce", "", testAdmin)
	c.Params = gin.Params{{Key: "id", Value: "e1"}}
	h.Announce(c)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, svc.announced)
}

func TestElectionHandlerDelete(t *testing.T) {
	svc := &fakeElectionService{}
	h := NewElectionHandler(svc, &fakeResultService{})

	c, rec := newContext(http.MethodDelete, "/api/elections/e1", "", testAdmin)
	c.Params = gin.Params{{Key: "id", Value: "e1"}}
	h.Delete(c)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, svc.deleted)
	assert.JSONEq(t, `{"message":"Election deleted successfully"}`, string(decode(t, rec).Data))

	svc.err = appErrors.Clone(appErrors.ErrNotFound, "election not found")
	c, rec = newContext(http.MethodDelete, "/api/elections/e2", "", testAdmin)
	c.Params = gin.Params{{Key: "id", Value: "e2"}}
	h.Delete(c)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestElectionHandlerVote(t *testing.T) {
	voter := &models.Identity{ID: "student-1", Role: models.RoleStudent}
	svc := &fakeElectionService{}
	h := NewElectionHandler(svc, &fakeResultService{})

	c, rec := newContext(http.MethodPost, "/api/elections/e1/vote", `{"candidateId":"c1"}`, voter)
	c.Params = gin.Params{{Key: "id", Value: "e1"}}
	h.Vote(c)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "c1", svc.gotVote.CandidateID)
	assert.Contains(t, rec.Body.String(), "Vote cast successfully")

	c, rec = newContext(http.MethodPost, "/api/elections/e1/vote", `{"candidateId":`, voter)
	c.Params = gin.Params{{Key: "id", Value: "e1"}}
	h.Vote(c)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "VALIDATION_ERROR", decode(t, rec).Error.Code)

	svc.err = appErrors.ErrAlreadyVoted
	c, rec = newContext(http.MethodPost, "/api/elections/e1/vote", `{"candidateId":"c1"}`, voter)
	c.Params = gin.Params{{Key: "id", Value: "e1"}}
	h.Vote(c)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "ALREADY_VOTED", decode(t, rec).Error.Code)
}

func TestElectionHandlerResultsAndExport(t *testing.T) {
	results := &fakeResultService{
		results: &models.ElectionResults{ElectionID: "e1", TotalVotes: 3},
		file:    &service.ExportedFile{Filename: "election-e1-results.csv", ContentType: "text/csv", Body: []byte("a,b\n")},
	}
	h := NewElectionHandler(&fakeElectionService{}, results)

	c, rec := newContext(http.MethodGet, "/api/elections/e1/results", "", nil)
	c.Params = gin.Params{{Key: "id", Value: "e1"}}
	h.Results(c)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"totalVotes":3`)

	c, rec = newContext(http.MethodGet, "/api/elections/e1/results/export", "", testAdmin)
	c.Params = gin.Params{{Key: "id", Value: "e1"}}
	h.Export(c)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, dto.ExportFormatCSV, results.gotFormat)
	assert.Equal(t, "text/csv", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "election-e1-results.csv")
	assert.Equal(t, "a,b\n", rec.Body.String())

	c, _ = newContext(http.MethodGet, "/api/elections/e1/results/export?format=pdf", "", testAdmin)
	results.err = appErrors.ErrValidation
	h.Export(c)
	assert.Equal(t, dto.ExportFormatPDF, results.gotFormat)
}

type stubPinger struct{ err error }

func (s stubPinger) PingContext(context.Context) error { return s.err }
func (s stubPinger) Ping(context.Context) error        { return s.err }

func TestHealthHandlerDetailed(t *testing.T) {
	h := NewHealthHandler(stubPinger{}, nil, nil)
	c, rec := newContext(http.MethodGet, "/api/health", "", nil)
	h.Detailed(c)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"database":"connected"`)
	assert.Contains(t, rec.Body.String(), `"cache":"disabled"`)

	h = NewHealthHandler(stubPinger{err: errors.New("down")}, stubPinger{err: errors.New("down")}, nil)
	c, rec = newContext(http.MethodGet, "/api/health", "", nil)
	h.Detailed(c)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"degraded"`)
	assert.Contains(t, rec.Body.String(), `"cache":"unavailable"`)
}

type stubQueue struct{ stats jobs.Stats }

func (s stubQueue) Stats() jobs.Stats { return s.stats }

func TestHealthHandlerReportsAuditQueue(t *testing.T) {
	h := NewHealthHandler(stubPinger{}, nil, nil).WithAuditStats(stubQueue{stats: jobs.Stats{Processed: 7, Dropped: 2, Pending: 1}})
	c, rec := newContext(http.MethodGet, "/api/health", "", nil)
	h.Detailed(c)

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Audit jobs.Stats `json:"audit"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, jobs.Stats{Processed: 7, Dropped: 2, Pending: 1}, body.Audit)
}

func TestHealthHandlerReady(t *testing.T) {
	h := NewHealthHandler(stubPinger{err: errors.New("down")}, nil, nil)
	c, rec := newContext(http.MethodGet, "/ready", "", nil)
	h.Ready(c)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	h = NewHealthHandler(stubPinger{}, nil, service.NewMetricsService())
	c, rec = newContext(http.MethodGet, "/ready", "", nil)
	h.Ready(c)
	assert.Equal(t, http.StatusOK, rec.Code)

	c, rec = newContext(http.MethodGet, "/metrics", "", nil)
	h.Prometheus(c)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "goroutines_total")
}
