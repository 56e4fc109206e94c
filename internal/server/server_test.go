package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/union-api/internal/handler"
	"github.com/noah-isme/union-api/internal/models"
	"github.com/noah-isme/union-api/internal/repository"
	"github.com/noah-isme/union-api/internal/service"
	"github.com/noah-isme/union-api/pkg/config"
	appErrors "github.com/noah-isme/union-api/pkg/errors"
)

type tokenTable map[string]*models.Identity

func (t tokenTable) Authenticate(_ context.Context, token string) (*models.Identity, error) {
	if identity, ok := t[token]; ok {
		return identity, nil
	}
	return nil, appErrors.ErrInvalidCredential
}

func newTestRouter(t *testing.T) (*gin.Engine, sqlmock.Sqlmock) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	dbx := sqlx.NewDb(db, "postgres")

	cfg := &config.Config{Env: "test", Port: 5000, APIPrefix: "/api", CORS: config.CORSConfig{AllowedOrigins: []string{"http://localhost:5173"}}}
	metrics := service.NewMetricsService()
	repo := repository.NewElectionRepository(dbx)
	elections := service.NewElectionService(repo, nil, nil, metrics, nil, nil, service.ElectionServiceConfig{})
	results := service.NewResultService(elections, nil, nil)

	router := NewRouter(Dependencies{
		Config:  cfg,
		Metrics: metrics,
		Authenticator: tokenTable{
			"admin-token":   {ID: "admin-1", Role: models.RoleAdmin, IsAdmin: true},
			"student-token": {ID: "student-1", Role: models.RoleStudent},
		},
		Auth:      handler.NewAuthHandler(service.NewAuthService(nil, nil, nil, nil, service.AuthConfig{AccessTokenSecret: "test"})),
		Elections: handler.NewElectionHandler(elections, results),
		Health:    handler.NewHealthHandler(dbx, nil, metrics),
	})
	return router, mock
}

func perform(router *gin.Engine, method, path, token, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestRouterAdminRoutesRejectStudents(t *testing.T) {
	router, mock := newTestRouter(t)

	cases := []struct {
		method string
		path   string
		body   string
	}{
		{http.MethodPost, "/api/elections", `{"title":"x"}`},
		{http.MethodPost, "/api/elections/e1/candidates", `{"name":"x"}`},
		{http.MethodPatch, "/api/elections/e1/status", `{"status":"Ongoing"}`},
		{http.MethodPost, "/api/elections/e1/announce", ""},
		{http.MethodDelete, "/api/elections/e1", ""},
		{http.MethodGet, "/api/elections/e1/results/export?format=csv", ""},
	}

	for _, tc := range cases {
		t.Run(tc.method+" "+tc.path, func(t *testing.T) {
			rec := perform(router, tc.method, tc.path, "student-token", tc.body)
			assert.Equal(t, http.StatusForbidden, rec.Code)
			assert.Contains(t, rec.Body.String(), `"FORBIDDEN"`)

			rec = perform(router, tc.method, tc.path, "", tc.body)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.Contains(t, rec.Body.String(), `"UNAUTHENTICATED"`)
		})
	}

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRouterVoteRequiresToken(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := perform(router, http.MethodPost, "/api/elections/e1/vote", "", `{"candidateId":"c1"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = perform(router, http.MethodPost, "/api/elections/e1/vote", "forged", `{"candidateId":"c1"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), `"INVALID_CREDENTIAL"`)
}

func TestRouterPublicRoutes(t *testing.T) {
	router, mock := newTestRouter(t)

	mock.ExpectQuery("SELECT (.+) FROM elections e").WillReturnRows(sqlmock.NewRows([]string{"id"}))

	rec := perform(router, http.MethodGet, "/api/elections", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"data":[]}`, rec.Body.String())

	rec = perform(router, http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	rec = perform(router, http.MethodGet, "/api/auth/me", "student-token", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"id":"student-1"`)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRouterPreflight(t *testing.T) {
	router, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/elections", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "http://localhost:5173", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestServerAddr(t *testing.T) {
	srv := New(&config.Config{Port: 8081}, http.NotFoundHandler())
	assert.Equal(t, ":8081", srv.Addr())
}
