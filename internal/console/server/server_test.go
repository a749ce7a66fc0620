package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xela07ax/estate-integrity/internal/console/handler"
	"github.com/xela07ax/estate-integrity/internal/console/service"
	"github.com/xela07ax/estate-integrity/internal/domain"
	"github.com/xela07ax/estate-integrity/internal/engine"
	"go.uber.org/zap"
)

type tokenStub struct{}

func (tokenStub) VerifyToken(tok string) (*domain.CustomClaims, error) {
	switch strings.TrimPrefix(tok, "Bearer ") {
	case "operator":
		return &domain.CustomClaims{UserID: "op", Scopes: map[string]bool{domain.ScopeRunScan: true}}, nil
	case "reader":
		return &domain.CustomClaims{UserID: "rd"}, nil
	}
	return nil, errors.New("bad token")
}

type scannerStub struct {
	got engine.ScanRequest
	err error
}

func (s *scannerStub) RunScan(_ context.Context, req engine.ScanRequest) (*domain.RunResult, error) {
	s.got = req
	if s.err != nil {
		return nil, s.err
	}
	return &domain.RunResult{RunID: "run-1", Summary: domain.RunSummary{DryRun: req.DryRun}}, nil
}

type repoStub struct {
	filter domain.ExceptionFilter
	limit  int
}

func (r *repoStub) ListExceptions(_ context.Context, f domain.ExceptionFilter) ([]domain.Exception, error) {
	r.filter = f
	return []domain.Exception{{ID: "ex-1", TenantID: "t1", Rule: domain.RuleNegativeInventory, Status: domain.ExceptionOpen}}, nil
}

func (r *repoStub) ListRuns(_ context.Context, limit int) ([]domain.AgentRun, error) {
	r.limit = limit
	return []domain.AgentRun{{ID: "run-1"}}, nil
}

func (r *repoStub) GetRun(_ context.Context, id string) (*domain.AgentRun, error) {
	if id != "run-1" {
		return nil, domain.ErrRunNotFound
	}
	return &domain.AgentRun{ID: id}, nil
}

type pingStub struct{ err error }

func (p pingStub) Ping(context.Context) error { return p.err }

func newTestServer(scanner *scannerStub, repo *repoStub, db Pinger) *ConsoleServer {
	svc := service.NewIntegrityService(scanner, repo, zap.NewNop())
	return NewConsoleServer(zap.NewNop(), tokenStub{}, db,
		handler.NewScanHandler(svc),
		handler.NewExceptionHandler(svc),
		handler.NewRunHandler(svc))
}

func call(s http.Handler, method, path, token, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	assert.Equal(t, http.StatusOK, call(newTestServer(&scannerStub{}, &repoStub{}, pingStub{}), http.MethodGet, "/health", "", "").Code)
	assert.Equal(t, http.StatusServiceUnavailable,
		call(newTestServer(&scannerStub{}, &repoStub{}, pingStub{err: errors.New("down")}), http.MethodGet, "/health", "", "").Code)
}

func TestScan_RequiresScope(t *testing.T) {
	s := newTestServer(&scannerStub{}, &repoStub{}, nil)

	assert.Equal(t, http.StatusUnauthorized, call(s, http.MethodPost, "/v1/scans", "", "").Code)
	assert.Equal(t, http.StatusForbidden, call(s, http.MethodPost, "/v1/scans", "reader", "").Code)
}

func TestScan_PassesRequest(t *testing.T) {
	scanner := &scannerStub{}
	s := newTestServer(scanner, &repoStub{}, nil)

	rec := call(s, http.MethodPost, "/v1/scans", "operator", `{"tenant_id":"t1","dry_run":true}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, engine.ScanRequest{TriggerSource: domain.TriggerManual, DryRun: true, TenantID: "t1"}, scanner.got)

	var res domain.RunResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, "run-1", res.RunID)
	assert.True(t, res.Summary.DryRun)
}

func TestScan_EmptyBodyScansAll(t *testing.T) {
	scanner := &scannerStub{}
	s := newTestServer(scanner, &repoStub{}, nil)

	rec := call(s, http.MethodPost, "/v1/scans", "operator", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, scanner.got.TenantID)
}

func TestScan_ErrorMapping(t *testing.T) {
	cases := map[string]struct {
		err  error
		body string
		want int
	}{
		"in progress":    {err: engine.ErrRunInProgress, want: http.StatusConflict},
		"unknown tenant": {err: domain.ErrTenantNotFound, want: http.StatusNotFound},
		"storage":        {err: errors.New("boom"), want: http.StatusInternalServerError},
		"bad json":       {body: "{", want: http.StatusBadRequest},
		"bad trigger":    {body: `{"trigger":"cron"}`, want: http.StatusBadRequest},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			s := newTestServer(&scannerStub{err: tc.err}, &repoStub{}, nil)
			assert.Equal(t, tc.want, call(s, http.MethodPost, "/v1/scans", "operator", tc.body).Code)
		})
	}
}

func TestExceptions_Filters(t *testing.T) {
	repo := &repoStub{}
	s := newTestServer(&scannerStub{}, repo, nil)

	rec := call(s, http.MethodGet, "/v1/exceptions?tenant_id=t1&status=open&rule=negative_inventory", "reader", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, domain.ExceptionFilter{TenantID: "t1", Status: domain.ExceptionOpen, Rule: domain.RuleNegativeInventory, Limit: 100}, repo.filter)

	assert.Equal(t, http.StatusBadRequest, call(s, http.MethodGet, "/v1/exceptions?status=closed", "reader", "").Code)
	assert.Equal(t, http.StatusBadRequest, call(s, http.MethodGet, "/v1/exceptions?rule=made_up", "reader", "").Code)
	assert.Equal(t, http.StatusBadRequest, call(s, http.MethodGet, "/v1/exceptions?limit=x", "reader", "").Code)
}

func TestRuns(t *testing.T) {
	repo := &repoStub{}
	s := newTestServer(&scannerStub{}, repo, nil)

	rec := call(s, http.MethodGet, "/v1/runs?limit=5000", "reader", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1000, repo.limit)

	assert.Equal(t, http.StatusOK, call(s, http.MethodGet, "/v1/runs/run-1", "reader", "").Code)
	assert.Equal(t, http.StatusNotFound, call(s, http.MethodGet, "/v1/runs/nope", "reader", "").Code)
	assert.Equal(t, http.StatusUnauthorized, call(s, http.MethodGet, "/v1/runs", "", "").Code)
}
