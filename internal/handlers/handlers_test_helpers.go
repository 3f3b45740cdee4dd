package handlers

import (
	"context"
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"reconciler/internal/auth"
	"reconciler/internal/config"
	"reconciler/internal/models"
	"reconciler/internal/observability"
	"reconciler/internal/reconcile"
	"reconciler/internal/services"
	"reconciler/internal/store"
	"reconciler/internal/websocket"
)

const testSecret = "secret"

type stubService struct {
	autoFn          func(ctx context.Context, start, end time.Time) (services.AutoMatchResult, error)
	manualFn        func(ctx context.Context, operatorID, p2pID, gateID string) (models.TransactionMatch, error)
	listMatchesFn   func(ctx context.Context, filter store.MatchFilter) ([]models.MatchDetail, error)
	listUnmatchedFn func(ctx context.Context, side reconcile.Side, filter store.TransactionFilter) (any, error)
	metricsFn       func(ctx context.Context, req services.MetricsRequest) (reconcile.Report, error)
	candidatesFn    func(ctx context.Context, operatorID string, side reconcile.Side, id string, window time.Duration) ([]reconcile.Candidate, error)
	ingestP2PFn     func(ctx context.Context, operatorID string, trades []models.P2PTransaction) (services.IngestResult, error)
	ingestGateFn    func(ctx context.Context, operatorID string, payouts []models.GateTransaction) (services.IngestResult, error)
	sessionFn       func(operatorID string) reconcile.Workflow
	selectSourceFn  func(ctx context.Context, operatorID string, sel reconcile.Selection) (reconcile.Workflow, error)
	selectTargetFn  func(ctx context.Context, operatorID string, sel reconcile.Selection) (reconcile.Workflow, error)
	commitFn        func(ctx context.Context, operatorID string) (models.TransactionMatch, reconcile.Workflow, error)
	cancelFn        func(operatorID string) reconcile.Workflow
}

func (s stubService) MatchAutomatically(ctx context.Context, start, end time.Time) (services.AutoMatchResult, error) {
	if s.autoFn == nil {
		return services.AutoMatchResult{}, nil
	}
	return s.autoFn(ctx, start, end)
}

func (s stubService) CreateManualMatch(ctx context.Context, operatorID, p2pID, gateID string) (models.TransactionMatch, error) {
	if s.manualFn == nil {
		return models.TransactionMatch{}, nil
	}
	return s.manualFn(ctx, operatorID, p2pID, gateID)
}

func (s stubService) ListMatches(ctx context.Context, filter store.MatchFilter) ([]models.MatchDetail, error) {
	if s.listMatchesFn == nil {
		return nil, nil
	}
	return s.listMatchesFn(ctx, filter)
}

func (s stubService) ListUnmatched(ctx context.Context, side reconcile.Side, filter store.TransactionFilter) (any, error) {
	if s.listUnmatchedFn == nil {
		return nil, nil
	}
	return s.listUnmatchedFn(ctx, side, filter)
}

func (s stubService) ComputeMetrics(ctx context.Context, req services.MetricsRequest) (reconcile.Report, error) {
	if s.metricsFn == nil {
		return reconcile.Report{}, nil
	}
	return s.metricsFn(ctx, req)
}

func (s stubService) Candidates(ctx context.Context, operatorID string, side reconcile.Side, id string, window time.Duration) ([]reconcile.Candidate, error) {
	if s.candidatesFn == nil {
		return nil, nil
	}
	return s.candidatesFn(ctx, operatorID, side, id, window)
}

func (s stubService) IngestP2P(ctx context.Context, operatorID string, trades []models.P2PTransaction) (services.IngestResult, error) {
	if s.ingestP2PFn == nil {
		return services.IngestResult{}, nil
	}
	return s.ingestP2PFn(ctx, operatorID, trades)
}

func (s stubService) IngestGate(ctx context.Context, operatorID string, payouts []models.GateTransaction) (services.IngestResult, error) {
	if s.ingestGateFn == nil {
		return services.IngestResult{}, nil
	}
	return s.ingestGateFn(ctx, operatorID, payouts)
}

func (s stubService) Session(operatorID string) reconcile.Workflow {
	if s.sessionFn == nil {
		return reconcile.NewWorkflow()
	}
	return s.sessionFn(operatorID)
}

func (s stubService) SelectSource(ctx context.Context, operatorID string, sel reconcile.Selection) (reconcile.Workflow, error) {
	if s.selectSourceFn == nil {
		return reconcile.NewWorkflow().SelectSource(sel)
	}
	return s.selectSourceFn(ctx, operatorID, sel)
}

func (s stubService) SelectTarget(ctx context.Context, operatorID string, sel reconcile.Selection) (reconcile.Workflow, error) {
	if s.selectTargetFn == nil {
		return reconcile.NewWorkflow(), nil
	}
	return s.selectTargetFn(ctx, operatorID, sel)
}

func (s stubService) Commit(ctx context.Context, operatorID string) (models.TransactionMatch, reconcile.Workflow, error) {
	if s.commitFn == nil {
		return models.TransactionMatch{}, reconcile.NewWorkflow(), nil
	}
	return s.commitFn(ctx, operatorID)
}

func (s stubService) CancelSession(operatorID string) reconcile.Workflow {
	if s.cancelFn == nil {
		return reconcile.NewWorkflow()
	}
	return s.cancelFn(operatorID)
}

type stubOperatorStore struct {
	isAdminFn func(ctx context.Context, operatorID string) (bool, error)
}

func (s stubOperatorStore) IsAdmin(ctx context.Context, operatorID string) (bool, error) {
	if s.isAdminFn == nil {
		return false, nil
	}
	return s.isAdminFn(ctx, operatorID)
}

type stubAuditStore struct {
	listFn func(ctx context.Context, limit, offset int) ([]store.AuditEntry, error)
}

func (s stubAuditStore) List(ctx context.Context, limit, offset int) ([]store.AuditEntry, error) {
	if s.listFn == nil {
		return nil, nil
	}
	return s.listFn(ctx, limit, offset)
}

func adminOnly(adminID string) stubOperatorStore {
	return stubOperatorStore{isAdminFn: func(_ context.Context, operatorID string) (bool, error) {
		return operatorID == adminID, nil
	}}
}

func newTestHandler(service ReconciliationService, operators OperatorStore, audit AuditStore) *Handler {
	cfg := config.Config{
		AppEnv: "test",
		HTTP:   config.HTTPConfig{Port: "0", AllowedOrigins: "*", MetricsEnabled: true},
		Auth:   config.AuthConfig{JWTSecret: testSecret},
		Scheduler: config.SchedulerConfig{
			Lookback: 24 * time.Hour,
		},
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(cfg, service, operators, audit, websocket.NewHub(), observability.NewMetrics(), logger)
}

// serveWithAuth sends a request through the full router as operatorID.
// An empty operatorID sends no token.
func serveWithAuth(t *testing.T, h *Handler, method, path, body, operatorID string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if operatorID != "" {
		token, err := auth.GenerateToken(testSecret, operatorID, time.Minute)
		if err != nil {
			t.Fatalf("failed to generate token: %v", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	h.Routes().ServeHTTP(rr, req)
	return rr
}
