package handlers

import (
	"context"
	"time"

	"reconciler/internal/models"
	"reconciler/internal/reconcile"
	"reconciler/internal/services"
	"reconciler/internal/store"
)

type ReconciliationService interface {
	MatchAutomatically(ctx context.Context, windowStart, windowEnd time.Time) (services.AutoMatchResult, error)
	CreateManualMatch(ctx context.Context, operatorID, p2pID, gateID string) (models.TransactionMatch, error)
	ListMatches(ctx context.Context, filter store.MatchFilter) ([]models.MatchDetail, error)
	ListUnmatched(ctx context.Context, side reconcile.Side, filter store.TransactionFilter) (any, error)
	ComputeMetrics(ctx context.Context, req services.MetricsRequest) (reconcile.Report, error)
	Candidates(ctx context.Context, operatorID string, side reconcile.Side, id string, window time.Duration) ([]reconcile.Candidate, error)
	IngestP2P(ctx context.Context, operatorID string, trades []models.P2PTransaction) (services.IngestResult, error)
	IngestGate(ctx context.Context, operatorID string, payouts []models.GateTransaction) (services.IngestResult, error)
	Session(operatorID string) reconcile.Workflow
	SelectSource(ctx context.Context, operatorID string, sel reconcile.Selection) (reconcile.Workflow, error)
	SelectTarget(ctx context.Context, operatorID string, sel reconcile.Selection) (reconcile.Workflow, error)
	Commit(ctx context.Context, operatorID string) (models.TransactionMatch, reconcile.Workflow, error)
	CancelSession(operatorID string) reconcile.Workflow
}

type OperatorStore interface {
	IsAdmin(ctx context.Context, operatorID string) (bool, error)
}

type AuditStore interface {
	List(ctx context.Context, limit, offset int) ([]store.AuditEntry, error)
}
