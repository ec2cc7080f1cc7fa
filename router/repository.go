package router

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"github.com/aymanhalloween/smartcard/router/models"
	"github.com/jackc/pgconn"
	"github.com/lib/pq"
)

var ErrNotFound = fmt.Errorf("not found")

// ErrDuplicateDecision is returned when a decision already exists for an
// authorization id. The first committed record wins; later deliveries of the
// same authorization are rejected, never merged.
var ErrDuplicateDecision = fmt.Errorf("decision already recorded")

// DecisionLog is the durable append-only record of routing decisions. It is
// the source of truth for what this system decided; human-readable logs are
// a side channel only.
type DecisionLog interface {
	Append(ctx context.Context, decision *models.RoutingDecision) error
	List(ctx context.Context, limit int) ([]*models.RoutingDecision, error)
	Get(ctx context.Context, authorizationID string) (*models.RoutingDecision, error)
	Ping(ctx context.Context) error
	Close() error
}

// Repository implements DecisionLog against Postgres, with an in-memory
// path used by tests and local runs.
type Repository struct {
	mu        sync.RWMutex
	decisions []*models.RoutingDecision
	index     map[string]*models.RoutingDecision

	db *sql.DB
}

var _ DecisionLog = (*Repository)(nil)

func NewRepository() *Repository {
	return &Repository{
		decisions: make([]*models.RoutingDecision, 0),
		index:     make(map[string]*models.RoutingDecision),
	}
}

// NewPGRepository constructs a db-backed repository.
func NewPGRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// EnsureSchema creates the decisions table when missing. Safe to run on
// every startup.
func (r *Repository) EnsureSchema(ctx context.Context) error {
	if r.db == nil {
		return nil
	}
	_, err := r.db.ExecContext(ctx, `
        CREATE SCHEMA IF NOT EXISTS router;
        CREATE TABLE IF NOT EXISTS router.decisions (
            authorization_id     text PRIMARY KEY,
            amount               bigint NOT NULL,
            currency             text NOT NULL,
            mcc                  text NOT NULL DEFAULT '',
            merchant_name        text NOT NULL DEFAULT '',
            category             text NOT NULL,
            instrument_id        text NOT NULL,
            settlement_id        text NOT NULL DEFAULT '',
            settlement_outcome   text NOT NULL,
            final_status         text NOT NULL,
            decline_reason       text NOT NULL DEFAULT '',
            needs_reconciliation boolean NOT NULL DEFAULT false,
            decided_at           timestamptz NOT NULL
        )`)
	return err
}

// Append commits a decision. The primary key on authorization_id makes a
// double-delivered event produce at most one committed record.
func (r *Repository) Append(ctx context.Context, decision *models.RoutingDecision) error {
	if r.db == nil {
		r.mu.Lock()
		defer r.mu.Unlock()
		if _, ok := r.index[decision.AuthorizationID]; ok {
			return ErrDuplicateDecision
		}
		r.decisions = append(r.decisions, decision)
		r.index[decision.AuthorizationID] = decision
		return nil
	}
	_, err := r.db.ExecContext(ctx, `
        INSERT INTO router.decisions(
            authorization_id, amount, currency, mcc, merchant_name, category,
            instrument_id, settlement_id, settlement_outcome, final_status,
            decline_reason, needs_reconciliation, decided_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
    `, decision.AuthorizationID, decision.Amount, decision.Currency,
		decision.MerchantCategoryCode, decision.MerchantName, decision.Category,
		decision.InstrumentID, decision.SettlementID, string(decision.SettlementOutcome),
		string(decision.FinalStatus), decision.DeclineReason,
		decision.NeedsReconciliation, decision.DecidedAt)
	if isUniqueViolation(err) {
		return ErrDuplicateDecision
	}
	return err
}

// List returns the most recent decisions, newest first.
func (r *Repository) List(ctx context.Context, limit int) ([]*models.RoutingDecision, error) {
	if r.db == nil {
		r.mu.RLock()
		defer r.mu.RUnlock()
		out := make([]*models.RoutingDecision, 0, limit)
		for i := len(r.decisions) - 1; i >= 0 && len(out) < limit; i-- {
			out = append(out, r.decisions[i])
		}
		return out, nil
	}
	rows, err := r.db.QueryContext(ctx, `
        SELECT authorization_id, amount, currency, mcc, merchant_name, category,
               instrument_id, settlement_id, settlement_outcome, final_status,
               decline_reason, needs_reconciliation, decided_at
          FROM router.decisions ORDER BY decided_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*models.RoutingDecision
	for rows.Next() {
		decision, err := scanDecision(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, decision)
	}
	return out, rows.Err()
}

// Get returns the decision for one authorization id.
func (r *Repository) Get(ctx context.Context, authorizationID string) (*models.RoutingDecision, error) {
	if r.db == nil {
		r.mu.RLock()
		defer r.mu.RUnlock()
		decision, ok := r.index[authorizationID]
		if !ok {
			return nil, ErrNotFound
		}
		return decision, nil
	}
	row := r.db.QueryRowContext(ctx, `
        SELECT authorization_id, amount, currency, mcc, merchant_name, category,
               instrument_id, settlement_id, settlement_outcome, final_status,
               decline_reason, needs_reconciliation, decided_at
          FROM router.decisions WHERE authorization_id=$1`, authorizationID)
	decision, err := scanDecision(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return decision, err
}

// Ping reports backend readiness.
func (r *Repository) Ping(ctx context.Context) error {
	if r.db == nil {
		return nil
	}
	return r.db.PingContext(ctx)
}

func (r *Repository) Close() error {
	if r.db == nil {
		return nil
	}
	return r.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDecision(row rowScanner) (*models.RoutingDecision, error) {
	var d models.RoutingDecision
	var outcome, status string
	err := row.Scan(&d.AuthorizationID, &d.Amount, &d.Currency,
		&d.MerchantCategoryCode, &d.MerchantName, &d.Category,
		&d.InstrumentID, &d.SettlementID, &outcome, &status,
		&d.DeclineReason, &d.NeedsReconciliation, &d.DecidedAt)
	if err != nil {
		return nil, err
	}
	d.SettlementOutcome = models.SettlementOutcome(outcome)
	d.FinalStatus = models.FinalStatus(status)
	return &d, nil
}

func isUniqueViolation(err error) bool {
	var pe *pq.Error
	if errors.As(err, &pe) && pe.Code == "23505" {
		return true
	}
	var pgerr *pgconn.PgError
	if errors.As(err, &pgerr) && pgerr.Code == "23505" {
		return true
	}
	return false
}
