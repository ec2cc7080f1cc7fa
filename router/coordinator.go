package router

import (
	"context"
	"errors"
	"time"

	"golang.org/x/exp/slog"

	"github.com/aymanhalloween/smartcard/internal/routing"
	"github.com/aymanhalloween/smartcard/router/models"
)

// Coordinator routes one authorization event to a downstream instrument and
// resolves the original authorization exactly once: every event reaches
// either approved or declined, and the decision is recorded even when the
// network never acknowledges it.
type Coordinator struct {
	selector *routing.Selector
	settler  Settler
	resolver Resolver
	log      DecisionLog
	logger   *slog.Logger

	// settlementTimeout must stay below the network's own response deadline
	// with enough margin left for the approve/decline call.
	settlementTimeout time.Duration
	resolutionTimeout time.Duration
}

func NewCoordinator(selector *routing.Selector, settler Settler, resolver Resolver, log DecisionLog, logger *slog.Logger, config *Config) *Coordinator {
	return &Coordinator{
		selector:          selector,
		settler:           settler,
		resolver:          resolver,
		log:               log,
		logger:            logger,
		settlementTimeout: config.SettlementTimeout,
		resolutionTimeout: config.ResolutionTimeout,
	}
}

// Decide processes an authorization event to a terminal decision. At most one
// settlement attempt and one upstream-resolution attempt are made; a failed
// settlement is decided once and reported, never retried. All deadlines hang
// off context.Background() so a dropped caller connection cannot cancel the
// issuer-side resolution.
func (c *Coordinator) Decide(event *models.AuthorizationEvent) *models.RoutingDecision {
	logger := c.logger.With(slog.String("authorization_id", event.AuthorizationID))

	category := routing.Classify(event.MerchantCategoryCode)
	instrument := c.selector.Select(category)

	logger.Info("authorization classified",
		slog.String("mcc", event.MerchantCategoryCode),
		slog.String("category", string(category)),
		slog.String("instrument", instrument.ID),
	)

	decision := &models.RoutingDecision{
		AuthorizationID:      event.AuthorizationID,
		Amount:               event.Amount,
		Currency:             event.Currency,
		MerchantCategoryCode: event.MerchantCategoryCode,
		MerchantName:         event.MerchantName,
		Category:             string(category),
		InstrumentID:         instrument.ID,
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.settlementTimeout)
	settlementID, err := c.settler.Settle(ctx, SettleRequest{
		AuthorizationID: event.AuthorizationID,
		Amount:          event.Amount,
		Currency:        event.Currency,
		Instrument:      instrument,
		MerchantName:    event.MerchantName,
	})
	cancel()

	if err != nil {
		decision.SettlementOutcome = models.SettlementFailed
		reason := models.DeclineReasonSettlementFailed
		var serr *SettlementError
		if errors.As(err, &serr) {
			reason = serr.Reason
			if serr.Timeout {
				// A timed-out settlement may still have gone through on the
				// gateway side; the decline record is the follow-up trail.
				logger.Warn("settlement timed out, true status unknown")
			}
		}
		logger.Info("settlement failed, declining",
			slog.String("reason", reason), slog.Any("err", err))
		c.decline(logger, decision, reason)
		c.record(logger, decision)
		return decision
	}

	decision.SettlementID = settlementID
	decision.SettlementOutcome = models.SettlementSucceeded

	rctx, rcancel := context.WithTimeout(context.Background(), c.resolutionTimeout)
	err = c.resolver.Approve(rctx, event.AuthorizationID)
	rcancel()
	if err != nil {
		// Funds moved but the network never confirmed the approval. Attempt
		// a compensating decline so issuer-side state stays consistent, and
		// flag the settlement for manual reconciliation: this coordinator
		// cannot un-move the funds on its own.
		logger.Error("approving authorization", "err", err)
		decision.NeedsReconciliation = true
		c.decline(logger, decision, models.DeclineReasonApprovalFailed)
		c.record(logger, decision)
		return decision
	}

	decision.FinalStatus = models.StatusApproved
	decision.DecidedAt = time.Now().UTC()
	c.record(logger, decision)

	logger.Info("authorization approved", slog.String("settlement_id", settlementID))
	return decision
}

// decline marks the decision and attempts the upstream decline. The reason
// code is preserved on the record even when the decline call itself fails.
func (c *Coordinator) decline(logger *slog.Logger, decision *models.RoutingDecision, reason string) {
	decision.FinalStatus = models.StatusDeclined
	decision.DeclineReason = reason
	decision.DecidedAt = time.Now().UTC()

	ctx, cancel := context.WithTimeout(context.Background(), c.resolutionTimeout)
	defer cancel()
	if err := c.resolver.Decline(ctx, decision.AuthorizationID, reason); err != nil {
		logger.Error("declining authorization",
			slog.String("reason", reason), slog.Any("err", err))
	}
}

// record writes the terminal decision. Persistence failures are surfaced in
// the logs but never block the upstream resolution, which has already been
// attempted by the time this runs.
func (c *Coordinator) record(logger *slog.Logger, decision *models.RoutingDecision) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := c.log.Append(ctx, decision)
	switch {
	case errors.Is(err, ErrDuplicateDecision):
		logger.Warn("decision already recorded, duplicate delivery ignored")
	case err != nil:
		logger.Error("writing routing decision", "err", err)
	}
}
