package router

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/exp/slog"

	"github.com/aymanhalloween/smartcard/internal/routing"
	"github.com/aymanhalloween/smartcard/internal/signature"
	"github.com/aymanhalloween/smartcard/router/models"
)

// SignatureHeader carries the webhook payload signature.
const SignatureHeader = "Smartcard-Signature"

const maxEventBytes = 1 << 20

// API is the HTTP surface of the router service.
type API struct {
	coordinator *Coordinator
	selector    *routing.Selector
	log         DecisionLog
	secret      []byte
	tolerance   time.Duration
	logger      *slog.Logger
}

func NewAPI(coordinator *Coordinator, selector *routing.Selector, log DecisionLog, config *Config, logger *slog.Logger) *API {
	return &API{
		coordinator: coordinator,
		selector:    selector,
		log:         log,
		secret:      []byte(config.WebhookSecret),
		tolerance:   config.SignatureTolerance,
		logger:      logger,
	}
}

func (a *API) AppendRoutes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Post("/webhook", a.handleWebhook)
		r.Route("/decisions", func(r chi.Router) {
			r.Get("/", a.listDecisions)
			r.Get("/{authorizationID}", a.getDecision)
		})
	})
	r.Post("/dev/instruments/reload", a.reloadInstruments)
}

type webhookResponse struct {
	Success      bool   `json:"success"`
	RoutedTo     string `json:"routed_to"`
	Status       string `json:"status"`
	SettlementID string `json:"settlement_id,omitempty"`
}

// handleWebhook authenticates and routes one inbound event. Approved and
// declined decisions both answer 200; only a signature failure or a
// malformed/unroutable event is rejected, and no decision is recorded for
// those.
func (a *API) handleWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxEventBytes))
	if err != nil {
		http.Error(w, "reading body", http.StatusBadRequest)
		return
	}

	if err := signature.Verify(a.secret, body, r.Header.Get(SignatureHeader), a.tolerance, time.Now()); err != nil {
		a.logger.Info("rejecting event with invalid signature")
		http.Error(w, "invalid signature", http.StatusUnauthorized)
		return
	}

	event, err := models.ParseWebhookEvent(body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	switch event.Type {
	case models.EventTypeAuthorizationCreated:
		decision := a.coordinator.Decide(event.AuthorizationEvent(time.Now().UTC()))

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(webhookResponse{
			Success:      true,
			RoutedTo:     decision.InstrumentID,
			Status:       string(decision.FinalStatus),
			SettlementID: decision.SettlementID,
		})

	case models.EventTypeTransactionCreated:
		// Finalized transactions are acknowledged but not routed.
		a.logger.Info("transaction finalized",
			slog.String("transaction_id", event.Data.Object.ID))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]bool{"received": true})

	default:
		http.Error(w, "unsupported event type", http.StatusBadRequest)
	}
}

func (a *API) listDecisions(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		if n < limit {
			limit = n
		}
	}

	decisions, err := a.log.List(r.Context(), limit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if decisions == nil {
		decisions = []*models.RoutingDecision{}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]any{"decisions": decisions})
}

func (a *API) getDecision(w http.ResponseWriter, r *http.Request) {
	authorizationID := chi.URLParam(r, "authorizationID")

	decision, err := a.log.Get(r.Context(), authorizationID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			http.Error(w, err.Error(), http.StatusNotFound)
		} else {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(decision)
}

// reloadInstruments swaps the instrument mapping from the request body.
// Request body: {"<category>": {"instrument_id": "...", "opaque_token": "..."}}
func (a *API) reloadInstruments(w http.ResponseWriter, r *http.Request) {
	var mapping map[routing.Category]routing.Instrument
	if err := json.NewDecoder(r.Body).Decode(&mapping); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := a.selector.Swap(mapping); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	a.logger.Info("instrument mapping reloaded", slog.Int("entries", len(mapping)))
	w.WriteHeader(http.StatusNoContent)
}
