package main

import (
	"encoding/json"
	"flag"
	"net/http"
	"os"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"golang.org/x/exp/slog"
)

// Stands in for the downstream settlement gateway and the issuing network's
// resolution endpoints so the router can run locally without either.
//
// Instrument tokens listed in -reject are declined with insufficient_funds,
// which makes the decline path reachable from a local stack.

func main() {
	addr := flag.String("addr", "localhost:9292", "listen address")
	reject := flag.String("reject", "", "comma-separated instrument tokens to reject")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout))

	rejected := map[string]bool{}
	for _, token := range strings.Split(*reject, ",") {
		if token != "" {
			rejected[token] = true
		}
	}

	r := chi.NewRouter()

	r.Post("/settlements", func(w http.ResponseWriter, req *http.Request) {
		var settle struct {
			AuthorizationID string `json:"authorization_id"`
			Amount          int64  `json:"amount"`
			Instrument      struct {
				Token string `json:"opaque_token"`
			} `json:"instrument"`
		}
		if err := json.NewDecoder(req.Body).Decode(&settle); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		if rejected[settle.Instrument.Token] {
			logger.Info("rejecting settlement",
				slog.String("authorization_id", settle.AuthorizationID),
				slog.String("token", settle.Instrument.Token))
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusPaymentRequired)
			json.NewEncoder(w).Encode(map[string]string{"reason": "insufficient_funds"})
			return
		}

		settlementID := "stl_" + uuid.NewString()
		logger.Info("settled",
			slog.String("authorization_id", settle.AuthorizationID),
			slog.Int64("amount", settle.Amount),
			slog.String("settlement_id", settlementID))
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"settlement_id": settlementID})
	})

	r.Post("/authorizations/{authorizationID}/approve", func(w http.ResponseWriter, req *http.Request) {
		logger.Info("authorization approved",
			slog.String("authorization_id", chi.URLParam(req, "authorizationID")))
		w.WriteHeader(http.StatusNoContent)
	})

	r.Post("/authorizations/{authorizationID}/decline", func(w http.ResponseWriter, req *http.Request) {
		var body struct {
			Reason string `json:"reason"`
		}
		json.NewDecoder(req.Body).Decode(&body)
		logger.Info("authorization declined",
			slog.String("authorization_id", chi.URLParam(req, "authorizationID")),
			slog.String("reason", body.Reason))
		w.WriteHeader(http.StatusNoContent)
	})

	logger.Info("mock gateway listening", slog.String("addr", *addr))
	if err := http.ListenAndServe(*addr, r); err != nil {
		logger.Error("server stopped", "err", err)
		os.Exit(1)
	}
}
