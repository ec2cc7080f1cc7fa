package router

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/exp/slog"

	"github.com/aymanhalloween/smartcard/internal/middleware"
	"github.com/aymanhalloween/smartcard/internal/routing"

	_ "github.com/lib/pq"
)

// App is the main application, it contains all the components of the router
// service and is responsible for starting and stopping them.
type App struct {
	srv    *http.Server
	wg     *sync.WaitGroup
	Addr   string
	logger *slog.Logger
	config *Config
	log    DecisionLog
}

func NewApp(logger *slog.Logger, config *Config) *App {
	logger = logger.With(slog.String("app", "router"))

	if config == nil {
		config = DefaultConfig()
	}

	return &App{
		wg:     &sync.WaitGroup{},
		logger: logger,
		config: config,
	}
}

func (a *App) Start() error {
	a.logger.Info("starting app...")

	if a.config.WebhookSecret == "" {
		return fmt.Errorf("webhook secret is required")
	}

	// Startup validation: a mapping without a default entry must fail here,
	// never at request time.
	selector, err := routing.NewSelector(a.config.Instruments)
	if err != nil {
		return fmt.Errorf("validating instrument mapping: %w", err)
	}

	decisionLog, err := a.openDecisionLog()
	if err != nil {
		return err
	}
	a.log = decisionLog

	settler := NewSettler(a.config.SettlementURL, nil)
	resolver := NewResolver(a.config.NetworkURL, nil)
	coordinator := NewCoordinator(selector, settler, resolver, decisionLog, a.logger, a.config)

	router := chi.NewRouter()
	router.Use(middleware.NewStructuredLogger(a.logger))

	api := NewAPI(coordinator, selector, decisionLog, a.config, a.logger)
	api.AppendRoutes(router)

	router.Get("/-/live", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	router.Get("/-/ready", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := decisionLog.Ping(ctx); err != nil {
			http.Error(w, "decision log not ready", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	l, err := net.Listen("tcp", a.config.HTTPAddr)
	if err != nil {
		return fmt.Errorf("listening tcp port: %w", err)
	}

	a.Addr = l.Addr().String()

	a.srv = &http.Server{
		Handler: router,
	}

	a.wg.Add(1)
	go func() {
		a.logger.Info("http server started", slog.String("addr", a.Addr))

		if err := a.srv.Serve(l); err != nil {
			if err != http.ErrServerClosed {
				a.logger.Error("starting http server", "err", err)
			}

			a.logger.Info("http server stopped")
		}

		a.wg.Done()
	}()

	return nil
}

func (a *App) openDecisionLog() (DecisionLog, error) {
	switch a.config.LogBackend {
	case "pg":
		if a.config.DBDSN == "" {
			return nil, fmt.Errorf("DB_DSN is required for pg backend")
		}
		db, err := sql.Open("postgres", a.config.DBDSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		db.SetMaxIdleConns(5)
		db.SetMaxOpenConns(10)
		if err := db.Ping(); err != nil {
			return nil, fmt.Errorf("ping postgres: %w", err)
		}
		repo := NewPGRepository(db)
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := repo.EnsureSchema(ctx); err != nil {
			return nil, fmt.Errorf("ensure schema: %w", err)
		}
		return repo, nil
	case "bolt":
		log, err := NewBoltLog(a.config.BoltPath)
		if err != nil {
			return nil, fmt.Errorf("open bolt log: %w", err)
		}
		return log, nil
	case "mem":
		return NewRepository(), nil
	default:
		return nil, fmt.Errorf("unsupported LOG_BACKEND=%s", a.config.LogBackend)
	}
}

func (a *App) Shutdown() {
	a.logger.Info("shutting down app...")

	a.srv.Shutdown(context.Background())

	if err := a.log.Close(); err != nil {
		a.logger.Error("closing decision log", "err", err)
	}

	a.wg.Wait()

	a.logger.Info("app stopped")
}
