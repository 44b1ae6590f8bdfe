package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/time/rate"

	"github.com/jwalitptl/frontdesk/internal/clock"
	"github.com/jwalitptl/frontdesk/internal/config"
	"github.com/jwalitptl/frontdesk/internal/handler"
	authh "github.com/jwalitptl/frontdesk/internal/handler/auth"
	dashboardh "github.com/jwalitptl/frontdesk/internal/handler/dashboard"
	patienth "github.com/jwalitptl/frontdesk/internal/handler/patient"
	"github.com/jwalitptl/frontdesk/internal/handler/screen"
	visith "github.com/jwalitptl/frontdesk/internal/handler/visit"
	"github.com/jwalitptl/frontdesk/internal/middleware"
	"github.com/jwalitptl/frontdesk/internal/repository"
	"github.com/jwalitptl/frontdesk/internal/repository/memory"
	"github.com/jwalitptl/frontdesk/internal/repository/postgres"
	redisrepo "github.com/jwalitptl/frontdesk/internal/repository/redis"
	"github.com/jwalitptl/frontdesk/internal/router"
	"github.com/jwalitptl/frontdesk/internal/service/dashboard"
	"github.com/jwalitptl/frontdesk/internal/service/desk"
	"github.com/jwalitptl/frontdesk/internal/service/patient"
	"github.com/jwalitptl/frontdesk/internal/service/session"
	"github.com/jwalitptl/frontdesk/internal/service/visit"
	"github.com/jwalitptl/frontdesk/internal/upload"
	"github.com/jwalitptl/frontdesk/pkg/auth"
	"github.com/jwalitptl/frontdesk/pkg/logger"
	"github.com/jwalitptl/frontdesk/pkg/metrics"
	"github.com/jwalitptl/frontdesk/pkg/security"
)

func serveCmd() *cobra.Command {
	var migrate bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the front desk server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(migrate)
		},
	}
	cmd.Flags().BoolVar(&migrate, "migrate", false, "apply pending migrations before serving")
	return cmd
}

// stores bundles the record and session stores with their health checks and
// the functions that release them.
type stores struct {
	patients repository.PatientRepository
	visits   repository.VisitRepository
	sessions repository.SessionRepository
	checks   map[string]handler.Check
	closers  []func() error
}

func (s *stores) close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			log.Warn().Err(err).Msg("failed to close store")
		}
	}
}

func openStores(ctx context.Context, cfg *config.Config, m *metrics.Metrics, clk clock.Clock, migrate bool) (*stores, error) {
	s := &stores{checks: map[string]handler.Check{}}

	switch cfg.Store.Driver {
	case "memory":
		s.patients = memory.NewPatientRepository(clk)
		s.visits = memory.NewVisitRepository(clk)
		log.Warn().Msg("using in-memory record store; data is lost on restart")
	default:
		db, err := postgres.NewDB(cfg.Database)
		if err != nil {
			return nil, err
		}
		s.closers = append(s.closers, db.Close)
		if migrate {
			n, err := postgres.Migrate(db)
			if err != nil {
				s.close()
				return nil, err
			}
			log.Info().Int("applied", n).Msg("migrations complete")
		}
		s.patients = postgres.NewPatientRepository(db, m)
		s.visits = postgres.NewVisitRepository(db, m)
		s.checks["database"] = db.PingContext
	}

	if cfg.Redis.URL == "" {
		s.sessions = memory.NewSessionRepository(clk)
	} else {
		client, err := redisrepo.NewClient(ctx, redisrepo.Config{
			URL:          cfg.Redis.URL,
			MaxRetries:   cfg.Redis.MaxRetries,
			RetryBackoff: cfg.Redis.RetryBackoff,
			PoolSize:     cfg.Redis.PoolSize,
			MinIdleConns: cfg.Redis.MinIdleConns,
		})
		if err != nil {
			s.close()
			return nil, err
		}
		s.closers = append(s.closers, client.Close)
		s.sessions = redisrepo.NewSessionRepository(client)
	}
	s.checks["sessions"] = s.sessions.Ping
	return s, nil
}

func runServer(migrate bool) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	lg := logger.NewLogger(&logger.Config{
		Level:      logger.ParseLevel(cfg.Log.Level),
		TimeFormat: time.RFC3339,
		Output:     os.Stdout,
		JSON:       cfg.Log.JSON,
	})
	log.Logger = lg.Zerolog()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.NewMetrics(reg, cfg.Metrics.Namespace)
	clk := clock.Real()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := openStores(ctx, cfg, m, clk, migrate)
	if err != nil {
		return err
	}
	defer st.close()

	creds, err := security.NewCredentials(security.NewBcryptHasher(bcrypt.DefaultCost),
		cfg.Session.AdminID, cfg.Session.AdminPasswordHash, cfg.Session.AdminPassword)
	if err != nil {
		return fmt.Errorf("failed to prepare admin credentials: %w", err)
	}

	uploader := upload.NewClient(upload.Config{
		Endpoint:        cfg.Upload.Endpoint,
		Preset:          cfg.Upload.Preset,
		Timeout:         cfg.Upload.Timeout,
		BreakerTimeout:  cfg.Upload.BreakerTimeout,
		BreakerFailures: cfg.Upload.BreakerFailure,
	}, nil, m)

	desks := desk.NewRegistry(cfg.Session.TTL, 10*time.Minute, func(sessionID string) *desk.Desk {
		obs := lg.WithFields(map[string]interface{}{"session_id": sessionID})
		return &desk.Desk{
			Patients: patient.NewForm(patient.Deps{
				Patients: st.patients,
				Uploader: uploader,
				Clock:    clk,
				Observer: obs,
			}),
			Visits: visit.NewForm(visit.Deps{
				Patients: st.patients,
				Visits:   st.visits,
				Clock:    clk,
				Observer: obs,
				Metrics:  m,
				Debounce: cfg.Lookup.Debounce,
				Timeout:  cfg.Lookup.Timeout,
			}),
		}
	}, m)
	defer desks.Close()

	gate := session.NewGate(session.Deps{
		Credentials: creds,
		Tokens:      auth.NewJWTService(cfg.Session.Secret, "frontdesk"),
		Store:       st.sessions,
		Clock:       clk,
		Observer:    lg,
		Metrics:     m,
		TTL:         cfg.Session.TTL,
		OnLogout:    desks.Drop,
	})
	sessions := middleware.NewSessionMiddleware(gate, cfg.Session.CookieName)
	stats := dashboard.NewService(st.patients, st.visits, clk)

	gin.SetMode(gin.ReleaseMode)
	r := router.NewRouter(sessions, router.Handlers{
		Health:    handler.NewHandler(reg, st.checks),
		Auth:      authh.NewHandler(gate, sessions, authh.CookieConfig{Name: cfg.Session.CookieName, Secure: cfg.Session.SecureCookie}),
		Patients:  patienth.NewHandler(desks),
		Visits:    visith.NewHandler(desks),
		Dashboard: dashboardh.NewHandler(stats),
		Screens:   screen.NewHandler(stats),
	}, router.RouterConfig{
		Registerer:     reg,
		MetricsPrefix:  cfg.Metrics.Namespace + "_http",
		AllowedOrigins: cfg.CORS.AllowedOrigins,
		LoginRate:      rate.Limit(cfg.RateLimit.LoginRPS),
		LoginBurst:     cfg.RateLimit.LoginBurst,
		SizeLimit: middleware.SizeLimitConfig{
			MaxBodySize:   1 << 20,
			MaxUploadSize: cfg.Server.MaxUploadBytes,
		},
		TLS: cfg.Session.SecureCookie,
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r.Engine(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Int("port", cfg.Server.Port).Str("store", cfg.Store.Driver).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	log.Info().Msg("server exited")
	return nil
}
