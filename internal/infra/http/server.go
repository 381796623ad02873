package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"tabula/internal/config"
	"tabula/internal/domain"
	"tabula/internal/infra/actorcache"
	"tabula/internal/infra/bus"
	"tabula/internal/infra/db"
	"tabula/internal/infra/gateway"
	"tabula/internal/infra/keyring"
	"tabula/internal/infra/memstore"
	"tabula/internal/infra/policyopa"
	"tabula/internal/infra/ratelimit"
	"tabula/internal/usecase"

	"github.com/gin-gonic/gin"
)

const systemActorDisplayName = "tabula-core"

type Server struct {
	cfg   config.Config
	store *db.Store
	r     *gin.Engine
	log   *slog.Logger

	ledger   *usecase.Ledger
	registry *usecase.ActorRegistry
	trust    *usecase.TrustEngine
	stream   gin.HandlerFunc

	gateway *gateway.Gateway

	adminAPIKey string
	initErr     error

	rateLimiter         domain.RateLimiter
	rateLimitRequests   int
	rateLimitWindow     time.Duration
	rateLimitFailClosed bool
}

func NewServer(cfg config.Config, store *db.Store) *Server {
	r := gin.New()
	r.Use(gin.Recovery())

	s := &Server{cfg: cfg, store: store, r: r, log: slog.Default()}
	s.initDeps()
	s.routes()
	return s
}

type ServerDeps struct {
	Ledger      *usecase.Ledger
	Registry    *usecase.ActorRegistry
	Trust       *usecase.TrustEngine
	Stream      gin.HandlerFunc
	AdminAPIKey string
	RateLimiter domain.RateLimiter
}

func NewServerWithDeps(cfg config.Config, deps ServerDeps) *Server {
	r := gin.New()
	r.Use(gin.Recovery())

	s := &Server{
		cfg:         cfg,
		r:           r,
		log:         slog.Default(),
		ledger:      deps.Ledger,
		registry:    deps.Registry,
		trust:       deps.Trust,
		stream:      deps.Stream,
		adminAPIKey: deps.AdminAPIKey,
	}
	s.initRateLimit(deps.RateLimiter)
	s.routes()
	return s
}

// initDeps wires the full service graph from configuration: storage
// repositories (postgres or in-memory), the signing keyring, the event
// bus and its websocket gateway, the admission policy, and the three
// usecase services the handlers call.
func (s *Server) initDeps() {
	s.adminAPIKey = s.cfg.AdminAPIKey

	ring, err := keyring.NewFromConfig(s.cfg)
	if err != nil {
		s.initErr = err
		return
	}

	var (
		records     usecase.RecordRepository
		actors      usecase.ActorRepository
		fetches     usecase.FetchLogRepository
		health      usecase.SourceHealthRepository
		assessments usecase.AssessmentRepository
	)
	if s.store != nil && s.store.DB != nil {
		records = db.NewRecordRepository(s.store.DB)
		actors = db.NewActorRepository(s.store.DB)
		fetches = db.NewFetchLogRepository(s.store.DB)
		health = db.NewSourceHealthRepository(s.store.DB)
		assessments = db.NewAssessmentRepository(s.store.DB)
	} else {
		records = memstore.NewRecordStore()
		actors = memstore.NewActorStore()
		fetches = memstore.NewFetchLogStore()
		health = memstore.NewSourceHealthStore()
		assessments = memstore.NewAssessmentStore()
	}

	events := bus.New(s.log)
	s.gateway = gateway.New(events, s.log, s.cfg.GatewayOutboxSize, s.cfg.GatewayWriteTimeout())
	s.gateway.Start()
	s.stream = s.gateway.Handler()

	s.registry = &usecase.ActorRegistry{
		Actors: actors,
		Keys:   ring,
		Cache:  actorcache.New(0),
	}

	var policy usecase.AdmissionPolicy
	if s.cfg.PolicyPath != "" {
		engine, err := policyopa.NewEngineFromBundlePath(context.Background(), s.cfg.PolicyPath, "")
		if err != nil {
			s.initErr = err
			return
		}
		s.log.Info("admission policy loaded", "path", s.cfg.PolicyPath, "bundle_hash", engine.BundleHash())
		policy = engine
	}

	s.ledger = &usecase.Ledger{
		Records: records,
		Actors:  s.registry,
		Keys:    ring,
		Policy:  policy,
		Events:  events,
	}
	s.trust = &usecase.TrustEngine{
		Fetches:     fetches,
		Health:      health,
		Assessments: assessments,
		Events:      events,
		Cfg: usecase.TrustConfig{
			HealthyMinRate:   s.cfg.TrustHealthyMinRate,
			DegradedMinRate:  s.cfg.TrustDegradedMinRate,
			MinSamples:       s.cfg.TrustMinSamples,
			WindowDays:       s.cfg.TrustWindowDays,
			DegradedGrace:    s.cfg.DegradedGrace(),
			BatchConcurrency: s.cfg.TrustBatchConcurrency,
			HistoryEnabled:   s.cfg.TrustHistoryEnabled,
		},
		Log: s.log,
	}

	if s.cfg.SystemActorID != "" {
		if _, err := s.registry.EnsureSystemActor(context.Background(), s.cfg.SystemActorID, systemActorDisplayName); err != nil {
			s.initErr = err
			return
		}
	}

	s.initRateLimit(nil)
}

func (s *Server) initRateLimit(override domain.RateLimiter) {
	if override != nil {
		s.rateLimiter = override
	}
	if s.rateLimiter == nil && s.cfg.RateLimitRequests > 0 {
		if s.cfg.RedisAddr != "" {
			if limiter, err := ratelimit.NewRedisLimiter(s.cfg.RedisAddr, s.cfg.RedisPassword, s.cfg.RedisDB, nil); err == nil {
				s.rateLimiter = limiter
			}
		}
		if s.rateLimiter == nil {
			s.rateLimiter = ratelimit.NewMemoryLimiter(ratelimit.MemoryLimiterConfig{
				MaxKeys: s.cfg.RateLimitMaxKeys,
			})
		}
	}
	s.rateLimitRequests = s.cfg.RateLimitRequests
	if s.cfg.RateLimitWindowSeconds > 0 {
		s.rateLimitWindow = time.Duration(s.cfg.RateLimitWindowSeconds) * time.Second
	}
	s.rateLimitFailClosed = s.cfg.RateLimitFailClosed
}

func (s *Server) routes() {
	s.r.GET("/healthz", func(c *gin.Context) {
		dbMode := "no-db"
		if s.store != nil && s.store.DB != nil {
			dbMode = "db"
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok", "mode": dbMode})
	})

	v1 := s.r.Group("/v1")
	{
		v1.POST("/records/:kind", s.handleCreateRecord)
		v1.GET("/records/:kind/:id", s.handleGetRecord)
		v1.PATCH("/records/:kind/:id", s.handleUpdateRecord)
		v1.DELETE("/records/:kind/:id", s.handleDeleteRecord)
		v1.GET("/records/:kind/:id/chain", s.handleRecordChain)

		v1.POST("/actors", s.handleRegisterActor)
		v1.GET("/actors/:id", s.handleGetActor)

		v1.POST("/fetches", s.handleAppendFetch)
		v1.GET("/sources/:domain/health", s.handleSourceHealth)
		v1.GET("/sources/:domain/health/history", s.handleSourceHealthHistory)
		v1.GET("/sources/:domain/score", s.handleSourceScore)
		v1.PUT("/sources/:domain/assessment", s.handleUpsertAssessment)
		v1.POST("/sources/:domain/:health_action", s.handleSourceHealthAction)
	}

	if s.stream != nil {
		s.r.GET("/v1/stream", s.stream)
	}

	s.r.NoRoute(s.handleNoRoute)
}

func (s *Server) Run() error {
	if s.initErr != nil {
		return s.initErr
	}
	return s.r.Run(s.cfg.HTTPAddr)
}
