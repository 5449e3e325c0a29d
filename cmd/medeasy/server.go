package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/medeasy/medeasy/internal/config"
	"github.com/medeasy/medeasy/internal/domain/agenda"
	"github.com/medeasy/medeasy/internal/domain/documents"
	"github.com/medeasy/medeasy/internal/domain/identity"
	"github.com/medeasy/medeasy/internal/domain/measures"
	"github.com/medeasy/medeasy/internal/domain/patients"
	"github.com/medeasy/medeasy/internal/platform/auth"
	"github.com/medeasy/medeasy/internal/platform/blobstore"
	"github.com/medeasy/medeasy/internal/platform/db"
	"github.com/medeasy/medeasy/internal/platform/events"
	"github.com/medeasy/medeasy/internal/platform/logging"
	"github.com/medeasy/medeasy/internal/platform/middleware"
	"github.com/medeasy/medeasy/internal/platform/openapi"
	"github.com/medeasy/medeasy/internal/platform/rest"
	"github.com/medeasy/medeasy/internal/platform/websocket"
	"github.com/medeasy/medeasy/pkg/pagination"
)

const shutdownTimeout = 10 * time.Second

// platform holds what every service of the process shares.
type platform struct {
	cfg         *config.Config
	logger      zerolog.Logger
	pages       pagination.Config
	bus         events.Bus
	tokens      *auth.TokenIssuer
	revocations auth.RevocationStore
}

// service is one API bound to its own schema and listener. Its websocket
// clients only see the events the service publishes.
type service struct {
	name      string
	pool      *pgxpool.Pool
	hub       *websocket.Hub
	publisher events.Publisher
	resources []rest.Resource
	register  func(e *echo.Echo)
}

func run(ctx context.Context, cfg *config.Config, names []string) error {
	logger := logging.New(cfg.LogFormat)
	p := &platform{
		cfg:    cfg,
		logger: logger,
		pages:  pagination.Config{DefaultPageSize: cfg.DefaultPageSize, MaxPageSize: cfg.MaxPageSize},
		tokens: auth.NewTokenIssuer(auth.TokenConfig{
			SigningKey:      []byte(cfg.JWTKey),
			Issuer:          cfg.JWTIssuer,
			Audiences:       cfg.JWTAudiences,
			AccessTokenTTL:  cfg.AccessTokenTTL(),
			RefreshTokenTTL: cfg.RefreshTokenTTL(),
		}),
	}

	var redisBus *events.RedisBus
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("parse REDIS_URL: %w", err)
		}
		client := redis.NewClient(opts)
		defer client.Close()
		redisBus = events.NewRedisBus(client, logging.ForService(logger, "events"))
		p.bus = redisBus
		p.revocations = auth.NewRedisRevocationStore(client, cfg.RefreshTokenTTL())
	} else {
		bus := events.NewMemoryBus(logging.ForService(logger, "events"))
		defer bus.Close()
		p.bus = bus
		revocations := auth.NewMemoryRevocationStore(cfg.RefreshTokenTTL())
		defer revocations.Close()
		p.revocations = revocations
	}

	var services []*service
	for _, name := range names {
		pool, err := db.NewPool(ctx, cfg.DatabaseURL, name, cfg.DBMaxConns, cfg.DBMinConns)
		if err != nil {
			return fmt.Errorf("connect %s: %w", name, err)
		}
		defer pool.Close()
		s, err := p.build(name, pool)
		if err != nil {
			return err
		}
		services = append(services, s)
	}

	g, ctx := errgroup.WithContext(ctx)
	for _, s := range services {
		e := p.newServer(s.name, s.pool, s.resources, s.hub)
		s.register(e)
		addr := cfg.Addr(s.name)
		log := logging.ForService(logger, s.name)

		g.Go(func() error {
			log.Info().Str("addr", addr).Msg("starting server")
			if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("%s server: %w", s.name, err)
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			log.Info().Msg("shutting down server")
			return e.Shutdown(shutdownCtx)
		})
	}
	// Redis subscribes to the channels known when Run starts, so it starts
	// once build has registered every handler.
	if redisBus != nil {
		g.Go(func() error { return redisBus.Run(ctx) })
	}
	return g.Wait()
}

// build wires the domain of one service onto its pool.
func (p *platform) build(name string, pool *pgxpool.Pool) (*service, error) {
	log := logging.ForService(p.logger, name)
	uow := db.NewUnitOfWork(pool)
	s := &service{name: name, pool: pool, hub: websocket.NewHub(log)}
	s.publisher = events.Multi(p.bus, s.hub)

	switch name {
	case "patients":
		h := patients.NewHandler(patients.NewService(patients.NewRepoPG(pool), uow, s.publisher, log), p.pages)
		s.resources = []rest.Resource{patients.Resource()}
		s.register = h.RegisterRoutes

	case "agenda":
		svc := agenda.NewService(agenda.NewAppointmentRepoPG(pool), agenda.NewParticipantRepoPG(pool), uow, log)
		s.resources = agenda.Resources()
		s.register = agenda.NewHandler(svc, p.pages).RegisterRoutes

	case "measures":
		patientRepo := measures.NewPatientRepoPG(pool)
		svc := measures.NewService(patientRepo, measures.NewFormRepoPG(pool), measures.NewGenericMeasureRepoPG(pool), uow, log)
		svc.Subscribe(p.bus)
		bp := measures.NewMeasureService(measures.BloodPressures, measures.NewMeasureRepoPG(pool, measures.BloodPressures), patientRepo, uow, s.publisher, log)
		bw := measures.NewMeasureService(measures.BodyWeights, measures.NewMeasureRepoPG(pool, measures.BodyWeights), patientRepo, uow, s.publisher, log)
		temp := measures.NewMeasureService(measures.Temperatures, measures.NewMeasureRepoPG(pool, measures.Temperatures), patientRepo, uow, s.publisher, log)
		s.resources = measures.Resources()
		s.register = measures.NewHandler(svc, bp, bw, temp, p.pages).RegisterRoutes

	case "documents":
		blobs, err := p.blobStore(pool)
		if err != nil {
			return nil, err
		}
		svc := documents.NewService(documents.NewRepoPG(pool), blobs, uow, log)
		svc.Subscribe(p.bus)
		s.resources = []rest.Resource{documents.Resource()}
		s.register = documents.NewHandler(svc, p.pages).RegisterRoutes

	case "identity":
		svc := identity.NewService(identity.NewRepoPG(pool), uow, p.tokens, p.revocations, log)
		s.resources = []rest.Resource{identity.Resource()}
		s.register = identity.NewHandler(svc, p.pages).RegisterRoutes

	default:
		return nil, fmt.Errorf("unknown service %q", name)
	}
	return s, nil
}

// blobStore keeps document content in PostgreSQL unless a bucket is
// configured.
func (p *platform) blobStore(pool *pgxpool.Pool) (blobstore.Store, error) {
	if p.cfg.S3Bucket == "" {
		return blobstore.NewPostgresStore(pool), nil
	}
	store, err := blobstore.NewS3Store(blobstore.S3Config{
		Bucket:   p.cfg.S3Bucket,
		Region:   p.cfg.S3Region,
		Endpoint: p.cfg.S3Endpoint,
		Prefix:   "documents/",
	})
	if err != nil {
		return nil, fmt.Errorf("s3 blob store: %w", err)
	}
	return store, nil
}

// newServer builds the echo instance of a service with the shared stack:
// problem details, request logging, metrics, authentication, health,
// discovery and the event stream.
func (p *platform) newServer(name string, pinger db.Pinger, resources []rest.Resource, hub *websocket.Hub) *echo.Echo {
	log := logging.ForService(p.logger, name)
	metrics := middleware.NewMetrics(name)

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = rest.ErrorHandler(log)

	e.Use(middleware.Recovery(log))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(log))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins:  p.cfg.CORSOrigins,
		AllowMethods:  []string{http.MethodGet, http.MethodHead, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowHeaders:  []string{echo.HeaderAuthorization, echo.HeaderContentType, echo.HeaderXRequestID, rest.HeaderIfMatch},
		ExposeHeaders: []string{echo.HeaderLocation, rest.HeaderETag, rest.HeaderCount, rest.HeaderTotalCount, "Warning"},
	}))
	e.Use(metrics.Middleware())

	rateLimit := middleware.RateLimitConfig{
		RequestsPerSecond: p.cfg.RateLimitRPS,
		BurstSize:         p.cfg.RateLimitBurst,
		IdleTTL:           10 * time.Minute,
	}
	if rateLimit.RequestsPerSecond <= 0 {
		rateLimit = middleware.DefaultRateLimitConfig()
	}
	e.Use(middleware.RateLimit(rateLimit))
	e.Use(p.authentication(log))

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok", "service": name, "version": version})
	})
	var stats func() db.PoolStats
	if pool, ok := pinger.(*pgxpool.Pool); ok {
		stats = func() db.PoolStats { return db.GetPoolStats(name, pool) }
	}
	e.GET("/health/db", db.HealthHandler(pinger, stats))
	e.GET("/metrics", metrics.Handler())
	e.GET("/", rest.Root(resources, p.pages.DefaultPageSize))
	openapi.NewGenerator("MedEasy "+name, version, resources).RegisterRoutes(e)
	websocket.NewHandler(hub, p.cfg.CORSOrigins).RegisterRoutes(e)
	return e
}

// authentication validates bearer tokens. Development lets anonymous
// requests through as an administrator.
func (p *platform) authentication(log zerolog.Logger) echo.MiddlewareFunc {
	var audience string
	if len(p.cfg.JWTAudiences) > 0 {
		audience = p.cfg.JWTAudiences[0]
	}
	strict := auth.JWTMiddleware(auth.JWTConfig{
		Issuer:      p.cfg.JWTIssuer,
		Audience:    audience,
		SigningKey:  []byte(p.cfg.JWTKey),
		Revocations: p.revocations,
		Skipper:     auth.AuthSkipper,
		Logger:      log,
	})
	if p.cfg.IsDev() {
		return auth.DevAuthMiddleware(strict)
	}
	return strict
}
