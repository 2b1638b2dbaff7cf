// Package app wires configuration, storage, services and routes into one
// echo server.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	mid "github.com/norbi4050/misiones-arrienda-sub010/internal/middleware"
	"github.com/norbi4050/misiones-arrienda-sub010/internal/service"
	"github.com/norbi4050/misiones-arrienda-sub010/pkg/config"
	"github.com/norbi4050/misiones-arrienda-sub010/pkg/events"
	"github.com/norbi4050/misiones-arrienda-sub010/pkg/filevalidator"
	"github.com/norbi4050/misiones-arrienda-sub010/pkg/httpx"
	"github.com/norbi4050/misiones-arrienda-sub010/pkg/jwtutil"
	"github.com/norbi4050/misiones-arrienda-sub010/pkg/logger"
	"github.com/norbi4050/misiones-arrienda-sub010/pkg/mercadopago"
	"github.com/norbi4050/misiones-arrienda-sub010/pkg/presence"
	"github.com/norbi4050/misiones-arrienda-sub010/pkg/storage"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

// App is a configured server and the long lived components it owns
type App struct {
	Config    *config.Config
	DB        *gorm.DB
	Echo      *echo.Echo
	Log       *zap.Logger
	JWT       *jwtutil.JWTUtil
	Tracker   *presence.Tracker
	Publisher events.Publisher
	Store     storage.Store
}

// Option overrides a dependency, mostly for tests
type Option func(*options)

type options struct {
	gateway   service.PaymentGateway
	publisher events.Publisher
	store     storage.Store
}

// WithGateway replaces the MercadoPago client
func WithGateway(g service.PaymentGateway) Option {
	return func(o *options) { o.gateway = g }
}

// WithPublisher replaces the event publisher chosen from the Kafka config
func WithPublisher(p events.Publisher) Option {
	return func(o *options) { o.publisher = p }
}

// WithStore replaces the file backed object store
func WithStore(s storage.Store) Option {
	return func(o *options) { o.store = s }
}

// New builds the application on an open database
func New(cfg *config.Config, db *gorm.DB, log *zap.Logger, opts ...Option) (*App, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	jwt := jwtutil.NewJWTUtil(&cfg.JWT)

	store := o.store
	if store == nil {
		files, err := storage.NewFileStore(cfg.Storage.Root)
		if err != nil {
			return nil, fmt.Errorf("failed to open storage: %w", err)
		}
		store = files
	}
	publisher := o.publisher
	if publisher == nil {
		publisher = events.New(&cfg.Kafka, log)
	}
	gateway := o.gateway
	if gateway == nil {
		gateway = mercadopago.NewClient(&cfg.MercadoPago, log)
	}

	urls := storage.NewURLBuilder(cfg.Storage.PublicBaseURL, jwt)
	validator := filevalidator.New()
	for _, hash := range cfg.Storage.BlockedHashes {
		validator.AddBlockedHash(hash)
	}
	tracker := presence.NewTracker(cfg.Presence.TTL)

	notifier := service.NewNotifier(db, publisher)
	limits := service.NewLimits(db)
	users := service.NewUsers(db, jwt, store, urls, validator)
	properties := service.NewProperties(db, store, urls, validator, limits, notifier, publisher, cfg.Moderation.AutoSuspendThreshold)
	community := service.NewCommunity(db, store, urls, validator, limits, cfg.Storage.CommunityTTL)
	matching := service.NewMatching(db, notifier, publisher)
	messaging := service.NewMessaging(db, urls, notifier, tracker, cfg.Storage.AttachmentTTL)
	attachments := service.NewAttachments(db, store, urls, validator, cfg.Storage.AttachmentTTL)
	payments := service.NewPayments(db, gateway, limits, notifier, publisher, service.PaymentsConfig{
		BaseURL:       cfg.Server.BaseURL,
		PublicKey:     cfg.MercadoPago.PublicKey(),
		WebhookSecret: cfg.MercadoPago.WebhookSecret,
	})

	svc := services{
		users:       users,
		limits:      limits,
		properties:  properties,
		community:   community,
		matching:    matching,
		messaging:   messaging,
		attachments: attachments,
		presence:    service.NewPresence(db, tracker),
		payments:    payments,
		notifier:    notifier,
		admin:       service.NewAdmin(db),
		analytics:   service.NewAnalytics(db, messaging),
		roommates:   service.NewRoommates(db),
		team:        service.NewTeam(db),
	}

	e := newEcho(cfg, log)
	registerRoutes(e, cfg, db, jwt, store, svc)

	return &App{
		Config:    cfg,
		DB:        db,
		Echo:      e,
		Log:       log,
		JWT:       jwt,
		Tracker:   tracker,
		Publisher: publisher,
		Store:     store,
	}, nil
}

func newEcho(cfg *config.Config, log *zap.Logger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.JSONSerializer = httpx.JSONSerializer{}
	e.Validator = httpx.NewValidator()
	e.HTTPErrorHandler = httpx.ErrorHandler

	e.Use(echomw.Recover())
	e.Use(mid.RequestIDMiddleware)
	e.Use(logger.Middleware(log))
	e.Use(mid.MetricsMiddleware)
	e.Use(mid.SecureHeaders())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.Server.AllowedOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{
			echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept,
			echo.HeaderAuthorization, echo.HeaderXRequestID, "X-Signature",
		},
		ExposeHeaders: []string{echo.HeaderXRequestID, "X-RateLimit-Limit", "X-RateLimit-Remaining", "Retry-After"},
	}))
	if cfg.Server.BodyLimit != "" {
		e.Use(echomw.BodyLimit(cfg.Server.BodyLimit))
	}
	e.Use(mid.IPRateLimiter(&cfg.RateLimit))
	return e
}

// Run serves HTTP and sweeps presence until ctx is cancelled, then shuts
// the server down within the configured timeout
func (a *App) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.Tracker.Run(ctx, a.Config.Presence.SweepInterval)
		return nil
	})

	g.Go(func() error {
		addr := ":" + a.Config.Server.Port
		a.Log.Info("Starting server", zap.String("addr", addr))
		if err := a.Echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		a.Log.Info("Shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.Config.Server.ShutdownTimeout)
		defer cancel()
		return a.Echo.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// Close releases the event publisher
func (a *App) Close() error {
	err := a.Publisher.Close()
	if c, ok := a.Store.(io.Closer); ok {
		err = errors.Join(err, c.Close())
	}
	return err
}
