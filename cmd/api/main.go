package main

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/noah-isme/storefront/internal/app"
	"github.com/noah-isme/storefront/internal/auth"
	"github.com/noah-isme/storefront/internal/cart"
	"github.com/noah-isme/storefront/internal/cartstore"
	"github.com/noah-isme/storefront/internal/catalog"
	"github.com/noah-isme/storefront/internal/checkout"
	"github.com/noah-isme/storefront/internal/common"
	"github.com/noah-isme/storefront/internal/config"
	"github.com/noah-isme/storefront/internal/events"
	"github.com/noah-isme/storefront/internal/favorites"
	"github.com/noah-isme/storefront/internal/health"
	"github.com/noah-isme/storefront/internal/lock"
	"github.com/noah-isme/storefront/internal/notify"
	"github.com/noah-isme/storefront/internal/obs"
	"github.com/noah-isme/storefront/internal/order"
	"github.com/noah-isme/storefront/internal/pricing"
	"github.com/noah-isme/storefront/internal/ratelimit"
	"github.com/noah-isme/storefront/internal/resilience"
	"github.com/noah-isme/storefront/internal/reviews"
	"github.com/noah-isme/storefront/internal/security"
	"github.com/noah-isme/storefront/internal/session"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := obs.NewLogger(cfg.Obs.LogFormat, cfg.Obs.LogLevel).With().Str("env", cfg.AppEnv).Str("service", "storefront-api").Logger()

	registry := prometheus.DefaultRegisterer
	obs.MustRegisterDomainMetrics(cfg.Obs.MetricsNamespace, registry)
	resilience.RegisterMetrics(registry)

	tracingEnabled := cfg.Obs.TracingEnabled
	if tracingEnabled {
		stopTracer, err := obs.InitTracer(context.Background(), obs.TracingConfig{
			ServiceName:    "storefront-api",
			ServiceVersion: version,
			Endpoint:       cfg.Obs.OTLPEndpoint,
			Exporter:       cfg.Obs.TracingExporter,
			SamplingRatio:  cfg.Obs.TracingSampling,
			Environment:    cfg.AppEnv,
		})
		if err != nil {
			logger.Error().Err(err).Msg("initialise tracing")
			tracingEnabled = false
		} else {
			defer func() {
				if err := stopTracer(context.Background()); err != nil {
					logger.Error().Err(err).Msg("shutdown tracer")
				}
			}()
		}
	}

	if cfg.DBMigrate {
		if err := app.Migrate(cfg.DatabaseURL, logger); err != nil {
			logger.Fatal().Err(err).Msg("run migrations")
		}
	}

	startCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	deps, err := app.Open(startCtx, cfg, logger, "storefront-api")
	cancel()
	if err != nil {
		logger.Fatal().Err(err).Msg("open dependencies")
	}
	defer deps.Close(logger)

	policy := pricing.Policy{
		FreeShippingThreshold: cfg.FreeShippingThreshold,
		FlatShippingFee:       cfg.FlatShippingFee,
		TaxBps:                cfg.TaxRateBPS,
	}

	catalogSource := catalog.CachedSource{
		Source: catalog.PGSource{Pool: deps.DB},
		Cache:  catalog.NewCache(deps.Redis, cfg.CatalogCacheTTL),
		Logger: logger.With().Str("component", "catalog").Logger(),
	}
	catalogHandler := &catalog.Handler{Source: catalogSource}

	cartSvc := &cart.Service{
		Persister: cartstore.NewRedis(deps.Redis, cfg.CartTTL),
		Catalog:   catalogSource,
		Policy:    policy,
		Logger:    logger.With().Str("component", "cart").Logger(),
	}
	cartHandler := &cart.Handler{Svc: cartSvc, Currency: cfg.CurrencyCode}

	orderClient := &order.Client{
		BaseURL: cfg.OrderAPIBaseURL,
		HTTP: resilience.HTTPClient{
			Client: order.NewHTTPClient(cfg.OrderAPITimeout),
			Breaker: resilience.NewBreaker(cfg.CircuitOrderMinRequests, cfg.CircuitOrderFailureRatio, cfg.CircuitOrderOpenFor).
				WithTarget("order_api").
				WithLogger(logger),
			BaseBackoff: 200 * time.Millisecond,
			MaxAttempts: cfg.OrderAPIMaxAttempts,
			Jitter:      0.2,
			Timeout:     cfg.OrderAPITimeout,
		},
		Logger: logger.With().Str("component", "order_client").Logger(),
	}
	orderHandler := &order.Handler{Orders: orderClient}

	bus := &events.Bus{
		Notifiers: []events.Notifier{
			notify.Enqueuer{Client: deps.Tasks, Queue: "notifications", MaxRetry: 8, Retention: 24 * time.Hour},
		},
	}

	checkoutSvc := &checkout.Service{
		Orders:         orderClient,
		Locker:         lock.Locker{R: deps.Redis, Prefix: "lock:"},
		Carts:          cartSvc,
		LockTTL:        cfg.CheckoutLockTTL,
		Policy:         policy,
		PaymentMethods: cfg.PaymentMethods,
		Currency:       cfg.CurrencyCode,
		Events:         bus,
		Logger:         logger.With().Str("component", "checkout").Logger(),
		NewKey:         uuid.NewString,
	}
	checkoutHandler := &checkout.Handler{Svc: checkoutSvc}

	favoritesHandler := &favorites.Handler{Svc: &favorites.Service{
		Client:  deps.Redis,
		Catalog: catalogSource,
		TTL:     cfg.CartTTL,
		Logger:  logger.With().Str("component", "favorites").Logger(),
	}}

	reviewsHandler := &reviews.Handler{Svc: &reviews.Service{
		Store:  reviews.PGStore{Pool: deps.DB},
		Cache:  catalogSource,
		Logger: logger.With().Str("component", "reviews").Logger(),
	}}

	verifier, err := auth.NewVerifier(auth.VerifierConfig{
		Secret:   cfg.JWTSecret,
		Issuer:   cfg.JWTIssuer,
		Audience: cfg.JWTAudience,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise token verifier")
	}
	authMiddleware := auth.Middleware{Verifier: verifier, AccessCookie: cfg.AccessCookieName}

	idem := common.Idem{R: deps.Redis, TTL: cfg.IdempotencyTTL}
	onLimiterError := func(err error) { logger.Warn().Err(err).Msg("rate_limiter_unavailable") }
	cartLimit := ratelimit.Handler{
		Limiter: ratelimit.Limiter{Client: deps.Redis, Prefix: "ratelimit:cart:"},
		Config:  ratelimit.Config{Key: ratelimit.BySession, Window: time.Minute, Max: cfg.RateLimitCartPerMinute},
		OnError: onLimiterError,
	}
	placeOrderLimit := ratelimit.FixedWindow(
		ratelimit.PerMinute(deps.LimiterStore, int64(cfg.RateLimitCheckoutPerMinute)),
		ratelimit.ByClientIP,
		onLimiterError,
	)

	var httpMetrics *obs.HTTPMetrics
	if cfg.Obs.MetricsEnabled {
		httpMetrics = obs.NewHTTPMetrics(cfg.Obs.MetricsNamespace, obs.ParseBucketsCSV(cfg.Obs.MetricsBuckets), registry)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(security.Headers{Enable: cfg.SecurityHeadersEnabled, EnableHSTS: cfg.HSTSEnabled}.Middleware)
	r.Use(security.BodyLimit{Max: cfg.BodyLimitBytes}.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins(cfg),
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token", "Idempotency-Key", session.HeaderName},
		ExposedHeaders:   []string{"Link", "X-Total-Count", session.HeaderName},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	if tracingEnabled {
		r.Use(obs.TracingMiddleware)
	}
	if httpMetrics != nil {
		r.Use(obs.HTTPObs{Metrics: httpMetrics}.Middleware)
	}

	if cfg.Obs.MetricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}
	if cfg.Obs.PprofEnabled {
		r.Mount("/debug/pprof", protectPprof(newPprofMux(), cfg.Obs.PprofUser, cfg.Obs.PprofPassword))
	}

	healthHandler := health.Handler{
		Checker:      health.Deps{DB: deps.DB, Redis: deps.Redis},
		DBTimeout:    cfg.HealthDBTimeout,
		RedisTimeout: cfg.HealthRedisTimeout,
	}
	r.Get("/health/live", healthHandler.Live)
	r.Get("/health/ready", healthHandler.Ready)

	r.Route("/api/v1", func(v chi.Router) {
		v.Use(session.Middleware(session.Options{
			CookieName: cfg.SessionCookieName,
			Domain:     cfg.CookieDomain,
			Secure:     cfg.CookieSecure,
			SameSite:   cfg.CookieSameSite,
			TTL:        cfg.CartTTL,
		}))
		v.Use(authMiddleware.Authenticate)
		v.Use(obs.RequestLogger{Logger: logger}.Middleware)
		if cfg.CSRFEnabled {
			v.Use(security.CSRF{SessionCookie: cfg.SessionCookieName, Secure: cfg.CookieSecure, Domain: cfg.CookieDomain}.Middleware)
		}

		v.Get("/categories", catalogHandler.Categories)
		v.Get("/products", catalogHandler.Products)
		v.Get("/products/{id}", catalogHandler.ProductDetail)
		v.Get("/products/{id}/related", catalogHandler.Related)
		v.Get("/products/{id}/reviews", reviewsHandler.List)
		v.With(authMiddleware.RequireAuth, cartLimit.Middleware).Post("/products/{id}/reviews", reviewsHandler.Create)

		v.Route("/cart", func(c chi.Router) {
			c.Use(cartSvc.Middleware)
			c.Get("/", cartHandler.Get)
			c.Group(func(m chi.Router) {
				m.Use(cartLimit.Middleware)
				m.Post("/items", cartHandler.AddItem)
				m.Patch("/items/{productId}", cartHandler.UpdateItem)
				m.Delete("/items/{productId}", cartHandler.RemoveItem)
				m.Delete("/", cartHandler.Clear)
			})
		})

		v.Route("/checkout", func(c chi.Router) {
			c.Use(cartSvc.Middleware)
			c.Get("/quote", checkoutHandler.Quote)
			c.Get("/{view}", checkoutHandler.View)
			c.With(cartLimit.Middleware).Put("/shipping", checkoutHandler.SaveShipping)
			c.With(cartLimit.Middleware).Put("/payment", checkoutHandler.SavePayment)
			c.With(authMiddleware.RequireAuth, placeOrderLimit, idem.Middleware).Post("/place-order", checkoutHandler.PlaceOrder)
		})

		v.Route("/favorites", func(f chi.Router) {
			f.Get("/", favoritesHandler.List)
			f.Post("/", favoritesHandler.Add)
			f.Delete("/{productId}", favoritesHandler.Remove)
		})

		v.Group(func(o chi.Router) {
			o.Use(authMiddleware.RequireAuth)
			o.Get("/orders/mine", orderHandler.Mine)
			o.Get("/orders/{id}", orderHandler.Get)
		})
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("server starting")
		serveErr <- srv.ListenAndServe()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server exited unexpectedly")
		}
	case sig := <-stop:
		logger.Info().Str("signal", sig.String()).Msg("shutting down")
		shutdown(srv, logger)
	}
}

func shutdown(srv *http.Server, logger zerolog.Logger) {
	health.SetReady(false)
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown")
	}
}

func allowedOrigins(cfg *config.Config) []string {
	if len(cfg.CORSAllowedOrigins) == 0 {
		return []string{"*"}
	}
	return cfg.CORSAllowedOrigins
}

func newPprofMux() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", pprof.Index)
	mux.HandleFunc("/cmdline", pprof.Cmdline)
	mux.HandleFunc("/profile", pprof.Profile)
	mux.HandleFunc("/symbol", pprof.Symbol)
	mux.HandleFunc("/trace", pprof.Trace)
	for _, name := range []string{"allocs", "block", "goroutine", "heap", "mutex", "threadcreate"} {
		mux.Handle("/"+name, pprof.Handler(name))
	}
	return mux
}

func protectPprof(handler http.Handler, user, pass string) http.Handler {
	user = strings.TrimSpace(user)
	pass = strings.TrimSpace(pass)
	if user == "" {
		return handler
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, p, ok := r.BasicAuth()
		if !ok || subtle.ConstantTimeCompare([]byte(u), []byte(user)) != 1 || subtle.ConstantTimeCompare([]byte(p), []byte(pass)) != 1 {
			w.Header().Set("WWW-Authenticate", "Basic realm=restricted")
			http.Error(w, "unauthorised", http.StatusUnauthorized)
			return
		}
		handler.ServeHTTP(w, r)
	})
}
