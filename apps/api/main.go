package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/caarlos0/env/v11"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	onboardingbilling "github.com/brightpath-hq/brightpath/domains/onboarding/be/billing"
	onboardinghandler "github.com/brightpath-hq/brightpath/domains/onboarding/be/handler"
	onboardingidentity "github.com/brightpath-hq/brightpath/domains/onboarding/be/identity"
	onboardingrepo "github.com/brightpath-hq/brightpath/domains/onboarding/be/repo"
	onboardingservice "github.com/brightpath-hq/brightpath/domains/onboarding/be/service"
	platformauth "github.com/brightpath-hq/brightpath/platform/go/auth"
	"github.com/brightpath-hq/brightpath/platform/go/gcp"
	platformlogging "github.com/brightpath-hq/brightpath/platform/go/logging"
	platformmiddleware "github.com/brightpath-hq/brightpath/platform/go/middleware"
	"github.com/brightpath-hq/brightpath/platform/go/persistence"
)

type config struct {
	Port                 string        `env:"PORT" envDefault:"3000"`
	ShutdownTimeout      time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
	RequestTimeout       time.Duration `env:"REQUEST_TIMEOUT" envDefault:"30s"`
	LogLevel             string        `env:"LOG_LEVEL" envDefault:"info"`
	DatabaseURL          string        `env:"DATABASE_URL,required"`
	BootstrapSchema      bool          `env:"BOOTSTRAP_SCHEMA" envDefault:"false"`
	StripeAPIKey         string        `env:"STRIPE_API_KEY,required"`
	FirebaseCredentials  string        `env:"FIREBASE_CREDENTIALS_FILE"`
	RequireVerifiedEmail bool          `env:"REQUIRE_VERIFIED_EMAIL" envDefault:"true"`
	ResumeTokenSecret    string        `env:"RESUME_TOKEN_SECRET,required"`
	ResumeTokenTTL       time.Duration `env:"RESUME_TOKEN_TTL" envDefault:"1h"`
}

func main() {
	ctx := context.Background()

	var cfg config
	if err := env.Parse(&cfg); err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger, err := platformlogging.NewLogger(platformlogging.Config{
		Component: "onboarding-api",
		Level:     cfg.LogLevel,
	})
	if err != nil {
		log.Fatalf("init zap logger: %v", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	pool, err := persistence.NewPool(ctx, persistence.PoolConfig{ConnString: cfg.DatabaseURL})
	if err != nil {
		logger.Fatal("init postgres pool", zap.Error(err))
	}
	defer persistence.ClosePool(pool)

	if cfg.BootstrapSchema {
		if err := persistence.BootstrapSchema(ctx, pool); err != nil {
			logger.Fatal("bootstrap schema", zap.Error(err))
		}
		logger.Info("schema bootstrap applied")
	}

	orgStore, err := persistence.NewOrganizationStore(pool)
	if err != nil {
		logger.Fatal("init organization store", zap.Error(err))
	}
	subscriptionStore, err := persistence.NewSubscriptionStore(pool)
	if err != nil {
		logger.Fatal("init subscription store", zap.Error(err))
	}
	userStore, err := persistence.NewUserStore(pool)
	if err != nil {
		logger.Fatal("init user store", zap.Error(err))
	}

	orgRepo := onboardingrepo.NewPostgresOrgStore(orgStore)
	subscriptionRepo := onboardingrepo.NewPostgresSubscriptionStore(subscriptionStore)
	userRepo := onboardingrepo.NewPostgresUserStore(userStore)

	stripeClient, err := onboardingbilling.NewStripeClient(cfg.StripeAPIKey)
	if err != nil {
		logger.Fatal("init stripe client", zap.Error(err))
	}

	identityProvider, err := onboardingidentity.NewFirebaseProvider(ctx, cfg.FirebaseCredentials, cfg.RequireVerifiedEmail)
	if err != nil {
		logger.Fatal("init firebase identity provider", zap.Error(err))
	}

	fbAuth, err := gcp.NewAuthClient(ctx, cfg.FirebaseCredentials)
	if err != nil {
		logger.Fatal("init firebase auth client", zap.Error(err))
	}

	wallClock := clock.New()

	tokens, err := onboardingservice.NewResumeTokenCodec([]byte(cfg.ResumeTokenSecret), cfg.ResumeTokenTTL, wallClock)
	if err != nil {
		logger.Fatal("init resume token codec", zap.Error(err))
	}

	subscriptionWriter := onboardingservice.NewSubscriptionWriter(
		subscriptionRepo, orgRepo, wallClock, logger, onboardingservice.SubscriptionWriterConfig{},
	)

	saga := onboardingservice.NewOrchestrator(
		onboardingservice.NewOrgProvisioner(orgRepo, logger),
		identityProvider,
		onboardingservice.NewPaymentFactsResolver(stripeClient, wallClock, logger),
		subscriptionWriter,
		onboardingservice.NewIdentityReconciler(userRepo, wallClock, logger, 0),
		orgRepo,
		tokens,
		wallClock,
		logger,
	)

	onboardingHTTPHandler := onboardinghandler.New(saga, logger)

	rootRouter := chi.NewRouter()

	rootRouter.Use(
		chimw.RequestID,
		chimw.RealIP,
		chimw.Recoverer,
		chimw.Timeout(cfg.RequestTimeout),
		platformmiddleware.DefaultCORS(),
	)

	rootRouter.Use(platformlogging.RequestLogger(logger))
	rootRouter.Use(platformauth.JWT(platformauth.FirebaseTokenVerifier(fbAuth)))

	rootRouter.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	rootRouter.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if err := pool.Ping(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	apiRouter := chi.NewRouter()
	onboardingHTTPHandler.Mount(apiRouter)
	rootRouter.Mount("/api/v1", apiRouter)

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      rootRouter,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  2 * time.Minute,
	}

	go func() {
		logger.Info("starting onboarding api server", zap.String("port", cfg.Port))
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server listen failed", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}

	// Let in-flight billing customer backfills finish before the pool closes.
	subscriptionWriter.Wait()
}
