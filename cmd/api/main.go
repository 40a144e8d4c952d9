package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger"

	_ "github.com/willjrcristo/mealmuse/docs"
	"github.com/willjrcristo/mealmuse/internal/assistant"
	"github.com/willjrcristo/mealmuse/internal/config"
	httphandler "github.com/willjrcristo/mealmuse/internal/handler/http"
	"github.com/willjrcristo/mealmuse/internal/payments"
	"github.com/willjrcristo/mealmuse/internal/ratelimit"
	"github.com/willjrcristo/mealmuse/internal/repository"
	"github.com/willjrcristo/mealmuse/internal/service"
)

// @title           MealMuse API
// @version         1.0
// @description     Recipes, shopping lists and a premium AI cooking assistant, billed through Stripe.
//
// @contact.name   Will Cristo
// @contact.url    https://linkedin.com/in/willjrcristo
// @contact.email  willjrcristo@gmail.com
//
// @license.name  Apache 2.0
// @license.url   http://www.apache.org/licenses/LICENSE-2.0.html
//
// @host      localhost:8080
// @BasePath  /
func main() {
	if err := run(); err != nil {
		slog.Error("MealMuse API failed", "error", err)
		os.Exit(1)
	}
}

// run wires the application and serves until SIGINT/SIGTERM. Returning instead of
// exiting lets every deferred Close run.
func run() error {
	// --- 1. CONFIG AND LOGGER ---
	// Load also validates the configuration.
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)
	slog.Info("Starting MealMuse API", "addr", cfg.HTTPAddr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- 2. DATABASE ---
	// Open also runs the migrations.
	db, err := repository.Open(cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("failed to open database %s: %w", cfg.DatabasePath, err)
	}
	defer db.Close()
	slog.Info("Database ready", "path", cfg.DatabasePath)

	// --- 3. WIRING ---
	// DB -> Repository -> Service -> Handler
	userRepo := repository.NewSQLiteRepository(db)
	claimRepo := repository.NewSQLiteEarlyAdopterRepository(db)
	recipeRepo := repository.NewSQLiteRecipeRepository(db)
	shoppingRepo := repository.NewSQLiteShoppingListRepository(db)

	earlyAdopterService := service.NewEarlyAdopterService(claimRepo)
	if err := earlyAdopterService.Configure(ctx, cfg.EarlyAdopter.MaxSlots); err != nil {
		return fmt.Errorf("failed to configure early adopter slots: %w", err)
	}

	// Stripe, OpenAI and Redis are optional; their endpoints degrade instead.
	var gateway service.PaymentGateway
	if cfg.Stripe.SecretKey != "" {
		gateway = payments.NewStripeGateway(cfg.Stripe.SecretKey, cfg.CustomerCacheTTL)
	} else {
		slog.Warn("STRIPE_SECRET_KEY not set, billing endpoints will answer 503")
	}

	var model service.LanguageModel
	if cfg.AI.APIKey != "" {
		model = assistant.NewOpenAIClient(cfg.AI.APIKey, cfg.AI.Model, cfg.AI.BaseURL)
	} else {
		slog.Warn("OPENAI_API_KEY not set, AI endpoints will answer 503")
	}

	var limiter service.Limiter
	if cfg.RedisURL != "" {
		client, err := ratelimit.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			return err
		}
		defer client.Close()
		limiter = ratelimit.NewRedisLimiter(client, cfg.AI.RequestsPerHour, time.Hour, "mealmuse:ai")
		slog.Info("AI rate limiting enabled", "requests_per_hour", cfg.AI.RequestsPerHour)
	}

	userService := service.NewUserService(userRepo, earlyAdopterService)
	billingService := service.NewBillingService(userRepo, gateway, earlyAdopterService, service.BillingConfig{
		WebhookSecret:         cfg.Stripe.WebhookSecret,
		PriceIDPremiumMonthly: cfg.Stripe.PriceIDPremiumMonthly,
		PriceIDEarlyAdopter:   cfg.Stripe.PriceIDEarlyAdopter,
		FrontendURL:           cfg.Stripe.FrontendURL,
	})
	recipeService := service.NewRecipeService(recipeRepo, userRepo, cfg.IsAdmin)
	shoppingService := service.NewShoppingListService(shoppingRepo, recipeRepo, userRepo)
	assistantService := service.NewAssistantService(userRepo, model, limiter)

	userHandler := httphandler.NewUserHandler(userService)
	billingHandler := httphandler.NewBillingHandler(billingService, earlyAdopterService)
	recipeHandler := httphandler.NewRecipeHandler(recipeService)
	shoppingHandler := httphandler.NewShoppingListHandler(shoppingService)
	assistantHandler := httphandler.NewAssistantHandler(assistantService)

	// --- 4. ROUTER ---
	r := chi.NewRouter()

	// Middlewares run in this order for every request
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(prometheusMiddleware)
	r.Use(middleware.Timeout(60 * time.Second))

	// Health check, metrics and API docs
	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("MealMuse API is up"))
	})
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/swagger/*", httpSwagger.WrapHandler)

	// Feature routes; the per-user ones are nested under /users/{id}
	r.Post("/webhooks/stripe", billingHandler.HandleStripeWebhook)
	r.Mount("/billing", billingHandler.Routes())
	r.Mount("/recipes", recipeHandler.Routes())
	r.Mount("/users", userHandler.Routes(
		billingHandler.UserRoutes,
		recipeHandler.UserRoutes,
		shoppingHandler.UserRoutes,
		assistantHandler.UserRoutes,
	))

	// --- 5. HTTP SERVER ---
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Stop accepting requests once a signal arrives, then drain in-flight ones
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("Graceful shutdown failed", "error", err)
		}
	}()

	slog.Info("Server ready", "addr", cfg.HTTPAddr, "swagger", "/swagger/index.html")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server failed: %w", err)
	}
	slog.Info("Server stopped")
	return nil
}
