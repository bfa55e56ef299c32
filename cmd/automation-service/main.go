package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/tucanprint/tucan-backend/internal/params"
	procconsumers "github.com/tucanprint/tucan-backend/internal/procurement/consumers"
	procevents "github.com/tucanprint/tucan-backend/internal/procurement/events"
	prochandler "github.com/tucanprint/tucan-backend/internal/procurement/handler"
	procrepo "github.com/tucanprint/tucan-backend/internal/procurement/repository"
	procservice "github.com/tucanprint/tucan-backend/internal/procurement/service"
	rankevents "github.com/tucanprint/tucan-backend/internal/ranking/events"
	rankhandler "github.com/tucanprint/tucan-backend/internal/ranking/handler"
	rankrepo "github.com/tucanprint/tucan-backend/internal/ranking/repository"
	rankservice "github.com/tucanprint/tucan-backend/internal/ranking/service"
	"github.com/tucanprint/tucan-backend/pkg/config"
	"github.com/tucanprint/tucan-backend/pkg/database"
	"github.com/tucanprint/tucan-backend/pkg/httputil"
	"github.com/tucanprint/tucan-backend/pkg/logger"
	"github.com/tucanprint/tucan-backend/pkg/messaging"
)

func main() {
	// Load configuration with validation (fails fast in production if required config is missing)
	cfg, err := config.LoadWithValidation("automation-service")
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.New("automation-service", cfg.Server.Environment)
	log.Info().Msg("starting Automation Service")

	// Connect to database
	db, err := database.New(&cfg.Database, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	// Connect to RabbitMQ
	rmq, err := messaging.New(&cfg.RabbitMQ, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to RabbitMQ")
	}
	defer rmq.Close()

	// Initialize event publishers
	procPublisher, err := procevents.NewProcurementEventPublisher(rmq, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create procurement event publisher")
	}
	rankPublisher, err := rankevents.NewRankingEventPublisher(rmq, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create ranking event publisher")
	}

	// Operational parameters
	paramStore := params.NewStore(db, log)

	// Procurement repositories
	stockRepo := procrepo.NewStockRepository(db)
	bomRepo := procrepo.NewBomRepository(db)
	orderRepo := procrepo.NewOrderRepository(db)
	reservationRepo := procrepo.NewReservationRepository(db)
	applicationRepo := procrepo.NewStockApplicationRepository(db)
	supplierRepo := procrepo.NewSupplierRepository(db)
	weightsRepo := procrepo.NewWeightsRepository(db)
	proposalRepo := procrepo.NewProposalRepository(db)

	// Procurement services
	ledger := procservice.NewStockLedger(db, stockRepo, log)
	resolver := procservice.NewBomResolver(bomRepo)
	calculator := procservice.NewConsumptionCalculator(db, resolver, ledger, reservationRepo, applicationRepo, procPublisher, log)
	scorer := procservice.NewSupplierScorer(supplierRepo, weightsRepo, log)
	adjuster := procservice.NewFeedbackAdjuster(db, weightsRepo, procPublisher, log)
	inquirer := procservice.NewInquiryClient(cfg.Automation.InquiryTimeout, log)
	proposalService := procservice.NewProposalService(db, ledger, proposalRepo, procPublisher, log)
	orchestrator := procservice.NewOrchestrator(db, resolver, ledger, scorer, inquirer,
		orderRepo, stockRepo, supplierRepo, proposalRepo, paramStore, procPublisher, log)

	// Ranking repositories and services
	activityRepo := rankrepo.NewActivityRepository(db)
	rankingRepo := rankrepo.NewRankingRepository(db)
	offerRepo := rankrepo.NewOfferRepository(db)
	rankingEngine := rankservice.NewEngine(activityRepo, rankingRepo, paramStore, rankPublisher, log)
	offerEngine := rankservice.NewOfferEngine(rankingRepo, offerRepo, paramStore, rankPublisher, log)

	// Handlers
	procHandler := prochandler.NewProcurementHandler(scorer, adjuster, proposalService, orchestrator, cfg.Automation.WebhookToken, log)
	rankHandler := rankhandler.NewRankingHandler(rankingEngine, offerEngine, log)

	// Start order event consumer
	orderConsumer, err := procconsumers.NewOrderEventConsumer(rmq, calculator, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create order event consumer")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := orderConsumer.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to start order event consumer")
	}

	// Background schedulers
	procScheduler := procservice.NewScheduler(orchestrator, cfg.Automation.ProcurementInterval, log)
	procScheduler.Start(ctx)
	defer procScheduler.Stop()

	rankScheduler := rankservice.NewScheduler(rankingEngine, offerEngine, cfg.Automation.RankingInterval, log)
	rankScheduler.Start(ctx)
	defer rankScheduler.Stop()

	// Create router
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RealIP)
	r.Use(httputil.RequestID)
	r.Use(httputil.Logger(log))
	r.Use(httputil.Recoverer(log))
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:3000", "http://localhost:5173", "https://*.tucanprint.com"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID", "X-Webhook-Token"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		httputil.JSON(w, http.StatusOK, map[string]interface{}{
			"status":   "healthy",
			"service":  "automation-service",
			"database": db.Health(r.Context()),
			"rabbitmq": rmq.Health(),
		})
	})

	// API routes
	r.Mount("/api/v1/procurement", procHandler.Routes())
	r.Mount("/api/v1/ranking", rankHandler.RankingRoutes())
	r.Mount("/api/v1/offers", rankHandler.OfferRoutes())

	// Create server
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Start server
	go func() {
		log.Info().Str("addr", addr).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")

	// Cancel context to stop consumers and schedulers
	cancel()

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server stopped")
}
