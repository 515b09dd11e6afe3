package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	flag "github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/ganamos/l402/handler"
	"github.com/ganamos/l402/pkg/config"
	"github.com/ganamos/l402/pkg/database"
	"github.com/ganamos/l402/pkg/l402"
	"github.com/ganamos/l402/pkg/ledger"
	"github.com/ganamos/l402/pkg/lightning"
	"github.com/ganamos/l402/pkg/middleware"
	"github.com/ganamos/l402/pkg/service"
)

type App struct {
	Router *mux.Router
	DB     *sql.DB
	Config *config.AppConfig
	Logger *zap.Logger
}

func main() {
	configPath := flag.String("config", "./config/config.yaml", "path to the configuration file")
	flag.Parse()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	setupSignalHandler(cancel)

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Cannot initialize Zap logger: %v.", err)
	}

	defer func() {
		if err := logger.Sync(); err != nil {
			log.Printf("Error syncing logger: %v", err)
		}
	}()

	appConfig, err := config.GetAppConfig(*configPath)
	if err != nil {
		logger.Fatal("Error getting application configuration.", zap.Error(err))
	}

	db, err := database.InitializeDB(appConfig.DatabasePath, appConfig.MigrationsPath, logger)
	if err != nil {
		logger.Fatal("Database initialization failed.", zap.Error(err))
	}

	defer db.Close()

	rootKey := []byte(appConfig.RootKey)

	lightningClient := lightning.NewClient(string(appConfig.Lnd.RestURL), string(appConfig.Lnd.Macaroon), logger)

	issuer := l402.NewIssuer(rootKey, appConfig.Realm, appConfig.Action, appConfig.Token.LifeTime, lightningClient, logger)
	verifier := l402.NewVerifier(rootKey, lightningClient, ledger.NewLedger(db, logger), logger)

	jobService := service.NewService(db, logger)
	handlers := handler.NewHandlers(jobService, lightningClient, appConfig, logger)

	app := &App{
		Router: mux.NewRouter(),
		DB:     db,
		Config: appConfig,
		Logger: logger,
	}

	l402Middleware := middleware.GetL402Middleware(issuer, verifier, appConfig.Pricing, logger)

	app.Router.Handle("/api/jobs", l402Middleware(http.HandlerFunc(handlers.CreateJobHandler))).Methods("POST")
	app.Router.HandleFunc("/api/jobs", handlers.ListJobsHandler).Methods("GET")
	app.Router.HandleFunc("/api/invoice/{paymentHash}", handlers.InvoiceStatusHandler).Methods("GET")
	app.Router.HandleFunc("/api/node", handlers.NodeInfoHandler).Methods("GET")

	srv := &http.Server{
		Handler:      app.Router,
		Addr:         appConfig.ListenAddress,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		logger.Info("Starting HTTP server...", zap.String("address", appConfig.ListenAddress))

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP server exited with error", zap.Error(err))
		}
	}()

	<-ctx.Done()

	logger.Info("Shutting down ganamos L402 service...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during server shutdown.", zap.Error(err))
	}
}

func setupSignalHandler(cancel context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigs
		cancel()
	}()
}
