package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"codrive/audit"
	"codrive/config"
	"codrive/database"
	"codrive/models"
	"codrive/permissions"
	"codrive/remote"
	"codrive/routes"
	"codrive/services"
	"codrive/store"
	"codrive/tree"
)

func main() {
	app, err := NewApplication()
	if err != nil {
		logrus.Fatalf("Failed to initialize application: %v", err)
	}
	if err := app.Start(); err != nil {
		logrus.Fatalf("Failed to start application: %v", err)
	}
}

// Application holds the wired components and the HTTP server.
type Application struct {
	config *config.Config
	server *http.Server
	router *gin.Engine
	sync   *services.SyncService

	cancelSync context.CancelFunc
}

// NewApplication loads configuration and wires the service graph.
func NewApplication() (*Application, error) {
	cfg := config.LoadConfig()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %v", err)
	}

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	if err := database.Connect(cfg.MongoURI, cfg.DBName); err != nil {
		return nil, err
	}

	gateway, err := buildGateway(cfg)
	if err != nil {
		return nil, err
	}

	st := store.NewMongoStore()
	engine := permissions.NewEngine(st)
	sink := audit.NewSink(st)
	walker := tree.NewWalker(st, sink)
	drive := services.NewDriveService(st, gateway, engine, walker, sink)
	sync := services.NewSyncService(st, gateway, engine, walker, sink)

	router := gin.New()
	router.Use(gin.Recovery())
	routes.SetupRoutes(router, cfg, drive, sync, sink)

	return &Application{
		config: cfg,
		router: router,
		sync:   sync,
		server: &http.Server{
			Addr:         cfg.GetServerAddress(),
			Handler:      router,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
	}, nil
}

func buildGateway(cfg *config.Config) (remote.Storage, error) {
	switch cfg.StorageBackend {
	case "s3":
		return remote.NewS3Client(remote.S3Config{
			Region:          cfg.S3Region,
			Bucket:          cfg.S3Bucket,
			AccessKeyID:     cfg.S3AccessKey,
			SecretAccessKey: cfg.S3SecretKey,
			Endpoint:        cfg.S3Endpoint,
		})
	default:
		return remote.NewGraphClient(remote.GraphConfig{
			TenantID:     cfg.GraphTenantID,
			ClientID:     cfg.GraphClientID,
			ClientSecret: cfg.GraphClientSecret,
			DriveUser:    cfg.GraphDriveUser,
		}), nil
	}
}

// Start runs the background sync loop and serves HTTP until a signal
// arrives, then shuts down cleanly.
func (app *Application) Start() error {
	app.startSyncLoop()

	errCh := make(chan error, 1)
	go func() {
		logrus.Infof("Listening on %s", app.server.Addr)
		if err := app.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-quit:
		logrus.Infof("Received %s, shutting down", sig)
	}

	if app.cancelSync != nil {
		app.cancelSync()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := app.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %v", err)
	}
	return database.Disconnect()
}

func (app *Application) startSyncLoop() {
	if !app.config.SyncEnabled {
		return
	}
	if app.config.SyncUserID == "" {
		logrus.Warn("SYNC_USER_ID not set; background sync disabled")
		return
	}
	syncUser, err := primitive.ObjectIDFromHex(app.config.SyncUserID)
	if err != nil {
		logrus.WithError(err).Warn("Invalid SYNC_USER_ID; background sync disabled")
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	app.cancelSync = cancel
	go app.sync.Run(ctx, app.config.SyncInterval, models.Principal{ID: syncUser})
	logrus.Infof("Background sync every %s", app.config.SyncInterval)
}
