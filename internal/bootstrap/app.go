package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"strings"

	"github.com/gin-gonic/gin"

	"docintel-backend/internal/docintel"
	"docintel-backend/internal/docintel/azure"
	"docintel-backend/internal/operations"
	"docintel-backend/internal/services/health"
	"docintel-backend/internal/shared/config"
	"docintel-backend/internal/shared/server"
	"docintel-backend/internal/shared/storage/db"
	"docintel-backend/internal/shared/storage/object"
	localstore "docintel-backend/internal/shared/storage/object/local"
	s3store "docintel-backend/internal/shared/storage/object/s3"
)

const (
	serviceName    = "docintel-backend"
	serviceVersion = "1.0.0"
)

// App holds shared dependencies.
type App struct {
	Config            config.Config
	Router            *gin.Engine
	DB                *sql.DB
	Store             object.ObjectStore
	Remote            docintel.Client
	OperationsRepo    operations.Repo
	OperationsService *operations.Service
	OperationsHandler *operations.Handler
	Health            *health.Service
}

// Build prepares shared dependencies and wires the router.
func Build(cfg config.Config) (*App, error) {
	if strings.TrimSpace(cfg.Env) == "" {
		cfg.Env = "dev"
	}
	ctx := context.Background()

	sqlDB, err := buildDB(ctx, cfg)
	if err != nil {
		return nil, err
	}

	store, err := buildStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	remote, err := azure.NewClient(azure.Config{
		Endpoint:     cfg.AzureEndpoint,
		Key:          cfg.AzureKey,
		APIVersion:   cfg.AzureAPIVersion,
		TenantID:     cfg.AzureTenantID,
		ClientID:     cfg.AzureClientID,
		ClientSecret: cfg.AzureClientSecret,
	})
	if err != nil {
		return nil, fmt.Errorf("build remote client: %w", err)
	}

	var repo operations.Repo
	if sqlDB != nil {
		repo = &operations.PGRepo{DB: sqlDB}
	} else {
		repo = operations.NewMemoryRepo()
	}

	svc := operations.NewService(repo, remote, store, operations.PollConfig{
		InitialDelay: cfg.PollInitialDelay,
		Interval:     cfg.PollInterval,
		UseBackoff:   cfg.PollBackoff,
		MaxInterval:  cfg.PollMaxInterval,
		MaxAttempts:  cfg.PollMaxAttempts,
		Deadline:     cfg.PollDeadline,
	})
	svc.Retention = cfg.OperationRetention

	app := &App{
		Config:            cfg,
		DB:                sqlDB,
		Store:             store,
		Remote:            remote,
		OperationsRepo:    repo,
		OperationsService: svc,
		OperationsHandler: operations.NewHandler(svc),
		Health:            health.NewService(serviceName, serviceVersion),
	}

	app.Router = server.NewRouter(server.RouterDeps{
		Config:            app.Config,
		OperationsHandler: app.OperationsHandler,
		Health:            app.Health,
	})

	return app, nil
}

func buildDB(ctx context.Context, cfg config.Config) (*sql.DB, error) {
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		if isDevLike(cfg.Env) {
			log.Printf("bootstrap: DATABASE_URL empty; using in-memory registry")
			return nil, nil
		}
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	opts := db.OptionsFromEnv(db.DefaultServerOptions())
	sqlDB, err := db.Connect(ctx, cfg.DatabaseURL, opts)
	if err != nil {
		if isDevLike(cfg.Env) {
			log.Printf("bootstrap: database connect failed; using in-memory registry: %v", err)
			return nil, nil
		}
		return nil, err
	}

	if err := db.RunMigrations(ctx, sqlDB); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return sqlDB, nil
}

func buildStore(ctx context.Context, cfg config.Config) (object.ObjectStore, error) {
	switch cfg.ObjectStoreType {
	case "s3":
		if strings.TrimSpace(cfg.AWSRegion) == "" || strings.TrimSpace(cfg.S3Bucket) == "" {
			return nil, fmt.Errorf("OBJECT_STORE=s3 requires AWS_REGION and S3_BUCKET")
		}
		return s3store.New(ctx, cfg.AWSRegion, cfg.S3Bucket, cfg.S3Prefix, cfg.SSEKMSKeyID)
	default:
		return localstore.New(cfg.LocalStoreDir), nil
	}
}

func isDevLike(env string) bool {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "dev", "local":
		return true
	default:
		return false
	}
}
