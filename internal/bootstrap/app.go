package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"simulator-backend/internal/analysis"
	"simulator-backend/internal/assessments"
	"simulator-backend/internal/llm"
	openai "simulator-backend/internal/llm/openai"
	"simulator-backend/internal/queue"
	"simulator-backend/internal/recordings"
	"simulator-backend/internal/services/health"
	"simulator-backend/internal/shared/config"
	"simulator-backend/internal/shared/server"
	"simulator-backend/internal/shared/storage/db"
	"simulator-backend/internal/shared/storage/object"
	localstore "simulator-backend/internal/shared/storage/object/local"
	miniostore "simulator-backend/internal/shared/storage/object/minio"
	s3store "simulator-backend/internal/shared/storage/object/s3"
	"simulator-backend/internal/shared/telemetry"
	"simulator-backend/internal/shared/tracing"
	"simulator-backend/internal/workerproc"
)

const (
	serviceName        = "simulator-backend"
	devFileTokenSecret = "dev-file-token-secret"
)

// App holds shared dependencies.
type App struct {
	Config config.Config
	Router *gin.Engine
	DB     *sql.DB

	Signer object.Signer
	Files  *localstore.Store

	Queue       queue.Client
	MemoryQueue *queue.MemoryQueue
	RedisQueue  *queue.RedisClient
	Redis       *redis.Client

	RecordingsRepo  recordings.Repo
	AssessmentsRepo assessments.Repo
	Recordings      *recordings.Service
	Analysis        *analysis.Service
	Sweeper         *analysis.Sweeper

	tracer *sdktrace.TracerProvider
}

// Build prepares the API process: storage, analysis, the configured queue
// and the router.
func Build(cfg config.Config) (*App, error) {
	ctx := context.Background()
	app, err := buildCore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := buildQueue(ctx, app); err != nil {
		app.Close(ctx)
		return nil, err
	}

	app.Recordings = &recordings.Service{
		Repo:          app.RecordingsRepo,
		Assessments:   app.AssessmentsRepo,
		AllowTestMode: cfg.IsDevLike(),
	}
	if app.Queue != nil {
		app.Recordings.Trigger = analysis.NewTrigger(app.Queue)
		app.Sweeper = &analysis.Sweeper{
			Repo:     app.RecordingsRepo,
			Queue:    app.Queue,
			Interval: cfg.SweepInterval,
		}
	}

	deps := server.RouterDeps{
		Config:          cfg,
		Health:          buildHealth(app),
		SessionHandler:  recordings.NewHandler(app.Recordings),
		AnalysisHandler: analysis.NewHandler(app.Analysis, app.Recordings),
		Files:           app.Files,
	}
	app.Router = server.NewRouter(deps)
	return app, nil
}

// BuildWorker prepares a queue consumer: storage and the analysis service,
// without a router or an in-process queue.
func BuildWorker(cfg config.Config) (*App, error) {
	return buildCore(context.Background(), cfg)
}

func buildCore(ctx context.Context, cfg config.Config) (*App, error) {
	if strings.TrimSpace(cfg.Env) == "" {
		cfg.Env = "dev"
	}
	if strings.TrimSpace(cfg.ObjectStoreType) == "" {
		cfg.ObjectStoreType = "local"
	}
	app := &App{Config: cfg}

	if cfg.TracingEnabled {
		tp, err := tracing.Init(serviceName, cfg.TracingEndpoint)
		if err != nil {
			telemetry.Warn("bootstrap.tracing_disabled", map[string]any{"error": err.Error()})
		} else {
			app.tracer = tp
		}
	}

	sqlDB, err := buildDB(ctx, cfg)
	if err != nil {
		return nil, err
	}
	app.DB = sqlDB
	if sqlDB != nil {
		app.RecordingsRepo = &recordings.PGRepo{DB: sqlDB}
		app.AssessmentsRepo = &assessments.PGRepo{DB: sqlDB}
	} else {
		app.RecordingsRepo = recordings.NewMemoryRepo()
		memAssessments := assessments.NewMemoryRepo()
		memAssessments.ClaimUnknown = true
		app.AssessmentsRepo = memAssessments
	}

	signer, files, err := buildSigner(ctx, cfg)
	if err != nil {
		app.Close(ctx)
		return nil, err
	}
	app.Signer = signer
	app.Files = files

	analyzer, err := buildAnalyzer(cfg)
	if err != nil {
		app.Close(ctx)
		return nil, err
	}
	app.Analysis = &analysis.Service{
		Repo:             app.RecordingsRepo,
		Signer:           signer,
		Bucket:           bucketFor(cfg),
		Analyzer:         analyzer,
		PromptVersion:    llm.DefaultPromptVersion,
		URLTTL:           cfg.SignedURLTTL,
		AnalyzerTimeout:  cfg.AnalyzerTimeout,
		BatchConcurrency: cfg.BatchConcurrency,
	}
	return app, nil
}

func buildDB(ctx context.Context, cfg config.Config) (*sql.DB, error) {
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		if cfg.IsDevLike() {
			telemetry.Warn("bootstrap.memory_repositories", map[string]any{"reason": "DATABASE_URL empty"})
			return nil, nil
		}
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	var (
		sqlDB *sql.DB
		err   error
	)
	if db.IsLambdaRuntime() {
		opts := db.OptionsFromEnv(db.DefaultLambdaOptions())
		sqlDB, err = db.GetSingleton(ctx, cfg.DatabaseURL, opts)
	} else {
		opts := db.OptionsFromEnv(db.DefaultServerOptions())
		sqlDB, err = db.Connect(ctx, cfg.DatabaseURL, opts)
	}
	if err != nil {
		if cfg.IsDevLike() {
			telemetry.Warn("bootstrap.memory_repositories", map[string]any{
				"reason": "database connect failed",
				"error":  err.Error(),
			})
			return nil, nil
		}
		return nil, err
	}
	return sqlDB, nil
}

func buildSigner(ctx context.Context, cfg config.Config) (object.Signer, *localstore.Store, error) {
	switch cfg.ObjectStoreType {
	case "s3":
		signer, err := s3store.New(ctx, cfg.AWSRegion, cfg.S3Bucket, "")
		return signer, nil, err
	case "minio":
		signer, err := miniostore.New(miniostore.Options{
			Endpoint:  cfg.MinioEndpoint,
			AccessKey: cfg.MinioAccessKey,
			SecretKey: cfg.MinioSecretKey,
			Bucket:    cfg.MinioBucket,
			Region:    cfg.AWSRegion,
			UseSSL:    cfg.MinioUseSSL,
		})
		return signer, nil, err
	default:
		secret := strings.TrimSpace(cfg.JWTSecret)
		if secret == "" {
			if !cfg.IsDevLike() {
				return nil, nil, errors.New("JWT_SECRET is required to sign local file URLs")
			}
			secret = devFileTokenSecret
		}
		store := localstore.New(cfg.LocalStoreDir, cfg.PublicBaseURL, []byte(secret))
		return store, store, nil
	}
}

func bucketFor(cfg config.Config) string {
	switch cfg.ObjectStoreType {
	case "s3":
		return cfg.S3Bucket
	case "minio":
		return cfg.MinioBucket
	default:
		return ""
	}
}

func buildAnalyzer(cfg config.Config) (llm.ScreenshotAnalyzer, error) {
	if cfg.LLMProvider != "openai" {
		return llm.PlaceholderAnalyzer{}, nil
	}
	if strings.TrimSpace(cfg.OpenAIAPIKey) == "" {
		if cfg.IsDevLike() {
			telemetry.Warn("bootstrap.analyzer_placeholder", map[string]any{"reason": "OPENAI_API_KEY empty"})
			return llm.PlaceholderAnalyzer{}, nil
		}
		return nil, errors.New("OPENAI_API_KEY is required for LLM_PROVIDER=openai")
	}
	client, err := openai.NewClient(cfg.OpenAIAPIKey, cfg.LLMModel, cfg.AnalyzerTimeout)
	if err != nil {
		return nil, err
	}
	return llm.WithRetry(client), nil
}

// buildQueue selects the analysis queue. The memory queue runs jobs in this
// process; sqs and redis hand them to cmd/worker or cmd/lambda-worker.
func buildQueue(ctx context.Context, app *App) error {
	cfg := app.Config
	switch cfg.AnalysisQueue {
	case "none":
		return nil
	case "sqs":
		client, err := queue.NewSQSClient(ctx, cfg.AWSRegion, cfg.SQSQueueURL)
		if err != nil {
			return err
		}
		app.Queue = client
	case "redis":
		client, rdb, err := queue.NewRedisClient(ctx, cfg.RedisURL, cfg.RedisQueueKey)
		if err != nil {
			return err
		}
		app.Queue = client
		app.RedisQueue = client
		app.Redis = rdb
	default:
		processor := app.Analysis
		mq := queue.NewMemoryQueue(cfg.AnalysisQueueSize, cfg.AnalysisWorkers, processor.JobTimeout(), func(ctx context.Context, msg queue.Message) error {
			return workerproc.Dispatch(ctx, processor, msg)
		})
		mq.Start()
		app.Queue = mq
		app.MemoryQueue = mq
	}
	return nil
}

func buildHealth(app *App) *health.Service {
	svc := &health.Service{QueueKind: app.Config.AnalysisQueue}
	if app.DB != nil {
		svc.DB = app.DB
	}
	if app.MemoryQueue != nil {
		svc.Queue = app.MemoryQueue
	}
	return svc
}

// Close drains the in-process queue and releases connections. It is safe to
// call on a partially built App.
func (a *App) Close(ctx context.Context) {
	if a.MemoryQueue != nil {
		if err := a.MemoryQueue.Close(ctx); err != nil {
			telemetry.Warn("bootstrap.queue_drain_incomplete", map[string]any{"error": err.Error()})
		}
	}
	if a.Redis != nil {
		_ = a.Redis.Close()
	}
	if a.DB != nil {
		_ = a.DB.Close()
	}
	if a.tracer != nil {
		_ = a.tracer.Shutdown(ctx)
	}
}
