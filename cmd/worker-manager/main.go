package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"social-support-workers/internal/api"
	"social-support-workers/internal/assessment/eligibility"
	"social-support-workers/internal/assessment/extract"
	"social-support-workers/internal/assessment/extract/tesseract"
	"social-support-workers/internal/assessment/pipeline"
	"social-support-workers/internal/assessment/recommendation"
	"social-support-workers/internal/common/camunda"
	"social-support-workers/internal/common/config"
	"social-support-workers/internal/common/database"
	"social-support-workers/internal/common/llm"
	"social-support-workers/internal/common/logger"
	"social-support-workers/internal/common/observability"
	"social-support-workers/internal/repository"
	"social-support-workers/internal/service"
)

// retryWithBackoff attempts to execute a function with exponential backoff
func retryWithBackoff(operation func() error, maxRetries int, initialDelay time.Duration, log *zap.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < maxRetries-1 {
			log.Warn(fmt.Sprintf("%s failed, retrying...", operationName),
				zap.Error(err),
				zap.Int("attempt", i+1),
				zap.Int("maxRetries", maxRetries),
				zap.Duration("nextRetryIn", delay),
			)
			time.Sleep(delay)
			delay *= 2
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

func main() {
	bootLog := logger.New("info", "console")

	cfg, err := config.Load()
	if err != nil {
		bootLog.Fatal("config load failed", zap.Error(err))
	}

	zapLog := logger.New(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output)
	defer zapLog.Sync()
	log := logger.NewZapAdapter(zapLog)

	zapLog.Info("Starting worker manager...",
		zap.String("app", cfg.App.Name),
		zap.String("environment", cfg.App.Environment),
	)

	obs := observability.New(cfg.App.Name)
	defer obs.Shutdown()

	ctx := context.Background()
	readiness := map[string]api.Pinger{}

	// --- PostgreSQL ---
	var pg *database.PostgresClient
	err = retryWithBackoff(func() error {
		var err error
		pg, err = database.NewPostgres(cfg.Database.Postgres)
		if err != nil {
			return err
		}
		return pg.Ping(ctx)
	}, 15, 2*time.Second, zapLog, "PostgreSQL connection")
	if err != nil {
		zapLog.Fatal("postgres failed after retries", zap.Error(err))
	}
	defer pg.Close()
	if err := database.EnsureSchema(ctx, pg.DB); err != nil {
		zapLog.Fatal("schema setup failed", zap.Error(err))
	}
	readiness["postgres"] = pg
	zapLog.Info("PostgreSQL connected successfully")

	// --- Redis (decision cache and chat sessions) ---
	var decisionCache service.ResultCache
	var sessions service.SessionMemory
	if cfg.Cache.Enabled {
		var rdb *database.RedisClient
		err = retryWithBackoff(func() error {
			var err error
			rdb, err = database.NewRedis(cfg.Database.Redis)
			if err != nil {
				return err
			}
			return rdb.Ping(ctx)
		}, 10, 2*time.Second, zapLog, "Redis connection")
		if err != nil {
			zapLog.Fatal("redis failed after retries", zap.Error(err))
		}
		defer rdb.Close()
		decisionCache = repository.NewDecisionCache(rdb.Client, config.GetDuration(cfg.Cache.DecisionTTL), log)
		sessions = repository.NewSessionStore(rdb.Client, config.GetDuration(cfg.Cache.SessionTTL), cfg.Cache.SessionMaxTurns)
		readiness["redis"] = rdb
		zapLog.Info("Redis connected successfully")
	}

	// --- Elasticsearch (decision index) ---
	var index service.DecisionIndex
	if cfg.Search.Enabled {
		var esClient *database.ElasticsearchClient
		err = retryWithBackoff(func() error {
			var err error
			esClient, err = database.NewElasticsearch(cfg.Database.Elasticsearch)
			if err != nil {
				return err
			}
			return esClient.Ping(ctx)
		}, 15, 2*time.Second, zapLog, "Elasticsearch connection")
		if err != nil {
			zapLog.Fatal("elasticsearch failed after retries", zap.Error(err))
		}
		index = repository.NewDecisionIndexer(esClient.Client, cfg.Search.Index, log)
		readiness["elasticsearch"] = esClient
		zapLog.Info("Elasticsearch connected successfully")
	}

	// --- Decision pipeline ---
	var recognizer extract.Recognizer
	var imageOCR pipeline.ImageRecognizer
	if cfg.Extraction.OCR.Enabled {
		recognizer = tesseract.New(cfg.Extraction.OCR.Languages, cfg.Extraction.OCR.TessdataPrefix)
		imageOCR = extract.NewImageOCR(recognizer, log)
	}
	fetcher := extract.NewFetcher(extract.FetcherOptions{
		Timeout:   config.GetDuration(cfg.Extraction.FetchTimeout),
		MaxBytes:  cfg.Extraction.MaxDocumentBytes,
		RateLimit: cfg.Extraction.FetchRateLimit,
		RateBurst: cfg.Extraction.FetchBurst,
	})
	extractor := extract.NewService(fetcher, extract.NewExtractor(recognizer, log), cfg.Extraction.MaxParallel, log)

	var classifier eligibility.Classifier
	if path := cfg.Policy.Eligibility.ModelPath; path != "" {
		classifier, err = eligibility.LoadClassifier(path)
		if err != nil {
			zapLog.Warn("eligibility model unavailable, using threshold rule", zap.String("path", path), zap.Error(err))
			classifier = nil
		}
	}
	eligibilityPolicy := eligibility.NewPolicy(eligibility.ConfigFromRaw(eligibility.RawConfig{
		IncomeThreshold:     cfg.Policy.Eligibility.IncomeThreshold,
		FamilySizeThreshold: cfg.Policy.Eligibility.FamilySizeThreshold,
	}, log), classifier, log)
	recommendationPolicy := recommendation.NewPolicy(recommendation.ConfigFromRaw(recommendation.RawConfig{
		DocThreshold:            cfg.Policy.Recommendation.DocThreshold,
		LowIncomeThreshold:      cfg.Policy.Recommendation.LowIncomeThreshold,
		HighFamilySizeThreshold: cfg.Policy.Recommendation.HighFamilySizeThreshold,
	}, log), log)

	orchestrator := pipeline.NewOrchestrator(pipeline.Options{
		Extractor:      extractor,
		ImageOCR:       imageOCR,
		Eligibility:    eligibilityPolicy,
		Recommendation: recommendationPolicy,
		Observability:  obs,
		Logger:         log,
	})

	// --- Services ---
	applicants := repository.NewApplicantRepository(pg.DB, log)
	applications := service.NewApplicationService(service.ApplicationServiceOptions{
		Applicants:   applicants,
		Applications: repository.NewApplicationRepository(pg.DB, log),
		Index:        index,
		Cache:        decisionCache,
		Pipeline:     orchestrator,
		Logger:       log,
	})

	var chatModel service.ChatModel
	llmClient, err := llm.NewClient(llm.Config{
		BaseURL:        cfg.LLM.BaseURL,
		Model:          cfg.LLM.Model,
		ConnectTimeout: config.ParseSeconds(cfg.LLM.ConnectTimeout, llm.DefaultConnectTimeout),
		ReadTimeout:    config.ParseSeconds(cfg.LLM.ReadTimeout, llm.DefaultReadTimeout),
		RateLimit:      cfg.LLM.RateLimit,
		RateBurst:      cfg.LLM.RateBurst,
	})
	if err != nil {
		zapLog.Warn("chat model not configured, /chatbot will fail", zap.Error(err))
	} else {
		chatModel = llmClient
	}
	chat := service.NewChatService(service.ChatServiceOptions{
		Applicants:   applicants,
		History:      repository.NewChatHistoryRepository(pg.DB, log),
		Sessions:     sessions,
		Model:        chatModel,
		SystemPrompt: cfg.LLM.SystemPrompt,
		Logger:       log,
	})

	// --- Camunda workers ---
	var zeebe *camunda.Client
	stopWorkers := func() {}
	if cfg.Camunda.Enabled {
		zeebe, err = camunda.Dial(ctx, cfg.Camunda, camunda.DefaultRetryConfig, zapLog)
		if err != nil {
			zapLog.Fatal("zeebe client failed after retries", zap.Error(err))
		}
		readiness["camunda"] = pingFunc(zeebe.HealthCheck)
		zapLog.Info("Zeebe client connected successfully")

		stopWorkers = startWorkers(ctx, cfg, zeebe, workerDeps{
			db:           pg.DB,
			index:        index,
			applications: applications,
			chat:         chat,
			log:          log,
		}, zapLog)
	} else {
		zapLog.Info("camunda disabled, serving HTTP API only")
	}

	// --- HTTP API ---
	srv := &http.Server{
		Addr: cfg.Server.Address,
		Handler: api.NewRouter(api.Deps{
			Applications: applications,
			Chat:         chat,
			Readiness:    readiness,
			Logger:       log,
		}),
		ReadTimeout:  config.GetDuration(cfg.Server.ReadTimeout),
		WriteTimeout: config.GetDuration(cfg.Server.WriteTimeout),
	}
	go func() {
		zapLog.Info("HTTP server listening", zap.String("address", cfg.Server.Address))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zapLog.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	// --- Graceful Shutdown ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	zapLog.Info("Shutdown signal received, stopping...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), config.GetDuration(cfg.Server.ShutdownTimeout))
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		zapLog.Error("HTTP server shutdown failed", zap.Error(err))
	}
	stopWorkers()
	if zeebe != nil {
		if err := zeebe.Close(); err != nil {
			zapLog.Error("Error closing Zeebe client", zap.Error(err))
		}
	}

	zapLog.Info("Worker manager stopped gracefully")
}
