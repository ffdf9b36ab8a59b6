// Copyright 2024 Parts Assistant Project
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/your-org/parts-assistant/internal/assistant"
	"github.com/your-org/parts-assistant/internal/config"
	"github.com/your-org/parts-assistant/internal/extract"
	"github.com/your-org/parts-assistant/internal/health"
	"github.com/your-org/parts-assistant/internal/intent"
	"github.com/your-org/parts-assistant/internal/metrics"
	"github.com/your-org/parts-assistant/internal/openai"
	"github.com/your-org/parts-assistant/internal/scraper"
	"github.com/your-org/parts-assistant/internal/search"
	"github.com/your-org/parts-assistant/internal/server"
	"github.com/your-org/parts-assistant/internal/session"
	"github.com/your-org/parts-assistant/internal/transcript"
)

// app holds the initialized service dependencies
type app struct {
	metrics    *metrics.Metrics
	llm        *openai.Client
	search     *search.Client
	scraper    *scraper.Scraper
	sessions   *session.Manager
	transcript *transcript.Store
	health     *health.Manager
	assistant  *assistant.Assistant
	logger     *zap.Logger
}

func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}

// initializeLogger creates a logger based on configuration settings. The
// returned level can be changed at runtime.
func initializeLogger(cfg *config.Config) (*zap.Logger, zap.AtomicLevel, error) {
	var zapConfig zap.Config

	if cfg.Logging.Format == "json" {
		zapConfig = zap.NewProductionConfig()
	} else {
		zapConfig = zap.NewDevelopmentConfig()
	}

	zapConfig.Level = zap.NewAtomicLevelAt(parseLevel(cfg.Logging.Level))

	if cfg.Logging.Output == "file" {
		zapConfig.OutputPaths = []string{serviceName + ".log"}
		zapConfig.ErrorOutputPaths = []string{serviceName + ".log"}
	} else {
		zapConfig.OutputPaths = []string{"stdout"}
		zapConfig.ErrorOutputPaths = []string{"stderr"}
	}

	logger, err := zapConfig.Build()
	if err != nil {
		return nil, zap.AtomicLevel{}, err
	}
	return logger, zapConfig.Level, nil
}

func parseLevel(level string) zapcore.Level {
	switch level {
	case "debug":
		return zapcore.DebugLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

func setGinMode(cfg *config.Config) {
	if cfg.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
}

// logConfig logs configuration with masked sensitive values
func logConfig(logger *zap.Logger, cfg *config.Config) {
	masked := cfg.MaskSensitiveValues()
	logger.Info("Configuration loaded successfully",
		zap.String("service", serviceName),
		zap.String("version", version),
		zap.String("environment", os.Getenv("ENVIRONMENT")),
		zap.String("openai_endpoint", masked.OpenAI.Endpoint),
		zap.String("openai_api_key", masked.OpenAI.APIKey),
		zap.String("llm_model", masked.LLM.Model),
		zap.String("search_api_key", masked.Search.APIKey),
		zap.String("search_site", masked.Search.Site),
		zap.String("scraper_renderer", masked.Scraper.Renderer),
		zap.Bool("transcript_enabled", masked.Transcript.Enabled),
		zap.Int("port", masked.Server.Port),
	)
}

// buildApp initializes every dependency behind the assistant
func buildApp(cfg *config.Config, logger *zap.Logger) (*app, error) {
	logger.Info("Initializing service dependencies")

	a := &app{
		metrics: metrics.New(),
		health:  health.NewManager(serviceName, version, logger),
		logger:  logger,
	}

	llm, err := openai.NewClient(cfg.OpenAI.APIKey, openai.Options{
		BaseURL:     cfg.OpenAI.Endpoint,
		Model:       cfg.LLM.Model,
		Temperature: float32(cfg.LLM.Temperature),
		MaxTokens:   cfg.LLM.MaxTokens,
		Timeout:     cfg.LLM.Timeout,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize OpenAI client: %w", err)
	}
	a.llm = llm

	a.search, err = search.NewClient(cfg.Search, logger, search.WithMetrics(a.metrics))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize search client: %w", err)
	}
	if !a.search.Configured() {
		logger.Warn("Search credentials missing; lookups will fail until GOOGLE_API_KEY and GOOGLE_CSE_ID are set")
	}

	fetcher := scraper.NewFetcher(cfg.Scraper, a.metrics, logger)
	if hf, ok := fetcher.(*scraper.HTTPFetcher); ok {
		a.health.AddChecker("scraper_breaker", health.BreakerChecker(hf.Breaker()))
	}
	a.scraper = scraper.New(fetcher, cfg.Scraper.SymptomPartLimit, a.metrics, logger)

	a.sessions = session.NewManager(session.Config{
		DefaultTTL:      cfg.Session.TTL,
		MaxSessions:     cfg.Session.MaxSessions,
		CleanupInterval: cfg.Session.CleanupInterval,
	}, logger)

	deps := assistant.Dependencies{
		Detector:  intent.NewDetector(llm, logger),
		Extractor: extract.New(llm, logger),
		Finder:    search.NewFinder(a.search, cfg.Scraper.BaseURL, logger),
		Scraper:   a.scraper,
		LLM:       llm,
		Sessions:  a.sessions,
		Metrics:   a.metrics,
	}

	if cfg.Transcript.Enabled {
		a.transcript, err = transcript.NewStore(cfg.Transcript.DBPath, logger)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to initialize transcript store: %w", err)
		}
		deps.Transcript = a.transcript
		a.health.AddChecker("transcript", health.DatabaseHealthChecker("transcript", a.transcript.Ping))
	}

	a.health.AddChecker("llm", health.ServiceChecker("llm", llm.Ping))
	a.health.AddChecker("search", health.ConfiguredChecker("search", a.search.Configured()))
	a.health.AddChecker("search_breaker", health.BreakerChecker(a.search.Breaker()))

	a.assistant, err = assistant.New(deps, assistant.Options{HistoryMessages: cfg.Session.HistoryMessages}, logger)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to initialize assistant: %w", err)
	}

	logger.Info("Service dependencies initialized successfully")
	return a, nil
}

func (a *app) newServer(cfg *config.Config) (*server.Server, error) {
	deps := server.Dependencies{
		Chat:     a.assistant,
		Sessions: a.sessions,
		Health:   a.health,
		Metrics:  a.metrics,
	}
	if a.transcript != nil {
		deps.Feedback = a.transcript
	}
	return server.New(cfg.Server, deps, a.logger)
}

// Close releases the scraper's browser, the session janitor and the
// transcript database.
func (a *app) Close() {
	if a.scraper != nil {
		if err := a.scraper.Close(); err != nil {
			a.logger.Warn("Failed to close scraper", zap.Error(err))
		}
	}
	if a.sessions != nil {
		if err := a.sessions.Close(); err != nil {
			a.logger.Warn("Failed to close session manager", zap.Error(err))
		}
	}
	if a.transcript != nil {
		if err := a.transcript.Close(); err != nil {
			a.logger.Warn("Failed to close transcript store", zap.Error(err))
		}
	}
}

func ask(ctx context.Context, a *app, question string, out io.Writer) error {
	result, err := a.assistant.HandleQuery(ctx, assistant.Request{Message: question})
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, result.Response)
	return err
}

// watchLogLevel applies the log level of every valid config reload
func watchLogLevel(configPath string, level zap.AtomicLevel, logger *zap.Logger) {
	err := config.WatchConfig(configPath, func(cfg *config.Config) {
		next := parseLevel(cfg.Logging.Level)
		if level.Level() != next {
			logger.Info("Log level changed",
				zap.String("from", level.Level().String()),
				zap.String("to", next.String()))
			level.SetLevel(next)
		}
	}, func(err error) {
		logger.Warn("Ignoring invalid configuration reload", zap.Error(err))
	})
	if err != nil {
		logger.Warn("Config watching disabled", zap.Error(err))
	}
}
