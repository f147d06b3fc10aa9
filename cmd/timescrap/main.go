package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"timescrap/checkpoint"
	"timescrap/config"
	"timescrap/models"
	"timescrap/pipeline"
	"timescrap/scraper"
)

func main() {
	defaultCfg := config.DefaultConfig()

	outputDefault := defaultCfg.OutputFile
	if value, ok := config.EnvString("TIMESCRAP_OUTPUT"); ok {
		outputDefault = value
	}
	metricsDefault := defaultCfg.MetricsAddr
	if value, ok := config.EnvString("TIMESCRAP_METRICS_ADDR"); ok {
		metricsDefault = value
	}
	parallelDefault := defaultCfg.Parallelism
	if value, ok, err := config.EnvInt("TIMESCRAP_PARALLEL"); err != nil {
		fmt.Fprintf(os.Stderr, "invalid TIMESCRAP_PARALLEL: %v\n", err)
		os.Exit(1)
	} else if ok {
		parallelDefault = value
	}
	redisDefault := defaultCfg.RedisAddr
	if value, ok := config.EnvString("TIMESCRAP_REDIS_ADDR"); ok {
		redisDefault = value
	}
	postgresDefault := defaultCfg.PostgresDSN
	if value, ok := config.EnvString("TIMESCRAP_POSTGRES_DSN"); ok {
		postgresDefault = value
	}

	configFile := flag.String("config", "", "Optional INI configuration file")
	calendar := flag.String("calendar", string(defaultCfg.Calendar), "Calendar system: gregorian or jalali")
	years := flag.String("years", "", "Years to scrape, comma-separated (required)")
	months := flag.String("months", "all", "Months to scrape, comma-separated, or all")
	days := flag.String("days", "all", "Days to scrape, comma-separated, or all")
	sleepMin := flag.Duration("sleep-min", defaultCfg.SleepMin, "Minimum delay between requests")
	sleepMax := flag.Duration("sleep-max", defaultCfg.SleepMax, "Maximum delay between requests")
	parallelism := flag.Int("parallel", parallelDefault, "Number of concurrent requests")
	timeout := flag.Duration("timeout", defaultCfg.Timeout, "HTTP request timeout")
	maxRetries := flag.Int("max-retries", defaultCfg.MaxRetries, "Maximum retry attempts per transport failure")
	retryBackoffMs := flag.Int("retry-backoff", int(defaultCfg.RetryBackoff/time.Millisecond), "Initial retry backoff (milliseconds)")
	retryBackoffMaxMs := flag.Int("retry-backoff-max", int(defaultCfg.RetryBackoffMax/time.Millisecond), "Maximum retry backoff (milliseconds)")
	retryWarnLimit := flag.Int("retry-warn", defaultCfg.RetryWarnLimit, "Warn after this many retries of one date")
	haltLimit := flag.Int("halt-limit", defaultCfg.HaltLimit, "Abort the run after this many retries of one date (0 retries forever)")
	outputFile := flag.String("output", outputDefault, "Output file path (empty derives one from the range)")
	outputFormat := flag.String("format", defaultCfg.OutputFormat, "Output format: json, jsonl, csv, dual, or postgres")
	resume := flag.Bool("resume", defaultCfg.Resume, "Extend a previous save file instead of starting over")
	baseURL := flag.String("base-url", defaultCfg.BaseURL, "Holiday API base URL")
	metricsAddr := flag.String("metrics-addr", metricsDefault, "Prometheus metrics listen address (e.g. :9090)")
	redisAddr := flag.String("redis-addr", redisDefault, "Redis address for a shared checkpoint (empty uses the save file)")
	redisDB := flag.Int("redis-db", defaultCfg.RedisDB, "Redis database number")
	redisTTL := flag.Duration("redis-ttl", defaultCfg.RedisTTL, "Expiry for Redis scraped markers (0 keeps them forever)")
	postgresDSN := flag.String("postgres-dsn", postgresDefault, "Postgres DSN for the postgres output format")
	verbose := flag.Bool("v", false, "Enable verbose logging")

	flag.Parse()

	logger, level := newLogger(*verbose)
	slog.SetDefault(logger)
	slog.SetLogLoggerLevel(level.Level())

	cfg, err := buildConfig(defaultCfg, *configFile, *calendar, *years, *months, *days,
		*sleepMin, *sleepMax, *parallelism, *timeout,
		*maxRetries, *retryBackoffMs, *retryBackoffMaxMs, *retryWarnLimit, *haltLimit,
		*outputFile, *outputFormat, *resume, *baseURL, *metricsAddr,
		*redisAddr, *redisDB, *redisTTL, *postgresDSN, *verbose)
	if err != nil {
		slog.Error("invalid configuration", slog.Any("error", err))
		os.Exit(1)
	}

	runID := uuid.NewString()
	slog.Info("starting run",
		slog.String("run_id", runID),
		slog.String("calendar", string(cfg.Calendar)),
		slog.String("output", cfg.OutputFile),
		slog.Bool("resume", cfg.Resume),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received, waiting for in-flight work to finish")
	}()

	store, err := createStore(ctx, cfg)
	if err != nil {
		slog.Error("initialising checkpoint store", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := store.Close(); err != nil {
			slog.Error("close checkpoint store", slog.Any("error", err))
		}
	}()

	var prior []models.DayRecord
	if cfg.Resume {
		prior, err = store.Load(ctx)
		if err != nil {
			slog.Error("loading previous results", slog.Any("error", err))
			os.Exit(1)
		}
		if len(prior) > 0 {
			slog.Info("previous results loaded", slog.Int("dates", len(prior)))
		}
	}

	writer, err := createWriter(ctx, cfg, prior, runID)
	if err != nil {
		slog.Error("creating writer", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := writer.Close(); err != nil {
			slog.Error("close writer", slog.Any("error", err))
		}
	}()

	s, err := scraper.NewScraper(cfg, store)
	if err != nil {
		slog.Error("initialising scraper", slog.Any("error", err))
		os.Exit(1)
	}

	var metricsServer *http.Server
	if cfg.MetricsAddr != "" && s.Metrics != nil {
		metricsServer = &http.Server{
			Addr:    cfg.MetricsAddr,
			Handler: promhttp.HandlerFor(s.Metrics.Registry, promhttp.HandlerOpts{}),
		}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("metrics server failed", slog.Any("error", err))
			}
		}()
		slog.Info("metrics server enabled", slog.String("addr", cfg.MetricsAddr))
	}

	p := pipeline.NewPipeline(ctx, writer, cfg)
	p.Start(cfg.Parallelism)
	if cfg.Verbose {
		p.StartMetricsReporting(10 * time.Second)
	}

	startTime := time.Now()
	result, runErr := s.Run(ctx, p)
	if result != nil {
		result.RunID = runID
	}
	if runErr != nil {
		slog.Error("scraping failed", slog.Any("error", runErr))
	}

	if err := p.Close(); err != nil {
		slog.Error("pipeline shutdown failed", slog.Any("error", err))
		os.Exit(1)
	}

	if result != nil && result.ScrapedCount > 0 {
		if err := writer.Validate(); err != nil {
			slog.Error("output validation failed", slog.Any("error", err))
			os.Exit(1)
		}
	}

	if metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("metrics server shutdown failed", slog.Any("error", err))
		}
		cancel()
	}

	if result != nil {
		printSummary(result, time.Since(startTime), cfg.OutputFile)
	}
	if runErr != nil {
		os.Exit(1)
	}
}

func buildConfig(cfg *config.Config, configFile, calendar, years, months, days string,
	sleepMin, sleepMax time.Duration, parallelism int, timeout time.Duration,
	maxRetries, retryBackoffMs, retryBackoffMaxMs, retryWarnLimit, haltLimit int,
	outputFile, outputFormat string, resume bool, baseURL, metricsAddr string,
	redisAddr string, redisDB int, redisTTL time.Duration, postgresDSN string, verbose bool,
) (*config.Config, error) {
	cfg.BaseURL = baseURL
	cfg.Calendar = models.Calendar(strings.ToLower(calendar))
	cfg.SleepMin = sleepMin
	cfg.SleepMax = sleepMax
	cfg.Parallelism = parallelism
	cfg.Timeout = timeout
	cfg.MaxRetries = maxRetries
	cfg.RetryBackoff = time.Duration(retryBackoffMs) * time.Millisecond
	cfg.RetryBackoffMax = time.Duration(retryBackoffMaxMs) * time.Millisecond
	cfg.RetryWarnLimit = retryWarnLimit
	cfg.HaltLimit = haltLimit
	cfg.OutputFile = outputFile
	cfg.OutputFormat = strings.ToLower(outputFormat)
	cfg.Resume = resume
	cfg.MetricsAddr = metricsAddr
	cfg.RedisAddr = redisAddr
	cfg.RedisDB = redisDB
	cfg.RedisTTL = redisTTL
	cfg.PostgresDSN = postgresDSN
	cfg.Verbose = verbose

	var err error
	if cfg.Years, err = config.ParseIntList(years); err != nil {
		return nil, fmt.Errorf("years: %w", err)
	}
	if cfg.Months, err = config.ParseIntList(months); err != nil {
		return nil, fmt.Errorf("months: %w", err)
	}
	if cfg.Days, err = config.ParseIntList(days); err != nil {
		return nil, fmt.Errorf("days: %w", err)
	}

	if configFile != "" {
		if err := config.LoadFile(configFile, cfg); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.OutputFile == "" {
		cfg.OutputFile = cfg.DefaultOutputFile(time.Now())
	}
	return cfg, nil
}

func createStore(ctx context.Context, cfg *config.Config) (checkpoint.Store, error) {
	if cfg.RedisAddr != "" {
		return checkpoint.NewRedisStore(ctx, checkpoint.RedisOptions{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			Calendar: string(cfg.Calendar),
			TTL:      cfg.RedisTTL,
		})
	}
	return checkpoint.NewFileStore(cfg.OutputFile), nil
}

func createWriter(ctx context.Context, cfg *config.Config, prior []models.DayRecord, runID string) (pipeline.OutputWriter, error) {
	switch cfg.OutputFormat {
	case "json":
		return pipeline.NewJSONWriter(cfg.OutputFile, prior)
	case "jsonl":
		return pipeline.NewJSONLWriter(cfg.OutputFile, cfg.Resume)
	case "csv":
		return pipeline.NewCSVWriter(cfg.OutputFile, cfg.Resume)
	case "dual":
		csvFilename := strings.TrimSuffix(cfg.OutputFile, ".json") + ".csv"
		return pipeline.NewDualWriter(cfg.OutputFile, csvFilename, prior, cfg.Resume)
	case "postgres":
		return pipeline.NewPostgresWriter(ctx, cfg.PostgresDSN, cfg.Calendar, runID)
	default:
		return nil, fmt.Errorf("unsupported format: %s", cfg.OutputFormat)
	}
}

func printSummary(result *models.ScrapeResult, duration time.Duration, outputFile string) {
	separator := "--------------------------------------------------"
	fmt.Println("\n" + separator)
	fmt.Println("Scrape complete")

	fmt.Printf("  Planned dates:  %d\n", result.PlannedCount)
	fmt.Printf("  Scraped:        %d\n", result.ScrapedCount)
	fmt.Printf("  Resumed:        %d\n", result.ResumedCount)
	fmt.Printf("  Invalid dates:  %d\n", result.InvalidCount)
	fmt.Printf("  Requests:       %d\n", result.RequestCount)
	fmt.Printf("  Retries:        %d\n", result.RetryCount)
	fmt.Printf("  Errors:         %d\n", result.ErrorCount)
	fmt.Printf("  Failed dates:   %d\n", len(result.FailedDates))
	if len(result.ErrorsByType) > 0 {
		fmt.Printf("  Error types:    %v\n", result.ErrorsByType)
	}
	ratePerMin := 0.0
	if duration.Minutes() > 0 {
		ratePerMin = float64(result.ScrapedCount) / duration.Minutes()
	}
	fmt.Printf("  Duration:       %v\n", duration)
	fmt.Printf("  Dates/min:      %.2f\n", ratePerMin)
	fmt.Printf("  Output file:    %s\n", outputFile)
	fmt.Println(separator)
}

func newLogger(verbose bool) (*slog.Logger, *slog.LevelVar) {
	level := &slog.LevelVar{}
	if verbose {
		level.Set(slog.LevelDebug)
	} else {
		level.Set(slog.LevelInfo)
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if isTerminal(os.Stdout) {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return slog.New(handler), level
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}
