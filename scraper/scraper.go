// Package scraper fetches day payloads from the holiday API with polite
// pacing, transport retries, and resumable progress tracking.
package scraper

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gocolly/colly/v2"
	lru "github.com/hashicorp/golang-lru/v2"

	"timescrap/checkpoint"
	"timescrap/config"
	"timescrap/models"
	"timescrap/parser"
	"timescrap/pipeline"
)

// Scraper wraps the colly collector, retry logic, and resume checkpoint.
type Scraper struct {
	cfg       *config.Config
	collector *colly.Collector
	retry     *retryManager
	store     checkpoint.Store
	cache     *lru.Cache[string, json.RawMessage]
	Metrics   *Metrics

	requestCount int64
	scrapedCount int64
	resumedCount int64
	invalidCount int64
	errorCount   int64

	mu           sync.Mutex
	failedDates  []string
	errorsByType map[string]int

	haltMu  sync.Mutex
	haltErr error
	cancel  context.CancelFunc

	// Handlers are registered once but must follow the active run, so the
	// current context and pipeline live behind runMu.
	runMu   sync.Mutex
	runCtx  context.Context
	runPipe *pipeline.Pipeline

	handlersOnce sync.Once
}

// NewScraper builds a scraper instance configured from cfg, resuming against
// the given checkpoint store.
func NewScraper(cfg *config.Config, store checkpoint.Store) (*Scraper, error) {
	parsed, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if parsed.Host == "" {
		return nil, fmt.Errorf("base url must include a host")
	}

	collector := colly.NewCollector(
		colly.Async(true),
		colly.AllowedDomains(parsed.Host),
		colly.UserAgent(cfg.UserAgent),
		colly.AllowURLRevisit(),
	)

	collector.SetRequestTimeout(cfg.Timeout)
	collector.IgnoreRobotsTxt = true
	collector.WithTransport(&http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   cfg.Timeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        100,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	})

	if err := collector.Limit(&colly.LimitRule{
		DomainGlob:  "*",
		Parallelism: cfg.Parallelism,
		Delay:       cfg.SleepMin,
		RandomDelay: cfg.SleepMax - cfg.SleepMin,
	}); err != nil {
		return nil, fmt.Errorf("configure rate limits: %w", err)
	}

	cache, err := lru.New[string, json.RawMessage](cfg.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("create response cache: %w", err)
	}

	s := &Scraper{
		cfg:          cfg,
		collector:    collector,
		store:        store,
		cache:        cache,
		errorsByType: make(map[string]int),
		Metrics:      NewMetrics(),
	}
	s.retry = newRetryManager(collector, cfg, s.Metrics, s.halt)
	return s, nil
}

// Run visits every date of the configured range that the checkpoint does not
// already cover and streams records through the pipeline.
func (s *Scraper) Run(ctx context.Context, p *pipeline.Pipeline) (*models.ScrapeResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	s.haltMu.Lock()
	s.cancel = cancel
	s.haltMu.Unlock()

	s.runMu.Lock()
	s.runCtx = runCtx
	s.runPipe = p
	s.runMu.Unlock()

	s.retry.SetContext(runCtx)
	s.configureHandlers()

	calendarRange := s.cfg.Range()
	if err := calendarRange.Normalize(); err != nil {
		return nil, fmt.Errorf("normalize range: %w", err)
	}
	dates := calendarRange.Dates()

	slog.Info("starting scrape",
		slog.String("calendar", string(calendarRange.Calendar)),
		slog.Int("planned_dates", len(dates)),
	)

	start := time.Now()
	done := make(chan struct{})
	defer close(done)

	go func() {
		select {
		case <-runCtx.Done():
			s.collector.Wait()
			s.retry.Stop()
		case <-done:
		}
	}()

	for _, date := range dates {
		if runCtx.Err() != nil {
			break
		}

		key := date.String()
		seen, err := s.store.Seen(runCtx, key)
		if err != nil {
			slog.Error("checkpoint lookup failed", slog.String("date", key), slog.Any("error", err))
		} else if seen {
			atomic.AddInt64(&s.resumedCount, 1)
			s.Metrics.IncResumeSkip()
			continue
		}

		if payload, ok := s.cache.Get(key); ok {
			s.emit(runCtx, p, key, payload)
			continue
		}

		if err := s.collector.Visit(s.cfg.BaseURL + date.Path()); err != nil {
			slog.Error("visit failed", slog.String("date", key), slog.Any("error", err))
		}
	}

	// Wait only covers requests colly already knows about. Retry timers can
	// still queue new visits after the collector goes idle, so keep draining
	// until no retries remain or the run is cancelled.
	s.collector.Wait()
	for runCtx.Err() == nil && s.retry.Pending() > 0 {
		time.Sleep(10 * time.Millisecond)
		s.collector.Wait()
	}
	s.collector.Wait()
	s.retry.Stop()

	result := &models.ScrapeResult{
		StartTime:    start,
		EndTime:      time.Now(),
		PlannedCount: len(dates),
		ScrapedCount: int(atomic.LoadInt64(&s.scrapedCount)),
		ResumedCount: int(atomic.LoadInt64(&s.resumedCount)),
		InvalidCount: int(atomic.LoadInt64(&s.invalidCount)),
		RequestCount: int(atomic.LoadInt64(&s.requestCount)),
		ErrorCount:   int(atomic.LoadInt64(&s.errorCount)),
		RetryCount:   s.retry.TotalRetries(),
		FailedDates:  s.snapshotFailedDates(),
		ErrorsByType: s.snapshotErrors(),
	}

	s.haltMu.Lock()
	haltErr := s.haltErr
	s.haltMu.Unlock()
	if haltErr != nil {
		return result, haltErr
	}
	return result, nil
}

func (s *Scraper) currentRun() (context.Context, *pipeline.Pipeline) {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	return s.runCtx, s.runPipe
}

func (s *Scraper) configureHandlers() {
	s.handlersOnce.Do(func() {
		s.collector.OnRequest(func(r *colly.Request) {
			r.Ctx.Put("start", time.Now())
			current := atomic.AddInt64(&s.requestCount, 1)
			s.Metrics.IncRequest("started")
			if current%50 == 0 {
				slog.Debug("scraper request progress",
					slog.Int64("requests", current),
					slog.Int64("scraped", atomic.LoadInt64(&s.scrapedCount)),
					slog.String("url", r.URL.String()),
				)
			}
		})

		s.collector.OnResponse(func(r *colly.Response) {
			if start, ok := r.Request.Ctx.GetAny("start").(time.Time); ok {
				s.Metrics.ObserveDuration(time.Since(start))
			}

			date, ok := dateFromPath(r.Request.URL.Path)
			if !ok {
				return
			}
			key := date.String()
			requestURL := r.Request.URL.String()

			kind, classifyErr := parser.Classify(r.Body)
			switch kind {
			case parser.KindDay:
				payload := json.RawMessage(append([]byte(nil), r.Body...))
				s.cache.Add(key, payload)
				s.retry.ClearPayload(requestURL)
				ctx, p := s.currentRun()
				s.emit(ctx, p, key, payload)

			case parser.KindInvalidDate:
				atomic.AddInt64(&s.invalidCount, 1)
				s.Metrics.IncInvalidDate()
				slog.Debug("date rejected by the api", slog.String("date", key))

			case parser.KindError:
				atomic.AddInt64(&s.errorCount, 1)
				s.recordError("invalid_payload")
				s.Metrics.IncError("invalid_payload")
				slog.Warn("server responded with an error payload",
					slog.String("date", key),
					slog.Any("error", ErrInvalidPayload{Err: classifyErr}),
				)
				if !s.retry.SchedulePayload(requestURL, key) {
					s.recordFailedDate(key)
				}
			}
		})

		s.collector.OnError(func(r *colly.Response, err error) {
			atomic.AddInt64(&s.errorCount, 1)
			statusCode := 0
			if r != nil {
				statusCode = r.StatusCode
			}
			classified := classifyError(err, statusCode)
			category := errorTypeLabel(classified)
			s.recordError(category)
			s.Metrics.IncError(category)

			requestURL := ""
			key := ""
			if r != nil && r.Request != nil && r.Request.URL != nil {
				requestURL = r.Request.URL.String()
				if date, ok := dateFromPath(r.Request.URL.Path); ok {
					key = date.String()
				}
			}

			slog.Error("request error",
				slog.String("url", requestURL),
				slog.String("category", category),
				slog.Any("error", err),
			)

			if !s.retry.Schedule(requestURL) {
				s.recordFailedDate(key)
			}
		})
	})
}

// emit hands a finished record to the pipeline and marks the checkpoint.
func (s *Scraper) emit(ctx context.Context, p *pipeline.Pipeline, key string, payload json.RawMessage) {
	record := &models.DayRecord{Date: key, Payload: payload}
	if err := p.Process(record); err != nil {
		if !errors.Is(err, pipeline.ErrPipelineClosed) {
			slog.Error("pipeline process error", slog.String("date", key), slog.Any("error", err))
		}
		return
	}
	if err := s.store.Mark(ctx, key); err != nil {
		slog.Error("checkpoint mark failed", slog.String("date", key), slog.Any("error", err))
	}
	atomic.AddInt64(&s.scrapedCount, 1)
	s.Metrics.IncScraped()
}

// halt records the fatal error once and cancels the run.
func (s *Scraper) halt(date string, attempts int) {
	s.haltMu.Lock()
	defer s.haltMu.Unlock()
	if s.haltErr != nil {
		return
	}
	s.haltErr = ErrHalted{Date: date, Attempts: attempts}
	if s.cancel != nil {
		s.cancel()
	}
}

func (s *Scraper) recordError(category string) {
	s.mu.Lock()
	s.errorsByType[category]++
	s.mu.Unlock()
}

func (s *Scraper) recordFailedDate(key string) {
	if key == "" {
		return
	}
	s.mu.Lock()
	s.failedDates = append(s.failedDates, key)
	s.mu.Unlock()
}

func (s *Scraper) snapshotFailedDates() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.failedDates))
	copy(out, s.failedDates)
	return out
}

func (s *Scraper) snapshotErrors() map[string]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]int, len(s.errorsByType))
	for k, v := range s.errorsByType {
		out[k] = v
	}
	return out
}

// dateFromPath recovers the calendar date from a request path like
// "/gregorian/2024/1/5".
func dateFromPath(path string) (models.CalendarDate, bool) {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) != 4 {
		return models.CalendarDate{}, false
	}

	calendar := models.Calendar(parts[0])
	if !calendar.Valid() {
		return models.CalendarDate{}, false
	}

	numbers := make([]int, 3)
	for i, part := range parts[1:] {
		value, err := strconv.Atoi(part)
		if err != nil {
			return models.CalendarDate{}, false
		}
		numbers[i] = value
	}

	return models.CalendarDate{
		Calendar: calendar,
		Year:     numbers[0],
		Month:    numbers[1],
		Day:      numbers[2],
	}, true
}

func classifyError(err error, statusCode int) error {
	if err == nil && statusCode == 0 {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return ErrTimeout{Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrTimeout{Err: err}
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return ErrConnection{Err: err}
	}

	if statusCode != 0 {
		wrapped := err
		if wrapped == nil {
			wrapped = fmt.Errorf("http status %d", statusCode)
		}
		switch statusCode {
		case http.StatusForbidden:
			return ErrForbidden{Err: wrapped}
		case http.StatusNotFound:
			return ErrNotFound{Err: wrapped}
		case http.StatusTooManyRequests:
			return ErrRateLimited{Err: wrapped}
		}
	}

	if err == nil {
		return nil
	}
	return err
}

// retryManager re-schedules failed requests. Transport failures use capped
// exponential backoff bounded by MaxRetries; error-envelope responses are
// retried with the polite sleep-range jitter until the halt limit is hit.
type retryManager struct {
	collector *colly.Collector
	cfg       *config.Config
	metrics   *Metrics
	onHalt    func(date string, attempts int)
	ctx       context.Context

	mu              sync.Mutex
	attempts        map[string]int
	payloadAttempts map[string]int
	timers          map[string]*time.Timer
	totalRetries    int
	stopped         bool
}

func newRetryManager(collector *colly.Collector, cfg *config.Config, metrics *Metrics, onHalt func(string, int)) *retryManager {
	return &retryManager{
		collector:       collector,
		cfg:             cfg,
		metrics:         metrics,
		onHalt:          onHalt,
		attempts:        make(map[string]int),
		payloadAttempts: make(map[string]int),
		timers:          make(map[string]*time.Timer),
		ctx:             context.Background(),
	}
}

// Schedule queues a retry for a transport-level failure. It returns false
// once the URL has exhausted its retry budget.
func (rm *retryManager) Schedule(url string) bool {
	if url == "" || rm.cfg.MaxRetries == 0 {
		return false
	}

	rm.mu.Lock()
	defer rm.mu.Unlock()

	if rm.stopped || (rm.ctx != nil && rm.ctx.Err() != nil) {
		return false
	}

	attempt := rm.attempts[url]
	if attempt >= rm.cfg.MaxRetries {
		return false
	}

	attempt++
	rm.attempts[url] = attempt
	rm.scheduleLocked(url, rm.backoff(attempt))
	return true
}

// SchedulePayload queues a retry for a date the API keeps answering with an
// error envelope. It warns past the warn limit, and past the halt limit it
// reports the halt and declines the retry.
func (rm *retryManager) SchedulePayload(url, date string) bool {
	if url == "" {
		return false
	}

	rm.mu.Lock()

	if rm.stopped || (rm.ctx != nil && rm.ctx.Err() != nil) {
		rm.mu.Unlock()
		return false
	}

	attempt := rm.payloadAttempts[url] + 1
	rm.payloadAttempts[url] = attempt

	if rm.cfg.HaltLimit > 0 && attempt > rm.cfg.HaltLimit {
		onHalt := rm.onHalt
		rm.mu.Unlock()
		if onHalt != nil {
			onHalt(date, attempt)
		}
		return false
	}

	if rm.cfg.RetryWarnLimit > 0 && attempt > rm.cfg.RetryWarnLimit {
		slog.Warn("too much retrying, check your network connection",
			slog.String("date", date),
			slog.Int("attempts", attempt),
		)
	}

	rm.scheduleLocked(url, rm.jitterDelay())
	rm.mu.Unlock()
	return true
}

// ClearPayload forgets payload attempts after a successful fetch.
func (rm *retryManager) ClearPayload(url string) {
	rm.mu.Lock()
	delete(rm.payloadAttempts, url)
	rm.mu.Unlock()
}

func (rm *retryManager) scheduleLocked(url string, delay time.Duration) {
	rm.totalRetries++
	if rm.metrics != nil {
		rm.metrics.IncRetries()
	}
	rm.resetTimerLocked(url)
	rm.timers[url] = time.AfterFunc(delay, func() {
		rm.fireRetry(url)
	})
}

func (rm *retryManager) backoff(attempt int) time.Duration {
	if attempt <= 0 {
		attempt = 1
	}

	base := rm.cfg.RetryBackoff
	if base <= 0 {
		base = 100 * time.Millisecond
	}

	delay := base * time.Duration(1<<(attempt-1))
	if max := rm.cfg.RetryBackoffMax; max > 0 && delay > max {
		delay = max
	}
	return delay
}

// jitterDelay draws a uniform delay from the configured sleep range.
func (rm *retryManager) jitterDelay() time.Duration {
	spread := rm.cfg.SleepMax - rm.cfg.SleepMin
	if spread <= 0 {
		return rm.cfg.SleepMin
	}
	return rm.cfg.SleepMin + time.Duration(rand.Int63n(int64(spread)))
}

func (rm *retryManager) resetTimerLocked(url string) {
	if timer, ok := rm.timers[url]; ok {
		timer.Stop()
		delete(rm.timers, url)
	}
}

func (rm *retryManager) fireRetry(url string) {
	rm.mu.Lock()
	if rm.stopped {
		rm.mu.Unlock()
		return
	}
	ctx := rm.ctx
	rm.mu.Unlock()

	if ctx != nil && ctx.Err() != nil {
		rm.mu.Lock()
		delete(rm.timers, url)
		rm.mu.Unlock()
		return
	}
	if err := rm.collector.Visit(url); err != nil {
		slog.Debug("retry visit failed", slog.String("url", url), slog.Any("error", err))
	}

	// The timer entry outlives the Visit call so Pending reports the retry
	// until colly has the request on its own waitgroup.
	rm.mu.Lock()
	delete(rm.timers, url)
	rm.mu.Unlock()
}

func (rm *retryManager) Stop() {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	if rm.stopped {
		return
	}

	rm.stopped = true
	for url, timer := range rm.timers {
		timer.Stop()
		delete(rm.timers, url)
	}
}

// Pending reports how many retry timers have not fed the collector yet.
func (rm *retryManager) Pending() int {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	return len(rm.timers)
}

func (rm *retryManager) TotalRetries() int {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	return rm.totalRetries
}

func (rm *retryManager) SetContext(ctx context.Context) {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	if ctx == nil {
		rm.ctx = context.Background()
		return
	}
	rm.ctx = ctx
}
