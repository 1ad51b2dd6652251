package worker

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/databender/leadengine/internal/pkg/distlock"
	"github.com/databender/leadengine/internal/pkg/logger"
	"github.com/databender/leadengine/internal/reports"
	"github.com/databender/leadengine/internal/service/sequence"
	"github.com/databender/leadengine/internal/ses"
)

const (
	// DefaultPollInterval is how often the scheduler checks the clock.
	DefaultPollInterval = time.Minute

	// dailyLockTTL outlives the run so a second host polling later the same
	// day still sees the key.
	dailyLockTTL = 20 * time.Hour
)

// SequenceRunner sends the day's due sequence emails.
// *sequence.Processor satisfies it.
type SequenceRunner interface {
	Run(ctx context.Context) (sequence.ProcessingResult, error)
}

// SummaryBuilder reports one UTC day of traffic. *reports.Service satisfies it.
type SummaryBuilder interface {
	DailySummary(ctx context.Context, day time.Time) (*reports.Summary, error)
}

// Scheduler runs the daily jobs once per UTC day at or after the configured
// hour. Each job takes a per-day distributed lock, so only one host runs it.
type Scheduler struct {
	runner       SequenceRunner
	hour         int
	redis        *redis.Client
	pollInterval time.Duration
	now          func() time.Time

	summaries SummaryBuilder
	renderer  TextRenderer
	sender    Sender
	summaryTo string
	adminURL  string

	mu      sync.Mutex
	lastRun string

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// SchedulerOption configures a Scheduler.
type SchedulerOption func(*Scheduler)

// WithRedis shares the daily locks across hosts. Without it the locks are
// process-local.
func WithRedis(client *redis.Client) SchedulerOption {
	return func(s *Scheduler) { s.redis = client }
}

// WithSchedulerClock overrides the time source.
func WithSchedulerClock(now func() time.Time) SchedulerOption {
	return func(s *Scheduler) { s.now = now }
}

// WithPollInterval overrides DefaultPollInterval.
func WithPollInterval(d time.Duration) SchedulerOption {
	return func(s *Scheduler) {
		if d > 0 {
			s.pollInterval = d
		}
	}
}

// WithDailySummary mails the previous day's traffic summary to "to" after
// the sequence run. An empty address disables the summary.
func WithDailySummary(b SummaryBuilder, r TextRenderer, sender Sender, to, adminURL string) SchedulerOption {
	return func(s *Scheduler) {
		s.summaries = b
		s.renderer = r
		s.sender = sender
		s.summaryTo = to
		s.adminURL = strings.TrimRight(adminURL, "/")
	}
}

// NewScheduler creates a scheduler that runs at hourUTC every day.
func NewScheduler(runner SequenceRunner, hourUTC int, opts ...SchedulerOption) *Scheduler {
	s := &Scheduler{
		runner:       runner,
		hour:         hourUTC,
		pollInterval: DefaultPollInterval,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start polls in a background goroutine until Stop or ctx is done.
func (s *Scheduler) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	logger.Info("daily scheduler started", "hour_utc", s.hour, "poll_interval", s.pollInterval.String())

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.pollInterval)
		defer ticker.Stop()

		s.Tick(ctx)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.Tick(ctx)
			}
		}
	}()
}

// Stop ends polling and waits for an in-progress run.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
	logger.Info("daily scheduler stopped")
}

// Tick runs the daily jobs if the hour has come and this process has not
// finished them today. It reports whether the jobs ran.
func (s *Scheduler) Tick(ctx context.Context) bool {
	now := s.now().UTC()
	if now.Hour() < s.hour {
		return false
	}
	today := now.Format("2006-01-02")

	s.mu.Lock()
	done := s.lastRun == today
	s.mu.Unlock()
	if done {
		return false
	}

	if err := s.RunDaily(ctx, now); err != nil {
		logger.Error("daily run failed", "date", today, "error", err.Error())
		return false
	}
	s.mu.Lock()
	s.lastRun = today
	s.mu.Unlock()
	return true
}

// RunDaily runs the sequence batch and then the summary for the day of now.
// A job whose lock is held elsewhere is skipped without error.
func (s *Scheduler) RunDaily(ctx context.Context, now time.Time) error {
	today := now.UTC().Format("2006-01-02")

	if err := s.locked(ctx, "sequence-run:"+today, func(ctx context.Context) error {
		result, err := s.runner.Run(ctx)
		if err != nil {
			return err
		}
		logger.Info("daily sequence run complete",
			"date", today,
			"processed", result.TotalProcessed,
			"sent", result.EmailsSent,
			"completed", result.CompletedSequences,
			"errors", len(result.Errors),
		)
		return nil
	}); err != nil {
		return fmt.Errorf("sequence run: %w", err)
	}

	if s.summaries == nil || s.summaryTo == "" {
		return nil
	}
	yesterday := now.UTC().AddDate(0, 0, -1)
	if err := s.locked(ctx, "daily-summary:"+today, func(ctx context.Context) error {
		return s.SendSummary(ctx, yesterday)
	}); err != nil {
		return fmt.Errorf("daily summary: %w", err)
	}
	return nil
}

// SendSummary builds and mails the traffic summary for day.
func (s *Scheduler) SendSummary(ctx context.Context, day time.Time) error {
	summary, err := s.summaries.DailySummary(ctx, day)
	if err != nil {
		return err
	}
	rendered, err := s.renderer.RenderText(ses.TemplateDailySummary, summary.TemplateVars(s.adminURL+"/admin"))
	if err != nil {
		return fmt.Errorf("render: %w", err)
	}
	messageID, err := s.sender.Send(ctx, ses.Message{
		To:      s.summaryTo,
		Subject: rendered.Subject,
		Text:    rendered.Text,
		Tags:    map[string]string{"notification": "daily_summary"},
	})
	if err != nil {
		return fmt.Errorf("send: %w", err)
	}
	logger.Info("daily summary sent", "date", summary.Date, "pageviews", summary.Pageviews, "message_id", messageID)
	return nil
}

// locked runs fn under a per-day lock. The lock is kept after success so no
// other host repeats the job that day, and released on failure so a later
// tick can retry.
func (s *Scheduler) locked(ctx context.Context, key string, fn func(context.Context) error) error {
	lock := distlock.NewLock(s.redis, "leadengine:"+key, dailyLockTTL)
	ok, err := lock.Acquire(ctx)
	if err != nil {
		return err
	}
	if !ok {
		logger.Info("daily job held by another worker", "key", key)
		return nil
	}
	if err := fn(ctx); err != nil {
		if rerr := lock.Release(context.Background()); rerr != nil {
			logger.Warn("release daily lock failed", "key", key, "error", rerr.Error())
		}
		return err
	}
	return nil
}
