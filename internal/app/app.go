// Package app builds the object graph shared by the server and worker
// binaries from one loaded configuration.
package app

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/databender/leadengine/internal/api"
	"github.com/databender/leadengine/internal/auth"
	"github.com/databender/leadengine/internal/config"
	"github.com/databender/leadengine/internal/enrich"
	"github.com/databender/leadengine/internal/pkg/httpretry"
	"github.com/databender/leadengine/internal/pkg/logger"
	"github.com/databender/leadengine/internal/ratelimit"
	"github.com/databender/leadengine/internal/reports"
	"github.com/databender/leadengine/internal/scoring"
	"github.com/databender/leadengine/internal/service/lead"
	"github.com/databender/leadengine/internal/service/sequence"
	"github.com/databender/leadengine/internal/ses"
	"github.com/databender/leadengine/internal/sns"
	"github.com/databender/leadengine/internal/storage"
	"github.com/databender/leadengine/internal/tasks"
	"github.com/databender/leadengine/internal/tracking"
	"github.com/databender/leadengine/internal/worker"
)

// App holds every long-lived component.
type App struct {
	Config *config.Config

	AWS       *storage.AWS
	Redis     *redis.Client
	Leads     *storage.LeadStore
	Analytics *storage.AnalyticsStore
	Queue     tasks.Queue

	Templates *ses.TemplateService
	Mailer    *ses.Client
	Tokens    *sequence.TokenSigner
	Tracker   *sequence.Tracker
	Companies *enrich.Lookup

	LeadService     *lead.Service
	SequenceService *sequence.Service
	Processor       *sequence.Processor
	Reports         *reports.Service
	Notifier        *worker.Notifier
}

// New connects to AWS and Redis and wires the services. A Redis URL that
// cannot be reached is logged and Redis-backed features fall back to
// in-process state.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	a := &App{Config: cfg}

	awsClients, err := storage.NewAWS(ctx, cfg.Storage)
	if err != nil {
		return nil, err
	}
	a.AWS = awsClients
	a.Leads = storage.NewLeadStore(awsClients.DynamoDB, cfg.Storage.LeadsTable)
	a.Analytics = storage.NewAnalyticsStore(awsClients.DynamoDB, cfg.Storage)
	a.Redis = connectRedis(ctx, cfg.Redis.URL)

	if a.Queue, err = newQueue(ctx, cfg.Queue); err != nil {
		return nil, err
	}

	var files fs.FS
	if dir := cfg.Sequence.TemplateDir; dir != "" {
		files = os.DirFS(dir)
	}
	if a.Templates, err = ses.NewTemplateService(files); err != nil {
		return nil, fmt.Errorf("loading email templates: %w", err)
	}
	if a.Mailer, err = ses.NewClient(ctx, cfg.SES); err != nil {
		return nil, err
	}

	a.SequenceService = sequence.NewService(a.Leads,
		sequence.WithSoftBounceThreshold(cfg.Sequence.SoftBounceThreshold))
	a.Tokens = sequence.NewTokenSigner(cfg.Sequence.UnsubscribeSecret, cfg.Sequence.TokenMaxAge(), nil)
	a.Tracker = sequence.NewTracker(trackingBase(cfg), cfg.Sequence.UnsubscribeSecret)
	a.Companies = enrich.NewLookup(nil, enrich.DefaultCacheTTL, nil)
	a.Processor = sequence.NewProcessor(a.SequenceService, a.Templates, a.Mailer,
		a.Tracker, a.Tokens,
		sequence.Links{SiteURL: cfg.Sequence.SiteURL, CalendarURL: cfg.Sequence.CalendarURL})

	opts := []lead.Option{
		lead.WithRules(scoring.NewRules(cfg.Scoring.PersonalDomains, cfg.Scoring.CompetitorDomains)),
		lead.WithEnroller(a.SequenceService),
		lead.WithPublisher(a.Queue),
		lead.WithCompanyLookup(a.Companies),
	}
	if archive := storage.NewExportArchive(awsClients.S3, cfg.Storage.ExportBucket); archive != nil {
		opts = append(opts, lead.WithArchive(archive))
	}
	a.LeadService = lead.NewService(a.Leads, opts...)
	a.Reports = reports.NewService(a.Leads, a.Analytics, cfg.Site.OwnDomain)
	a.Notifier = worker.NewNotifier(a.LeadService, a.Templates, a.Mailer, cfg.Notifications, cfg.Server.BaseURL)
	return a, nil
}

// APIDeps builds the HTTP layer's dependencies.
func (a *App) APIDeps() api.Deps {
	cfg := a.Config
	lockout := auth.NewLockout(a.Redis, cfg.Auth.MaxFailedAttempts, cfg.Auth.Lockout(), nil)
	authManager := auth.NewAuthManager(cfg.Auth, lockout, auth.WithClientIP(tracking.RealIP))
	if cfg.Auth.AdminPasswordHash == "" || cfg.Auth.SessionSecret == "" {
		logger.Warn("admin login disabled: password hash or session secret missing")
	}

	fetcher := httpretry.NewRetryClient(nil, 3)
	verifier := sns.NewVerifier(fetcher, cfg.SNS.CertCacheTTL(), nil, cfg.SNS.AllowedTopicARNs)
	events := tracking.NewEventService(a.Analytics, a.Companies, cfg.Site.OwnDomain)

	return api.Deps{
		Auth:          authManager,
		Limiter:       ratelimit.New(a.Redis, cfg.RateLimits),
		Leads:         a.LeadService,
		Sequences:     a.SequenceService,
		Reports:       a.Reports,
		Tracking:      tracking.NewHandler(events, a.Tracker, a.LeadService, a.Tokens, a.SequenceService, cfg.Sequence.SiteURL),
		SESEvents:     sns.NewHandler(verifier, fetcher, a.SequenceService),
		Health:        api.NewHealthChecker(a.AWS.DynamoDB, cfg.Storage.LeadsTable, a.Redis, a.AWS.S3, cfg.Storage.ExportBucket),
		WebhookAPIKey: cfg.Auth.WebhookAPIKey,
	}
}

// Consumer returns a task consumer with the lead and day-0 handlers.
func (a *App) Consumer() *tasks.Consumer {
	c := tasks.NewConsumer(a.Queue)
	worker.Register(c, a.Notifier, a.Processor)
	return c
}

// Scheduler returns the daily sequence and summary scheduler.
func (a *App) Scheduler() *worker.Scheduler {
	cfg := a.Config
	return worker.NewScheduler(a.Processor, cfg.Sequence.ProcessHourUTC,
		worker.WithRedis(a.Redis),
		worker.WithDailySummary(a.Reports, a.Templates, a.Mailer, cfg.Notifications.SalesEmail, cfg.Server.BaseURL),
	)
}

// InProcessQueue reports whether tasks stay inside this process, in which
// case the server must consume them itself.
func (a *App) InProcessQueue() bool {
	_, ok := a.Queue.(*tasks.MemoryQueue)
	return ok
}

// Close releases connections.
func (a *App) Close() {
	if q, ok := a.Queue.(*tasks.MemoryQueue); ok {
		q.Close()
	}
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			logger.Warn("redis close failed", "error", err.Error())
		}
	}
}

func newQueue(ctx context.Context, cfg config.QueueConfig) (tasks.Queue, error) {
	if cfg.Type == "sqs" {
		q, err := tasks.NewSQSQueue(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("creating SQS queue: %w", err)
		}
		return q, nil
	}
	return tasks.NewMemoryQueue(cfg.MaxMessages), nil
}

func trackingBase(cfg *config.Config) string {
	if cfg.Sequence.TrackingURL != "" {
		return cfg.Sequence.TrackingURL
	}
	return cfg.Server.BaseURL
}

func connectRedis(ctx context.Context, url string) *redis.Client {
	if url == "" {
		logger.Info("redis not configured, using in-process locks and limits")
		return nil
	}
	var client *redis.Client
	if opts, err := redis.ParseURL(url); err == nil {
		client = redis.NewClient(opts)
	} else {
		client = redis.NewClient(&redis.Options{Addr: strings.TrimPrefix(url, "redis://")})
	}

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.Warn("redis unreachable, using in-process locks and limits", "error", err.Error())
		client.Close()
		return nil
	}
	logger.Info("redis connected")
	return client
}
