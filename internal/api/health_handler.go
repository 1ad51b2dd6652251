package api

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
)

// HealthStatus represents the overall health of the system.
type HealthStatus struct {
	Status  string                    `json:"status"` // "healthy", "degraded", "unhealthy"
	Version string                    `json:"version"`
	Uptime  string                    `json:"uptime"`
	Checks  map[string]ComponentCheck `json:"checks"`
}

// ComponentCheck represents the health of a single component.
type ComponentCheck struct {
	Status  string `json:"status"` // "up", "down", "degraded"
	Latency string `json:"latency,omitempty"`
	Message string `json:"message,omitempty"`
}

// TableDescriber is satisfied by *dynamodb.Client.
type TableDescriber interface {
	DescribeTable(ctx context.Context, in *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
}

// BucketHeader is satisfied by *s3.Client.
type BucketHeader interface {
	HeadBucket(ctx context.Context, in *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
}

// HealthChecker reports on the service's dependencies: the leads table, Redis
// and the export bucket.
type HealthChecker struct {
	dynamo      TableDescriber
	leadsTable  string
	redisClient *redis.Client
	s3Client    BucketHeader
	s3Bucket    string
	startTime   time.Time
}

// NewHealthChecker creates a new HealthChecker.
// Any dependency can be nil; the check will report "not configured" for nil deps.
func NewHealthChecker(dynamo TableDescriber, leadsTable string, redisClient *redis.Client, s3Client BucketHeader, s3Bucket string) *HealthChecker {
	return &HealthChecker{
		dynamo:      dynamo,
		leadsTable:  leadsTable,
		redisClient: redisClient,
		s3Client:    s3Client,
		s3Bucket:    s3Bucket,
		startTime:   time.Now(),
	}
}

const (
	healthVersion = "1.0.0"
	notConfigured = "not configured"

	checkDynamo = "dynamodb"
	checkRedis  = "redis"
	checkS3     = "s3"
)

// HandleHealth returns the health status of all components. The HTTP status
// is always 200; use /health/ready for a check that fails.
//
//	GET /health
func (hc *HealthChecker) HandleHealth(w http.ResponseWriter, r *http.Request) {
	checks := hc.runAllChecks(r.Context())

	respondJSON(w, http.StatusOK, HealthStatus{
		Status:  determineOverallStatus(checks),
		Version: healthVersion,
		Uptime:  formatUptime(time.Since(hc.startTime)),
		Checks:  checks,
	})
}

// HandleLiveness always returns 200 while the process is running.
//
//	GET /health/live
func (hc *HealthChecker) HandleLiveness(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status": "alive",
		"uptime": formatUptime(time.Since(hc.startTime)),
	})
}

// HandleReadiness returns 503 when the leads table is unreachable.
//
//	GET /health/ready
func (hc *HealthChecker) HandleReadiness(w http.ResponseWriter, r *http.Request) {
	checks := hc.runAllChecks(r.Context())
	overall := determineOverallStatus(checks)

	ready := overall != "unhealthy"
	httpStatus := http.StatusOK
	if !ready {
		httpStatus = http.StatusServiceUnavailable
	}

	respondJSON(w, httpStatus, map[string]interface{}{
		"ready":  ready,
		"status": overall,
		"checks": checks,
	})
}

// dependencyCheck checks one dependency. A nil call means it is not
// configured for this deployment.
type dependencyCheck struct {
	name      string
	timeout   time.Duration
	slowAfter time.Duration
	call      func(ctx context.Context) (string, error)
}

func (hc *HealthChecker) dependencyChecks() []dependencyCheck {
	ps := []dependencyCheck{
		{name: checkDynamo, timeout: 3 * time.Second, slowAfter: time.Second},
		{name: checkRedis, timeout: 2 * time.Second, slowAfter: 500 * time.Millisecond},
		{name: checkS3, timeout: 3 * time.Second},
	}
	if hc.dynamo != nil && hc.leadsTable != "" {
		ps[0].call = func(ctx context.Context) (string, error) {
			if _, err := hc.dynamo.DescribeTable(ctx, &dynamodb.DescribeTableInput{TableName: &hc.leadsTable}); err != nil {
				return "", fmt.Errorf("DescribeTable: %w", err)
			}
			return fmt.Sprintf("table %q reachable", hc.leadsTable), nil
		}
	}
	if hc.redisClient != nil {
		ps[1].call = func(ctx context.Context) (string, error) {
			if err := hc.redisClient.Ping(ctx).Err(); err != nil {
				return "", fmt.Errorf("ping: %w", err)
			}
			return "connected", nil
		}
	}
	if hc.s3Client != nil && hc.s3Bucket != "" {
		ps[2].call = func(ctx context.Context) (string, error) {
			if _, err := hc.s3Client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: &hc.s3Bucket}); err != nil {
				return "", fmt.Errorf("HeadBucket: %w", err)
			}
			return fmt.Sprintf("bucket %q accessible", hc.s3Bucket), nil
		}
	}
	return ps
}

func (hc *HealthChecker) runAllChecks(ctx context.Context) map[string]ComponentCheck {
	ps := hc.dependencyChecks()

	var mu sync.Mutex
	checks := make(map[string]ComponentCheck, len(ps))
	var g errgroup.Group
	for _, p := range ps {
		g.Go(func() error {
			c := p.run(ctx)
			mu.Lock()
			checks[p.name] = c
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return checks
}

func (p dependencyCheck) run(ctx context.Context) ComponentCheck {
	if p.call == nil {
		return ComponentCheck{Status: "down", Message: notConfigured}
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	start := time.Now()
	msg, err := p.call(ctx)
	latency := time.Since(start)

	switch {
	case err != nil:
		return ComponentCheck{Status: "down", Latency: latency.String(), Message: err.Error()}
	case p.slowAfter > 0 && latency > p.slowAfter:
		return ComponentCheck{Status: "degraded", Latency: latency.String(), Message: fmt.Sprintf("slow response (%s)", latency)}
	}
	return ComponentCheck{Status: "up", Latency: latency.String(), Message: msg}
}

// determineOverallStatus is "unhealthy" when a configured leads table is
// down and "degraded" when any other configured dependency is slow or down.
func determineOverallStatus(checks map[string]ComponentCheck) string {
	overall := "healthy"
	for name, c := range checks {
		if c.Status == "up" || c.Message == notConfigured {
			continue
		}
		if name == checkDynamo && c.Status == "down" {
			return "unhealthy"
		}
		overall = "degraded"
	}
	return overall
}

// formatUptime renders d as "3d 4h 12m 5s", dropping leading zero units.
func formatUptime(d time.Duration) string {
	total := int(d.Seconds())
	parts := []struct {
		n    int
		unit string
	}{
		{total / 86400, "d"},
		{total / 3600 % 24, "h"},
		{total / 60 % 60, "m"},
		{total % 60, "s"},
	}
	out := ""
	for i, p := range parts {
		if out == "" && p.n == 0 && i < len(parts)-1 {
			continue
		}
		if out != "" {
			out += " "
		}
		out += fmt.Sprintf("%d%s", p.n, p.unit)
	}
	return out
}
