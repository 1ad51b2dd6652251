package tracking

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/databender/leadengine/internal/domain"
	"github.com/databender/leadengine/internal/enrich"
	"github.com/databender/leadengine/internal/pkg/logger"
	"github.com/databender/leadengine/internal/scoring"
)

// Store is the analytics persistence the event service needs.
type Store interface {
	PutEvent(ctx context.Context, e *domain.TrackedEvent) error
	GetSession(ctx context.Context, day time.Time, sessionID string) (*domain.Session, error)
	PutSession(ctx context.Context, day time.Time, s *domain.Session) error
	PutConversion(ctx context.Context, c *domain.ConversionPath) error
}

// CompanyLookup identifies the company behind an IP. *enrich.Lookup
// satisfies it.
type CompanyLookup interface {
	Company(ctx context.Context, ip string) *enrich.Company
}

// EventData is the client-reported part of a tracked event.
type EventData struct {
	EventType  domain.EventType       `json:"eventType" validate:"required"`
	Page       string                 `json:"page" validate:"required"`
	Referrer   string                 `json:"referrer,omitempty"`
	Data       map[string]interface{} `json:"data,omitempty"`
	UTM        *domain.UTMParams      `json:"utm,omitempty"`
	TimeOnPage int                    `json:"timeOnPage,omitempty"`
}

// EventRequest is the body of POST /api/track.
type EventRequest struct {
	Event       EventData `json:"event"`
	VisitorID   string    `json:"visitorId" validate:"required"`
	SessionID   string    `json:"sessionId" validate:"required"`
	Device      string    `json:"device,omitempty" validate:"omitempty,oneof=desktop mobile tablet"`
	IsReturning bool      `json:"isReturning,omitempty"`
}

// RequestMeta carries what the server, not the client, knows.
type RequestMeta struct {
	UserAgent string
	IP        string
	Country   string
}

// TrackResult is returned to the browser.
type TrackResult struct {
	Success bool   `json:"success"`
	EventID string `json:"eventId"`
}

// EventService records visitor events and maintains sessions.
type EventService struct {
	store     Store
	companies CompanyLookup
	ownDomain string
	now       func() time.Time
}

// NewEventService creates the service. companies may be nil.
func NewEventService(store Store, companies CompanyLookup, ownDomain string) *EventService {
	return &EventService{
		store:     store,
		companies: companies,
		ownDomain: strings.ToLower(ownDomain),
		now:       time.Now,
	}
}

// Track stores the event and, for human traffic, upserts the session.
func (s *EventService) Track(ctx context.Context, req EventRequest, meta RequestMeta) (*TrackResult, error) {
	now := s.now().UTC()
	ev := &domain.TrackedEvent{
		EventID:   uuid.New().String(),
		EventType: req.Event.EventType,
		VisitorID: req.VisitorID,
		SessionID: req.SessionID,
		Page:      req.Event.Page,
		Referrer:  req.Event.Referrer,
		Data:      req.Event.Data,
		UTM:       req.Event.UTM,
		Timestamp: now,
		UserAgent: meta.UserAgent,
		IP:        meta.IP,
		Country:   meta.Country,
		IsBot:     IsBot(meta.UserAgent),
	}

	var company *enrich.Company
	if ev.EventType == domain.EventPageview && !ev.IsBot && s.companies != nil {
		company = s.companies.Company(ctx, meta.IP)
	}
	if company != nil {
		ev.CompanyName = company.Name
		ev.CompanyDomain = company.Domain
	}

	if err := s.store.PutEvent(ctx, ev); err != nil {
		return nil, fmt.Errorf("store event: %w", err)
	}
	if ev.IsBot {
		return &TrackResult{Success: true, EventID: ev.EventID}, nil
	}

	if err := s.updateSession(ctx, req, ev, company); err != nil {
		return nil, err
	}
	return &TrackResult{Success: true, EventID: ev.EventID}, nil
}

func (s *EventService) updateSession(ctx context.Context, req EventRequest, ev *domain.TrackedEvent, company *enrich.Company) error {
	now := ev.Timestamp
	sess, err := s.store.GetSession(ctx, now, req.SessionID)
	if err != nil {
		return fmt.Errorf("load session: %w", err)
	}
	if sess == nil {
		source, medium := ParseReferrer(req.Event.Referrer, s.ownDomain)
		device := req.Device
		if device == "" {
			device = DetectDevice(ev.UserAgent)
		}
		sess = &domain.Session{
			SessionID:      req.SessionID,
			VisitorID:      req.VisitorID,
			StartTime:      now,
			EntryPage:      ev.Page,
			Device:         device,
			Country:        ev.Country,
			ReferrerSource: source,
			ReferrerMedium: medium,
			IsReturning:    req.IsReturning,
		}
	}
	if company != nil && sess.CompanyName == "" {
		sess.CompanyName = company.Name
		sess.CompanyDomain = company.Domain
	}

	end := now
	sess.EndTime = &end
	if d := int(now.Sub(sess.StartTime).Seconds()); d > sess.Duration {
		sess.Duration = d
	}

	switch ev.EventType {
	case domain.EventPageview:
		sess.PageCount++
		sess.ExitPage = ev.Page
		if n := len(sess.PagesVisited); n == 0 || sess.PagesVisited[n-1] != ev.Page {
			sess.PagesVisited = append(sess.PagesVisited, ev.Page)
			sess.PageJourney = append(sess.PageJourney, domain.PageJourneyStep{
				Page:      ev.Page,
				Timestamp: now,
				Referrer:  ev.Referrer,
			})
		}
	case domain.EventPageExit:
		sess.ExitPage = ev.Page
		if req.Event.TimeOnPage > sess.Duration {
			sess.Duration = req.Event.TimeOnPage
		}
		if depth := intField(ev.Data, "maxScrollDepth"); depth > sess.MaxScrollDepth {
			sess.MaxScrollDepth = depth
		}
	case domain.EventFormSubmit, domain.EventChatLeadDetected:
		sess.IsConverted = true
		sess.ConversionType = ConversionType(ev)
		if err := s.store.PutConversion(ctx, conversionPath(sess, ev)); err != nil {
			return fmt.Errorf("store conversion: %w", err)
		}
		logger.Info("session converted", "session_id", sess.SessionID, "type", sess.ConversionType)
	}

	sess.LeadScore += scoring.EventScore(ev.EventType, ev.Page, ev.Data)
	sess.LeadTier = scoring.TierFor(sess.LeadScore)

	if err := s.store.PutSession(ctx, now, sess); err != nil {
		return fmt.Errorf("store session: %w", err)
	}
	return nil
}

// ConversionType labels a converting event: "chat_lead" for chat, else the
// form name, else "form".
func ConversionType(ev *domain.TrackedEvent) string {
	if ev.EventType == domain.EventChatLeadDetected {
		return "chat_lead"
	}
	if name, ok := ev.Data["formName"].(string); ok && name != "" {
		return name
	}
	return "form"
}

func conversionPath(sess *domain.Session, ev *domain.TrackedEvent) *domain.ConversionPath {
	journey := append([]domain.PageJourneyStep(nil), sess.PageJourney...)
	if n := len(journey); n == 0 || journey[n-1].Page != ev.Page {
		journey = append(journey, domain.PageJourneyStep{Page: ev.Page, Timestamp: ev.Timestamp})
	}
	return &domain.ConversionPath{
		ConversionID:   uuid.New().String(),
		VisitorID:      sess.VisitorID,
		SessionID:      sess.SessionID,
		ConversionType: sess.ConversionType,
		ConversionPage: ev.Page,
		Timestamp:      ev.Timestamp,
		PageJourney:    journey,
		JourneyLength:  len(journey),
		FirstTouchPage: journey[0].Page,
		LastTouchPage:  journey[len(journey)-1].Page,
		Device:         sess.Device,
		Country:        sess.Country,
		ReferrerSource: sess.ReferrerSource,
		ReferrerMedium: sess.ReferrerMedium,
		UTM:            ev.UTM,
	}
}

var botPattern = regexp.MustCompile(`(?i)bot|crawler|spider|scraper|curl|wget|yandex|baiduspider|` +
	`facebookexternalhit|ia_archiver|semrush|ahrefs|headless|phantom|selenium|puppeteer|playwright`)

// IsBot reports whether a user agent belongs to automation. A missing user
// agent counts as a bot.
func IsBot(userAgent string) bool {
	if strings.TrimSpace(userAgent) == "" {
		return true
	}
	return botPattern.MatchString(userAgent)
}

// DetectDevice classifies a user agent.
func DetectDevice(ua string) string {
	ua = strings.ToLower(ua)
	if strings.Contains(ua, "ipad") || strings.Contains(ua, "tablet") {
		return domain.DeviceTablet
	}
	if strings.Contains(ua, "mobile") || strings.Contains(ua, "android") || strings.Contains(ua, "iphone") {
		return domain.DeviceMobile
	}
	return domain.DeviceDesktop
}

var referrerRules = []struct {
	needles []string
	source  string
	medium  string
}{
	{[]string{"google"}, "google", "organic"},
	{[]string{"bing"}, "bing", "organic"},
	{[]string{"duckduckgo"}, "duckduckgo", "organic"},
	{[]string{"facebook"}, "facebook", "social"},
	{[]string{"twitter"}, "twitter", "social"},
	{[]string{"linkedin"}, "linkedin", "social"},
	{[]string{"instagram"}, "instagram", "social"},
	{[]string{"youtube"}, "youtube", "social"},
	{[]string{"reddit"}, "reddit", "social"},
}

// ParseReferrer maps a referrer URL to (source, medium). No referrer, or one
// from ownDomain, is direct traffic.
func ParseReferrer(referrer, ownDomain string) (string, string) {
	if referrer == "" {
		return "direct", "none"
	}
	u, err := url.Parse(referrer)
	if err != nil || u.Hostname() == "" {
		return "unknown", "unknown"
	}
	host := strings.ToLower(u.Hostname())
	if ownDomain != "" && (host == ownDomain || strings.HasSuffix(host, "."+ownDomain)) {
		return "direct", "none"
	}
	// Short domains match exactly; as substrings they hit unrelated hosts.
	switch strings.TrimPrefix(host, "www.") {
	case "fb.com", "l.facebook.com":
		return "facebook", "social"
	case "t.co", "x.com":
		return "twitter", "social"
	}
	for _, r := range referrerRules {
		for _, n := range r.needles {
			if strings.Contains(host, n) {
				return r.source, r.medium
			}
		}
	}
	return host, "referral"
}

func intField(data map[string]interface{}, key string) int {
	switch v := data[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	}
	return 0
}
