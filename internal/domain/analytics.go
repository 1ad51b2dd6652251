package domain

import "time"

// EventType names a tracked visitor interaction.
type EventType string

const (
	EventPageview         EventType = "pageview"
	EventScrollDepth      EventType = "scroll_depth"
	EventClick            EventType = "click"
	EventFormSubmit       EventType = "form_submit"
	EventChatOpen         EventType = "chat_open"
	EventChatMessage      EventType = "chat_message"
	EventChatLeadDetected EventType = "chat_lead_detected"
	EventCTAClick         EventType = "cta_click"
	EventPageExit         EventType = "page_exit"
	EventFormStart        EventType = "form_start"
	EventFormAbandon      EventType = "form_abandon"
	EventRageClick        EventType = "rage_click"
	EventVideoPlay        EventType = "video_play"
	EventVideoProgress    EventType = "video_progress"
	EventVideoComplete    EventType = "video_complete"
	EventCopyText         EventType = "copy_text"
)

// UTMParams carries campaign attribution parameters.
type UTMParams struct {
	Source   string `json:"source,omitempty" dynamodbav:"source,omitempty"`
	Medium   string `json:"medium,omitempty" dynamodbav:"medium,omitempty"`
	Campaign string `json:"campaign,omitempty" dynamodbav:"campaign,omitempty"`
	Term     string `json:"term,omitempty" dynamodbav:"term,omitempty"`
	Content  string `json:"content,omitempty" dynamodbav:"content,omitempty"`
}

// TrackedEvent is an immutable analytics event as stored.
type TrackedEvent struct {
	EventID   string                 `json:"eventId" dynamodbav:"eventId"`
	EventType EventType              `json:"eventType" dynamodbav:"eventType"`
	VisitorID string                 `json:"visitorId" dynamodbav:"visitorId"`
	SessionID string                 `json:"sessionId" dynamodbav:"sessionId"`
	Page      string                 `json:"page" dynamodbav:"page"`
	Referrer  string                 `json:"referrer,omitempty" dynamodbav:"referrer,omitempty"`
	Data      map[string]interface{} `json:"data,omitempty" dynamodbav:"data,omitempty"`
	UTM       *UTMParams             `json:"utm,omitempty" dynamodbav:"utm,omitempty"`
	Timestamp time.Time              `json:"timestamp" dynamodbav:"timestamp"`
	UserAgent string                 `json:"userAgent,omitempty" dynamodbav:"userAgent,omitempty"`
	IP        string                 `json:"-" dynamodbav:"ip,omitempty"`
	Country   string                 `json:"country,omitempty" dynamodbav:"country,omitempty"`
	IsBot     bool                   `json:"isBot,omitempty" dynamodbav:"isBot,omitempty"`

	CompanyName     string `json:"companyName,omitempty" dynamodbav:"companyName,omitempty"`
	CompanyDomain   string `json:"companyDomain,omitempty" dynamodbav:"companyDomain,omitempty"`
	CompanyIndustry string `json:"companyIndustry,omitempty" dynamodbav:"companyIndustry,omitempty"`
}

// Device classes recorded on sessions.
const (
	DeviceDesktop = "desktop"
	DeviceMobile  = "mobile"
	DeviceTablet  = "tablet"
)

// Session is one visit, upserted as events arrive.
type Session struct {
	SessionID      string       `json:"sessionId" dynamodbav:"sessionId"`
	VisitorID      string       `json:"visitorId" dynamodbav:"visitorId"`
	StartTime      time.Time    `json:"startTime" dynamodbav:"startTime"`
	EndTime        *time.Time   `json:"endTime,omitempty" dynamodbav:"endTime,omitempty"`
	Duration       int          `json:"duration,omitempty" dynamodbav:"duration,omitempty"`
	PageCount      int          `json:"pageCount" dynamodbav:"pageCount"`
	EntryPage      string       `json:"entryPage" dynamodbav:"entryPage"`
	ExitPage       string       `json:"exitPage,omitempty" dynamodbav:"exitPage,omitempty"`
	Device         string       `json:"device" dynamodbav:"device"`
	IsConverted    bool         `json:"isConverted" dynamodbav:"isConverted"`
	ConversionType string       `json:"conversionType,omitempty" dynamodbav:"conversionType,omitempty"`
	Country        string       `json:"country,omitempty" dynamodbav:"country,omitempty"`
	ReferrerSource string       `json:"referrerSource,omitempty" dynamodbav:"referrerSource,omitempty"`
	ReferrerMedium string       `json:"referrerMedium,omitempty" dynamodbav:"referrerMedium,omitempty"`
	IsReturning    bool         `json:"isReturning,omitempty" dynamodbav:"isReturning,omitempty"`
	MaxScrollDepth int          `json:"maxScrollDepth,omitempty" dynamodbav:"maxScrollDepth,omitempty"`
	CompanyName    string       `json:"companyName,omitempty" dynamodbav:"companyName,omitempty"`
	CompanyDomain  string       `json:"companyDomain,omitempty" dynamodbav:"companyDomain,omitempty"`
	LeadScore      int          `json:"leadScore,omitempty" dynamodbav:"leadScore,omitempty"`
	LeadTier       BehaviorTier `json:"leadTier,omitempty" dynamodbav:"leadTier,omitempty"`
	PagesVisited   []string     `json:"pagesVisited,omitempty" dynamodbav:"pagesVisited,omitempty"`

	PageJourney []PageJourneyStep `json:"pageJourney,omitempty" dynamodbav:"pageJourney,omitempty"`
}

// PageJourneyStep is one page in a visitor's path.
type PageJourneyStep struct {
	Page      string    `json:"page" dynamodbav:"page"`
	Timestamp time.Time `json:"timestamp" dynamodbav:"timestamp"`
	Referrer  string    `json:"referrer,omitempty" dynamodbav:"referrer,omitempty"`
}

// ConversionPath records the journey that ended in a conversion.
type ConversionPath struct {
	ConversionID   string            `json:"conversionId" dynamodbav:"conversionId"`
	VisitorID      string            `json:"visitorId" dynamodbav:"visitorId"`
	SessionID      string            `json:"sessionId" dynamodbav:"sessionId"`
	ConversionType string            `json:"conversionType" dynamodbav:"conversionType"`
	ConversionPage string            `json:"conversionPage" dynamodbav:"conversionPage"`
	Timestamp      time.Time         `json:"timestamp" dynamodbav:"timestamp"`
	PageJourney    []PageJourneyStep `json:"pageJourney" dynamodbav:"pageJourney"`
	JourneyLength  int               `json:"journeyLength" dynamodbav:"journeyLength"`
	FirstTouchPage string            `json:"firstTouchPage" dynamodbav:"firstTouchPage"`
	LastTouchPage  string            `json:"lastTouchPage" dynamodbav:"lastTouchPage"`
	Device         string            `json:"device,omitempty" dynamodbav:"device,omitempty"`
	Country        string            `json:"country,omitempty" dynamodbav:"country,omitempty"`
	ReferrerSource string            `json:"referrerSource,omitempty" dynamodbav:"referrerSource,omitempty"`
	ReferrerMedium string            `json:"referrerMedium,omitempty" dynamodbav:"referrerMedium,omitempty"`
	UTM            *UTMParams        `json:"utm,omitempty" dynamodbav:"utm,omitempty"`
}
