package domain

import (
	"strings"
	"time"
)

// LeadStatus is the sales pipeline stage of a lead.
type LeadStatus string

const (
	LeadNew         LeadStatus = "new"
	LeadContacted   LeadStatus = "contacted"
	LeadQualified   LeadStatus = "qualified"
	LeadOpportunity LeadStatus = "opportunity"
	LeadCustomer    LeadStatus = "customer"
	LeadLost        LeadStatus = "lost"
)

// LeadStatuses lists every pipeline stage in funnel order.
var LeadStatuses = []LeadStatus{LeadNew, LeadContacted, LeadQualified, LeadOpportunity, LeadCustomer, LeadLost}

// Valid reports whether s is a known pipeline stage.
func (s LeadStatus) Valid() bool {
	for _, v := range LeadStatuses {
		if s == v {
			return true
		}
	}
	return false
}

// IsConverted reports whether the stage counts as a conversion in reports.
func (s LeadStatus) IsConverted() bool {
	return s == LeadQualified || s == LeadOpportunity || s == LeadCustomer
}

// LeadTier is the sales priority bucket assigned by a human.
type LeadTier string

const (
	TierA LeadTier = "A"
	TierB LeadTier = "B"
	TierC LeadTier = "C"
)

// Valid reports whether t is A, B or C.
func (t LeadTier) Valid() bool {
	return t == TierA || t == TierB || t == TierC
}

// FormType identifies which form produced the lead.
type FormType string

const (
	FormContact    FormType = "contact"
	FormGuide      FormType = "guide"
	FormAudit      FormType = "audit"
	FormAssessment FormType = "assessment"
	FormChat       FormType = "chat"
	FormNewsletter FormType = "newsletter"
)

// FormTypes lists every accepted form type.
var FormTypes = []FormType{FormContact, FormGuide, FormAudit, FormAssessment, FormChat, FormNewsletter}

// LeadSource is where the lead record came from.
type LeadSource string

const (
	SourceWebsite      LeadSource = "website"
	SourceCSVImport    LeadSource = "csv-import"
	SourceLinkedIn     LeadSource = "linkedin"
	SourceReferral     LeadSource = "referral"
	SourceEvent        LeadSource = "event"
	SourceColdResearch LeadSource = "cold-research"
	SourceOther        LeadSource = "other"
)

// ContactChannel is how sales reached out to a lead.
type ContactChannel string

const (
	ChannelLinkedIn ContactChannel = "linkedin"
	ChannelEmail    ContactChannel = "email"
	ChannelPhone    ContactChannel = "phone"
	ChannelOther    ContactChannel = "other"
)

// ContactChannels lists every accepted outreach channel.
var ContactChannels = []ContactChannel{ChannelLinkedIn, ChannelEmail, ChannelPhone, ChannelOther}

// Valid reports whether c is a known channel.
func (c ContactChannel) Valid() bool {
	for _, v := range ContactChannels {
		if c == v {
			return true
		}
	}
	return false
}

// LeadNote is a free-text note left by an admin.
type LeadNote struct {
	ID        string    `json:"id" dynamodbav:"id"`
	Content   string    `json:"content" dynamodbav:"content"`
	Author    string    `json:"author,omitempty" dynamodbav:"author,omitempty"`
	CreatedAt time.Time `json:"createdAt" dynamodbav:"createdAt"`
}

// ContactRecord is one outreach attempt. Contact history is append-only.
type ContactRecord struct {
	ID          string         `json:"id" dynamodbav:"id"`
	Channel     ContactChannel `json:"channel" dynamodbav:"channel"`
	ContactedAt time.Time      `json:"contactedAt" dynamodbav:"contactedAt"`
	Campaign    string         `json:"campaign,omitempty" dynamodbav:"campaign,omitempty"`
	Notes       string         `json:"notes,omitempty" dynamodbav:"notes,omitempty"`
}

// TrackingHit is a recorded open or click on a sequence email.
type TrackingHit struct {
	EmailDay     int       `json:"emailDay" dynamodbav:"emailDay"`
	SequenceType string    `json:"sequenceType,omitempty" dynamodbav:"sequenceType,omitempty"`
	EmailID      string    `json:"emailId,omitempty" dynamodbav:"emailId,omitempty"`
	URL          string    `json:"url,omitempty" dynamodbav:"url,omitempty"`
	At           time.Time `json:"at" dynamodbav:"at"`
}

// Lead is a contact created from a form submission and tracked through the
// sales pipeline. Leads are never hard-deleted.
type Lead struct {
	PK     string `json:"-" dynamodbav:"pk"`
	SK     string `json:"-" dynamodbav:"sk"`
	LeadID string `json:"leadId" dynamodbav:"leadId"`

	Email     string `json:"email" dynamodbav:"email"`
	FirstName string `json:"firstName" dynamodbav:"firstName"`
	LastName  string `json:"lastName" dynamodbav:"lastName"`
	Company   string `json:"company,omitempty" dynamodbav:"company,omitempty"`
	Phone     string `json:"phone,omitempty" dynamodbav:"phone,omitempty"`
	Message   string `json:"message,omitempty" dynamodbav:"message,omitempty"`

	FormType      FormType `json:"formType" dynamodbav:"formType"`
	ResourceSlug  string   `json:"resourceSlug,omitempty" dynamodbav:"resourceSlug,omitempty"`
	ResourceTitle string   `json:"resourceTitle,omitempty" dynamodbav:"resourceTitle,omitempty"`
	SourcePage    string   `json:"sourcePage" dynamodbav:"sourcePage"`

	VisitorID     string            `json:"visitorId,omitempty" dynamodbav:"visitorId,omitempty"`
	SessionID     string            `json:"sessionId,omitempty" dynamodbav:"sessionId,omitempty"`
	BehaviorScore int               `json:"behaviorScore,omitempty" dynamodbav:"behaviorScore,omitempty"`
	BehaviorTier  BehaviorTier      `json:"behaviorTier,omitempty" dynamodbav:"behaviorTier,omitempty"`
	PagesVisited  []string          `json:"pagesVisited,omitempty" dynamodbav:"pagesVisited,omitempty"`
	PageJourney   []PageJourneyStep `json:"pageJourney,omitempty" dynamodbav:"pageJourney,omitempty"`

	IdentifiedCompany  string `json:"identifiedCompany,omitempty" dynamodbav:"identifiedCompany,omitempty"`
	IdentifiedDomain   string `json:"identifiedDomain,omitempty" dynamodbav:"identifiedDomain,omitempty"`
	IdentifiedIndustry string `json:"identifiedIndustry,omitempty" dynamodbav:"identifiedIndustry,omitempty"`

	UTMSource             string     `json:"utmSource,omitempty" dynamodbav:"utmSource,omitempty"`
	UTMMedium             string     `json:"utmMedium,omitempty" dynamodbav:"utmMedium,omitempty"`
	UTMCampaign           string     `json:"utmCampaign,omitempty" dynamodbav:"utmCampaign,omitempty"`
	UTMTerm               string     `json:"utmTerm,omitempty" dynamodbav:"utmTerm,omitempty"`
	UTMContent            string     `json:"utmContent,omitempty" dynamodbav:"utmContent,omitempty"`
	ReferrerSource        string     `json:"referrerSource,omitempty" dynamodbav:"referrerSource,omitempty"`
	ReferrerMedium        string     `json:"referrerMedium,omitempty" dynamodbav:"referrerMedium,omitempty"`
	FirstTouchSource      string     `json:"firstTouchSource,omitempty" dynamodbav:"firstTouchSource,omitempty"`
	FirstTouchLandingPage string     `json:"firstTouchLandingPage,omitempty" dynamodbav:"firstTouchLandingPage,omitempty"`
	FirstVisitDate        *time.Time `json:"firstVisitDate,omitempty" dynamodbav:"firstVisitDate,omitempty"`

	Status         LeadStatus      `json:"status" dynamodbav:"status"`
	Tier           LeadTier        `json:"tier,omitempty" dynamodbav:"tier,omitempty"`
	Industry       string          `json:"industry,omitempty" dynamodbav:"industry,omitempty"`
	Notes          []LeadNote      `json:"notes,omitempty" dynamodbav:"notes,omitempty"`
	Tags           []string        `json:"tags,omitempty" dynamodbav:"tags,omitempty"`
	ContactHistory []ContactRecord `json:"contactHistory,omitempty" dynamodbav:"contactHistory,omitempty"`
	AssignedTo     string          `json:"assignedTo,omitempty" dynamodbav:"assignedTo,omitempty"`
	LeadSource     LeadSource      `json:"leadSource,omitempty" dynamodbav:"leadSource,omitempty"`

	AssessmentScores map[string]int `json:"assessmentScores,omitempty" dynamodbav:"assessmentScores,omitempty"`
	AssessmentTier   string         `json:"assessmentTier,omitempty" dynamodbav:"assessmentTier,omitempty"`

	EmailSequence *EmailSequence `json:"emailSequence,omitempty" dynamodbav:"emailSequence,omitempty"`
	Opens         []TrackingHit  `json:"opens,omitempty" dynamodbav:"opens,omitempty"`
	Clicks        []TrackingHit  `json:"clicks,omitempty" dynamodbav:"clicks,omitempty"`
	HasReplied    bool           `json:"hasReplied,omitempty" dynamodbav:"hasReplied,omitempty"`

	CreatedAt      time.Time  `json:"createdAt" dynamodbav:"createdAt"`
	UpdatedAt      time.Time  `json:"updatedAt" dynamodbav:"updatedAt"`
	LastActivityAt *time.Time `json:"lastActivityAt,omitempty" dynamodbav:"lastActivityAt,omitempty"`
}

// HasBeenContacted reports whether any outreach has been recorded.
func (l *Lead) HasBeenContacted() bool {
	return len(l.ContactHistory) > 0
}

// ContactedVia reports whether the lead was reached through any of channels.
func (l *Lead) ContactedVia(channels ...ContactChannel) bool {
	for _, rec := range l.ContactHistory {
		for _, ch := range channels {
			if rec.Channel == ch {
				return true
			}
		}
	}
	return false
}

// FullName joins first and last name.
func (l *Lead) FullName() string {
	return strings.TrimSpace(l.FirstName + " " + l.LastName)
}

// EmailDomain returns the lowercase domain part of the lead's email.
func (l *Lead) EmailDomain() string {
	return EmailDomain(l.Email)
}

// EmailDomain returns the lowercase domain part of an address, or "".
func EmailDomain(email string) string {
	at := strings.LastIndex(email, "@")
	if at < 0 || at == len(email)-1 {
		return ""
	}
	return strings.ToLower(email[at+1:])
}

// NormalizeEmail lowercases and trims an address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Key prefixes and the timestamp layout used in lead sort keys.
const (
	LeadKeyPrefix    = "LEAD#"
	CreatedKeyPrefix = "#CREATED#"
	TimestampLayout  = "2006-01-02T15:04:05.000Z07:00"
)

// LeadPK returns the partition key for a lead email.
func LeadPK(email string) string {
	return LeadKeyPrefix + NormalizeEmail(email)
}

// LeadSK returns the sort key for a lead creation time.
func LeadSK(createdAt time.Time) string {
	return CreatedKeyPrefix + createdAt.UTC().Format(TimestampLayout)
}
