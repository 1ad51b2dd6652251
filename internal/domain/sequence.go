package domain

import (
	"fmt"
	"strings"
	"time"
)

// SequenceType selects the template set and schedule of a drip sequence.
type SequenceType string

const (
	SequenceAssessment        SequenceType = "assessment"
	SequenceGuideLegal        SequenceType = "guide-legal"
	SequenceGuideGeneral      SequenceType = "guide-general"
	SequenceColdLegal         SequenceType = "cold-legal"
	SequenceColdManufacturing SequenceType = "cold-manufacturing"
	SequenceColdHealthcare    SequenceType = "cold-healthcare"
	SequenceColdCRE           SequenceType = "cold-cre"
)

// SequenceTypes lists every supported sequence type.
var SequenceTypes = []SequenceType{
	SequenceAssessment, SequenceGuideLegal, SequenceGuideGeneral,
	SequenceColdLegal, SequenceColdManufacturing, SequenceColdHealthcare, SequenceColdCRE,
}

// Valid reports whether t is a supported sequence type.
func (t SequenceType) Valid() bool {
	for _, v := range SequenceTypes {
		if t == v {
			return true
		}
	}
	return false
}

// IsCold reports whether t is a cold outreach sequence.
func (t SequenceType) IsCold() bool {
	return strings.HasPrefix(string(t), "cold-")
}

// Send schedules, in days since enrollment.
var (
	NurtureSchedule = []int{0, 2, 7, 14, 21}
	ColdSchedule    = []int{0, 3, 7, 14}
)

// Schedule returns the send days for t.
func (t SequenceType) Schedule() []int {
	if t.IsCold() {
		return ColdSchedule
	}
	return NurtureSchedule
}

// FinalDay returns the last scheduled day for t.
func (t SequenceType) FinalDay() int {
	s := t.Schedule()
	return s[len(s)-1]
}

// SequenceStatus is the stored state of a lead's sequence.
type SequenceStatus string

const (
	SequenceActive       SequenceStatus = "active"
	SequenceCompleted    SequenceStatus = "completed"
	SequencePaused       SequenceStatus = "paused"
	SequenceUnsubscribed SequenceStatus = "unsubscribed"
	SequenceBounced      SequenceStatus = "bounced"
)

// BounceType classifies an SES bounce.
type BounceType string

const (
	BounceHard         BounceType = "hard"
	BounceSoft         BounceType = "soft"
	BounceUndetermined BounceType = "undetermined"
)

// Valid reports whether b is a known bounce type.
func (b BounceType) Valid() bool {
	return b == BounceHard || b == BounceSoft || b == BounceUndetermined
}

// Pause reasons recorded on a sequence. Admins may store free text as well.
const (
	PauseManual      = "manual"
	PauseBounceHard  = "bounce_hard"
	PauseBounceSoft  = "bounce_soft"
	PauseComplaint   = "complaint"
	PauseReplied     = "replied"
	PauseOutOfOffice = "out_of_office"
)

// EmailSentRecord marks a delivered sequence step.
type EmailSentRecord struct {
	SentAt    time.Time `json:"sentAt" dynamodbav:"sentAt"`
	MessageID string    `json:"messageId,omitempty" dynamodbav:"messageId,omitempty"`
}

// EmailSequence is the drip state embedded in a lead.
type EmailSequence struct {
	SequenceType     SequenceType               `json:"sequenceType" dynamodbav:"sequenceType"`
	EnrolledAt       time.Time                  `json:"enrolledAt" dynamodbav:"enrolledAt"`
	Status           SequenceStatus             `json:"status" dynamodbav:"status"`
	PauseReason      string                     `json:"pauseReason,omitempty" dynamodbav:"pauseReason,omitempty"`
	CurrentDay       int                        `json:"currentDay" dynamodbav:"currentDay"`
	EmailsSent       map[string]EmailSentRecord `json:"emailsSent" dynamodbav:"emailsSent"`
	CompletedAt      *time.Time                 `json:"completedAt,omitempty" dynamodbav:"completedAt,omitempty"`
	UnsubscribedAt   *time.Time                 `json:"unsubscribedAt,omitempty" dynamodbav:"unsubscribedAt,omitempty"`
	BounceType       BounceType                 `json:"bounceType,omitempty" dynamodbav:"bounceType,omitempty"`
	BounceCount      int                        `json:"bounceCount,omitempty" dynamodbav:"bounceCount,omitempty"`
	LastBounceAt     *time.Time                 `json:"lastBounceAt,omitempty" dynamodbav:"lastBounceAt,omitempty"`
	LastBounceReason string                     `json:"lastBounceReason,omitempty" dynamodbav:"lastBounceReason,omitempty"`
	ComplainedAt     *time.Time                 `json:"complainedAt,omitempty" dynamodbav:"complainedAt,omitempty"`
	RepliedAt        *time.Time                 `json:"repliedAt,omitempty" dynamodbav:"repliedAt,omitempty"`
	PausedAt         *time.Time                 `json:"pausedAt,omitempty" dynamodbav:"pausedAt,omitempty"`
	ResumedAt        *time.Time                 `json:"resumedAt,omitempty" dynamodbav:"resumedAt,omitempty"`
}

// DayKey returns the emailsSent key for a schedule day ("day7").
func DayKey(day int) string {
	return fmt.Sprintf("day%d", day)
}

// IsHardBounced reports whether the address is known to be invalid.
func (s *EmailSequence) IsHardBounced() bool {
	return s.Status == SequenceBounced || s.BounceType == BounceHard
}

// IsTerminal reports whether the sequence may never send again: hard
// bounced, unsubscribed, or complained.
func (s *EmailSequence) IsTerminal() bool {
	return s.IsHardBounced() || s.Status == SequenceUnsubscribed || s.ComplainedAt != nil
}

// WasSent reports whether the given schedule day has been delivered.
func (s *EmailSequence) WasSent(day int) bool {
	_, ok := s.EmailsSent[DayKey(day)]
	return ok
}

// Clone returns a deep copy so callers can mutate without aliasing.
func (s *EmailSequence) Clone() *EmailSequence {
	if s == nil {
		return nil
	}
	c := *s
	c.EmailsSent = make(map[string]EmailSentRecord, len(s.EmailsSent))
	for k, v := range s.EmailsSent {
		c.EmailsSent[k] = v
	}
	return &c
}
