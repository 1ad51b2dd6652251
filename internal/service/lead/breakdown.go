package lead

import (
	"time"

	"github.com/databender/leadengine/internal/domain"
	"github.com/databender/leadengine/internal/scoring"
)

// ScoreBreakdown rescores a stored lead from what the lead record knows: its
// pages, journey, form and last activity. Behavior credit decays from the
// day it was earned, so an old capture scores lower than a fresh one.
func (s *Service) ScoreBreakdown(l *domain.Lead) scoring.Breakdown {
	return s.rules.CalculateLeadScore(visitorData(l), s.now())
}

func visitorData(l *domain.Lead) scoring.VisitorData {
	d := scoring.VisitorData{
		PagesVisited:        l.PagesVisited,
		Email:               l.Email,
		FormSubmitted:       l.FormType != "",
		AssessmentCompleted: l.FormType == domain.FormAssessment,
		HasDownloadedGuide:  l.FormType == domain.FormGuide,
		ActionCount:         len(l.PageJourney),
	}

	seenDay := make(map[string]bool)
	for _, step := range l.PageJourney {
		d.PageSequence = append(d.PageSequence, step.Page)
		day := step.Timestamp.UTC().Format("2006-01-02")
		if !seenDay[day] {
			seenDay[day] = true
			d.VisitDates = append(d.VisitDates, step.Timestamp)
		}
	}
	d.IsReturningVisitor = len(d.VisitDates) > 1

	last := l.CreatedAt
	if l.LastActivityAt != nil && l.LastActivityAt.After(last) {
		last = *l.LastActivityAt
	}
	for _, v := range d.VisitDates {
		if v.After(last) {
			last = v
		}
	}
	if !last.IsZero() {
		d.LastVisitDate = &last
	}

	if d.FormSubmitted {
		points := scoring.FormSubmittedScore
		if d.AssessmentCompleted {
			points += scoring.AssessmentCompletedScore
		}
		d.EventTimestamps = append(d.EventTimestamps, domain.ScoreEvent{
			Score:     points,
			EventType: string(domain.EventFormSubmit),
			Timestamp: l.CreatedAt,
		})
	}
	if d.IsReturningVisitor {
		d.EventTimestamps = append(d.EventTimestamps, domain.ScoreEvent{
			Score:     scoring.ReturningVisitorScore,
			EventType: string(domain.EventPageview),
			Timestamp: latest(d.VisitDates),
		})
	}
	return d
}

func latest(ts []time.Time) time.Time {
	var out time.Time
	for _, t := range ts {
		if t.After(out) {
			out = t
		}
	}
	return out
}
