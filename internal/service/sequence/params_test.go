package sequence

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/databender/leadengine/internal/domain"
)

func TestGuideSequenceType(t *testing.T) {
	assert.Equal(t, domain.SequenceGuideLegal, GuideSequenceType("associate-multiplier"))
	assert.Equal(t, domain.SequenceGuideGeneral, GuideSequenceType("hipaa-compliant-ai"))
	assert.Equal(t, domain.SequenceGuideGeneral, GuideSequenceType("unknown"))
}

func TestSequenceForForm(t *testing.T) {
	st, ok := SequenceForForm(domain.FormAssessment, "legal")
	assert.True(t, ok)
	assert.Equal(t, domain.SequenceAssessment, st)

	st, ok = SequenceForForm(domain.FormGuide, "last-vendor")
	assert.True(t, ok)
	assert.Equal(t, domain.SequenceGuideLegal, st)

	_, ok = SequenceForForm(domain.FormContact, "")
	assert.False(t, ok)
}

func TestSummarizeAssessment(t *testing.T) {
	d := SummarizeAssessment(map[string]int{"dataQuality": 40, "governance": 71, "ai_strategy": 30})
	assert.Equal(t, 47, d.OverallScore)
	assert.Equal(t, "Ai strategy", d.LowestCategory)
	assert.Equal(t, 30, d.LowestCategoryScore)
	assert.Equal(t, "Governance", d.HighestCategory)

	empty := SummarizeAssessment(nil)
	assert.Equal(t, AssessmentDetails{LowestCategory: "General", HighestCategory: "General"}, empty)
}

func TestFormatCategory(t *testing.T) {
	assert.Equal(t, "Data Quality", FormatCategory("dataQuality"))
	assert.Equal(t, "Data quality", FormatCategory("data_quality"))
	assert.Equal(t, "Governance", FormatCategory("governance"))
}

func TestTemplateVars(t *testing.T) {
	lead := &domain.Lead{
		Email:              "dana@acme.com",
		FirstName:          "Dana",
		IdentifiedIndustry: "Legal",
		ResourceSlug:       "legal",
		ResourceTitle:      "Legal AI Readiness",
	}
	vars := TemplateVars(lead, domain.SequenceColdLegal, Links{SiteURL: "https://databender.co/"}, "https://u")

	assert.Equal(t, "your company", vars["company"])
	assert.Equal(t, "Legal", vars["industry"])
	assert.Equal(t, "Legal AI Readiness Assessment", vars["assessment_name"])
	assert.Equal(t, "https://databender.co/contact", vars["calendar_url"])
	assert.Equal(t, "https://databender.co/guides/legal.pdf", vars["download_url"])
	assert.Equal(t, "https://databender.co/resources/guides/legal/content", vars["content_url"])
	assert.Equal(t, "https://u", vars["unsubscribe_url"])

	vars = TemplateVars(&domain.Lead{Company: "Acme"}, domain.SequenceAssessment, Links{SiteURL: "https://d.co", CalendarURL: "https://cal.com/x"}, "")
	assert.Equal(t, "Acme", vars["company"])
	assert.Equal(t, DefaultAssessmentName, vars["assessment_name"])
	assert.Equal(t, "https://cal.com/x", vars["calendar_url"])
	assert.Equal(t, "", vars["download_url"])
}
