package sequence

import (
	"math"
	"sort"
	"strings"
	"unicode"

	"github.com/databender/leadengine/internal/domain"
)

// DefaultAssessmentName is used when the lead's resource slug is unknown.
const DefaultAssessmentName = "Data & AI Readiness Assessment"

// AssessmentNames maps assessment resource slugs to display names.
var AssessmentNames = map[string]string{
	"data-ai-readiness":       "Data & AI Readiness Assessment",
	"manufacturing":           "Manufacturing AI Readiness Assessment",
	"healthcare-benchmark":    "Healthcare Data Benchmark",
	"healthcare-ai-readiness": "Healthcare AI Readiness Assessment",
	"legal":                   "Legal AI Readiness Assessment",
	"commercial-real-estate":  "CRE Data & AI Assessment",
}

// legalGuides get the legal nurture track. Every other guide uses
// guide-general.
var legalGuides = map[string]struct{}{
	"legal-ai-readiness":   {},
	"ai-in-legal":          {},
	"associate-multiplier": {},
	"win-more-pitches":     {},
	"partner-succession":   {},
	"last-vendor":          {},
}

// GuideSequenceType picks the nurture sequence for a downloaded guide.
func GuideSequenceType(slug string) domain.SequenceType {
	if _, ok := legalGuides[slug]; ok {
		return domain.SequenceGuideLegal
	}
	return domain.SequenceGuideGeneral
}

// SequenceForForm returns the sequence a new form submission enrolls in.
func SequenceForForm(ft domain.FormType, resourceSlug string) (domain.SequenceType, bool) {
	switch ft {
	case domain.FormAssessment:
		return domain.SequenceAssessment, true
	case domain.FormGuide:
		return GuideSequenceType(resourceSlug), true
	}
	return "", false
}

// AssessmentDetails summarises a lead's assessment category scores.
type AssessmentDetails struct {
	OverallScore        int
	LowestCategory      string
	LowestCategoryScore int
	HighestCategory     string
}

// SummarizeAssessment averages the category scores and finds the weakest
// and strongest category. Ties go to the alphabetically first category.
func SummarizeAssessment(scores map[string]int) AssessmentDetails {
	if len(scores) == 0 {
		return AssessmentDetails{LowestCategory: "General", HighestCategory: "General"}
	}
	keys := make([]string, 0, len(scores))
	for k := range scores {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	total := 0
	low, high := keys[0], keys[0]
	for _, k := range keys {
		v := scores[k]
		total += v
		if v < scores[low] {
			low = k
		}
		if v > scores[high] {
			high = k
		}
	}
	return AssessmentDetails{
		OverallScore:        int(math.Floor(float64(total)/float64(len(keys)) + 0.5)),
		LowestCategory:      FormatCategory(low),
		LowestCategoryScore: scores[low],
		HighestCategory:     FormatCategory(high),
	}
}

// FormatCategory turns "dataQuality" or "data_quality" into a display label
// ("Data Quality", "Data quality").
func FormatCategory(key string) string {
	var b strings.Builder
	for _, r := range key {
		switch {
		case unicode.IsUpper(r):
			b.WriteRune(' ')
			b.WriteRune(r)
		case r == '_':
			b.WriteRune(' ')
		default:
			b.WriteRune(r)
		}
	}
	out := []rune(strings.TrimSpace(b.String()))
	if len(out) > 0 {
		out[0] = unicode.ToUpper(out[0])
	}
	return string(out)
}

// Links holds the site URLs injected into every template.
type Links struct {
	SiteURL     string
	CalendarURL string
}

// TemplateVars builds the Liquid bindings for a lead's sequence email.
func TemplateVars(lead *domain.Lead, seqType domain.SequenceType, links Links, unsubscribeURL string) map[string]interface{} {
	site := strings.TrimRight(links.SiteURL, "/")
	calendar := links.CalendarURL
	if calendar == "" {
		calendar = site + "/contact"
	}

	company := lead.Company
	if company == "" && seqType.IsCold() {
		company = "your company"
	}
	industry := lead.Industry
	if industry == "" {
		industry = lead.IdentifiedIndustry
	}
	assessmentName := DefaultAssessmentName
	if name, ok := AssessmentNames[lead.ResourceSlug]; ok {
		assessmentName = name
	}
	details := SummarizeAssessment(lead.AssessmentScores)

	vars := map[string]interface{}{
		"first_name":            lead.FirstName,
		"last_name":             lead.LastName,
		"email":                 lead.Email,
		"company":               company,
		"industry":              industry,
		"overall_score":         details.OverallScore,
		"lowest_category":       details.LowestCategory,
		"lowest_category_score": details.LowestCategoryScore,
		"highest_category":      details.HighestCategory,
		"primary_challenge":     lead.Message,
		"assessment_name":       assessmentName,
		"guide_title":           lead.ResourceTitle,
		"guide_slug":            lead.ResourceSlug,
		"download_url":          "",
		"content_url":           "",
		"site_url":              site,
		"calendar_url":          calendar,
		"unsubscribe_url":       unsubscribeURL,
	}
	if lead.ResourceSlug != "" {
		vars["download_url"] = site + "/guides/" + lead.ResourceSlug + ".pdf"
		vars["content_url"] = site + "/resources/guides/" + lead.ResourceSlug + "/content"
	}
	return vars
}
