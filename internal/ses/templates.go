package ses

import (
	"bufio"
	"embed"
	"fmt"
	"html"
	"io/fs"
	"strings"
	"sync"

	"github.com/osteele/liquid"

	"github.com/databender/leadengine/internal/domain"
)

//go:embed templates
var embeddedTemplates embed.FS

// Tagline closes every branded email.
const Tagline = "Databender - Boutique strategy. Enterprise delivery."

// Notification templates sent to the sales inbox.
const (
	TemplateLeadCaptured = "notifications/lead_captured"
	TemplateDailySummary = "notifications/daily_summary"
)

// Rendered is a ready-to-send email.
type Rendered struct {
	Subject string
	HTML    string
	Text    string
}

// emailTemplate is a parsed template file: a block of "key: value" header
// lines, a "---" separator, then a plain-text Liquid body whose blank lines
// separate paragraphs.
type emailTemplate struct {
	subject  *liquid.Template
	heading  *liquid.Template
	ctaLabel *liquid.Template
	ctaURL   *liquid.Template
	body     *liquid.Template
}

// TemplateService renders sequence and notification emails from Liquid
// templates. Parsed templates are cached by name.
type TemplateService struct {
	engine  *liquid.Engine
	files   fs.FS
	cache   sync.Map // map[string]*emailTemplate
	layouts map[string]*liquid.Template
}

// NewTemplateService loads templates from files, which must contain the same
// layout as the embedded "templates" directory. A nil files uses the
// templates compiled into the binary.
func NewTemplateService(files fs.FS) (*TemplateService, error) {
	if files == nil {
		sub, err := fs.Sub(embeddedTemplates, "templates")
		if err != nil {
			return nil, err
		}
		files = sub
	}

	ts := &TemplateService{
		engine:  liquid.NewEngine(),
		files:   files,
		layouts: make(map[string]*liquid.Template),
	}
	ts.registerCustomFilters()

	for _, name := range []string{"branded", "plain"} {
		src, err := fs.ReadFile(files, "layouts/"+name+".liquid")
		if err != nil {
			return nil, fmt.Errorf("read layout %s: %w", name, err)
		}
		tpl, perr := ts.engine.ParseString(string(src))
		if perr != nil {
			return nil, fmt.Errorf("parse layout %s: %w", name, perr)
		}
		ts.layouts[name] = tpl
	}
	return ts, nil
}

func (ts *TemplateService) registerCustomFilters() {
	// {{ first_name | default: "there" }} also covers empty strings.
	ts.engine.RegisterFilter("default", func(value interface{}, defaultVal string) interface{} {
		if value == nil {
			return defaultVal
		}
		if s := fmt.Sprintf("%v", value); s == "" || s == "<nil>" {
			return defaultVal
		}
		return value
	})

	ts.engine.RegisterFilter("truncate", func(s string, length int) string {
		r := []rune(s)
		if len(r) <= length {
			return s
		}
		if length > 3 {
			return string(r[:length-3]) + "..."
		}
		return string(r[:length])
	})
}

// SequenceTemplateName returns the template path for a sequence day.
func SequenceTemplateName(seqType domain.SequenceType, day int) string {
	return fmt.Sprintf("%s/day%d", seqType, day)
}

// RenderSequence renders one step of a drip sequence. Cold sequences use the
// plain layout with no branding.
func (ts *TemplateService) RenderSequence(seqType domain.SequenceType, day int, vars map[string]interface{}) (*Rendered, error) {
	layout := "branded"
	if seqType.IsCold() {
		layout = "plain"
	}
	return ts.Render(SequenceTemplateName(seqType, day), layout, vars)
}

// RenderText renders a template that only needs a subject and a text body,
// such as internal notifications.
func (ts *TemplateService) RenderText(name string, vars map[string]interface{}) (*Rendered, error) {
	return ts.Render(name, "", vars)
}

// Render renders the named template into the given layout. An empty layout
// skips the HTML part.
func (ts *TemplateService) Render(name, layout string, vars map[string]interface{}) (*Rendered, error) {
	tpl, err := ts.load(name)
	if err != nil {
		return nil, err
	}

	subject, err := renderOptional(tpl.subject, vars)
	if err != nil {
		return nil, fmt.Errorf("render %s subject: %w", name, err)
	}
	body, err := renderOptional(tpl.body, vars)
	if err != nil {
		return nil, fmt.Errorf("render %s body: %w", name, err)
	}
	heading, err := renderOptional(tpl.heading, vars)
	if err != nil {
		return nil, err
	}
	ctaLabel, err := renderOptional(tpl.ctaLabel, vars)
	if err != nil {
		return nil, err
	}
	ctaURL, err := renderOptional(tpl.ctaURL, vars)
	if err != nil {
		return nil, err
	}

	out := &Rendered{Subject: strings.TrimSpace(subject)}
	if layout == "" {
		out.Text = strings.TrimSpace(body) + "\n"
		return out, nil
	}
	unsubscribeURL, _ := vars["unsubscribe_url"].(string)
	out.Text = textBody(strings.TrimSpace(body), ctaLabel, ctaURL, layout == "branded", unsubscribeURL)

	lt, ok := ts.layouts[layout]
	if !ok {
		return nil, fmt.Errorf("unknown layout %q", layout)
	}
	siteURL, _ := vars["site_url"].(string)
	htmlOut, rerr := lt.RenderString(map[string]interface{}{
		"subject":         html.EscapeString(out.Subject),
		"heading":         html.EscapeString(heading),
		"paragraphs":      htmlParagraphs(body),
		"cta_label":       html.EscapeString(ctaLabel),
		"cta_url":         html.EscapeString(ctaURL),
		"unsubscribe_url": html.EscapeString(unsubscribeURL),
		"site_url":        html.EscapeString(siteURL),
		"tagline":         Tagline,
	})
	if rerr != nil {
		return nil, fmt.Errorf("render layout %s: %w", layout, rerr)
	}
	out.HTML = htmlOut
	return out, nil
}

// Validate parses every sequence and notification template so a missing or
// broken file fails at startup instead of during a send.
func (ts *TemplateService) Validate() error {
	for _, name := range []string{TemplateLeadCaptured, TemplateDailySummary} {
		if _, err := ts.load(name); err != nil {
			return err
		}
	}
	for _, st := range domain.SequenceTypes {
		for _, day := range st.Schedule() {
			if _, err := ts.load(SequenceTemplateName(st, day)); err != nil {
				return err
			}
		}
	}
	return nil
}

func (ts *TemplateService) load(name string) (*emailTemplate, error) {
	if cached, ok := ts.cache.Load(name); ok {
		return cached.(*emailTemplate), nil
	}
	src, err := fs.ReadFile(ts.files, name+".liquid")
	if err != nil {
		return nil, fmt.Errorf("no template %s: %w", name, err)
	}
	tpl, err := ts.parse(string(src))
	if err != nil {
		return nil, fmt.Errorf("parse template %s: %w", name, err)
	}
	ts.cache.Store(name, tpl)
	return tpl, nil
}

func (ts *TemplateService) parse(src string) (*emailTemplate, error) {
	headers := map[string]string{}
	var body strings.Builder
	inBody := false

	sc := bufio.NewScanner(strings.NewReader(src))
	for sc.Scan() {
		line := sc.Text()
		if inBody {
			body.WriteString(line)
			body.WriteByte('\n')
			continue
		}
		if strings.TrimSpace(line) == "---" {
			inBody = true
			continue
		}
		if strings.TrimSpace(line) == "" {
			continue
		}
		key, value, found := strings.Cut(line, ":")
		if !found {
			return nil, fmt.Errorf("malformed header line %q", line)
		}
		headers[strings.TrimSpace(key)] = strings.TrimSpace(value)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if !inBody {
		return nil, fmt.Errorf("missing --- separator")
	}
	if headers["subject"] == "" {
		return nil, fmt.Errorf("missing subject header")
	}

	t := &emailTemplate{}
	fields := []struct {
		src string
		dst **liquid.Template
	}{
		{headers["subject"], &t.subject},
		{headers["heading"], &t.heading},
		{headers["cta_label"], &t.ctaLabel},
		{headers["cta_url"], &t.ctaURL},
		{body.String(), &t.body},
	}
	for _, f := range fields {
		if f.src == "" {
			continue
		}
		tpl, err := ts.engine.ParseString(f.src)
		if err != nil {
			return nil, err
		}
		*f.dst = tpl
	}
	return t, nil
}

func renderOptional(tpl *liquid.Template, vars map[string]interface{}) (string, error) {
	if tpl == nil {
		return "", nil
	}
	out, err := tpl.RenderString(vars)
	if err != nil {
		return "", err
	}
	return out, nil
}

func splitParagraphs(body string) []string {
	var out []string
	for _, p := range strings.Split(strings.ReplaceAll(body, "\r\n", "\n"), "\n\n") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func htmlParagraphs(body string) []string {
	paras := splitParagraphs(body)
	out := make([]string, len(paras))
	for i, p := range paras {
		out[i] = strings.ReplaceAll(html.EscapeString(p), "\n", "<br>\n")
	}
	return out
}

func textBody(body, ctaLabel, ctaURL string, branded bool, unsubscribeURL string) string {
	var b strings.Builder
	b.WriteString(body)
	if ctaURL != "" {
		label := ctaLabel
		if label == "" {
			label = "Link"
		}
		fmt.Fprintf(&b, "\n\n%s: %s", label, ctaURL)
	}
	b.WriteString("\n\n---\n")
	if branded {
		b.WriteString(Tagline)
		b.WriteString("\n\n")
	}
	if unsubscribeURL != "" {
		b.WriteString("Unsubscribe: " + unsubscribeURL)
	}
	return strings.TrimRight(b.String(), "\n") + "\n"
}
