package lead

import (
	"context"
	"encoding/csv"
	"errors"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/databender/leadengine/internal/domain"
	"github.com/databender/leadengine/internal/enrich"
	"github.com/databender/leadengine/internal/scoring"
	"github.com/databender/leadengine/internal/service/sequence"
	"github.com/databender/leadengine/internal/tasks"
)

// mockRepo is an in-memory repository for testing.
type mockRepo struct {
	mu      sync.RWMutex
	leads   map[string]*domain.Lead // by leadId
	updates []map[string]interface{}
	failPut error
	now     func() time.Time
}

func newMockRepo() *mockRepo {
	return &mockRepo{leads: make(map[string]*domain.Lead), now: func() time.Time { return testNow }}
}

func (m *mockRepo) get(id string) domain.Lead {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return *m.leads[id]
}

func (m *mockRepo) GetLeadByEmail(_ context.Context, email string) (*domain.Lead, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var newest *domain.Lead
	for _, l := range m.leads {
		if l.Email == email && (newest == nil || l.CreatedAt.After(newest.CreatedAt)) {
			newest = l
		}
	}
	if newest == nil {
		return nil, nil
	}
	cp := *newest
	return &cp, nil
}

func (m *mockRepo) GetByID(_ context.Context, id string) (*domain.Lead, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	l, ok := m.leads[id]
	if !ok {
		return nil, nil
	}
	cp := *l
	return &cp, nil
}

func (m *mockRepo) Put(_ context.Context, l *domain.Lead) error {
	if m.failPut != nil {
		return m.failPut
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *l
	m.leads[l.LeadID] = &cp
	return nil
}

func (m *mockRepo) Update(_ context.Context, l *domain.Lead, fields map[string]interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.leads[l.LeadID]
	if !ok {
		return errors.New("conditional check failed")
	}
	m.updates = append(m.updates, fields)
	for k, v := range fields {
		switch k {
		case "status":
			stored.Status = v.(domain.LeadStatus)
		case "tier":
			stored.Tier = v.(domain.LeadTier)
		case "firstName":
			stored.FirstName = v.(string)
		case "company":
			stored.Company = v.(string)
		case "phone":
			stored.Phone = v.(string)
		case "behaviorScore":
			stored.BehaviorScore = v.(int)
		case "lastActivityAt":
			t := v.(time.Time)
			stored.LastActivityAt = &t
		}
	}
	stored.UpdatedAt = m.now()
	l.UpdatedAt = stored.UpdatedAt
	return nil
}

func (m *mockRepo) AppendNote(_ context.Context, l *domain.Lead, note domain.LeadNote) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored := m.leads[l.LeadID]
	stored.Notes = append(stored.Notes, note)
	l.Notes = append(l.Notes, note)
	return nil
}

func (m *mockRepo) AppendContact(_ context.Context, l *domain.Lead, rec domain.ContactRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored := m.leads[l.LeadID]
	stored.ContactHistory = append(stored.ContactHistory, rec)
	l.ContactHistory = append(l.ContactHistory, rec)
	return nil
}

func (m *mockRepo) AppendTrackingHit(_ context.Context, l *domain.Lead, kind HitKind, hit domain.TrackingHit) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored := m.leads[l.LeadID]
	if kind == HitOpen {
		stored.Opens = append(stored.Opens, hit)
	} else {
		stored.Clicks = append(stored.Clicks, hit)
	}
	return nil
}

func (m *mockRepo) all() []domain.Lead {
	out := make([]domain.Lead, 0, len(m.leads))
	for _, l := range m.leads {
		out = append(out, *l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func (m *mockRepo) List(_ context.Context, f ListFilter) ([]domain.Lead, string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []domain.Lead
	for _, l := range m.all() {
		l := l
		if f.Matches(&l) {
			out = append(out, l)
		}
	}
	if len(out) > f.Limit {
		return out[:f.Limit], "more", nil
	}
	return out, "", nil
}

func (m *mockRepo) ListCreatedBetween(_ context.Context, from, to time.Time) ([]domain.Lead, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	f := ListFilter{From: from, To: to}
	var out []domain.Lead
	for _, l := range m.all() {
		l := l
		if f.Matches(&l) {
			out = append(out, l)
		}
	}
	return out, nil
}

type fakeEnroller struct {
	mu     sync.Mutex
	calls  []domain.SequenceType
	result sequence.Result
	err    error
}

func (f *fakeEnroller) Enroll(_ context.Context, _ string, t domain.SequenceType) (sequence.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, t)
	return f.result, f.err
}

type fakeArchive struct {
	names []string
	err   error
}

func (f *fakeArchive) ArchiveExport(_ context.Context, name string, _ []byte) (string, error) {
	f.names = append(f.names, name)
	if f.err != nil {
		return "", f.err
	}
	return "exports/2026/03/10/" + name, nil
}

type stubCompanies map[string]*enrich.Company

func (s stubCompanies) Company(_ context.Context, ip string) *enrich.Company { return s[ip] }

var testNow = time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC)

type testEnv struct {
	svc    *Service
	repo   *mockRepo
	queue  *tasks.MemoryQueue
	enroll *fakeEnroller
}

func newTestEnv(opts ...Option) *testEnv {
	env := &testEnv{
		repo:   newMockRepo(),
		queue:  tasks.NewMemoryQueue(10),
		enroll: &fakeEnroller{result: sequence.Result{Success: true, Action: sequence.ActionEnrolled}},
	}
	base := []Option{
		WithClock(func() time.Time { return testNow }),
		WithRules(scoring.NewRules(nil, []string{"rival.io"})),
		WithEnroller(env.enroll),
		WithPublisher(env.queue),
	}
	env.svc = NewService(env.repo, append(base, opts...)...)
	return env
}

func (e *testEnv) taskTypes(t *testing.T) []tasks.Type {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	var types []tasks.Type
	for {
		pending, _ := e.queue.Len()
		if pending == 0 {
			return types
		}
		ds, err := e.queue.Receive(ctx)
		require.NoError(t, err)
		for _, d := range ds {
			types = append(types, d.Task.Type)
		}
	}
}

func contactInput() CaptureInput {
	return CaptureInput{
		FirstName:  "Ada",
		LastName:   "Lovelace",
		Email:      "  Ada@Analytical.io ",
		Company:    "Analytical Engines",
		Phone:      "(415) 555-2671",
		FormType:   domain.FormContact,
		SourcePage: "/contact",
	}
}

func TestCaptureCreatesLead(t *testing.T) {
	env := newTestEnv()

	res, err := env.svc.Capture(context.Background(), contactInput())
	require.NoError(t, err)
	assert.True(t, res.Created)
	assert.False(t, res.Enrolled)

	l := env.repo.get(res.Lead.LeadID)
	assert.Equal(t, "ada@analytical.io", l.Email)
	assert.Equal(t, "+14155552671", l.Phone)
	assert.Equal(t, domain.LeadNew, l.Status)
	assert.Equal(t, domain.SourceWebsite, l.LeadSource)
	assert.Equal(t, scoring.FormSubmittedScore, l.BehaviorScore)
	assert.Equal(t, domain.BehaviorWarm, l.BehaviorTier)
	assert.Equal(t, testNow, l.CreatedAt)

	assert.Empty(t, env.enroll.calls, "contact form has no sequence")
	assert.Equal(t, []tasks.Type{tasks.TypeLeadCaptured}, env.taskTypes(t))
}

func TestCaptureMergesRepeatSubmission(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	first, err := env.svc.Capture(ctx, contactInput())
	require.NoError(t, err)

	again := contactInput()
	again.Email = "ADA@analytical.io"
	again.FirstName = "Augusta"
	again.Company = ""
	again.Phone = ""
	again.BehaviorScore = 64
	res, err := env.svc.Capture(ctx, again)
	require.NoError(t, err)
	assert.False(t, res.Created)
	assert.Equal(t, first.Lead.LeadID, res.Lead.LeadID)

	l := env.repo.get(first.Lead.LeadID)
	assert.Equal(t, "Augusta", l.FirstName)
	assert.Equal(t, "Analytical Engines", l.Company, "empty field does not overwrite")
	assert.Equal(t, "+14155552671", l.Phone)
	assert.Equal(t, 64, l.BehaviorScore)
	require.NotNil(t, l.LastActivityAt)

	last := env.repo.updates[len(env.repo.updates)-1]
	assert.NotContains(t, last, "company")
	assert.Contains(t, last, "lastActivityAt")
}

func TestCaptureEnrollsAndQueuesDay0(t *testing.T) {
	env := newTestEnv()
	in := contactInput()
	in.FormType = domain.FormGuide
	in.ResourceSlug = "win-more-pitches"

	res, err := env.svc.Capture(context.Background(), in)
	require.NoError(t, err)
	assert.True(t, res.Enrolled)
	assert.Equal(t, domain.SequenceGuideLegal, res.Sequence)
	assert.Equal(t, []domain.SequenceType{domain.SequenceGuideLegal}, env.enroll.calls)
	assert.Equal(t, []tasks.Type{tasks.TypeLeadCaptured, tasks.TypeSequenceDay0}, env.taskTypes(t))
}

func TestCaptureEnrollmentRefusalOrErrorIsNotFatal(t *testing.T) {
	env := newTestEnv()
	env.enroll.result = sequence.Result{Success: false, Reason: "Previously unsubscribed"}
	in := contactInput()
	in.FormType = domain.FormAssessment

	res, err := env.svc.Capture(context.Background(), in)
	require.NoError(t, err)
	assert.False(t, res.Enrolled)
	assert.Equal(t, []tasks.Type{tasks.TypeLeadCaptured}, env.taskTypes(t))

	env.enroll.err = errors.New("dynamo down")
	res, err = env.svc.Capture(context.Background(), in)
	require.NoError(t, err)
	assert.False(t, res.Enrolled)
}

func TestCaptureCompetitorIsCold(t *testing.T) {
	env := newTestEnv()
	in := contactInput()
	in.Email = "spy@rival.io"
	in.BehaviorScore = 90

	res, err := env.svc.Capture(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Lead.BehaviorScore)
	assert.Equal(t, domain.BehaviorCold, res.Lead.BehaviorTier)
}

func TestCapturePersonalEmailDeduction(t *testing.T) {
	env := newTestEnv()
	in := contactInput()
	in.Email = "ada@gmail.com"

	res, err := env.svc.Capture(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, scoring.FormSubmittedScore+scoring.PersonalEmailDeduction, res.Lead.BehaviorScore)
}

func TestCaptureIdentifiesCompany(t *testing.T) {
	env := newTestEnv(WithCompanyLookup(stubCompanies{"203.0.113.7": {Name: "Acme", Domain: "acme.com"}}))
	in := contactInput()
	in.ClientIP = "203.0.113.7"

	res, err := env.svc.Capture(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, "Acme", res.Lead.IdentifiedCompany)
	assert.Equal(t, "acme.com", res.Lead.IdentifiedDomain)
}

func TestCaptureStorageError(t *testing.T) {
	env := newTestEnv()
	env.repo.failPut = errors.New("throttled")

	_, err := env.svc.Capture(context.Background(), contactInput())
	assert.ErrorContains(t, err, "throttled")
	pending, _ := env.queue.Len()
	assert.Zero(t, pending, "no task for an unsaved lead")
}

func seedLead(t *testing.T, env *testEnv, email string, created time.Time, mutate func(*domain.Lead)) *domain.Lead {
	t.Helper()
	l := &domain.Lead{
		LeadID:    "id-" + email,
		Email:     email,
		FirstName: "Test",
		FormType:  domain.FormContact,
		Status:    domain.LeadNew,
		CreatedAt: created,
		UpdatedAt: created,
	}
	if mutate != nil {
		mutate(l)
	}
	require.NoError(t, env.repo.Put(context.Background(), l))
	return l
}

func TestGetNotFound(t *testing.T) {
	env := newTestEnv()
	_, err := env.svc.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrLeadNotFound)
}

func TestListClampsLimitAndValidates(t *testing.T) {
	env := newTestEnv()
	for i := 0; i < 3; i++ {
		seedLead(t, env, string(rune('a'+i))+"@x.com", testNow.Add(time.Duration(i)*time.Hour), nil)
	}

	res, err := env.svc.List(context.Background(), ListFilter{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, res.Leads, 2)
	assert.True(t, res.HasMore)
	assert.Equal(t, "c@x.com", res.Leads[0].Email)

	_, err = env.svc.List(context.Background(), ListFilter{Status: "won"})
	assert.ErrorIs(t, err, ErrInvalidStatus)
	_, err = env.svc.List(context.Background(), ListFilter{Tier: "Z"})
	assert.ErrorIs(t, err, ErrInvalidTier)
}

func TestUpdateValidatesStatusAndTier(t *testing.T) {
	env := newTestEnv()
	l := seedLead(t, env, "a@x.com", testNow, nil)
	ctx := context.Background()

	bad := domain.LeadStatus("won")
	_, err := env.svc.Update(ctx, l.LeadID, UpdateInput{Status: &bad})
	assert.ErrorIs(t, err, ErrInvalidStatus)

	badTier := domain.LeadTier("D")
	_, err = env.svc.Update(ctx, l.LeadID, UpdateInput{Tier: &badTier})
	assert.ErrorIs(t, err, ErrInvalidTier)

	_, err = env.svc.Update(ctx, l.LeadID, UpdateInput{})
	assert.ErrorIs(t, err, ErrNoChanges)

	st, tier := domain.LeadQualified, domain.TierA
	got, err := env.svc.Update(ctx, l.LeadID, UpdateInput{Status: &st, Tier: &tier})
	require.NoError(t, err)
	assert.Equal(t, domain.LeadQualified, got.Status)
	assert.Equal(t, domain.TierA, env.repo.get(l.LeadID).Tier)
}

func TestAddNote(t *testing.T) {
	env := newTestEnv()
	l := seedLead(t, env, "a@x.com", testNow, nil)

	_, err := env.svc.AddNote(context.Background(), l.LeadID, "   ", "admin")
	assert.ErrorIs(t, err, ErrEmptyNote)

	note, err := env.svc.AddNote(context.Background(), l.LeadID, " Called, left voicemail ", "admin")
	require.NoError(t, err)
	assert.Equal(t, "Called, left voicemail", note.Content)
	assert.NotEmpty(t, note.ID)
	assert.Len(t, env.repo.get(l.LeadID).Notes, 1)
}

func TestRecordContactPromotesNewLead(t *testing.T) {
	env := newTestEnv()
	l := seedLead(t, env, "a@x.com", testNow, nil)
	ctx := context.Background()

	_, err := env.svc.RecordContact(ctx, l.LeadID, ContactInput{Channel: "fax"})
	assert.ErrorIs(t, err, ErrInvalidChannel)

	rec, err := env.svc.RecordContact(ctx, l.LeadID, ContactInput{Channel: domain.ChannelLinkedIn, Campaign: "Q1 legal"})
	require.NoError(t, err)
	assert.Equal(t, domain.ChannelLinkedIn, rec.Channel)

	stored := env.repo.get(l.LeadID)
	assert.Equal(t, domain.LeadContacted, stored.Status)
	assert.Len(t, stored.ContactHistory, 1)

	q := seedLead(t, env, "b@x.com", testNow, func(l *domain.Lead) { l.Status = domain.LeadQualified })
	_, err = env.svc.RecordContact(ctx, q.LeadID, ContactInput{Channel: domain.ChannelEmail})
	require.NoError(t, err)
	assert.Equal(t, domain.LeadQualified, env.repo.get(q.LeadID).Status, "later stages are kept")
}

func TestRecordOpenAndClick(t *testing.T) {
	env := newTestEnv()
	l := seedLead(t, env, "a@x.com", testNow, nil)
	ctx := context.Background()

	require.NoError(t, env.svc.RecordOpen(ctx, sequence.TrackingData{LeadID: l.LeadID, EmailDay: 2, SequenceType: "assessment"}))
	require.NoError(t, env.svc.RecordClick(ctx, sequence.TrackingData{
		LeadID: l.LeadID, EmailDay: 2, SequenceType: "assessment", DestinationURL: "https://databender.co/x",
	}))

	stored := env.repo.get(l.LeadID)
	require.Len(t, stored.Opens, 1)
	require.Len(t, stored.Clicks, 1)
	assert.Empty(t, stored.Opens[0].URL)
	assert.Equal(t, "https://databender.co/x", stored.Clicks[0].URL)
	assert.Equal(t, testNow, stored.Clicks[0].At)

	assert.ErrorIs(t, env.svc.RecordOpen(ctx, sequence.TrackingData{LeadID: "ghost"}), ErrLeadNotFound)
	assert.ErrorIs(t, env.svc.RecordOpen(ctx, sequence.TrackingData{}), ErrLeadNotFound)
}

func TestComputeStats(t *testing.T) {
	day1 := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	day2 := day1.AddDate(0, 0, 1)
	leads := []domain.Lead{
		{Status: domain.LeadNew, FormType: domain.FormContact, CreatedAt: day1, BehaviorScore: 40, UTMSource: "linkedin", Industry: "Legal"},
		{Status: domain.LeadQualified, Tier: domain.TierA, FormType: domain.FormGuide, CreatedAt: day1, BehaviorScore: 80, ReferrerSource: "google", IdentifiedIndustry: "Manufacturing"},
		{Status: domain.LeadNew, FormType: domain.FormContact, CreatedAt: day2, LeadSource: domain.SourceCSVImport},
	}

	st := ComputeStats(leads)
	assert.Equal(t, 3, st.TotalLeads)
	assert.Equal(t, 2, st.ByStatus["new"])
	assert.Equal(t, 0, st.ByStatus["lost"])
	assert.Equal(t, 1, st.ByTier["A"])
	assert.Equal(t, 2, st.ByTier["unassigned"])
	assert.Equal(t, 1, st.ByIndustry["Legal"])
	assert.Equal(t, 1, st.ByIndustry["Manufacturing"])
	assert.Equal(t, 1, st.ByIndustry["Unknown"])
	assert.Equal(t, 2, st.ByLeadSource["website"])
	assert.Equal(t, 1, st.ByLeadSource["csv-import"])
	assert.InDelta(t, 60.0, st.AvgBehaviorScore, 0.001)
	assert.Equal(t, []DayCount{{"2026-03-01", 2}, {"2026-03-02", 1}}, st.LeadsByDay)
	assert.Equal(t, []Count{{"Direct", 1}, {"google", 1}, {"linkedin", 1}}, st.TopSources)
}

func TestComputeStatsEmpty(t *testing.T) {
	st := ComputeStats(nil)
	assert.Zero(t, st.TotalLeads)
	assert.Zero(t, st.AvgBehaviorScore)
	assert.NotNil(t, st.LeadsByDay)
	assert.Equal(t, 0, st.ByFormType["newsletter"])
}

func TestExportCSV(t *testing.T) {
	archive := &fakeArchive{}
	env := newTestEnv(WithArchive(archive))
	seedLead(t, env, "old@x.com", testNow.Add(-48*time.Hour), nil)
	seedLead(t, env, "new@x.com", testNow, func(l *domain.Lead) {
		l.Company = "Smith, Barnes & Co"
		l.ContactHistory = []domain.ContactRecord{
			{Channel: domain.ChannelEmail, ContactedAt: testNow.Add(-time.Hour)},
			{Channel: domain.ChannelLinkedIn, ContactedAt: testNow},
		}
	})
	seedLead(t, env, "lost@x.com", testNow, func(l *domain.Lead) { l.Status = domain.LeadLost })

	res, err := env.svc.Export(context.Background(), ListFilter{Status: domain.LeadNew})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Count)
	assert.Equal(t, "exports/2026/03/10/leads-20260310-140000.csv", res.ArchiveKey)

	rows, err := csv.NewReader(strings.NewReader(string(res.CSV))).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "Lead ID", rows[0][0])
	assert.Equal(t, "new@x.com", rows[1][1])
	assert.Equal(t, "Smith, Barnes & Co", rows[1][4])
	assert.Equal(t, "Yes", rows[1][21])
	assert.Equal(t, "Yes", rows[1][22])
	assert.Equal(t, "linkedin", rows[1][24])
	assert.Equal(t, "old@x.com", rows[2][1])
	assert.Equal(t, "No", rows[2][21])
}

func TestExportArchiveFailureStillReturns(t *testing.T) {
	env := newTestEnv(WithArchive(&fakeArchive{err: errors.New("access denied")}))
	seedLead(t, env, "a@x.com", testNow, nil)

	res, err := env.svc.Export(context.Background(), ListFilter{})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Count)
	assert.Empty(t, res.ArchiveKey)
}

func TestApplyWebhook(t *testing.T) {
	env := newTestEnv()
	l := seedLead(t, env, "a@x.com", testNow, nil)
	ctx := context.Background()

	res, err := env.svc.ApplyWebhook(ctx, WebhookRequest{Action: WebhookRecordContact, Email: "A@x.com", Campaign: "Instantly Q1"})
	require.NoError(t, err)
	assert.Equal(t, domain.LeadContacted, res.Status)
	stored := env.repo.get(l.LeadID)
	require.Len(t, stored.ContactHistory, 1)
	assert.Equal(t, domain.ChannelOther, stored.ContactHistory[0].Channel)

	_, err = env.svc.ApplyWebhook(ctx, WebhookRequest{Action: WebhookAddNote, Email: "a@x.com", Note: "Replied on LinkedIn"})
	require.NoError(t, err)
	assert.Equal(t, AutomationAuthor, env.repo.get(l.LeadID).Notes[0].Author)

	res, err = env.svc.ApplyWebhook(ctx, WebhookRequest{Action: WebhookUpdateStatus, Email: "a@x.com", Status: domain.LeadOpportunity})
	require.NoError(t, err)
	assert.Equal(t, domain.LeadOpportunity, res.Status)

	_, err = env.svc.ApplyWebhook(ctx, WebhookRequest{Action: WebhookUpdateTier, Email: "a@x.com"})
	assert.ErrorIs(t, err, ErrMissingField)
	_, err = env.svc.ApplyWebhook(ctx, WebhookRequest{Action: WebhookUpdateStatus, Email: "a@x.com", Status: "won"})
	assert.ErrorIs(t, err, ErrInvalidStatus)
	_, err = env.svc.ApplyWebhook(ctx, WebhookRequest{Action: WebhookAddNote, Email: "ghost@x.com", Note: "x"})
	assert.ErrorIs(t, err, ErrLeadNotFound)
}

func TestScoreBreakdown(t *testing.T) {
	env := newTestEnv()

	t.Run("fresh assessment keeps full behavior credit", func(t *testing.T) {
		l := seedLead(t, env, "fresh@analytical.io", testNow, func(l *domain.Lead) {
			l.FormType = domain.FormAssessment
		})
		b := env.svc.ScoreBreakdown(l)
		assert.Equal(t, scoring.FormSubmittedScore+scoring.AssessmentCompletedScore, b.BehaviorScore)
		assert.Contains(t, b.Reasons, "Completed assessment")
		assert.NotEmpty(t, b.Tier)
	})

	t.Run("month-old capture decays by half", func(t *testing.T) {
		l := seedLead(t, env, "old@analytical.io", testNow.AddDate(0, 0, -30), func(l *domain.Lead) {
			l.FormType = domain.FormAssessment
		})
		b := env.svc.ScoreBreakdown(l)
		assert.Equal(t, 45, b.BehaviorScore)
		assert.Contains(t, b.Reasons, "Time decay applied (90 -> 45)")
	})

	t.Run("three visits in a week earn the journey bonus", func(t *testing.T) {
		l := seedLead(t, env, "busy@analytical.io", testNow.AddDate(0, 0, -2), func(l *domain.Lead) {
			l.PageJourney = []domain.PageJourneyStep{
				{Page: "/blog/ai", Timestamp: testNow.AddDate(0, 0, -2)},
				{Page: "/services/data", Timestamp: testNow.AddDate(0, 0, -1)},
				{Page: "/contact", Timestamp: testNow},
			}
			l.PagesVisited = []string{"/blog/ai", "/services/data", "/contact"}
		})
		b := env.svc.ScoreBreakdown(l)
		assert.Contains(t, b.Reasons, "Returning visitor")
		assert.GreaterOrEqual(t, b.SequenceBonus, scoring.ThreeVisitsBonus)
		assert.Positive(t, b.PageScore)
		assert.GreaterOrEqual(t, b.TotalScore, b.PageScore+b.SequenceBonus)
	})
}
