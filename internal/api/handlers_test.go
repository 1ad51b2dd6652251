package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/databender/leadengine/internal/auth"
	"github.com/databender/leadengine/internal/config"
	"github.com/databender/leadengine/internal/domain"
	"github.com/databender/leadengine/internal/ratelimit"
	"github.com/databender/leadengine/internal/reports"
	"github.com/databender/leadengine/internal/service/lead"
	"github.com/databender/leadengine/internal/service/sequence"
)

const (
	testPassword   = "admin-password"
	testWebhookKey = "hook-key-123"
)

type testEnv struct {
	store   *memStore
	handler http.Handler
	token   string
}

func setupTestServer(t *testing.T, mutate func(*Deps)) *testEnv {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(testPassword), bcrypt.MinCost)
	require.NoError(t, err)
	authCfg := config.AuthConfig{
		AdminPasswordHash: string(hash),
		SessionSecret:     "test-secret",
		CookieName:        "le_admin",
		SessionTTLHours:   1,
		MaxFailedAttempts: 5,
		LockoutMinutes:    15,
	}
	am := auth.NewAuthManager(authCfg, nil)
	token, _, err := am.Login(context.Background(), "test", testPassword)
	require.NoError(t, err)

	store := newMemStore()
	seqSvc := sequence.NewService(store)
	deps := Deps{
		Auth:          am,
		Leads:         lead.NewService(store, lead.WithEnroller(seqSvc)),
		Sequences:     seqSvc,
		Reports:       reports.NewService(store, emptyAnalytics{}, "example.com"),
		WebhookAPIKey: testWebhookKey,
	}
	if mutate != nil {
		mutate(&deps)
	}
	srv := NewServer(config.ServerConfig{}, deps)
	return &testEnv{store: store, handler: srv.Handler(), token: token}
}

func (e *testEnv) do(t *testing.T, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var rdr *bytes.Reader
	if body != "" {
		rdr = bytes.NewReader([]byte(body))
	} else {
		rdr = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, rdr)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) admin(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	return e.do(t, method, path, body, map[string]string{"Authorization": "Bearer " + e.token})
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func seedLead(e *testEnv, id, email string) {
	now := time.Now().UTC()
	e.store.add(domain.Lead{
		LeadID:    id,
		Email:     email,
		FirstName: "Ada",
		LastName:  "Lovelace",
		Company:   "Engines Ltd",
		FormType:  domain.FormContact,
		Status:    domain.LeadNew,
		CreatedAt: now.Add(-time.Hour),
		UpdatedAt: now.Add(-time.Hour),
	})
}

const captureBody = `{"firstName":"Grace","lastName":"Hopper","email":"Grace@Navy.mil","formType":"guide","resourceSlug":"ai-readiness-guide"}`

func TestHealthCheck(t *testing.T) {
	e := setupTestServer(t, nil)
	rec := e.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", decode(t, rec)["status"])
}

func TestCaptureLead(t *testing.T) {
	e := setupTestServer(t, nil)

	rec := e.do(t, http.MethodPost, "/api/leads", captureBody, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	body := decode(t, rec)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, true, body["created"])
	assert.Equal(t, true, body["enrolled"], "guide downloads enroll in a sequence")
	require.NotEmpty(t, body["leadId"])

	stored := e.store.get(body["leadId"].(string))
	assert.Equal(t, "grace@navy.mil", stored.Email)

	rec = e.do(t, http.MethodPost, "/api/leads", captureBody, nil)
	assert.Equal(t, http.StatusOK, rec.Code, "repeat submission updates in place")
	assert.Equal(t, false, decode(t, rec)["created"])
}

func TestCaptureLead_Validation(t *testing.T) {
	e := setupTestServer(t, nil)

	rec := e.do(t, http.MethodPost, "/api/leads", `{"firstName":"Grace"}`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decode(t, rec)["error"], "Missing required fields")

	rec = e.do(t, http.MethodPost, "/api/leads", `{not json`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCaptureLead_RateLimited(t *testing.T) {
	e := setupTestServer(t, func(d *Deps) {
		d.Limiter = ratelimit.New(nil, map[string]config.RateLimit{
			ratelimit.BucketForm: {Limit: 3, WindowSeconds: 60},
		})
	})
	for i := 0; i < 3; i++ {
		rec := e.do(t, http.MethodPost, "/api/leads", captureBody, map[string]string{"X-Forwarded-For": "7.7.7.7"})
		require.Less(t, rec.Code, 300, "request %d", i+1)
	}
	rec := e.do(t, http.MethodPost, "/api/leads", captureBody, map[string]string{"X-Forwarded-For": "7.7.7.7"})
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))

	rec = e.do(t, http.MethodPost, "/api/leads", captureBody, map[string]string{"X-Forwarded-For": "8.8.8.8"})
	assert.Less(t, rec.Code, 300, "other clients are unaffected")
}

func TestAdminRoutes_RequireAuth(t *testing.T) {
	e := setupTestServer(t, nil)
	for _, path := range []string{
		"/api/admin/leads",
		"/api/admin/leads/stats",
		"/api/admin/sequences",
		"/api/admin/dashboard",
		"/api/admin/analytics/cohorts",
	} {
		rec := e.do(t, http.MethodGet, path, "", nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, path)
	}
}

func TestAdminLoginFlow(t *testing.T) {
	e := setupTestServer(t, nil)
	seedLead(e, "lead-1", "ada@engines.io")

	rec := e.do(t, http.MethodPost, "/api/admin/login", `{"password":"`+testPassword+`"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)

	req := httptest.NewRequest(http.MethodGet, "/api/admin/leads", nil)
	req.AddCookie(cookies[0])
	out := httptest.NewRecorder()
	e.handler.ServeHTTP(out, req)
	require.Equal(t, http.StatusOK, out.Code)

	var res lead.ListResult
	require.NoError(t, json.Unmarshal(out.Body.Bytes(), &res))
	require.Len(t, res.Leads, 1)
	assert.Equal(t, "ada@engines.io", res.Leads[0].Email)
	assert.False(t, res.HasMore)
}

func TestListLeads_Filters(t *testing.T) {
	e := setupTestServer(t, nil)
	seedLead(e, "lead-1", "ada@engines.io")
	seedLead(e, "lead-2", "grace@navy.mil")

	rec := e.admin(t, http.MethodGet, "/api/admin/leads?search=grace", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var res lead.ListResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	require.Len(t, res.Leads, 1)
	assert.Equal(t, "lead-2", res.Leads[0].LeadID)

	rec = e.admin(t, http.MethodGet, "/api/admin/leads?limit=1", "")
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Len(t, res.Leads, 1)
	assert.True(t, res.HasMore)

	for _, q := range []string{"status=bogus", "minScore=-1", "limit=zero", "excludeChannels=fax", "startDate=yesterday", "contactStatus=maybe"} {
		rec = e.admin(t, http.MethodGet, "/api/admin/leads?"+q, "")
		assert.Equal(t, http.StatusBadRequest, rec.Code, q)
	}
}

func TestGetAndUpdateLead(t *testing.T) {
	e := setupTestServer(t, nil)
	seedLead(e, "lead-1", "ada@engines.io")

	rec := e.admin(t, http.MethodGet, "/api/admin/leads/missing", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = e.admin(t, http.MethodGet, "/api/admin/leads/lead-1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "ada@engines.io", body["email"])
	breakdown, ok := body["scoreBreakdown"].(map[string]interface{})
	require.True(t, ok, rec.Body.String())
	assert.Positive(t, breakdown["behaviorScore"])
	assert.Contains(t, breakdown["reasons"], "Submitted a form")
	assert.NotEmpty(t, breakdown["tier"])

	rec = e.admin(t, http.MethodPatch, "/api/admin/leads/lead-1", `{"status":"bogus"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = e.admin(t, http.MethodPatch, "/api/admin/leads/lead-1", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code, "no changes")

	rec = e.admin(t, http.MethodPatch, "/api/admin/leads/lead-1", `{"status":"qualified","tier":"A"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	stored := e.store.get("lead-1")
	assert.Equal(t, domain.LeadQualified, stored.Status)
	assert.Equal(t, domain.TierA, stored.Tier)
}

func TestNotesAndContacts(t *testing.T) {
	e := setupTestServer(t, nil)
	seedLead(e, "lead-1", "ada@engines.io")

	rec := e.admin(t, http.MethodPost, "/api/admin/leads/lead-1/notes", `{"content":"Called, left voicemail"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "Admin", decode(t, rec)["author"])

	rec = e.admin(t, http.MethodPost, "/api/admin/leads/lead-1/notes", `{"content":""}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = e.admin(t, http.MethodPost, "/api/admin/leads/missing/notes", `{"content":"x"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = e.admin(t, http.MethodPost, "/api/admin/leads/lead-1/contacts", `{"channel":"linkedin","campaign":"q1"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	stored := e.store.get("lead-1")
	assert.Len(t, stored.Notes, 1)
	require.Len(t, stored.ContactHistory, 1)
	assert.Equal(t, domain.LeadContacted, stored.Status)

	rec = e.admin(t, http.MethodPost, "/api/admin/leads/lead-1/contacts", `{"channel":"fax"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestContactedHotLeadLeavesDashboard(t *testing.T) {
	e := setupTestServer(t, nil)
	created := time.Now().UTC().Add(-time.Hour)
	e.store.add(domain.Lead{
		LeadID:        "hot-1",
		Email:         "hot@engines.io",
		FirstName:     "Ada",
		FormType:      domain.FormContact,
		BehaviorScore: 85,
		Status:        domain.LeadNew,
		CreatedAt:     created,
		UpdatedAt:     created,
	})

	actionItems := func() map[string]interface{} {
		rec := e.admin(t, http.MethodGet, "/api/admin/dashboard", "")
		require.Equal(t, http.StatusOK, rec.Code)
		items, ok := decode(t, rec)["actionItems"].(map[string]interface{})
		require.True(t, ok, rec.Body.String())
		return items
	}

	assert.EqualValues(t, 1, actionItems()["hotLeadsToContact"])

	rec := e.admin(t, http.MethodPost, "/api/admin/leads/hot-1/contacts", `{"channel":"phone"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	items := actionItems()
	assert.EqualValues(t, 0, items["hotLeadsToContact"])
	assert.EqualValues(t, 1, items["needFollowUp"])
}

func TestExportLeads(t *testing.T) {
	e := setupTestServer(t, nil)
	seedLead(e, "lead-1", "ada@engines.io")

	rec := e.admin(t, http.MethodGet, "/api/admin/leads/export", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "attachment")
	assert.Equal(t, "1", rec.Header().Get("X-Export-Count"))
	lines := strings.Split(strings.TrimSpace(rec.Body.String()), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "Lead ID,Email"))
	assert.Contains(t, lines[1], "ada@engines.io")
}

func TestLeadStats(t *testing.T) {
	e := setupTestServer(t, nil)
	seedLead(e, "lead-1", "ada@engines.io")

	rec := e.admin(t, http.MethodGet, "/api/admin/leads/stats", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 1, decode(t, rec)["totalLeads"])
}

func TestLeadWebhook(t *testing.T) {
	e := setupTestServer(t, nil)
	seedLead(e, "lead-1", "ada@engines.io")
	key := map[string]string{"x-api-key": testWebhookKey}

	rec := e.do(t, http.MethodPost, "/api/leads/webhook", `{"action":"add_note","email":"ada@engines.io","note":"x"}`, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code, "missing key")

	rec = e.do(t, http.MethodPost, "/api/leads/webhook", `{"action":"add_note","email":"ada@engines.io","note":"x"}`,
		map[string]string{"x-api-key": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = e.do(t, http.MethodPost, "/api/leads/webhook", `{"email":"ada@engines.io"}`, key)
	assert.Equal(t, http.StatusBadRequest, rec.Code, "missing action")

	rec = e.do(t, http.MethodPost, "/api/leads/webhook", `{"action":"update_status","email":"ada@engines.io"}`, key)
	assert.Equal(t, http.StatusBadRequest, rec.Code, "missing status")

	rec = e.do(t, http.MethodPost, "/api/leads/webhook", `{"action":"add_note","email":"nobody@x.io","note":"x"}`, key)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = e.do(t, http.MethodPost, "/api/leads/webhook", `{"action":"update_status","email":"ADA@engines.io","status":"qualified"}`, key)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, true, decode(t, rec)["success"])
	assert.Equal(t, domain.LeadQualified, e.store.get("lead-1").Status)
}

func TestLeadWebhook_NotConfigured(t *testing.T) {
	e := setupTestServer(t, func(d *Deps) { d.WebhookAPIKey = "" })
	rec := e.do(t, http.MethodPost, "/api/leads/webhook", `{"action":"add_note"}`, map[string]string{"x-api-key": ""})
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestSequenceActions(t *testing.T) {
	e := setupTestServer(t, nil)
	seedLead(e, "lead-1", "ada@engines.io")

	rec := e.admin(t, http.MethodPost, "/api/admin/sequences", `{"action":"check","email":"ada@engines.io"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, true, body["canEnroll"])
	assert.Nil(t, body["currentSequence"])

	rec = e.admin(t, http.MethodPost, "/api/admin/sequences", `{"action":"pause","email":"ada@engines.io"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	body = decode(t, rec)
	assert.Equal(t, false, body["success"], "no sequence is a refusal, not an error")
	assert.Equal(t, sequence.ActionNoSequence, body["result"])

	_, err := e.storeSequence("ada@engines.io")
	require.NoError(t, err)

	rec = e.admin(t, http.MethodPost, "/api/admin/sequences", `{"action":"pause","email":"ada@engines.io","reason":"vacation"}`)
	body = decode(t, rec)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "vacation", body["reason"])
	assert.Equal(t, domain.SequencePaused, e.store.get("lead-1").EmailSequence.Status)

	rec = e.admin(t, http.MethodPost, "/api/admin/sequences", `{"action":"resume","email":"ada@engines.io"}`)
	assert.Equal(t, true, decode(t, rec)["success"])

	rec = e.admin(t, http.MethodPost, "/api/admin/sequences", `{"action":"bounce","email":"ada@engines.io","bounceType":"hard"}`)
	body = decode(t, rec)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "hard", body["bounceType"])

	rec = e.admin(t, http.MethodPost, "/api/admin/sequences", `{"action":"resume","email":"ada@engines.io"}`)
	body = decode(t, rec)
	assert.Equal(t, false, body["success"])
	assert.Contains(t, body["reason"], "hard bounce")

	rec = e.admin(t, http.MethodPost, "/api/admin/sequences", `{"action":"explode","email":"ada@engines.io"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func (e *testEnv) storeSequence(email string) (sequence.Result, error) {
	return sequence.NewService(e.store).Enroll(context.Background(), email, domain.SequenceGuideGeneral)
}

func TestGetSequences(t *testing.T) {
	e := setupTestServer(t, nil)
	seedLead(e, "lead-1", "ada@engines.io")
	_, err := e.storeSequence("ada@engines.io")
	require.NoError(t, err)

	rec := e.admin(t, http.MethodGet, "/api/admin/sequences", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.EqualValues(t, 1, body["total"])

	rec = e.admin(t, http.MethodGet, "/api/admin/sequences?email=ada@engines.io", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body = decode(t, rec)
	assert.Equal(t, false, body["canEnroll"])
	assert.Equal(t, "Already in active sequence", body["canEnrollReason"])

	rec = e.admin(t, http.MethodGet, "/api/admin/sequences?email=nobody@x.io", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestReports(t *testing.T) {
	e := setupTestServer(t, nil)
	seedLead(e, "lead-1", "ada@engines.io")

	for _, path := range []string{
		"/api/admin/dashboard",
		"/api/admin/analytics/attribution?days=14",
		"/api/admin/analytics/cohorts",
		"/api/admin/analytics/sources",
		"/api/admin/analytics/summary?date=2026-03-09",
	} {
		rec := e.admin(t, http.MethodGet, path, "")
		assert.Equal(t, http.StatusOK, rec.Code, path)
	}

	rec := e.admin(t, http.MethodGet, "/api/admin/analytics/attribution?days=14", "")
	period := decode(t, rec)["period"].(map[string]interface{})
	assert.EqualValues(t, 14, period["days"])

	rec = e.admin(t, http.MethodGet, "/api/admin/analytics/summary?date=03/09/2026", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
