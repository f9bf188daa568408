package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/diaspora-enterprise/website/pkg/audit"
	"github.com/diaspora-enterprise/website/pkg/config"
	"github.com/diaspora-enterprise/website/pkg/contact"
	"github.com/diaspora-enterprise/website/pkg/mail"
)

type stubSender struct {
	mu   sync.Mutex
	sent []sentMail
	err  error
}

type sentMail struct {
	receivers []string
	subject   string
	body      string
}

func (s *stubSender) Send(receivers []string, subject, body string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, sentMail{receivers, subject, body})
	return nil
}

func (s *stubSender) GetHost() string { return "smtp.test" }
func (s *stubSender) GetPort() int    { return 587 }

func (s *stubSender) sentCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sent)
}

type testServer struct {
	handler http.Handler
	store   *contact.Store
	queue   *mail.Queue
	sender  *stubSender
	cfg     config.Config
}

func newTestServer(t *testing.T, mutate func(*config.Config)) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := config.Config{}
	cfg.Defaults()
	cfg.Site.Name = "Diaspora Enterprise"
	cfg.Site.AssetsDir = t.TempDir()
	cfg.Site.BaseURL = "https://diasporaenterprise.com"
	cfg.Mail.Host = "smtp.test"
	cfg.Mail.AdminAddress = "admin@diasporaenterprise.com"
	cfg.Admin.Password = "correct-password"
	cfg.Admin.TokenSecret = "test-token-secret"
	cfg.Admin.SessionTTLMinutes = 10
	if mutate != nil {
		mutate(&cfg)
	}

	log := zap.NewNop()
	store, err := contact.NewStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	sender := &stubSender{}
	// Queue is intentionally not started: enqueued mail stays buffered so
	// tests can assert on it.
	queue := mail.NewQueue(sender, log.Sugar(), 3, 10, cfg.Mail.QueueSize)

	auditSvc := audit.NewService(nil, 16, log.Sugar())
	authHandler := NewAuth(log.Sugar(), cfg, auditSvc)

	srv := NewServer(log, cfg, false)
	require.NoError(t, srv.RegisterAll([]APIController{
		NewContactController(store, queue, auditSvc, cfg, log.Sugar()),
		NewAdminController(store, sender, authHandler, auditSvc, cfg, log.Sugar()),
	}))

	return &testServer{
		handler: srv.Handler(),
		store:   store,
		queue:   queue,
		sender:  sender,
		cfg:     cfg,
	}
}

func (ts *testServer) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	return rec
}

func (ts *testServer) login(t *testing.T) string {
	t.Helper()
	rec := ts.do(t, http.MethodPost, "/api/admin/login", "",
		map[string]string{"password": ts.cfg.Admin.Password})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Token)
	return resp.Token
}

func validSubmission() map[string]string {
	return map[string]string{
		"name":    "Ada Lovelace",
		"email":   "ada@example.com",
		"phone":   "+44 20 7946 0000",
		"subject": "Partnership inquiry",
		"message": "We would like to discuss a potential collaboration.",
	}
}

func TestHealthz(t *testing.T) {
	ts := newTestServer(t, nil)
	rec := ts.do(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "ok")
}

func TestVersionEndpoint(t *testing.T) {
	ts := newTestServer(t, nil)
	rec := ts.do(t, http.MethodGet, "/api/version", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "version")
}

func TestSiteEndpoint(t *testing.T) {
	ts := newTestServer(t, nil)
	rec := ts.do(t, http.MethodGet, "/api/site", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	var info SiteInfo
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &info))
	assert.Equal(t, "Diaspora Enterprise", info.Name)
}

func TestContactSubmitPersistsAndQueuesNotification(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(t, http.MethodPost, "/api/contact", "", validSubmission())
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp contactResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.ID)

	stored, err := ts.store.GetByID(context.Background(), resp.ID)
	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", stored.Email)
	assert.False(t, stored.Read)

	assert.Equal(t, 1, ts.queue.Length())
}

func TestContactSubmitValidationFailure(t *testing.T) {
	ts := newTestServer(t, nil)

	body := validSubmission()
	body["email"] = "not-an-address"
	body["message"] = "short"

	rec := ts.do(t, http.MethodPost, "/api/contact", "", body)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "VALIDATION_FAILED")
	assert.Contains(t, rec.Body.String(), "email")
	assert.Contains(t, rec.Body.String(), "message")

	contacts, err := ts.store.List(context.Background(), contact.Filter{})
	require.NoError(t, err)
	assert.Empty(t, contacts)
	assert.Equal(t, 0, ts.queue.Length())
}

func TestContactSubmitMalformedJSON(t *testing.T) {
	ts := newTestServer(t, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/contact", bytes.NewReader([]byte("{not json")))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestContactSubmitRateLimited(t *testing.T) {
	ts := newTestServer(t, nil)

	var lastCode int
	for i := 0; i < 4; i++ {
		body := validSubmission()
		body["subject"] = fmt.Sprintf("Partnership inquiry %d", i)
		rec := ts.do(t, http.MethodPost, "/api/contact", "", body)
		lastCode = rec.Code
	}
	assert.Equal(t, http.StatusTooManyRequests, lastCode)
}

func TestContactSubmitWithoutAdminAddress(t *testing.T) {
	ts := newTestServer(t, func(cfg *config.Config) {
		cfg.Mail.AdminAddress = ""
	})

	rec := ts.do(t, http.MethodPost, "/api/contact", "", validSubmission())
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, 0, ts.queue.Length())
}

func TestContactSubmitSucceedsWhenQueueFull(t *testing.T) {
	ts := newTestServer(t, func(cfg *config.Config) {
		cfg.Mail.QueueSize = 1
	})

	// Fill the only slot so the notification enqueue is rejected.
	require.NoError(t, ts.queue.Enqueue("seed", []string{"admin@example.com"}, "s", "b"))

	rec := ts.do(t, http.MethodPost, "/api/contact", "", validSubmission())
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	// The submission is persisted even though the notification was dropped.
	var resp contactResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	_, err := ts.store.GetByID(context.Background(), resp.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, ts.queue.Length())
}

func TestAdminLoginRejectsWrongPassword(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(t, http.MethodPost, "/api/admin/login", "",
		map[string]string{"password": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/admin/login", "", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAdminLoginDisabledWithoutPassword(t *testing.T) {
	ts := newTestServer(t, func(cfg *config.Config) {
		cfg.Admin.Password = ""
	})

	rec := ts.do(t, http.MethodPost, "/api/admin/login", "",
		map[string]string{"password": "anything"})
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestAdminRoutesRequireToken(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(t, http.MethodGet, "/api/admin/stats", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = ts.do(t, http.MethodGet, "/api/admin/stats", "not-a-jwt", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAdminContactLifecycle(t *testing.T) {
	ts := newTestServer(t, nil)
	token := ts.login(t)

	seeded := &contact.Contact{
		Name:    "Grace Hopper",
		Email:   "grace@example.com",
		Subject: "Speaking request",
		Message: "Would you be available for a keynote in November?",
	}
	require.NoError(t, ts.store.Create(context.Background(), seeded))

	// List shows the unread submission.
	rec := ts.do(t, http.MethodGet, "/api/admin/contacts?read=false", token, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var list contactListResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Equal(t, 1, list.Count)
	assert.Equal(t, seeded.ID, list.Contacts[0].ID)

	// Fetch it directly.
	rec = ts.do(t, http.MethodGet, "/api/admin/contacts/"+seeded.ID, token, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	// Mark read, stats go to zero unread.
	rec = ts.do(t, http.MethodPost, "/api/admin/contacts/"+seeded.ID+"/read", token, nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = ts.do(t, http.MethodGet, "/api/admin/stats", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var counts contact.Counts
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &counts))
	assert.Equal(t, 1, counts.Total)
	assert.Equal(t, 0, counts.Unread)

	// Back to unread.
	rec = ts.do(t, http.MethodPost, "/api/admin/contacts/"+seeded.ID+"/unread", token, nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	// Attach a note and read it back.
	rec = ts.do(t, http.MethodPut, "/api/admin/contacts/"+seeded.ID+"/notes", token,
		map[string]string{"notes": "Forwarded to events team"})
	require.Equal(t, http.StatusNoContent, rec.Code)

	stored, err := ts.store.GetByID(context.Background(), seeded.ID)
	require.NoError(t, err)
	assert.Equal(t, "Forwarded to events team", stored.Notes)
	assert.False(t, stored.Read)

	// Unknown ids are a 404, not a 500.
	rec = ts.do(t, http.MethodGet, "/api/admin/contacts/no-such-id", token, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = ts.do(t, http.MethodPost, "/api/admin/contacts/no-such-id/read", token, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAdminListRejectsBadParams(t *testing.T) {
	ts := newTestServer(t, nil)
	token := ts.login(t)

	rec := ts.do(t, http.MethodGet, "/api/admin/contacts?read=maybe", token, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodGet, "/api/admin/contacts?limit=0", token, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodGet, "/api/admin/contacts?offset=-1", token, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAdminTestMail(t *testing.T) {
	ts := newTestServer(t, nil)
	token := ts.login(t)

	rec := ts.do(t, http.MethodPost, "/api/admin/testmail", token, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp testMailResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "admin@diasporaenterprise.com", resp.Receiver)
	assert.Equal(t, "smtp.test", resp.Host)
	assert.Equal(t, "XOAUTH2", resp.Mechanism)
	assert.Equal(t, 1, ts.sender.sentCount())

	// Explicit receiver overrides the admin address.
	rec = ts.do(t, http.MethodPost, "/api/admin/testmail", token,
		map[string]string{"receiver": "ops@example.com"})
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ops@example.com", resp.Receiver)
}

func TestAdminTestMailTransportFailure(t *testing.T) {
	ts := newTestServer(t, nil)
	token := ts.login(t)

	ts.sender.err = fmt.Errorf("connection refused")
	rec := ts.do(t, http.MethodPost, "/api/admin/testmail", token, nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestSessionTokenExpires(t *testing.T) {
	gin.SetMode(gin.TestMode)

	cfg := config.Config{}
	cfg.Defaults()
	cfg.Admin.Password = "pw"
	cfg.Admin.TokenSecret = "secret"
	cfg.Admin.SessionTTLMinutes = 10

	log := zap.NewNop().Sugar()
	auth := NewAuth(log, cfg, nil)
	// Shrink the TTL so the token is already expired when verified.
	auth.ttl = -time.Minute

	engine := gin.New()
	engine.POST("/login", auth.LoginHandler)
	engine.GET("/guarded", auth.Middleware(), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	body, _ := json.Marshal(map[string]string{"password": "pw"})
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/login", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	engine.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/guarded", nil)
	req.Header.Set("Authorization", "Bearer "+resp.Token)
	engine.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
