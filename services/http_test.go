package services

import (
	"bytes"
	stdcontext "context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/saathi-legal/saathi_api/dto"
	"github.com/saathi-legal/saathi_api/services/handlers"
	"github.com/saathi-legal/saathi_api/services/ratelimit"
	"github.com/saathi-legal/saathi_api/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCollaborator struct {
	chats   int32
	renders int32
}

func (f *fakeCollaborator) Complete(_ stdcontext.Context, req dto.ChatRequest) (string, error) {
	atomic.AddInt32(&f.chats, 1)
	return "You may file a complaint with the consumer forum.", nil
}

func (f *fakeCollaborator) Render(_ stdcontext.Context, req dto.GenerateDocumentRequest) ([]byte, error) {
	atomic.AddInt32(&f.renders, 1)
	return []byte("%PDF-1.4 " + req.TemplateID), nil
}

type fakeArchive struct {
	mu      sync.Mutex
	objects map[string][]byte
	err     error
}

func (f *fakeArchive) Archive(_ stdcontext.Context, identifier string, document []byte) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.objects == nil {
		f.objects = map[string][]byte{}
	}
	name := DocumentObjectName(identifier, "fixed")
	f.objects[name] = document
	return name, nil
}

type apiFixture struct {
	app          *fiber.App
	clock        *testClock
	rateLimit    *RateLimitService
	collaborator *fakeCollaborator
	archive      *fakeArchive
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	clock := newTestClock()
	cfg := ratelimit.Config{MaxRequests: 3, Window: time.Minute}

	f := &apiFixture{
		clock:        clock,
		rateLimit:    NewRateLimitService(ratelimit.NewInMemory(cfg), cfg, false, clock.Now),
		collaborator: &fakeCollaborator{},
		archive:      &fakeArchive{},
	}
	f.app = NewApp(AppDeps{
		Consent:      NewConsentService(newTestConsentStore(t), nil, clock.Now),
		RateLimit:    f.rateLimit,
		Collaborator: f.collaborator,
		Archive:      f.archive,
	})
	return f
}

type apiResponse struct {
	status  int
	header  http.Header
	raw     []byte
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func (r apiResponse) data(t *testing.T, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(r.Data, v))
}

func (f *apiFixture) call(t *testing.T, method, path, identifier string, body interface{}) apiResponse {
	t.Helper()

	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	if identifier != "" {
		req.Header.Set(shared.HeaderAnonymousID, identifier)
	}

	resp, err := f.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	out := apiResponse{status: resp.StatusCode, header: resp.Header, raw: raw}
	if resp.Header.Get(fiber.HeaderContentType) == fiber.MIMEApplicationJSONCharsetUTF8 {
		require.NoError(t, json.Unmarshal(raw, &out))
	}
	return out
}

func (f *apiFixture) consent(t *testing.T, identifier, decision string, scope map[string]bool) {
	t.Helper()
	resp := f.call(t, fiber.MethodPost, "/consent", "", dto.RecordConsentRequest{
		Identifier: identifier,
		Scope:      scope,
		Decision:   decision,
	})
	require.Equal(t, fiber.StatusCreated, resp.status, string(resp.raw))
}

var fullScope = map[string]bool{shared.ScopeStoreMessages: true, shared.ScopeStoreDocuments: true}

func chatBody() dto.ChatRequest {
	return dto.ChatRequest{Message: "Can my landlord keep my deposit?"}
}

func TestDeclinedIdentifierRejectedBeforeLimiterAndHandler(t *testing.T) {
	f := newAPIFixture(t)
	f.consent(t, "anon-1", "declined", fullScope)

	resp := f.call(t, fiber.MethodPost, "/api/chat", "anon-1", chatBody())

	assert.Equal(t, fiber.StatusForbidden, resp.status)
	var denial dto.ConsentDenial
	resp.data(t, &denial)
	assert.Equal(t, "CONSENT_DECLINED", denial.Error)
	assert.Equal(t, shared.DeclinedPath, denial.Redirect)

	assert.Zero(t, f.rateLimit.ActiveWindows(), "limiter never saw the request")
	assert.Zero(t, atomic.LoadInt32(&f.collaborator.chats))
}

func TestChatWithoutConsentRejected(t *testing.T) {
	f := newAPIFixture(t)

	resp := f.call(t, fiber.MethodPost, "/chat", "anon-2", chatBody())

	assert.Equal(t, fiber.StatusForbidden, resp.status)
	var denial dto.ConsentDenial
	resp.data(t, &denial)
	assert.Equal(t, "CONSENT_REQUIRED", denial.Error)
	assert.Zero(t, atomic.LoadInt32(&f.collaborator.chats))
}

func TestChatRateLimitedAfterCeiling(t *testing.T) {
	f := newAPIFixture(t)
	f.consent(t, "anon-1", "", fullScope)

	for want := 2; want >= 0; want-- {
		resp := f.call(t, fiber.MethodPost, "/chat", "anon-1", chatBody())
		require.Equal(t, fiber.StatusOK, resp.status, string(resp.raw))

		var chat dto.ChatResponse
		resp.data(t, &chat)
		assert.NotEmpty(t, chat.Reply)
		assert.Equal(t, "en", chat.Language)
		require.NotNil(t, chat.RateLimit)
		assert.Equal(t, 3, chat.RateLimit.Limit)
		assert.Equal(t, want, chat.RateLimit.Remaining)
		assert.Equal(t, 60, chat.RateLimit.ResetIn)
	}

	f.clock.Advance(15 * time.Second)
	resp := f.call(t, fiber.MethodPost, "/chat", "anon-1", chatBody())

	assert.Equal(t, fiber.StatusTooManyRequests, resp.status)
	assert.Equal(t, "45", resp.header.Get(fiber.HeaderRetryAfter))
	var denial dto.RateLimitDenial
	resp.data(t, &denial)
	assert.Equal(t, 45, denial.RetryAfterSeconds)
	assert.Equal(t, "anon-1", denial.Identifier)
	assert.Equal(t, int32(3), atomic.LoadInt32(&f.collaborator.chats))

	f.consent(t, "anon-2", "", fullScope)
	resp = f.call(t, fiber.MethodPost, "/chat", "anon-2", chatBody())
	assert.Equal(t, fiber.StatusOK, resp.status, "other identifiers keep their budget")
}

func TestWithdrawnConsentBlocksFurtherRequests(t *testing.T) {
	f := newAPIFixture(t)
	f.consent(t, "anon-1", "granted", fullScope)

	resp := f.call(t, fiber.MethodPost, "/chat", "anon-1", chatBody())
	require.Equal(t, fiber.StatusOK, resp.status)

	f.clock.Advance(time.Second)
	f.consent(t, "anon-1", "declined", fullScope)

	resp = f.call(t, fiber.MethodPost, "/chat", "anon-1", chatBody())
	assert.Equal(t, fiber.StatusForbidden, resp.status)
}

func TestChatValidation(t *testing.T) {
	f := newAPIFixture(t)
	f.consent(t, "anon-1", "", fullScope)

	long := make([]byte, 1001)
	for i := range long {
		long[i] = 'a'
	}

	resp := f.call(t, fiber.MethodPost, "/chat", "anon-1", dto.ChatRequest{Message: string(long)})
	assert.Equal(t, fiber.StatusBadRequest, resp.status)

	var validation dto.ValidationErrorResponse
	resp.data(t, &validation)
	require.Len(t, validation.Errors, 1)
	assert.Equal(t, "Message", validation.Errors[0].Field)
	assert.Zero(t, atomic.LoadInt32(&f.collaborator.chats))
}

func TestGenerateDocumentArchivesWhenAllowed(t *testing.T) {
	f := newAPIFixture(t)
	f.consent(t, "anon-1", "", fullScope)
	f.consent(t, "anon-2", "", map[string]bool{shared.ScopeStoreMessages: true})

	body := dto.GenerateDocumentRequest{TemplateID: "rent-notice", Fields: map[string]string{"tenant": "A"}}

	resp := f.call(t, fiber.MethodPost, "/api/generate-document", "anon-1", body)
	require.Equal(t, fiber.StatusOK, resp.status)
	assert.Equal(t, "application/pdf", resp.header.Get(fiber.HeaderContentType))
	assert.Equal(t, "%PDF-1.4 rent-notice", string(resp.raw))
	assert.Equal(t, "true", resp.header.Get(handlers.HeaderDocumentArchived))
	assert.Equal(t, `attachment; filename="rent-notice.pdf"`, resp.header.Get(fiber.HeaderContentDisposition))
	assert.Contains(t, f.archive.objects, "documents/anon-1/fixed.pdf")

	resp = f.call(t, fiber.MethodPost, "/api/generate-document", "anon-2", body)
	require.Equal(t, fiber.StatusOK, resp.status)
	assert.Empty(t, resp.header.Get(handlers.HeaderDocumentArchived))

	assert.Len(t, f.archive.objects, 1)
}

func TestGenerateDocumentSurvivesArchiveFailure(t *testing.T) {
	f := newAPIFixture(t)
	f.archive.err = errors.New("bucket unavailable")
	f.consent(t, "anon-1", "", fullScope)

	resp := f.call(t, fiber.MethodPost, "/api/generate-document", "anon-1", dto.GenerateDocumentRequest{
		TemplateID: "rent-notice",
		Fields:     map[string]string{},
	})

	assert.Equal(t, fiber.StatusOK, resp.status)
	assert.Empty(t, resp.header.Get(handlers.HeaderDocumentArchived))
}

func TestGenerateDocumentRejectsUnsafeTemplateID(t *testing.T) {
	f := newAPIFixture(t)
	f.consent(t, "anon-1", "", fullScope)

	// stays within the ceiling of three
	for _, id := range []string{`rent"; filename="x`, "../etc/passwd", "a b"} {
		resp := f.call(t, fiber.MethodPost, "/api/generate-document", "anon-1", dto.GenerateDocumentRequest{
			TemplateID: id,
			Fields:     map[string]string{},
		})
		assert.Equal(t, fiber.StatusBadRequest, resp.status, id)
		assert.Empty(t, resp.header.Get(fiber.HeaderContentDisposition), id)
	}
	assert.Zero(t, atomic.LoadInt32(&f.collaborator.renders))
}

func TestGetConsent(t *testing.T) {
	f := newAPIFixture(t)

	resp := f.call(t, fiber.MethodGet, "/consent/anon-1", "", nil)
	assert.Equal(t, fiber.StatusNotFound, resp.status)

	f.consent(t, "anon-1", "", fullScope)
	f.clock.Advance(time.Second)
	f.consent(t, "anon-1", "declined", fullScope)

	resp = f.call(t, fiber.MethodGet, "/consent/anon-1", "", nil)
	require.Equal(t, fiber.StatusOK, resp.status)
	var latest dto.ConsentDecisionResponse
	resp.data(t, &latest)
	assert.Equal(t, "declined", latest.Decision)

	resp = f.call(t, fiber.MethodGet, "/consent/anon-1/history", "", nil)
	require.Equal(t, fiber.StatusOK, resp.status)
	var history []dto.ConsentDecisionResponse
	resp.data(t, &history)
	require.Len(t, history, 2)
	assert.Equal(t, "declined", history[0].Decision)
	assert.Equal(t, "granted", history[1].Decision)

	resp = f.call(t, fiber.MethodGet, "/consent/bad%20id", "", nil)
	assert.Equal(t, fiber.StatusBadRequest, resp.status)
}

func TestRecordConsentMalformedBody(t *testing.T) {
	f := newAPIFixture(t)

	req := httptest.NewRequest(fiber.MethodPost, "/consent", bytes.NewReader([]byte(`{"identifier":`)))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	resp, err := f.app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestConfigAndHealth(t *testing.T) {
	f := newAPIFixture(t)

	resp := f.call(t, fiber.MethodGet, "/config", "", nil)
	require.Equal(t, fiber.StatusOK, resp.status)
	var cfg dto.GateConfigResponse
	resp.data(t, &cfg)
	assert.Equal(t, 3, cfg.RateLimitMaxRequests)
	assert.Equal(t, 60, cfg.RateLimitWindowSeconds)
	assert.Equal(t, DefaultScopeFlags, cfg.ConsentScopeFlags)
	assert.Equal(t, shared.HeaderAnonymousID, cfg.IdentifierHeader)

	resp = f.call(t, fiber.MethodGet, "/ping", "", nil)
	assert.Equal(t, fiber.StatusOK, resp.status)

	resp = f.call(t, fiber.MethodGet, "/health", "", nil)
	assert.Equal(t, fiber.StatusOK, resp.status)

	resp = f.call(t, fiber.MethodGet, "/nowhere", "", nil)
	assert.Equal(t, fiber.StatusNotFound, resp.status)
}
