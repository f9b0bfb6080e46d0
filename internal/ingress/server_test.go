package ingress

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"

	kit "relaybot/internal/transport"
	logx "relaybot/pkg/logx"
)

const textUpdate = `{"update_id":1,"message":{"message_id":5,"date":1700000000,
"from":{"id":42,"is_bot":false,"first_name":"Ann"},
"chat":{"id":42,"type":"private"},"text":"Hello"}}`

type sink struct {
	mu          sync.Mutex
	got         []kit.Update
	unsupported int
}

func (s *sink) handle(_ context.Context, up kit.Update) {
	s.mu.Lock()
	s.got = append(s.got, up)
	s.mu.Unlock()
}

func newServer(secret string, health func(context.Context) error) (*Server, *sink) {
	gin.SetMode(gin.TestMode)
	s := &sink{}
	srv := New(Config{Path: "/hook", Secret: secret, MaxBody: 4096}, s.handle, Hooks{
		Unsupported: func(error) { s.unsupported++ },
		Health:      health,
	}, logx.Nop())
	return srv, s
}

func post(h http.Handler, body, contentType string, hdr map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/hook", strings.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestWebhookAcceptsUpdate(t *testing.T) {
	srv, s := newServer("", nil)
	w := post(srv.Handler(), textUpdate, "application/json; charset=utf-8", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if len(s.got) != 1 || s.got[0].Kind != kit.UpdateText || s.got[0].Message.Text != "Hello" || s.got[0].Message.FromID != 42 {
		t.Fatalf("handled %+v", s.got)
	}
	if w.Header().Get(requestIDHeader) == "" {
		t.Fatalf("missing request id header")
	}
}

func TestWebhookRejectsNonJSON(t *testing.T) {
	srv, s := newServer("", nil)
	if w := post(srv.Handler(), textUpdate, "text/plain", nil); w.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", w.Code)
	}
	if len(s.got) != 0 {
		t.Fatalf("non-JSON request was handled")
	}
}

func TestWebhookMalformedJSON(t *testing.T) {
	srv, _ := newServer("", nil)
	if w := post(srv.Handler(), `{"update_id":`, "application/json", nil); w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestWebhookSecret(t *testing.T) {
	srv, s := newServer("s3cret", nil)
	if w := post(srv.Handler(), textUpdate, "application/json", map[string]string{secretHeader: "wrong"}); w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", w.Code)
	}
	if w := post(srv.Handler(), textUpdate, "application/json", map[string]string{secretHeader: "s3cret"}); w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if len(s.got) != 1 {
		t.Fatalf("handled %d updates", len(s.got))
	}
}

func TestWebhookUnsupportedUpdateIsAcknowledged(t *testing.T) {
	srv, s := newServer("", nil)
	w := post(srv.Handler(), `{"update_id":2,"edited_message":{"message_id":1,"date":1,"chat":{"id":1,"type":"private"}}}`, "application/json", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if s.unsupported != 1 || len(s.got) != 0 {
		t.Fatalf("unsupported=%d handled=%d", s.unsupported, len(s.got))
	}
}

func TestWebhookBodyLimit(t *testing.T) {
	srv, _ := newServer("", nil)
	big := `{"update_id":1,"message":{"text":"` + strings.Repeat("x", 8192) + `"}}`
	if w := post(srv.Handler(), big, "application/json", nil); w.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("status = %d, want 413", w.Code)
	}
}

func TestHandlerPanicBecomes500(t *testing.T) {
	gin.SetMode(gin.TestMode)
	srv := New(Config{Path: "/hook"}, func(context.Context, kit.Update) { panic("boom") }, Hooks{}, logx.Nop())
	w := post(srv.Handler(), textUpdate, "application/json", nil)
	if w.Code != http.StatusInternalServerError || !strings.Contains(w.Body.String(), "internal_error") {
		t.Fatalf("status = %d body = %s", w.Code, w.Body.String())
	}
}

func TestHealthAndMetrics(t *testing.T) {
	srv, _ := newServer("", func(context.Context) error { return errors.New("directory closed") })
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("healthz = %d", w.Code)
	}

	ok, _ := newServer("", nil)
	w = httptest.NewRecorder()
	ok.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("healthz = %d", w.Code)
	}

	w = httptest.NewRecorder()
	ok.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "relaybot_http_requests_total") {
		t.Fatalf("metrics = %d", w.Code)
	}
}

func TestAccessAndServerErrorLogs(t *testing.T) {
	gin.SetMode(gin.TestMode)
	var buf bytes.Buffer
	s := &sink{}
	srv := New(Config{Path: "/hook", MaxBody: 4096}, s.handle, Hooks{}, logx.NewWriter(&buf, "debug"))

	w := post(srv.Handler(), textUpdate, "application/json", map[string]string{"X-Request-ID": "req-1"})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	line := buf.String()
	for _, want := range []string{`"request_id":"req-1"`, `"path":"/hook"`, `"status":200`} {
		if !strings.Contains(line, want) {
			t.Fatalf("access log %q missing %s", line, want)
		}
	}

	buf.Reset()
	srv.errorLog().Print("http: TLS handshake error from 1.2.3.4: EOF")
	if out := buf.String(); !strings.Contains(out, `"src":"net/http"`) || !strings.Contains(out, "TLS handshake error") {
		t.Fatalf("server error log = %q", out)
	}
}
