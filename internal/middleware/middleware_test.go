package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"fashion-advisor-go/internal/model"
	"fashion-advisor-go/pkg/log"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type stubSessions struct{ sess model.Session }

func (s stubSessions) Login(context.Context, string, string) error  { return nil }
func (s stubSessions) Signup(context.Context, string, string) error { return nil }
func (s stubSessions) Logout(context.Context)                       {}
func (s stubSessions) Current() model.Session                       { return s.sess }
func (s stubSessions) Token() string                                { return s.sess.Token }

func TestRequireSession(t *testing.T) {
	gin.SetMode(gin.TestMode)
	for _, tc := range []struct {
		sess model.Session
		want int
	}{
		{model.Session{}, http.StatusUnauthorized},
		{model.Session{Email: "a@b.c", Token: "t", UserID: "1"}, http.StatusOK},
	} {
		r := gin.New()
		r.GET("/x", RequireSession(stubSessions{tc.sess}), func(c *gin.Context) {
			sess := c.MustGet(SessionKey).(model.Session)
			c.String(http.StatusOK, sess.UserID)
		})
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
		if w.Code != tc.want {
			t.Fatalf("session %+v: expected %d, got %d", tc.sess, tc.want, w.Code)
		}
	}
}

func TestRequestLoggerKeepsBody(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestLogger())
	r.POST("/echo", func(c *gin.Context) {
		b, _ := c.GetRawData()
		c.String(http.StatusOK, "%d", len(b))
	})

	big := strings.Repeat("A", 5000)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/echo", strings.NewReader(big)))
	if w.Body.String() != "5000" {
		t.Fatalf("handler should still read the full body, got %s", w.Body.String())
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate([]byte("short")); got != "short" {
		t.Fatalf("unexpected: %s", got)
	}
	got := truncate([]byte(strings.Repeat("x", maxLoggedBody+10)))
	if !strings.HasSuffix(got, "...(truncated)") || len(got) != maxLoggedBody+len("...(truncated)") {
		t.Fatalf("unexpected truncation: %d", len(got))
	}
}

func TestRequestLoggerRedactsPassword(t *testing.T) {
	gin.SetMode(gin.TestMode)
	core, logs := observer.New(zapcore.InfoLevel)
	log.SetLogger(zap.New(core))
	t.Cleanup(func() { log.SetLogger(zap.NewNop()) })

	r := gin.New()
	r.Use(RequestLogger())
	r.POST("/api/v1/auth/login", func(c *gin.Context) {
		var body struct {
			Password string `json:"password"`
		}
		_ = c.ShouldBindJSON(&body)
		c.String(http.StatusOK, body.Password)
	})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", strings.NewReader(`{"email":"a@b.c","password":"hunter2-secret"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Body.String() != "hunter2-secret" {
		t.Fatalf("handler should still see the password, got %q", w.Body.String())
	}

	entries := logs.FilterMessage("HTTP Request Log").All()
	if len(entries) != 1 {
		t.Fatalf("expected one request log entry, got %d", len(entries))
	}
	reqBody, _ := entries[0].ContextMap()["requestBody"].(string)
	if strings.Contains(reqBody, "hunter2-secret") {
		t.Fatalf("password leaked into request log: %s", reqBody)
	}
	if !strings.Contains(reqBody, "a@b.c") || !strings.Contains(reqBody, "******") {
		t.Fatalf("expected redacted body with email kept, got %s", reqBody)
	}
}

func TestRedactLeavesOtherBodiesAlone(t *testing.T) {
	for _, in := range []string{``, `{"text":"hi"}`, `not json`} {
		if got := string(redact([]byte(in))); got != in {
			t.Fatalf("redact(%q) = %q", in, got)
		}
	}
	if got := string(redact([]byte(`password=hunter2`))); strings.Contains(got, "hunter2") {
		t.Fatalf("unparsed credentials leaked: %s", got)
	}
}
