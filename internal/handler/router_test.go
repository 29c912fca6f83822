package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"fashion-advisor-go/internal/model"
	"fashion-advisor-go/internal/repository"
	"fashion-advisor-go/internal/service"
	"fashion-advisor-go/pkg/api"
	"fashion-advisor-go/pkg/fetcher"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// manualScheduler 记录定时任务，由测试决定何时执行。
type manualScheduler struct {
	mu  sync.Mutex
	fns []func()
}

func (s *manualScheduler) schedule(_ time.Duration, fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fns = append(s.fns, fn)
}

func (s *manualScheduler) fire() {
	s.mu.Lock()
	fns := s.fns
	s.fns = nil
	s.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

type testEnv struct {
	router        *gin.Engine
	conversations service.ConversationService
	scheduler     *manualScheduler
	gate          chan struct{} // 非 nil 时 text-only 请求阻塞到关闭
}

func newTestEnv(t *testing.T, voice bool, gate chan struct{}) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	mux := http.NewServeMux()
	mux.HandleFunc("/ai/fashion-advisor-text-only", func(w http.ResponseWriter, r *http.Request) {
		if gate != nil {
			<-gate
		}
		fmt.Fprintf(w, `{"response":"Try a linen shirt for %s","products":[{"id":7,"name":"Linen Shirt","image":"shirt.jpg","description":"breathable"}]}`,
			r.URL.Query().Get("user_query"))
	})
	mux.HandleFunc("/trend-geo/stores", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"stores":[{"name":"Shop A","address":"1 Main St","latitude":1.5,"longitude":2.5}]}`)
	})
	mux.HandleFunc("/login", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"detail":"invalid credentials"}`, http.StatusUnauthorized)
	})
	mux.HandleFunc("/products/all", func(w http.ResponseWriter, r *http.Request) {
		items := make([]string, 0, 8)
		for i := 1; i <= 8; i++ {
			items = append(items, fmt.Sprintf(`{"id":%d,"name":"Item %d","image":"%d.jpg","description":""}`, i, i, i))
		}
		fmt.Fprintf(w, `{"code":200,"message":"ok","data":[%s]}`, strings.Join(items, ","))
	})
	backend := httptest.NewServer(mux)
	t.Cleanup(backend.Close)

	var sessions service.SessionService
	client := api.NewClient(fetcher.New(backend.URL, backend.Client()), api.TokenFunc(func() string {
		return sessions.Token()
	}))
	sessions = service.NewSessionService(context.Background(), client, repository.NewMemoryKVStore())

	sched := &manualScheduler{}
	conversations := service.NewConversationService(client, service.ConversationOptions{
		VoiceEnabled: voice,
		Schedule:     sched.schedule,
	})
	t.Cleanup(conversations.CloseAll)

	router := NewRouter(Services{
		Sessions:      sessions,
		Conversations: conversations,
		Catalog:       service.NewCatalogService(client, 6),
		Analysis:      service.NewAnalysisService(client, 3),
		Users:         service.NewUserService(client, sessions),
	})
	return &testEnv{router: router, conversations: conversations, scheduler: sched, gate: gate}
}

func (e *testEnv) do(t *testing.T, method, path, body string) (int, envelope) {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader([]byte(body)))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)

	var env envelope
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("%s %s: invalid response body %q: %v", method, path, w.Body.String(), err)
	}
	return w.Code, env
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestCreateAndSendMessage(t *testing.T) {
	env := newTestEnv(t, false, nil)

	code, resp := env.do(t, http.MethodPost, "/api/v1/conversations", "")
	if code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", code)
	}
	var snap model.ConversationSnapshot
	if err := json.Unmarshal(resp.Data, &snap); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	if len(snap.Messages) != 1 || snap.Messages[0].Text() != model.GreetingText {
		t.Fatalf("new conversation should only hold the greeting, got %+v", snap.Messages)
	}

	code, resp = env.do(t, http.MethodPost, "/api/v1/conversations/"+snap.ID+"/messages", `{"text":"summer outfit"}`)
	if code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", code, resp.Message)
	}
	var msg model.Message
	if err := json.Unmarshal(resp.Data, &msg); err != nil {
		t.Fatalf("decode message: %v", err)
	}
	body, ok := msg.Body.(model.ProductsBody)
	if !ok {
		t.Fatalf("expected products body, got %T", msg.Body)
	}
	if body.Text != "Try a linen shirt for summer outfit" || len(body.Products) != 1 || body.Products[0].ID != "7" {
		t.Fatalf("unexpected reply %+v", body)
	}

	conv, err := env.conversations.Get(snap.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got := conv.Snapshot(); len(got.Messages) != 3 || got.Processing {
		t.Fatalf("expected greeting, user and assistant messages, got %d (processing=%v)", len(got.Messages), got.Processing)
	}
}

func TestSendMessageRejectsEmptyTurn(t *testing.T) {
	env := newTestEnv(t, false, nil)
	conv := env.conversations.Create()

	code, _ := env.do(t, http.MethodPost, "/api/v1/conversations/"+conv.ID()+"/messages", `{"text":"   "}`)
	if code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", code)
	}
}

func TestSendMessageWhileInFlight(t *testing.T) {
	gate := make(chan struct{})
	env := newTestEnv(t, false, gate)
	conv := env.conversations.Create()
	path := "/api/v1/conversations/" + conv.ID() + "/messages"

	done := make(chan int, 1)
	go func() {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(`{"text":"first"}`))
		req.Header.Set("Content-Type", "application/json")
		env.router.ServeHTTP(w, req)
		done <- w.Code
	}()
	waitFor(t, func() bool { return len(conv.Snapshot().Messages) == 3 })

	code, _ := env.do(t, http.MethodPost, path, `{"text":"second"}`)
	if code != http.StatusConflict {
		t.Fatalf("expected 409 while a turn is in flight, got %d", code)
	}

	close(gate)
	if got := <-done; got != http.StatusOK {
		t.Fatalf("first turn: expected 200, got %d", got)
	}
	if n := len(conv.Snapshot().Messages); n != 3 {
		t.Fatalf("rejected turn must not append messages, got %d", n)
	}
}

func TestUnknownConversation(t *testing.T) {
	env := newTestEnv(t, false, nil)
	for _, tc := range []struct{ method, path, body string }{
		{http.MethodGet, "/api/v1/conversations/missing", ""},
		{http.MethodDelete, "/api/v1/conversations/missing", ""},
		{http.MethodPost, "/api/v1/conversations/missing/messages", `{"text":"hi"}`},
	} {
		code, _ := env.do(t, tc.method, tc.path, tc.body)
		if code != http.StatusNotFound {
			t.Fatalf("%s %s: expected 404, got %d", tc.method, tc.path, code)
		}
	}
}

func TestSearchNearby(t *testing.T) {
	env := newTestEnv(t, false, nil)
	conv := env.conversations.Create()
	nearby := "/api/v1/conversations/" + conv.ID() + "/nearby"

	if code, _ := env.do(t, http.MethodPost, nearby, `{"latitude":1,"longitude":2}`); code != http.StatusConflict {
		t.Fatalf("nearby before any recommendation: expected 409, got %d", code)
	}

	if code, _ := env.do(t, http.MethodPost, "/api/v1/conversations/"+conv.ID()+"/messages", `{"text":"jacket"}`); code != http.StatusOK {
		t.Fatalf("send: expected 200, got %d", code)
	}
	env.scheduler.fire()
	if !conv.Snapshot().NearbyVisible {
		t.Fatal("nearby action should be visible after the delay")
	}

	code, resp := env.do(t, http.MethodPost, nearby, `{"denied":true}`)
	if code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	var msg model.Message
	if err := json.Unmarshal(resp.Data, &msg); err != nil {
		t.Fatal(err)
	}
	if msg.Text() != "Location access denied. Cannot fetch nearby store recommendations." {
		t.Fatalf("unexpected denied reply %q", msg.Text())
	}
	if conv.Snapshot().NearbyVisible {
		t.Fatal("nearby action should be hidden after use")
	}
}

func TestSearchNearbyReturnsStores(t *testing.T) {
	env := newTestEnv(t, false, nil)
	conv := env.conversations.Create()
	if code, _ := env.do(t, http.MethodPost, "/api/v1/conversations/"+conv.ID()+"/messages", `{"text":"jacket"}`); code != http.StatusOK {
		t.Fatalf("send: expected 200, got %d", code)
	}
	env.scheduler.fire()

	code, resp := env.do(t, http.MethodPost, "/api/v1/conversations/"+conv.ID()+"/nearby", `{"latitude":1.5,"longitude":2.5}`)
	if code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	var msg model.Message
	if err := json.Unmarshal(resp.Data, &msg); err != nil {
		t.Fatal(err)
	}
	body, ok := msg.Body.(model.StoreMapsBody)
	if !ok || len(body.Stores) != 1 || body.Stores[0].Name != "Shop A" {
		t.Fatalf("expected one store, got %+v", msg.Body)
	}
}

func TestVoiceDisabled(t *testing.T) {
	env := newTestEnv(t, false, nil)
	conv := env.conversations.Create()

	code, _ := env.do(t, http.MethodPost, "/api/v1/conversations/"+conv.ID()+"/voice/start", "")
	if code != http.StatusNotImplemented {
		t.Fatalf("expected 501, got %d", code)
	}
	code, _ = env.do(t, http.MethodPost, "/api/v1/conversations/"+conv.ID()+"/voice/stop", "")
	if code != http.StatusConflict {
		t.Fatalf("stop without recording: expected 409, got %d", code)
	}
}

func TestVoiceStartMicrophoneDenied(t *testing.T) {
	env := newTestEnv(t, true, nil)
	conv := env.conversations.Create()
	start := "/api/v1/conversations/" + conv.ID() + "/voice/start"

	code, resp := env.do(t, http.MethodPost, start, `{"denied":true}`)
	if code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", code)
	}
	if resp.Message != "Could not access microphone. Please check browser permissions." {
		t.Fatalf("unexpected message %q", resp.Message)
	}
	if conv.Snapshot().Recording {
		t.Fatal("denied microphone must not start recording")
	}

	if code, _ := env.do(t, http.MethodPost, start, ""); code != http.StatusOK {
		t.Fatalf("start without body: expected 200, got %d", code)
	}
	if !conv.Snapshot().Recording {
		t.Fatal("expected recording after a granted start")
	}
}

func TestLoginRejected(t *testing.T) {
	env := newTestEnv(t, false, nil)

	code, _ := env.do(t, http.MethodPost, "/api/v1/auth/login", `{"email":"a@b.c","password":"wrong"}`)
	if code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", code)
	}
	code, _ = env.do(t, http.MethodPost, "/api/v1/auth/login", `{"email":"a@b.c"}`)
	if code != http.StatusBadRequest {
		t.Fatalf("missing password: expected 400, got %d", code)
	}

	code, resp := env.do(t, http.MethodGet, "/api/v1/auth/me", "")
	if code != http.StatusOK {
		t.Fatalf("me: expected 200, got %d", code)
	}
	var me struct {
		Authenticated bool `json:"authenticated"`
	}
	if err := json.Unmarshal(resp.Data, &me); err != nil {
		t.Fatal(err)
	}
	if me.Authenticated {
		t.Fatal("failed login must not authenticate the session")
	}
}

func TestUserImageRequiresSession(t *testing.T) {
	env := newTestEnv(t, false, nil)
	code, _ := env.do(t, http.MethodPost, "/api/v1/users/1/images", "")
	if code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", code)
	}
}

func TestTrendingTruncatesToPageSize(t *testing.T) {
	env := newTestEnv(t, false, nil)

	code, resp := env.do(t, http.MethodGet, "/api/v1/products/trending", "")
	if code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	var items []model.ProductPreview
	if err := json.Unmarshal(resp.Data, &items); err != nil {
		t.Fatal(err)
	}
	if len(items) != 6 || items[0].Name != "Item 1" {
		t.Fatalf("expected first 6 products, got %+v", items)
	}

	code, resp = env.do(t, http.MethodGet, "/api/v1/products?page=0", "")
	if code != http.StatusOK {
		t.Fatalf("list: expected 200, got %d", code)
	}
	var page model.ProductPage
	if err := json.Unmarshal(resp.Data, &page); err != nil {
		t.Fatal(err)
	}
	if page.Page != 1 || page.NextPage != 2 || len(page.Items) != 8 {
		t.Fatalf("unexpected page %+v", page)
	}
}

func TestStreamPushesSnapshots(t *testing.T) {
	env := newTestEnv(t, false, nil)
	conv := env.conversations.Create()
	srv := httptest.NewServer(env.router)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/conversations/" + conv.ID() + "/ws"
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer ws.Close()

	read := func() outboundFrame {
		t.Helper()
		_ = ws.SetReadDeadline(time.Now().Add(2 * time.Second))
		var f outboundFrame
		if err := ws.ReadJSON(&f); err != nil {
			t.Fatalf("read frame: %v", err)
		}
		return f
	}

	if f := read(); f.Type != "snapshot" || f.Data == nil || len(f.Data.Messages) != 1 {
		t.Fatalf("expected initial snapshot, got %+v", f)
	}

	if err := ws.WriteJSON(inboundFrame{Type: "draft", Text: "red dress"}); err != nil {
		t.Fatal(err)
	}
	for {
		f := read()
		if f.Type == "snapshot" && f.Data.Draft == "red dress" {
			break
		}
	}

	if err := ws.WriteJSON(inboundFrame{Type: "bogus"}); err != nil {
		t.Fatal(err)
	}
	for {
		f := read()
		if f.Type == "error" {
			if !strings.Contains(f.Message, "bogus") {
				t.Fatalf("unexpected error frame %q", f.Message)
			}
			break
		}
	}
}
