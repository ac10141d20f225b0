package telegram

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

const testToken = "123456:TEST_TOKEN_abcdefghijklmnopqrstuvwxyz"

var testBotUser = User{ID: 999, IsBot: true, FirstName: "Bridge", Username: "bridge_bot"}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func writeJSON(t *testing.T, w http.ResponseWriter, v any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		t.Errorf("encode response: %v", err)
	}
}

func okResult(result any) map[string]any {
	return map[string]any{"ok": true, "result": result}
}

// apiCall is one request recorded by fakeAPI.
type apiCall struct {
	Method string
	// Params holds the JSON body, or the text fields of a multipart body.
	Params map[string]any
	// Files maps multipart file fields to their content.
	Files map[string]string
}

// fakeAPI is a Bot API stand-in. Handlers answer by method name; methods
// without a handler get {"ok":true,"result":true}.
type fakeAPI struct {
	t        *testing.T
	srv      *httptest.Server
	mu       sync.Mutex
	calls    []apiCall
	handlers map[string]func(call apiCall) any
	// files is served under /file/bot<token>/<path>.
	files map[string]string
}

// rawReply makes a fakeAPI handler answer with an arbitrary status and body.
type rawReply struct {
	status int
	body   string
}

func newFakeAPI(t *testing.T) *fakeAPI {
	t.Helper()
	f := &fakeAPI{t: t, handlers: make(map[string]func(apiCall) any), files: make(map[string]string)}
	f.handlers["getMe"] = func(apiCall) any { return okResult(testBotUser) }
	f.srv = httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeAPI) on(method string, h func(call apiCall) any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[method] = h
}

func (f *fakeAPI) client(opts ...ClientOption) *Client {
	return NewClient(testToken, f.srv.URL, opts...)
}

func (f *fakeAPI) recorded(method string) []apiCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []apiCall
	for _, c := range f.calls {
		if c.Method == method {
			out = append(out, c)
		}
	}
	return out
}

func (f *fakeAPI) serve(w http.ResponseWriter, r *http.Request) {
	if path, found := strings.CutPrefix(r.URL.Path, "/file/bot"+testToken+"/"); found {
		f.mu.Lock()
		data, exists := f.files[path]
		f.mu.Unlock()
		if !exists {
			http.NotFound(w, r)
			return
		}
		_, _ = io.WriteString(w, data)
		return
	}

	prefix := "/bot" + testToken + "/"
	if !strings.HasPrefix(r.URL.Path, prefix) {
		http.NotFound(w, r)
		return
	}
	call := apiCall{Method: strings.TrimPrefix(r.URL.Path, prefix), Params: map[string]any{}, Files: map[string]string{}}

	mediaType, params, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch mediaType {
	case "application/json":
		if err := json.NewDecoder(r.Body).Decode(&call.Params); err != nil {
			f.t.Errorf("decode %s body: %v", call.Method, err)
		}
	case "multipart/form-data":
		mr := multipart.NewReader(r.Body, params["boundary"])
		for {
			part, err := mr.NextPart()
			if err != nil {
				break
			}
			data, _ := io.ReadAll(part)
			if part.FileName() != "" {
				call.Files[part.FormName()] = string(data)
			} else {
				call.Params[part.FormName()] = string(data)
			}
		}
	}

	f.mu.Lock()
	f.calls = append(f.calls, call)
	h := f.handlers[call.Method]
	f.mu.Unlock()

	if h == nil {
		writeJSON(f.t, w, okResult(true))
		return
	}
	reply := h(call)
	if raw, isRaw := reply.(rawReply); isRaw {
		w.WriteHeader(raw.status)
		_, _ = io.WriteString(w, raw.body)
		return
	}
	writeJSON(f.t, w, reply)
}

// sentMessage answers send calls with a message in the requested chat.
func sentMessage(id int64) func(apiCall) any {
	return func(apiCall) any {
		return okResult(Message{MessageID: id, Chat: Chat{ID: 1, Type: ChatPrivate}, Date: 1})
	}
}

func newTestBot(api *fakeAPI, c composer) *Bot {
	return &Bot{
		client:   api.client(),
		self:     testBotUser,
		caches:   NewCaches(),
		users:    c.users,
		menus:    NewMenuManager(),
		composer: c,
		logger:   discardLogger(),
	}
}

// memUserStore is an in-memory UserStore.
type memUserStore struct {
	mu    sync.Mutex
	ids   map[string]int64
	close int
}

func newMemUserStore() *memUserStore {
	return &memUserStore{ids: make(map[string]int64)}
}

func (m *memUserStore) Put(_ context.Context, username string, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ids[normalizeUsername(username)] = id
	return nil
}

func (m *memUserStore) Get(_ context.Context, username string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, found := m.ids[normalizeUsername(username)]
	if !found {
		return 0, ErrUnknownUser
	}
	return id, nil
}

func (m *memUserStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.close++
	return nil
}

func mustClassify(t *testing.T, c *Classifier, raw string) *Event {
	t.Helper()
	ev, accepted, err := c.Classify([]byte(raw))
	if err != nil {
		t.Fatalf("Classify() error: %v", err)
	}
	if !accepted {
		t.Fatal("Classify() discarded the update")
	}
	return ev
}
