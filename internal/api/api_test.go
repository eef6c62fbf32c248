package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/starford/reverie/internal/apperr"
	"github.com/starford/reverie/internal/chat"
	"github.com/starford/reverie/internal/journal"
	"github.com/starford/reverie/internal/search"
	"github.com/starford/reverie/internal/testutil"
)

type fakeAssistant struct {
	err error
}

func (f *fakeAssistant) Reply(_ context.Context, _, mode string) (string, error) {
	return "reply in " + mode, f.err
}

func (f *fakeAssistant) ReflectivePrompt(_ context.Context, text string) (string, error) {
	return "What did " + text + " teach you?", f.err
}

// testEnv wires a temp SQLite store, the fake embedder and a fake assistant
// behind the router. An empty token disables auth.
func testEnv(t *testing.T, token string) http.Handler {
	t.Helper()
	return testEnvWith(t, token, &fakeAssistant{}, nil)
}

func testEnvWith(t *testing.T, token string, asst *fakeAssistant, sseHandler http.Handler) http.Handler {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	db := testutil.TestDB(t)
	emb := testutil.NewFakeEmbedder()

	planner := search.NewPlanner(db, emb, logger, search.DefaultOptions())
	svc := Services{
		Journal:  journal.NewService(db, emb, logger),
		Search:   planner,
		Chat:     chat.NewService(chat.NewAssembler(planner, db, chat.Options{}), db, asst, nil, logger),
		Prompter: asst,
	}
	return NewRouter(svc, RouterConfig{AuthEnabled: token != "", Token: token, RequestTimeout: 5 * time.Second, Events: sseHandler})
}

func do(t *testing.T, h http.Handler, method, target, body string, header ...string) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, rd)
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	return v
}

func createEntry(t *testing.T, h http.Handler, owner, text string) UpsertResponse {
	t.Helper()
	body, _ := json.Marshal(EntryRequest{Text: text, EntryDate: "2024-05-01"})
	w := do(t, h, http.MethodPost, "/users/"+owner+"/entries", string(body))
	if w.Code != http.StatusCreated {
		t.Fatalf("create = %d, body = %s", w.Code, w.Body.String())
	}
	return decode[UpsertResponse](t, w)
}

func TestCreateAndGetEntry(t *testing.T) {
	router := testEnv(t, "")
	res := createEntry(t, router, "alice", "I walked by the sea. The water was cold.")
	if res.Chunks != 2 || res.Indexed != 2 || !res.Created {
		t.Errorf("upsert result = %+v", res)
	}

	w := do(t, router, http.MethodGet, "/users/alice/entries/"+res.Entry.ID, "")
	if w.Code != http.StatusOK {
		t.Fatalf("get = %d", w.Code)
	}
	if got := w.Header().Get("ETag"); got != `"`+res.Entry.Checksum+`"` {
		t.Errorf("ETag = %q", got)
	}
	detail := decode[EntryResponse](t, w)
	if detail.Text != "I walked by the sea. The water was cold." || len(detail.Chunks) != 2 {
		t.Errorf("detail = %+v", detail)
	}
	if detail.Chunks[1].Text != "The water was cold." {
		t.Errorf("chunk 1 = %q", detail.Chunks[1].Text)
	}
}

func TestCreateEntry_Invalid(t *testing.T) {
	router := testEnv(t, "")
	for _, body := range []string{`{"text":"   "}`, `{"text":"ok","entry_date":"May 1"}`, `{not json`, `{"text":"x","entry_id":"abc"}`} {
		if w := do(t, router, http.MethodPost, "/users/alice/entries", body); w.Code != http.StatusBadRequest {
			t.Errorf("body %s = %d, want 400", body, w.Code)
		}
	}
}

func TestUpdateWithOptimisticLocking(t *testing.T) {
	router := testEnv(t, "")
	res := createEntry(t, router, "alice", "First draft.")
	target := "/users/alice/entries/" + res.Entry.ID

	w := do(t, router, http.MethodPut, target, `{"text":"Second draft."}`, "If-Match", `"stale"`)
	if w.Code != http.StatusConflict {
		t.Errorf("stale If-Match = %d, want 409", w.Code)
	}

	w = do(t, router, http.MethodPut, target, `{"text":"Second draft."}`, "If-Match", `"`+res.Entry.Checksum+`"`)
	if w.Code != http.StatusOK {
		t.Fatalf("update = %d, body = %s", w.Code, w.Body.String())
	}
	updated := decode[UpsertResponse](t, w)
	if updated.Created || updated.Entry.Text != "Second draft." || updated.Entry.Checksum == res.Entry.Checksum {
		t.Errorf("update result = %+v", updated.Entry)
	}

	// No If-Match means last writer wins.
	if w := do(t, router, http.MethodPut, target, `{"text":"Third draft."}`); w.Code != http.StatusOK {
		t.Errorf("update without If-Match = %d", w.Code)
	}
}

func TestEntryOwnership(t *testing.T) {
	router := testEnv(t, "")
	res := createEntry(t, router, "alice", "Private thoughts.")
	target := "/users/bob/entries/" + res.Entry.ID

	for _, m := range []string{http.MethodGet, http.MethodDelete} {
		if w := do(t, router, m, target, ""); w.Code != http.StatusForbidden {
			t.Errorf("%s other owner = %d, want 403", m, w.Code)
		}
	}
	if w := do(t, router, http.MethodPut, target, `{"text":"Hijack."}`); w.Code != http.StatusForbidden {
		t.Errorf("PUT other owner = %d, want 403", w.Code)
	}
}

func TestEntryNotFound(t *testing.T) {
	router := testEnv(t, "")
	missing := "/users/alice/entries/0b7d3f7e-4a55-4c1e-8a61-1d0e1d1a6c11"
	if w := do(t, router, http.MethodGet, missing, ""); w.Code != http.StatusNotFound {
		t.Errorf("get missing = %d, want 404", w.Code)
	}
	if w := do(t, router, http.MethodPut, missing, `{"text":"x"}`); w.Code != http.StatusNotFound {
		t.Errorf("put missing = %d, want 404", w.Code)
	}
}

func TestDeleteEntry(t *testing.T) {
	router := testEnv(t, "")
	res := createEntry(t, router, "alice", "Gone tomorrow.")
	target := "/users/alice/entries/" + res.Entry.ID

	if w := do(t, router, http.MethodDelete, target, ""); w.Code != http.StatusNoContent {
		t.Fatalf("delete = %d", w.Code)
	}
	if w := do(t, router, http.MethodGet, target, ""); w.Code != http.StatusNotFound {
		t.Errorf("get after delete = %d, want 404", w.Code)
	}
	w := do(t, router, http.MethodGet, "/users/alice/search?q=tomorrow", "")
	if got := decode[SearchResponse](t, w); len(got.Results) != 0 {
		t.Errorf("deleted entry still searchable: %+v", got.Results)
	}
}

func TestListEntries(t *testing.T) {
	router := testEnv(t, "")
	for _, text := range []string{"One.", "Two.", "Three."} {
		createEntry(t, router, "alice", text)
	}
	createEntry(t, router, "bob", "Not yours.")

	w := do(t, router, http.MethodGet, "/users/alice/entries?limit=2", "")
	if w.Code != http.StatusOK {
		t.Fatalf("list = %d", w.Code)
	}
	list := decode[EntryListResponse](t, w)
	if list.Total != 3 || len(list.Entries) != 2 {
		t.Errorf("total = %d, page = %d", list.Total, len(list.Entries))
	}
	if w := do(t, router, http.MethodGet, "/users/alice/entries?limit=x", ""); w.Code != http.StatusBadRequest {
		t.Errorf("bad limit = %d, want 400", w.Code)
	}
}

func TestSearchEndpoint(t *testing.T) {
	router := testEnv(t, "")
	res := createEntry(t, router, "alice", "Zebras at the zoo.")
	createEntry(t, router, "alice", "Coffee with a friend.")

	w := do(t, router, http.MethodGet, "/users/alice/search?q=zebras&k=1", "")
	if w.Code != http.StatusOK {
		t.Fatalf("search = %d", w.Code)
	}
	got := decode[SearchResponse](t, w)
	if len(got.Results) != 1 || got.Results[0].EntryID != res.Entry.ID {
		t.Errorf("results = %+v", got.Results)
	}

	if w := do(t, router, http.MethodGet, "/users/alice/search?q=x&k=-1", ""); w.Code != http.StatusBadRequest {
		t.Errorf("negative k = %d, want 400", w.Code)
	}
	if w := do(t, router, http.MethodGet, "/users/alice/search?q=x&k=many", ""); w.Code != http.StatusBadRequest {
		t.Errorf("non-numeric k = %d, want 400", w.Code)
	}
}

func TestChatEndpoint(t *testing.T) {
	router := testEnv(t, "")
	createEntry(t, router, "alice", "Hiking in the rain.")

	w := do(t, router, http.MethodPost, "/users/alice/chat", `{"message":"I miss hiking.","mode":"mindfulness"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("chat = %d, body = %s", w.Code, w.Body.String())
	}
	ex := decode[ChatResponse](t, w)
	if ex.ConversationID == "" || ex.Agent.Text != "reply in mindfulness" || len(ex.Entries) == 0 {
		t.Errorf("exchange = %+v", ex)
	}

	w = do(t, router, http.MethodGet, "/users/alice/conversations/"+ex.ConversationID+"/messages", "")
	if w.Code != http.StatusOK {
		t.Fatalf("history = %d", w.Code)
	}
	if hist := decode[HistoryResponse](t, w); len(hist.Messages) != 2 || hist.Messages[0].Sender != "agent" {
		t.Errorf("history = %+v", hist.Messages)
	}

	if w := do(t, router, http.MethodPost, "/users/alice/chat", `{"message":"x","mode":"freudian"}`); w.Code != http.StatusBadRequest {
		t.Errorf("bad mode = %d, want 400", w.Code)
	}
}

func TestChatEndpoint_UpstreamFailure(t *testing.T) {
	router := testEnvWith(t, "", &fakeAssistant{err: apperr.ErrUpstream}, nil)
	w := do(t, router, http.MethodPost, "/users/alice/chat", `{"conversation_id":"c1","message":"Hello"}`)
	if w.Code != http.StatusBadGateway {
		t.Errorf("chat upstream failure = %d, want 502", w.Code)
	}
	w = do(t, router, http.MethodGet, "/users/alice/conversations/c1/messages", "")
	if hist := decode[HistoryResponse](t, w); len(hist.Messages) != 0 {
		t.Errorf("messages stored after failed reply: %+v", hist.Messages)
	}
}

func TestPromptEndpoint(t *testing.T) {
	router := testEnv(t, "")
	w := do(t, router, http.MethodPost, "/prompt", `{"entry_text":"the storm"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("prompt = %d", w.Code)
	}
	if got := decode[PromptResponse](t, w); got.Prompt != "What did the storm teach you?" {
		t.Errorf("prompt = %q", got.Prompt)
	}
	if w := do(t, router, http.MethodPost, "/prompt", `{}`); w.Code != http.StatusBadRequest {
		t.Errorf("empty prompt = %d, want 400", w.Code)
	}
}

func TestAssistantDisabled(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	db := testutil.TestDB(t)
	emb := testutil.NewFakeEmbedder()
	router := NewRouter(Services{
		Journal: journal.NewService(db, emb, logger),
		Search:  search.NewPlanner(db, emb, logger, search.DefaultOptions()),
	}, RouterConfig{})

	if w := do(t, router, http.MethodPost, "/users/alice/chat", `{"message":"hi"}`); w.Code != http.StatusServiceUnavailable {
		t.Errorf("chat without assistant = %d, want 503", w.Code)
	}
	if w := do(t, router, http.MethodPost, "/prompt", `{"entry_text":"x"}`); w.Code != http.StatusServiceUnavailable {
		t.Errorf("prompt without assistant = %d, want 503", w.Code)
	}
}

func TestAuthMiddleware_ValidToken(t *testing.T) {
	router := testEnv(t, "secret")
	w := do(t, router, http.MethodGet, "/users/alice/entries", "", "Authorization", "Bearer secret")
	if w.Code != http.StatusOK {
		t.Errorf("valid token = %d, want 200", w.Code)
	}
}

func TestAuthMiddleware_MissingToken(t *testing.T) {
	router := testEnv(t, "secret")
	if w := do(t, router, http.MethodGet, "/users/alice/entries", ""); w.Code != http.StatusUnauthorized {
		t.Errorf("no token = %d, want 401", w.Code)
	}
}

func TestAuthMiddleware_WrongToken(t *testing.T) {
	router := testEnv(t, "secret")
	w := do(t, router, http.MethodGet, "/users/alice/entries", "", "Authorization", "Bearer wrong")
	if w.Code != http.StatusUnauthorized {
		t.Errorf("wrong token = %d, want 401", w.Code)
	}
}

func TestAuthMiddleware_QueryToken(t *testing.T) {
	router := testEnv(t, "secret")
	if w := do(t, router, http.MethodGet, "/users/alice/entries?access_token=secret", ""); w.Code != http.StatusOK {
		t.Errorf("GET with query token = %d, want 200", w.Code)
	}
	// Query tokens are only honoured on GET.
	w := do(t, router, http.MethodPost, "/users/alice/entries?access_token=secret", `{"text":"Hello there."}`)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("POST with query token = %d, want 401", w.Code)
	}
	// A malformed header is not rescued by the query parameter.
	w = do(t, router, http.MethodGet, "/users/alice/entries?access_token=secret", "", "Authorization", "Basic abc")
	if w.Code != http.StatusUnauthorized {
		t.Errorf("basic auth header = %d, want 401", w.Code)
	}
}

func TestSSEEvents_AuthProtected(t *testing.T) {
	router := testEnvWith(t, "secret", &fakeAssistant{}, blockingSSE())
	if w := do(t, router, http.MethodGet, "/users/alice/events", ""); w.Code != http.StatusUnauthorized {
		t.Errorf("SSE no auth = %d, want 401", w.Code)
	}
}

func TestSSEEvents_ValidToken(t *testing.T) {
	router := testEnvWith(t, "tok", &fakeAssistant{}, blockingSSE())
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/users/alice/events", nil).WithContext(ctx)
	req.Header.Set("Authorization", "Bearer tok")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK || w.Header().Get("X-Owner") != "alice" {
		t.Errorf("SSE = %d owner %q", w.Code, w.Header().Get("X-Owner"))
	}
}

// blockingSSE stands in for the broker: it echoes the owner and blocks
// until the request is cancelled.
func blockingSSE() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("X-Owner", chi.URLParam(r, "ownerID"))
		w.WriteHeader(http.StatusOK)
		<-r.Context().Done()
	})
}

func TestServeImage(t *testing.T) {
	_, fs := testutil.TestImages(t)
	name, err := fs.Save("0b7d3f7e-4a55-4c1e-8a61-1d0e1d1a6c11", []byte("png-bytes"))
	if err != nil {
		t.Fatal(err)
	}
	r := chi.NewRouter()
	r.Get("/images/{filename}", NewImageHandler(fs).ServeFile)

	w := do(t, r, http.MethodGet, "/images/"+name, "")
	if w.Code != http.StatusOK || !bytes.Equal(w.Body.Bytes(), []byte("png-bytes")) {
		t.Errorf("serve = %d %q", w.Code, w.Body.String())
	}
	if w := do(t, r, http.MethodGet, "/images/missing.png", ""); w.Code != http.StatusNotFound {
		t.Errorf("missing image = %d, want 404", w.Code)
	}
	if w := do(t, r, http.MethodGet, "/images/..%2Fsecret", ""); w.Code == http.StatusOK {
		t.Errorf("traversal served")
	}
}
