package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/starford/reverie/internal/chat"
	"github.com/starford/reverie/internal/journal"
)

// Handler holds API route handlers.
type Handler struct {
	svc Services
}

// NewHandler creates a new Handler.
func NewHandler(svc Services) *Handler {
	return &Handler{svc: svc}
}

func ownerID(r *http.Request) string { return chi.URLParam(r, "ownerID") }

// intParam parses an optional integer query parameter.
func intParam(r *http.Request, name string) (int, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	return n, err == nil
}

func setETag(w http.ResponseWriter, sum string) {
	if sum != "" {
		w.Header().Set("ETag", `"`+sum+`"`)
	}
}

// ListEntries handles GET /api/users/{ownerID}/entries.
//
//	@Summary	List entries, most recent first
//	@Tags		entries
//	@Produce	json
//	@Param		limit	query		int	false	"Page size"
//	@Param		offset	query		int	false	"Page offset"
//	@Success	200		{object}	EntryListResponse
//	@Security	BearerAuth
//	@Router		/users/{ownerID}/entries [get]
func (h *Handler) ListEntries(w http.ResponseWriter, r *http.Request) {
	limit, ok1 := intParam(r, "limit")
	offset, ok2 := intParam(r, "offset")
	if !ok1 || !ok2 {
		writeJSON(w, http.StatusBadRequest, errorBody("limit and offset must be integers"))
		return
	}
	entries, total, err := h.svc.Journal.List(r.Context(), ownerID(r), limit, offset)
	if err != nil {
		writeError(w, "list entries", err)
		return
	}
	writeJSON(w, http.StatusOK, EntryListResponse{Entries: entries, Total: total})
}

// GetEntry handles GET /api/users/{ownerID}/entries/{entryID}.
//
//	@Summary	Get one entry with its sentence chunks
//	@Tags		entries
//	@Produce	json
//	@Success	200	{object}	EntryResponse
//	@Failure	403	{object}	errResponse
//	@Failure	404	{object}	errResponse
//	@Security	BearerAuth
//	@Router		/users/{ownerID}/entries/{entryID} [get]
func (h *Handler) GetEntry(w http.ResponseWriter, r *http.Request) {
	detail, err := h.svc.Journal.Detail(r.Context(), ownerID(r), chi.URLParam(r, "entryID"))
	if err != nil {
		writeError(w, "get entry", err)
		return
	}
	setETag(w, detail.Checksum)
	writeJSON(w, http.StatusOK, detail)
}

// CreateEntry handles POST /api/users/{ownerID}/entries.
//
//	@Summary	Create an entry and index its sentences
//	@Tags		entries
//	@Accept		json
//	@Produce	json
//	@Param		body	body		EntryRequest	true	"Entry"
//	@Success	201		{object}	UpsertResponse
//	@Failure	400		{object}	errResponse
//	@Security	BearerAuth
//	@Router		/users/{ownerID}/entries [post]
func (h *Handler) CreateEntry(w http.ResponseWriter, r *http.Request) {
	var req EntryRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.EntryID != "" {
		writeJSON(w, http.StatusBadRequest, errorBody("entry_id is assigned by the server; use PUT to update"))
		return
	}
	h.upsert(w, r, journal.UpsertInput{
		OwnerID:   ownerID(r),
		Text:      req.Text,
		EntryDate: req.EntryDate,
	})
}

// UpdateEntry handles PUT /api/users/{ownerID}/entries/{entryID}.
//
//	@Summary	Replace an entry's text with optimistic concurrency
//	@Tags		entries
//	@Accept		json
//	@Produce	json
//	@Param		If-Match	header		string			false	"Checksum of the text being replaced"
//	@Param		body		body		EntryRequest	true	"Entry"
//	@Success	200			{object}	UpsertResponse
//	@Failure	400			{object}	errResponse
//	@Failure	403			{object}	errResponse
//	@Failure	404			{object}	errResponse
//	@Failure	409			{object}	errResponse
//	@Security	BearerAuth
//	@Router		/users/{ownerID}/entries/{entryID} [put]
func (h *Handler) UpdateEntry(w http.ResponseWriter, r *http.Request) {
	var req EntryRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	entryID := chi.URLParam(r, "entryID")
	if req.EntryID != "" && req.EntryID != entryID {
		writeJSON(w, http.StatusBadRequest, errorBody("entry_id does not match the path"))
		return
	}
	h.upsert(w, r, journal.UpsertInput{
		OwnerID:   ownerID(r),
		EntryID:   entryID,
		Text:      req.Text,
		EntryDate: req.EntryDate,
		IfMatch:   r.Header.Get("If-Match"),
	})
}

func (h *Handler) upsert(w http.ResponseWriter, r *http.Request, in journal.UpsertInput) {
	res, err := h.svc.Journal.Upsert(r.Context(), in)
	if err != nil {
		writeError(w, "upsert entry", err)
		return
	}
	status := http.StatusOK
	if res.Created {
		status = http.StatusCreated
	}
	setETag(w, res.Entry.Checksum)
	writeJSON(w, status, res)
}

// DeleteEntry handles DELETE /api/users/{ownerID}/entries/{entryID}.
//
//	@Summary	Delete an entry and everything derived from it
//	@Tags		entries
//	@Success	204	"Entry deleted"
//	@Failure	403	{object}	errResponse
//	@Failure	404	{object}	errResponse
//	@Security	BearerAuth
//	@Router		/users/{ownerID}/entries/{entryID} [delete]
func (h *Handler) DeleteEntry(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Journal.Delete(r.Context(), ownerID(r), chi.URLParam(r, "entryID")); err != nil {
		writeError(w, "delete entry", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Search handles GET /api/users/{ownerID}/search.
//
//	@Summary	Hybrid keyword and semantic search
//	@Tags		search
//	@Produce	json
//	@Param		q	query		string	true	"Query text"
//	@Param		k	query		int		false	"Max results"
//	@Success	200	{object}	SearchResponse
//	@Failure	400	{object}	errResponse
//	@Security	BearerAuth
//	@Router		/users/{ownerID}/search [get]
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	k, ok := intParam(r, "k")
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorBody("k must be an integer"))
		return
	}
	results, err := h.svc.Search.Search(r.Context(), ownerID(r), r.URL.Query().Get("q"), k)
	if err != nil {
		writeError(w, "search", err)
		return
	}
	writeJSON(w, http.StatusOK, SearchResponse{Results: results})
}

// Chat handles POST /api/users/{ownerID}/chat.
func (h *Handler) Chat(w http.ResponseWriter, r *http.Request) {
	if h.svc.Chat == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorBody("assistant is not configured"))
		return
	}
	var req ChatRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	ex, err := h.svc.Chat.Respond(r.Context(), chat.RespondInput{
		OwnerID:        ownerID(r),
		ConversationID: req.ConversationID,
		Message:        req.Message,
		Mode:           req.Mode,
	})
	if err != nil {
		writeError(w, "chat", err)
		return
	}
	writeJSON(w, http.StatusCreated, ex)
}

// Messages handles GET /api/users/{ownerID}/conversations/{conversationID}/messages.
func (h *Handler) Messages(w http.ResponseWriter, r *http.Request) {
	if h.svc.Chat == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorBody("assistant is not configured"))
		return
	}
	n, ok := intParam(r, "n")
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorBody("n must be an integer"))
		return
	}
	if n == 0 {
		n = 50
	}
	msgs, err := h.svc.Chat.History(r.Context(), ownerID(r), chi.URLParam(r, "conversationID"), n)
	if err != nil {
		writeError(w, "chat history", err)
		return
	}
	writeJSON(w, http.StatusOK, HistoryResponse{Messages: msgs})
}

// Prompt handles POST /api/prompt.
func (h *Handler) Prompt(w http.ResponseWriter, r *http.Request) {
	if h.svc.Prompter == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorBody("assistant is not configured"))
		return
	}
	var req PromptRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.EntryText == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("entry_text is required"))
		return
	}
	prompt, err := h.svc.Prompter.ReflectivePrompt(r.Context(), req.EntryText)
	if err != nil {
		writeError(w, "reflective prompt", err)
		return
	}
	writeJSON(w, http.StatusOK, PromptResponse{Prompt: prompt})
}
