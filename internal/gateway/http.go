// ABOUTME: HTTP surface: command dispatch, SSE event stream, ingestion, admin
// ABOUTME: chi router with JSON request/response bodies throughout

package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/oauth2"

	"github.com/errandhq/errand-gateway/internal/dispatch"
	"github.com/errandhq/errand-gateway/internal/extract"
	"github.com/errandhq/errand-gateway/internal/providers/telegram"
	"github.com/errandhq/errand-gateway/internal/relay"
	"github.com/errandhq/errand-gateway/internal/retrieval"
)

func (g *Gateway) router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", g.handleHealth)
	r.Route("/v1", func(r chi.Router) {
		r.Post("/commands", g.handleCommand)
		r.Get("/events", g.handleEvents)
		r.Get("/tools", g.handleListTools)
		r.Post("/documents", g.handleIngestDocument)
		r.Delete("/documents/{documentID}", g.handleDeleteDocument)
		r.Post("/credentials", g.handleAuthorize)
		r.Post("/sessions/{sessionID}/bindings", g.handleBindCredential)
		r.Get("/sessions/{sessionID}/history", g.handleHistory)
	})
	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"tools":  len(g.registry.List()),
		"chunks": g.index.Size(),
	})
}

// commandRequest is the wire form of a dispatched command.
type commandRequest struct {
	InvocationID string         `json:"invocation_id"`
	SessionID    string         `json:"session_id"`
	Tool         string         `json:"tool"`
	Params       map[string]any `json:"params"`
}

func (g *Gateway) handleCommand(w http.ResponseWriter, r *http.Request) {
	var req commandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("decoding command: %w", err))
		return
	}
	if req.SessionID == "" || req.Tool == "" {
		writeError(w, http.StatusBadRequest, errors.New("session_id and tool are required"))
		return
	}

	result, err := g.dispatcher.Dispatch(r.Context(), dispatch.Command{
		InvocationID: req.InvocationID,
		SessionID:    req.SessionID,
		Tool:         req.Tool,
		Params:       req.Params,
	})
	if err != nil {
		if errors.Is(err, dispatch.ErrDuplicateInFlight) {
			writeError(w, http.StatusConflict, err)
			return
		}
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	body := map[string]any{
		"invocation_id": result.InvocationID,
		"tool":          result.Tool,
		"status":        result.Status,
		"cached":        result.Cached,
	}
	if result.Failed() {
		body["err_kind"] = result.ErrKind
		if result.Err != nil {
			body["error"] = result.Err.Error()
		}
	} else {
		body["output"] = json.RawMessage(result.Output)
	}
	writeJSON(w, http.StatusOK, body)
}

// handleEvents streams relay events as server-sent events. Resume uses
// the Last-Event-ID header (or ?last_seen) per the SSE convention; a
// resume point past the retained window answers 410 so the client knows
// to full-resync instead of reconnecting with the same id.
func (g *Gateway) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, errors.New("streaming unsupported"))
		return
	}

	provider := r.URL.Query().Get("provider")
	if provider == "" {
		provider = telegram.Provider
	}

	var lastSeen int64
	if raw := r.Header.Get("Last-Event-ID"); raw != "" {
		lastSeen, _ = strconv.ParseInt(raw, 10, 64)
	} else if raw := r.URL.Query().Get("last_seen"); raw != "" {
		lastSeen, _ = strconv.ParseInt(raw, 10, 64)
	}

	sub, err := g.events.Subscribe(provider, lastSeen)
	if err != nil {
		if errors.Is(err, relay.ErrGapDetected) {
			writeError(w, http.StatusGone, err)
			return
		}
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	defer sub.Close()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	keepalive := time.NewTicker(30 * time.Second)
	defer keepalive.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-keepalive.C:
			fmt.Fprint(w, ": keepalive\n\n")
			flusher.Flush()
		case event, open := <-sub.C:
			if !open {
				// Dropped for falling behind; the client reconnects.
				return
			}
			fmt.Fprintf(w, "id: %d\n", event.Seq)
			fmt.Fprintf(w, "data: %s\n\n", event.Payload)
			flusher.Flush()
		}
	}
}

func (g *Gateway) handleListTools(w http.ResponseWriter, r *http.Request) {
	type toolInfo struct {
		Name        string `json:"name"`
		Description string `json:"description"`
		Scope       string `json:"scope,omitempty"`
	}
	descriptors := g.registry.List()
	infos := make([]toolInfo, len(descriptors))
	for i, d := range descriptors {
		infos[i] = toolInfo{Name: d.Name, Description: d.Description, Scope: d.Scope}
	}
	writeJSON(w, http.StatusOK, map[string]any{"tools": infos})
}

// documentRequest carries one document for index ingestion. Content is
// extracted according to the name's extension before chunking.
type documentRequest struct {
	DocumentID string `json:"document_id"`
	Name       string `json:"name"`
	Content    string `json:"content"`
}

func (g *Gateway) handleIngestDocument(w http.ResponseWriter, r *http.Request) {
	var req documentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("decoding document: %w", err))
		return
	}
	if req.DocumentID == "" || req.Content == "" {
		writeError(w, http.StatusBadRequest, errors.New("document_id and content are required"))
		return
	}

	text, err := extract.Text(req.Name, []byte(req.Content))
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, fmt.Errorf("extracting text: %w", err))
		return
	}
	chunks := retrieval.ChunkText(text, g.config.Retrieval.ChunkSize, g.config.Retrieval.ChunkOverlap)
	if len(chunks) == 0 {
		writeError(w, http.StatusUnprocessableEntity, errors.New("document has no extractable text"))
		return
	}
	if err := g.index.Add(r.Context(), req.DocumentID, chunks); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"document_id": req.DocumentID, "chunks": len(chunks)})
}

func (g *Gateway) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	documentID := chi.URLParam(r, "documentID")
	if err := g.index.Remove(r.Context(), documentID); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"document_id": documentID})
}

// credentialRequest seeds a credential obtained from an external OAuth
// consent flow. The account may be omitted when an id_token is present.
type credentialRequest struct {
	Provider     string   `json:"provider"`
	Account      string   `json:"account"`
	AccessToken  string   `json:"access_token"`
	RefreshToken string   `json:"refresh_token"`
	IDToken      string   `json:"id_token"`
	ExpiresIn    int      `json:"expires_in"`
	Scopes       []string `json:"scopes"`
}

func (g *Gateway) handleAuthorize(w http.ResponseWriter, r *http.Request) {
	var req credentialRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("decoding credential: %w", err))
		return
	}
	if req.Provider == "" || req.RefreshToken == "" {
		writeError(w, http.StatusBadRequest, errors.New("provider and refresh_token are required"))
		return
	}

	token := &oauth2.Token{
		AccessToken:  req.AccessToken,
		RefreshToken: req.RefreshToken,
	}
	if req.ExpiresIn > 0 {
		token.Expiry = time.Now().Add(time.Duration(req.ExpiresIn) * time.Second)
	}
	if req.IDToken != "" {
		token = token.WithExtra(map[string]any{"id_token": req.IDToken})
	}

	account, err := g.credentials.Authorize(r.Context(), req.Provider, req.Account, token, req.Scopes)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"provider": req.Provider, "account": account})
}

type bindingRequest struct {
	Provider string `json:"provider"`
	Account  string `json:"account"`
}

func (g *Gateway) handleBindCredential(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	var req bindingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("decoding binding: %w", err))
		return
	}
	if req.Provider == "" || req.Account == "" {
		writeError(w, http.StatusBadRequest, errors.New("provider and account are required"))
		return
	}
	if err := g.sessions.BindCredential(r.Context(), sessionID, req.Provider, req.Account); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"session_id": sessionID, "provider": req.Provider, "account": req.Account,
	})
}

func (g *Gateway) handleHistory(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	s, err := g.sessions.GetOrCreate(r.Context(), sessionID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	type turnInfo struct {
		Role      string    `json:"role"`
		Content   string    `json:"content"`
		ErrKind   string    `json:"err_kind,omitempty"`
		CreatedAt time.Time `json:"created_at"`
	}
	turns := make([]turnInfo, len(s.History))
	for i, turn := range s.History {
		turns[i] = turnInfo{
			Role:      turn.Role,
			Content:   turn.Content,
			ErrKind:   turn.ErrKind,
			CreatedAt: turn.CreatedAt,
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"session_id": sessionID, "turns": turns})
}
