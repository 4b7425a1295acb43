package presence

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"pipit/cmd/internal/auth/gate"
	v1 "pipit/contracts/realtime/v1"
)

// HistoryHandler serves GET /conversations/{user_id}: the persisted message
// history between the authenticated caller and another user.
type HistoryHandler struct {
	log   *slog.Logger
	store MessageStore
	gate  *gate.Gate
}

// NewHistoryHandler constructs a HistoryHandler.
func NewHistoryHandler(log *slog.Logger, store MessageStore, g *gate.Gate) *HistoryHandler {
	if log == nil {
		log = slog.Default()
	}
	return &HistoryHandler{log: log, store: store, gate: g}
}

// Register wires the conversations route onto the provided mux.
func (h *HistoryHandler) Register(mux *http.ServeMux) {
	if h == nil || mux == nil || h.gate == nil {
		return
	}
	mux.Handle("/conversations/", h.gate.RequireAccess(http.HandlerFunc(h.handleList)))
}

type historyResponse struct {
	Messages []v1.PrivateMessageRecPayload `json:"messages"`
	HasMore  bool                          `json:"has_more"`
}

func (h *HistoryHandler) handleList(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	claims, ok := gate.ClaimsFromContext(r.Context())
	if !ok {
		writeHistoryError(w, http.StatusUnauthorized, "missing_credential", "no identity on request")
		return
	}

	otherID := strings.TrimPrefix(r.URL.Path, "/conversations/")
	otherID = strings.Trim(otherID, "/")
	if otherID == "" || strings.Contains(otherID, "/") {
		writeHistoryError(w, http.StatusBadRequest, "invalid_path", "expected /conversations/{user_id}")
		return
	}

	limit := defaultHistoryLimit
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeHistoryError(w, http.StatusBadRequest, "invalid_limit", "limit must be a positive integer")
			return
		}
		limit = n
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	out, err := h.store.ListConversation(r.Context(), ListConversationInput{
		UserA:    claims.UserID,
		UserB:    otherID,
		BeforeID: strings.TrimSpace(r.URL.Query().Get("before_id")),
		Limit:    limit,
	})
	if err != nil {
		h.log.Error("conversations.list.fail", "user_id", claims.UserID, "other_id", otherID, "err", err)
		writeHistoryError(w, http.StatusInternalServerError, "internal", "could not load conversation")
		return
	}

	msgs := make([]v1.PrivateMessageRecPayload, 0, len(out.Messages))
	for _, m := range out.Messages {
		msgs = append(msgs, v1.PrivateMessageRecPayload{
			ID:         m.ID,
			SenderID:   m.SenderID,
			ReceiverID: m.ReceiverID,
			Content:    m.Content,
			CreatedAt:  m.CreatedAt,
		})
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(historyResponse{Messages: msgs, HasMore: out.HasMore})
}

func writeHistoryError(w http.ResponseWriter, status int, code, msg string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]string{"code": code, "message": msg},
	})
}
