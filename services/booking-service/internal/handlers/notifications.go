package handlers

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/md-rashed-zaman/petbook/services/booking-service/internal/model"
)

type notificationResponse struct {
	ID            string  `json:"id"`
	ReservationID string  `json:"reservation_id"`
	Kind          string  `json:"kind"`
	Message       string  `json:"message"`
	CreatedAt     string  `json:"created_at"`
	Read          bool    `json:"read"`
	ReadAt        *string `json:"read_at,omitempty"`
}

func newNotificationResponse(n model.Notification, loc *time.Location) notificationResponse {
	out := notificationResponse{
		ID:            n.ID,
		ReservationID: n.ReservationID,
		Kind:          string(n.Kind),
		Message:       n.Message,
		CreatedAt:     n.CreatedAt.In(loc).Format(time.RFC3339),
		Read:          n.Read,
	}
	if n.ReadAt != nil {
		s := n.ReadAt.In(loc).Format(time.RFC3339)
		out.ReadAt = &s
	}
	return out
}

func (h *Handler) Notifications(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	caller, ok := requireRole(w, r, "")
	if !ok {
		return
	}
	limit, ok := queryInt(r, "limit")
	if !ok {
		badRequest(w, "limit must be a non-negative integer")
		return
	}
	unread := strings.EqualFold(strings.TrimSpace(r.URL.Query().Get("unread")), "true")

	items, err := h.engine.Notifications(r.Context(), caller.UserID, unread, limit)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	out := make([]notificationResponse, 0, len(items))
	for _, n := range items {
		out = append(out, newNotificationResponse(n, h.engine.Location()))
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": out})
}

func (h *Handler) MarkRead(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}
	caller, ok := requireRole(w, r, "")
	if !ok {
		return
	}
	var req struct {
		NotificationID string `json:"notification_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid json")
		return
	}
	id := strings.TrimSpace(req.NotificationID)
	if id == "" {
		badRequest(w, "notification_id is required")
		return
	}
	n, err := h.engine.MarkNotificationRead(r.Context(), caller.UserID, id)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, newNotificationResponse(*n, h.engine.Location()))
}
