package handlers

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/md-rashed-zaman/petbook/libs/httpx"
	"github.com/md-rashed-zaman/petbook/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/petbook/services/booking-service/internal/booking"
)

type Handler struct {
	engine *booking.Engine
	logger *slog.Logger
}

func New(engine *booking.Engine, logger *slog.Logger) *Handler {
	return &Handler{engine: engine, logger: logger}
}

// Routes registers the API on mux. createLimit, when non-nil, wraps reservation creation.
func (h *Handler) Routes(mux *http.ServeMux, createLimit httpx.Middleware) {
	reservations := http.Handler(http.HandlerFunc(h.Reservations))
	if createLimit != nil {
		reservations = httpx.Only(http.MethodPost, createLimit)(reservations)
	}
	mux.HandleFunc("/api/v1/services", h.PublishService)
	mux.HandleFunc("/api/v1/services/availability", h.Availability)
	mux.Handle("/api/v1/reservations", reservations)
	mux.HandleFunc("/api/v1/reservations/confirm", h.Confirm)
	mux.HandleFunc("/api/v1/reservations/cancel", h.Cancel)
	mux.HandleFunc("/api/v1/notifications", h.Notifications)
	mux.HandleFunc("/api/v1/notifications/read", h.MarkRead)
}

// parseDate accepts YYYY-MM-DD and the DD/MM/YYYY form.
func parseDate(raw string) (availability.Date, error) {
	if strings.Contains(raw, "/") {
		return availability.ParseDisplayDate(raw)
	}
	return availability.ParseDate(raw)
}

func queryInt(r *http.Request, key string) (int, bool) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}
