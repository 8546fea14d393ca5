package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/md-rashed-zaman/petbook/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/petbook/services/booking-service/internal/booking"
	"github.com/md-rashed-zaman/petbook/services/booking-service/internal/model"
)

type createReservationRequest struct {
	PetID        string `json:"pet_id"`
	ServiceID    string `json:"service_id"`
	ServiceKind  string `json:"service_kind"`
	StartDate    string `json:"start_date"`
	EndDate      string `json:"end_date"`
	Time         string `json:"time"`
	ContactName  string `json:"contact_name"`
	ContactEmail string `json:"contact_email"`
	ContactPhone string `json:"contact_phone"`
	Note         string `json:"note"`
}

type reservationActionRequest struct {
	ReservationID string `json:"reservation_id"`
	Reason        string `json:"reason"`
}

// Reservations serves POST (create) and GET (list) on the collection.
func (h *Handler) Reservations(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.create(w, r)
	case http.MethodGet:
		h.list(w, r)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireRole(w, r, model.RoleClient)
	if !ok {
		return
	}
	var req createReservationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid json")
		return
	}

	cmd := booking.CreateCommand{
		ClientID:    caller.UserID,
		PetID:       req.PetID,
		ServiceID:   req.ServiceID,
		ServiceKind: availability.Kind(strings.TrimSpace(req.ServiceKind)),
		Contact: model.Contact{
			Name:  req.ContactName,
			Email: req.ContactEmail,
			Phone: req.ContactPhone,
		},
		Note:           req.Note,
		IdempotencyKey: r.Header.Get("Idempotency-Key"),
	}
	if strings.TrimSpace(req.StartDate) != "" {
		start, err := parseDate(req.StartDate)
		if err != nil {
			badRequest(w, err.Error())
			return
		}
		cmd.Dates.Start = start
	}
	if strings.TrimSpace(req.EndDate) != "" {
		end, err := parseDate(req.EndDate)
		if err != nil {
			badRequest(w, err.Error())
			return
		}
		cmd.Dates.End = end
	}
	if strings.TrimSpace(req.Time) != "" {
		tod, err := availability.ParseTimeOfDay(req.Time)
		if err != nil {
			badRequest(w, err.Error())
			return
		}
		cmd.TimeOfDay = &tod
	}

	res, err := h.engine.Create(r.Context(), cmd)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, booking.NewReservationDTO(*res, h.engine.Location()))
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireRole(w, r, "")
	if !ok {
		return
	}
	page, okPage := queryInt(r, "page")
	size, okSize := queryInt(r, "page_size")
	if !okPage || !okSize {
		badRequest(w, "page and page_size must be non-negative integers")
		return
	}
	var states []model.State
	for _, raw := range r.URL.Query()["state"] {
		for _, part := range strings.Split(raw, ",") {
			part = strings.ToUpper(strings.TrimSpace(part))
			if part == "" {
				continue
			}
			s, ok := model.ParseState(part)
			if !ok {
				badRequest(w, "unknown state "+part)
				return
			}
			states = append(states, s)
		}
	}

	out, err := h.engine.List(r.Context(), booking.ListQuery{
		OwnerID:   caller.UserID,
		OwnerRole: caller.Role,
		States:    states,
		Page:      model.Page{Number: page, Size: size},
	})
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) Confirm(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}
	caller, ok := requireRole(w, r, model.RoleProvider)
	if !ok {
		return
	}
	var req reservationActionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid json")
		return
	}
	if strings.TrimSpace(req.ReservationID) == "" {
		badRequest(w, "reservation_id is required")
		return
	}
	res, err := h.engine.Confirm(r.Context(), caller.UserID, strings.TrimSpace(req.ReservationID))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, booking.NewReservationDTO(*res, h.engine.Location()))
}

func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}
	caller, ok := requireRole(w, r, "")
	if !ok {
		return
	}
	var req reservationActionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid json")
		return
	}
	if strings.TrimSpace(req.ReservationID) == "" {
		badRequest(w, "reservation_id is required")
		return
	}
	res, err := h.engine.Cancel(r.Context(), booking.CancelCommand{
		ActorID:       caller.UserID,
		ReservationID: strings.TrimSpace(req.ReservationID),
		Reason:        req.Reason,
	})
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, booking.NewReservationDTO(*res, h.engine.Location()))
}
