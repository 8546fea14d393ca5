package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/md-rashed-zaman/petbook/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/petbook/services/booking-service/internal/booking"
	"github.com/md-rashed-zaman/petbook/services/booking-service/internal/model"
)

type publishServiceRequest struct {
	Kind            string   `json:"kind"`
	Name            string   `json:"name"`
	AcceptedSpecies []string `json:"accepted_species"`
	Days            []string `json:"dias_disponibles"`
	Times           []string `json:"horarios_disponibles"`
	MaxCapacity     int      `json:"max_capacity"`
	DurationMinutes int      `json:"duration_minutes"`
}

type serviceResponse struct {
	ID               string                   `json:"id"`
	ProviderID       string                   `json:"provider_id"`
	Kind             string                   `json:"kind"`
	Name             string                   `json:"name"`
	AcceptedSpecies  []string                 `json:"accepted_species"`
	Days             availability.Weekdays    `json:"dias_disponibles"`
	Times            []availability.TimeOfDay `json:"horarios_disponibles,omitempty"`
	MaxCapacity      int                      `json:"max_capacity,omitempty"`
	DurationMinutes  int                      `json:"duration_minutes,omitempty"`
	ReservationCount int                      `json:"reservation_count"`
}

func newServiceResponse(svc *model.Service) serviceResponse {
	rules := svc.Rules()
	return serviceResponse{
		ID:               svc.ID,
		ProviderID:       svc.ProviderID,
		Kind:             string(svc.Kind),
		Name:             svc.Name,
		AcceptedSpecies:  svc.AcceptedSpecies,
		Days:             rules.Days,
		Times:            rules.Times,
		MaxCapacity:      rules.MaxCapacity,
		DurationMinutes:  svc.DurationMinutes,
		ReservationCount: svc.ReservationCount,
	}
}

func (h *Handler) PublishService(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}
	caller, ok := requireRole(w, r, model.RoleProvider)
	if !ok {
		return
	}
	var req publishServiceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid json")
		return
	}
	kind, err := availability.ParseKind(strings.TrimSpace(req.Kind))
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	days, err := availability.ParseWeekdays(req.Days)
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	times := make([]availability.TimeOfDay, 0, len(req.Times))
	for _, raw := range req.Times {
		t, err := availability.ParseTimeOfDay(raw)
		if err != nil {
			badRequest(w, err.Error())
			return
		}
		times = append(times, t)
	}

	svc, err := h.engine.PublishService(r.Context(), booking.PublishCommand{
		ProviderID:      caller.UserID,
		Kind:            kind,
		Name:            req.Name,
		AcceptedSpecies: req.AcceptedSpecies,
		Rules:           availability.Rules{Days: days, Times: times, MaxCapacity: req.MaxCapacity},
		DurationMinutes: req.DurationMinutes,
	})
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, newServiceResponse(svc))
}

type slotsResponse struct {
	ServiceID string                 `json:"service_id"`
	Date      string                 `json:"date"`
	Openings  []availability.Opening `json:"openings"`
}

type rangeResponse struct {
	ServiceID string `json:"service_id"`
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
	Available bool   `json:"available"`
}

// Availability answers with free slots when date is given and with a yes/no for
// start_date..end_date otherwise.
func (h *Handler) Availability(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	q := r.URL.Query()
	serviceID := strings.TrimSpace(q.Get("service_id"))
	if serviceID == "" {
		badRequest(w, "service_id is required")
		return
	}

	if raw := strings.TrimSpace(q.Get("date")); raw != "" {
		date, err := parseDate(raw)
		if err != nil {
			badRequest(w, err.Error())
			return
		}
		openings, err := h.engine.FreeSlots(r.Context(), serviceID, date)
		if err != nil {
			writeError(w, h.logger, err)
			return
		}
		if openings == nil {
			openings = []availability.Opening{}
		}
		writeJSON(w, http.StatusOK, slotsResponse{ServiceID: serviceID, Date: date.String(), Openings: openings})
		return
	}

	start, err := parseDate(q.Get("start_date"))
	if err != nil {
		badRequest(w, "date or start_date is required: "+err.Error())
		return
	}
	end := start
	if raw := strings.TrimSpace(q.Get("end_date")); raw != "" {
		if end, err = parseDate(raw); err != nil {
			badRequest(w, err.Error())
			return
		}
	}
	available, err := h.engine.RangeAvailable(r.Context(), serviceID, availability.DateRange{Start: start, End: end})
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, rangeResponse{
		ServiceID: serviceID,
		StartDate: start.String(),
		EndDate:   end.String(),
		Available: available,
	})
}
