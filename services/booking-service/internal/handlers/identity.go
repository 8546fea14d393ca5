package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/md-rashed-zaman/petbook/libs/httpx"
	"github.com/md-rashed-zaman/petbook/services/booking-service/internal/model"
)

// RoleHeader carries the caller's role as set by the upstream gateway.
const RoleHeader = "X-Role"

type identity struct {
	UserID string
	Role   model.Role
}

func identify(r *http.Request) (identity, error) {
	id := identity{UserID: strings.TrimSpace(r.Header.Get(httpx.UserHeader))}
	if id.UserID == "" {
		return identity{}, errors.New("missing " + httpx.UserHeader)
	}
	role, ok := model.ParseRole(strings.ToLower(strings.TrimSpace(r.Header.Get(RoleHeader))))
	if !ok {
		return identity{}, errors.New(RoleHeader + " must be client or provider")
	}
	id.Role = role
	return id, nil
}

// requireRole writes the response itself when the caller cannot proceed.
func requireRole(w http.ResponseWriter, r *http.Request, want model.Role) (identity, bool) {
	id, err := identify(r)
	if err != nil {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: err.Error()})
		return identity{}, false
	}
	if want != "" && id.Role != want {
		writeJSON(w, http.StatusForbidden, errorResponse{Error: "only a " + string(want) + " can do this"})
		return identity{}, false
	}
	return id, true
}
