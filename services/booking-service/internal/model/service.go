package model

import (
	"strings"
	"time"

	"github.com/md-rashed-zaman/petbook/services/booking-service/internal/availability"
)

// Service is a provider's offering. Its ledger is only reachable through the methods below
// so consumption and the reservation counter move together.
type Service struct {
	ID               string
	ProviderID       string
	Kind             availability.Kind
	Name             string
	AcceptedSpecies  []string
	DurationMinutes  int
	ReservationCount int
	Version          int64
	CreatedAt        time.Time
	UpdatedAt        time.Time

	ledger availability.Ledger
}

func NewService(id, providerID, name string, ledger availability.Ledger) *Service {
	return &Service{ID: id, ProviderID: providerID, Name: name, Kind: ledger.Kind(), ledger: ledger}
}

// AttachLedger is used by repositories rehydrating a stored service.
func (s *Service) AttachLedger(l availability.Ledger) {
	s.ledger = l
	s.Kind = l.Kind()
}

// Ledger returns a copy; mutating it does not affect the service.
func (s *Service) Ledger() availability.Ledger {
	if s.ledger == nil {
		return nil
	}
	return s.ledger.Clone()
}

func (s *Service) Rules() availability.Rules { return availability.RulesOf(s.ledger) }

func (s *Service) Accepts(species string) bool {
	if len(s.AcceptedSpecies) == 0 {
		return true
	}
	species = strings.TrimSpace(species)
	for _, accepted := range s.AcceptedSpecies {
		if strings.EqualFold(accepted, species) {
			return true
		}
	}
	return false
}

func (s *Service) IsAvailable(c availability.Candidate) bool {
	return s.ledger != nil && s.ledger.IsAvailable(c)
}

func (s *Service) Consume(c availability.Candidate) error {
	if err := s.ledger.Consume(c); err != nil {
		return err
	}
	s.ReservationCount++
	return nil
}

func (s *Service) Release(c availability.Candidate) {
	s.ledger.Release(c)
	if s.ReservationCount > 0 {
		s.ReservationCount--
	}
}

// Rebuild replaces consumption and the counter with what the given reservations hold.
func (s *Service) Rebuild(held []Reservation) error {
	l := s.ledger.Clone()
	l.Reset()
	for _, r := range held {
		if err := l.Consume(r.Candidate()); err != nil {
			return err
		}
	}
	s.ledger = l
	s.ReservationCount = len(held)
	return nil
}

func (s *Service) Clone() *Service {
	cp := *s
	cp.AcceptedSpecies = append([]string(nil), s.AcceptedSpecies...)
	if s.ledger != nil {
		cp.ledger = s.ledger.Clone()
	}
	return &cp
}
