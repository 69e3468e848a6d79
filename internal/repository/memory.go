package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"reservation-engine/internal/domain"
	"reservation-engine/internal/interval"
	"reservation-engine/internal/models"
)

// MemoryStore keeps the catalog, identities, reservations, approval log and
// waitlist in process memory. Every method returns copies.
type MemoryStore struct {
	mu sync.RWMutex

	resources    map[int64]models.Resource
	principals   map[int64]models.Principal
	members      map[int64]map[int64]struct{}
	reservations map[int64]models.Reservation
	approvals    map[int64][]models.ApprovalAction
	waitlist     map[int64]models.WaitlistEntry

	nextReservationID int64
	nextApprovalID    int64
	nextWaitlistID    int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		resources:    make(map[int64]models.Resource),
		principals:   make(map[int64]models.Principal),
		members:      make(map[int64]map[int64]struct{}),
		reservations: make(map[int64]models.Reservation),
		approvals:    make(map[int64][]models.ApprovalAction),
		waitlist:     make(map[int64]models.WaitlistEntry),
	}
}

// PutResource inserts or replaces a catalog entry. Blackouts are normalized.
func (s *MemoryStore) PutResource(_ context.Context, res *models.Resource) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *res
	cp.Rules = append([]models.WeeklyRule(nil), res.Rules...)
	cp.Blackouts = models.NormalizeBlackouts(res.Blackouts)
	s.resources[cp.ID] = cp
	return nil
}

func (s *MemoryStore) GetResource(_ context.Context, id int64) (*models.Resource, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	res, ok := s.resources[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return copyResource(res), nil
}

func (s *MemoryStore) ListResources(_ context.Context) ([]*models.Resource, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*models.Resource, 0, len(s.resources))
	for _, res := range s.resources {
		out = append(out, copyResource(res))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func copyResource(res models.Resource) *models.Resource {
	res.Rules = append([]models.WeeklyRule(nil), res.Rules...)
	res.Blackouts = append([]models.Blackout(nil), res.Blackouts...)
	return &res
}

func (s *MemoryStore) PutPrincipal(_ context.Context, p *models.Principal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.principals[p.ID] = *p
	return nil
}

func (s *MemoryStore) GetPrincipal(_ context.Context, id int64) (*models.Principal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.principals[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &p, nil
}

func (s *MemoryStore) AddGroupMember(_ context.Context, groupID, userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.members[groupID] == nil {
		s.members[groupID] = make(map[int64]struct{})
	}
	s.members[groupID][userID] = struct{}{}
	return nil
}

func (s *MemoryStore) IsMember(_ context.Context, groupID, userID int64) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.members[groupID][userID]
	return ok, nil
}

func (s *MemoryStore) GetReservation(_ context.Context, id int64) (*models.Reservation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.reservations[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &r, nil
}

func (s *MemoryStore) InsertReservation(_ context.Context, r *models.Reservation, blocking []models.ReservationStatus, buffer time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	candidate := r.Interval().Pad(buffer)
	for _, existing := range s.reservations {
		if existing.ResourceID != r.ResourceID || !existing.Blocks(blocking) {
			continue
		}
		if candidate.Overlaps(existing.Interval()) {
			return &domain.SlotUnavailableError{ResourceID: r.ResourceID, Interval: r.Interval(), Reason: domain.ReasonConflict}
		}
	}

	s.nextReservationID++
	r.ID = s.nextReservationID
	r.Version = 1
	if r.UpdatedAt.IsZero() {
		r.UpdatedAt = r.CreatedAt
	}
	s.reservations[r.ID] = *r
	return nil
}

func (s *MemoryStore) UpdateReservationStatus(_ context.Context, id int64, from, to models.ReservationStatus, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.reservations[id]
	if !ok {
		return domain.ErrNotFound
	}
	if r.Status != from {
		return domain.ErrStoreContention
	}
	r.Status = to
	r.UpdatedAt = at
	r.Version++
	s.reservations[id] = r
	return nil
}

func (s *MemoryStore) ListBlocking(_ context.Context, resourceID int64, window interval.Interval, statuses []models.ReservationStatus) ([]*models.Reservation, error) {
	return s.filterReservations(func(r *models.Reservation) bool {
		return r.ResourceID == resourceID && r.Blocks(statuses) && r.Interval().Overlaps(window)
	}, 0), nil
}

func (s *MemoryStore) ListDueForCompletion(_ context.Context, now time.Time, limit int) ([]*models.Reservation, error) {
	return s.filterReservations(func(r *models.Reservation) bool {
		return r.Status == models.StatusApproved && !r.End.After(now)
	}, limit), nil
}

func (s *MemoryStore) ListByRequester(_ context.Context, requesterID int64) ([]*models.Reservation, error) {
	return s.filterReservations(func(r *models.Reservation) bool {
		return r.RequesterID == requesterID
	}, 0), nil
}

func (s *MemoryStore) ListByStatus(_ context.Context, status models.ReservationStatus) ([]*models.Reservation, error) {
	return s.filterReservations(func(r *models.Reservation) bool {
		return r.Status == status
	}, 0), nil
}

// filterReservations returns matches ordered by start, then id.
func (s *MemoryStore) filterReservations(match func(*models.Reservation) bool, limit int) []*models.Reservation {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.Reservation
	for _, r := range s.reservations {
		r := r
		if match(&r) {
			out = append(out, &r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Start.Equal(out[j].Start) {
			return out[i].ID < out[j].ID
		}
		return out[i].Start.Before(out[j].Start)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (s *MemoryStore) AppendApprovalAction(_ context.Context, a *models.ApprovalAction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextApprovalID++
	a.ID = s.nextApprovalID
	s.approvals[a.ReservationID] = append(s.approvals[a.ReservationID], *a)
	return nil
}

func (s *MemoryStore) ListApprovalActions(_ context.Context, reservationID int64) ([]*models.ApprovalAction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	actions := s.approvals[reservationID]
	out := make([]*models.ApprovalAction, 0, len(actions))
	for i := range actions {
		a := actions[i]
		out = append(out, &a)
	}
	return out, nil
}

func (s *MemoryStore) InsertWaitlistEntry(_ context.Context, e *models.WaitlistEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextWaitlistID++
	e.ID = s.nextWaitlistID
	if e.UpdatedAt.IsZero() {
		e.UpdatedAt = e.CreatedAt
	}
	s.waitlist[e.ID] = copyEntry(*e)
	return nil
}

func (s *MemoryStore) GetWaitlistEntry(_ context.Context, id int64) (*models.WaitlistEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.waitlist[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := copyEntry(e)
	return &cp, nil
}

func (s *MemoryStore) ListWaiting(_ context.Context, resourceID int64) ([]*models.WaitlistEntry, error) {
	return s.filterWaitlist(func(e *models.WaitlistEntry) bool {
		return e.ResourceID == resourceID && e.Status == models.WaitlistWaiting
	}), nil
}

func (s *MemoryStore) ListNotifiedBefore(_ context.Context, cutoff time.Time) ([]*models.WaitlistEntry, error) {
	return s.filterWaitlist(func(e *models.WaitlistEntry) bool {
		return e.Status == models.WaitlistNotified && e.NotifiedAt != nil && !e.NotifiedAt.After(cutoff)
	}), nil
}

func (s *MemoryStore) ListWaitlistByUser(_ context.Context, userID int64) ([]*models.WaitlistEntry, error) {
	return s.filterWaitlist(func(e *models.WaitlistEntry) bool {
		return e.UserID == userID
	}), nil
}

// filterWaitlist returns matches in FIFO order: created_at, then id.
func (s *MemoryStore) filterWaitlist(match func(*models.WaitlistEntry) bool) []*models.WaitlistEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.WaitlistEntry
	for _, e := range s.waitlist {
		cp := copyEntry(e)
		if match(&cp) {
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func (s *MemoryStore) UpdateWaitlistStatus(_ context.Context, id int64, from, to models.WaitlistStatus, at time.Time, convertedID *int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.waitlist[id]
	if !ok {
		return domain.ErrNotFound
	}
	if e.Status != from {
		return domain.ErrStoreContention
	}
	e.Status = to
	e.UpdatedAt = at
	switch to {
	case models.WaitlistNotified:
		notifiedAt := at
		e.NotifiedAt = &notifiedAt
	case models.WaitlistWaiting:
		e.NotifiedAt = nil
	}
	if convertedID != nil {
		v := *convertedID
		e.ConvertedReservationID = &v
	}
	s.waitlist[id] = e
	return nil
}

func copyEntry(e models.WaitlistEntry) models.WaitlistEntry {
	if e.NotifiedAt != nil {
		t := *e.NotifiedAt
		e.NotifiedAt = &t
	}
	if e.ConvertedReservationID != nil {
		v := *e.ConvertedReservationID
		e.ConvertedReservationID = &v
	}
	return e
}
