package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"reservation-engine/internal/access"
	"reservation-engine/internal/availability"
	"reservation-engine/internal/config"
	"reservation-engine/internal/domain"
	"reservation-engine/internal/events"
	"reservation-engine/internal/interval"
	"reservation-engine/internal/lifecycle"
	"reservation-engine/internal/metrics"
	"reservation-engine/internal/models"
	"reservation-engine/internal/waitlist"
	"reservation-engine/internal/worker"

	"github.com/rs/zerolog"
)

// Deps are the collaborators of ReservationService. Sink and Groups may be nil.
type Deps struct {
	Resources    domain.ResourceLookup
	Identities   domain.IdentityLookup
	Groups       domain.GroupDirectory
	Reservations domain.ReservationStore
	Approvals    domain.ApprovalLog
	Waitlist     domain.WaitlistStore
	Sink         domain.NotificationSink
	Locker       domain.ResourceLocker
	Clock        domain.Clock
	Logger       *zerolog.Logger
}

type Options struct {
	ConflictPolicy    models.ConflictPolicy
	WaitlistGrace     time.Duration
	ContentionRetries int
	LockTimeout       time.Duration
	SweepBatch        int
	RequestsPerMinute int
	RequestBurst      int
}

func OptionsFromConfig(cfg config.EngineConfig) Options {
	return Options{
		ConflictPolicy:    cfg.ConflictPolicy,
		WaitlistGrace:     cfg.WaitlistGrace,
		ContentionRetries: cfg.ContentionRetries,
		LockTimeout:       cfg.LockTimeout,
		SweepBatch:        cfg.SweepBatch,
		RequestsPerMinute: cfg.RequestsPerMinute,
		RequestBurst:      cfg.RequestBurst,
	}
}

// ReservationRequest is the input of RequestReservation.
type ReservationRequest struct {
	ResourceID  int64
	RequesterID int64
	Start       time.Time
	End         time.Time
	Notes       string
}

func (r ReservationRequest) Interval() interval.Interval {
	return interval.Interval{Start: r.Start, End: r.End}
}

// ReservationService coordinates reservation creation, lifecycle transitions,
// waitlist promotion and completion sweeps. Read-then-write sequences on a
// resource run under that resource's lock.
type ReservationService struct {
	resources    domain.ResourceLookup
	reservations domain.ReservationStore
	approvals    domain.ApprovalLog
	sink         domain.NotificationSink
	locker       domain.ResourceLocker
	clock        domain.Clock
	policy       *access.Policy
	waitlist     *waitlist.Manager
	limiter      *requesterLimiter
	retry        worker.RetryPolicy

	conflictPolicy models.ConflictPolicy
	blocking       []models.ReservationStatus
	lockTimeout    time.Duration
	sweepBatch     int
	logger         *zerolog.Logger
}

func NewReservationService(deps Deps, opts Options) *ReservationService {
	if !opts.ConflictPolicy.Valid() {
		opts.ConflictPolicy = models.PolicyPendingAndApproved
	}
	if opts.ContentionRetries < 0 {
		opts.ContentionRetries = 0
	}
	if opts.LockTimeout <= 0 {
		opts.LockTimeout = models.DefaultLockTimeout
	}
	if opts.SweepBatch <= 0 {
		opts.SweepBatch = models.DefaultSweepBatch
	}
	clock := deps.Clock
	if clock == nil {
		clock = domain.ClockFunc(time.Now)
	}
	logger := deps.Logger
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	return &ReservationService{
		resources:    deps.Resources,
		reservations: deps.Reservations,
		approvals:    deps.Approvals,
		sink:         deps.Sink,
		locker:       deps.Locker,
		clock:        clock,
		policy:       access.NewPolicy(deps.Identities, deps.Groups),
		waitlist:     waitlist.NewManager(deps.Waitlist, opts.WaitlistGrace, logger),
		limiter:      newRequesterLimiter(opts.RequestsPerMinute, opts.RequestBurst),
		retry: worker.RetryPolicy{
			MaxRetries:    opts.ContentionRetries,
			InitialDelay:  2 * time.Millisecond,
			MaxDelay:      20 * time.Millisecond,
			BackoffFactor: 2,
		},
		conflictPolicy: opts.ConflictPolicy,
		blocking:       opts.ConflictPolicy.BlockingStatuses(),
		lockTimeout:    opts.LockTimeout,
		sweepBatch:     opts.SweepBatch,
		logger:         logger,
	}
}

func (s *ReservationService) resolveNow(now time.Time) time.Time {
	if now.IsZero() {
		return s.clock.Now()
	}
	return now
}

func (s *ReservationService) getResource(ctx context.Context, id int64) (*models.Resource, error) {
	res, err := s.resources.GetResource(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get resource %d: %w", id, err)
	}
	return res, nil
}

// withLock runs fn while holding the lock of resourceID. Only acquisition is
// bounded by the lock timeout.
func (s *ReservationService) withLock(ctx context.Context, resourceID int64, fn func() error) error {
	started := time.Now()
	lockCtx, cancel := context.WithTimeout(ctx, s.lockTimeout)
	unlock, err := s.locker.Lock(lockCtx, resourceID)
	cancel()
	metrics.ObserveLockWait(time.Since(started).Seconds())
	if err != nil {
		return fmt.Errorf("failed to lock resource %d: %w", resourceID, err)
	}
	defer unlock()
	return fn()
}

// RequestReservation validates and books req. Owners of the resource skip
// approval; everyone else gets a pending reservation when the resource
// requires approval.
func (s *ReservationService) RequestReservation(ctx context.Context, req ReservationRequest, now time.Time) (*models.Reservation, error) {
	now = s.resolveNow(now)
	log := s.logger.With().
		Int64("resource_id", req.ResourceID).
		Int64("requester_id", req.RequesterID).
		Logger()

	if !s.limiter.Allow(req.RequesterID, now) {
		metrics.IncRequest("rate_limited")
		log.Debug().Msg("Reservation request rate limited")
		return nil, fmt.Errorf("requester %d: %w", req.RequesterID, domain.ErrRateLimited)
	}

	if !req.Interval().Valid() {
		metrics.IncRequest("invalid")
		return nil, domain.NewValidationError("end", "must be after start")
	}
	res, err := s.getResource(ctx, req.ResourceID)
	if err != nil {
		metrics.IncRequest("error")
		return nil, err
	}
	if _, err := s.policy.Principal(ctx, req.RequesterID); err != nil {
		metrics.IncRequest("error")
		return nil, err
	}
	if err := validateRequest(res, req, now); err != nil {
		metrics.IncRequest("invalid")
		log.Debug().Err(err).Msg("Reservation request rejected by validation")
		return nil, err
	}

	var created *models.Reservation
	err = s.withLock(ctx, res.ID, func() error {
		var err error
		created, err = s.createLocked(ctx, res, req, now)
		return err
	})
	if err != nil {
		switch {
		case domain.IsSlotUnavailable(err):
			metrics.IncRequest("unavailable")
			log.Debug().Err(err).Msg("Requested slot is unavailable")
		case domain.IsValidation(err):
			metrics.IncRequest("invalid")
			log.Debug().Err(err).Msg("Reservation request rejected by validation")
		default:
			metrics.IncRequest("error")
			log.Error().Err(err).Msg("Failed to create reservation")
		}
		return nil, err
	}

	metrics.IncRequest(string(created.Status))
	metrics.IncTransition(string(created.Status))
	log.Info().
		Int64("reservation_id", created.ID).
		Str("status", string(created.Status)).
		Msg("Reservation created")
	s.emit(ctx, reservationEvent(created, req.RequesterID, "", now))
	return created, nil
}

// validateRequest checks everything that does not depend on other
// reservations: interval shape, past start, archived resource and the
// booking policy of res.
func validateRequest(res *models.Resource, req ReservationRequest, now time.Time) error {
	verr := &domain.ValidationError{}
	iv := req.Interval()
	switch {
	case !iv.Valid():
		verr.Add("end", "must be after start")
	case !iv.Pad(res.Policy.Buffer).Representable():
		verr.Add("start", "outside the supported date range")
	case iv.Start.Before(now):
		verr.Add("start", "must not be in the past")
	}
	if res.Archived() {
		verr.Add("resource_id", "resource is archived")
	}
	if err := verr.Err(); err != nil {
		return err
	}

	p := res.Policy
	d := iv.Duration()
	if p.MinDuration > 0 && d < p.MinDuration {
		verr.Add("end", fmt.Sprintf("reservation is shorter than the minimum of %s", p.MinDuration))
	}
	if p.MaxDuration > 0 && d > p.MaxDuration {
		verr.Add("end", fmt.Sprintf("reservation is longer than the maximum of %s", p.MaxDuration))
	}
	if p.AdvanceDays > 0 && iv.Start.After(now.AddDate(0, 0, p.AdvanceDays)) {
		verr.Add("start", fmt.Sprintf("cannot book more than %d days ahead", p.AdvanceDays))
	}
	return verr.Err()
}

// createLocked runs the checks that depend on the calendar and inserts the
// reservation. The caller holds the resource lock.
func (s *ReservationService) createLocked(ctx context.Context, res *models.Resource, req ReservationRequest, now time.Time) (*models.Reservation, error) {
	candidate := req.Interval()
	padded := candidate.Pad(res.Policy.Buffer)

	existing, err := s.reservations.ListBlocking(ctx, res.ID, padded, s.blocking)
	if err != nil {
		return nil, fmt.Errorf("failed to list blocking reservations: %w", err)
	}
	for _, r := range existing {
		if r.RequesterID == req.RequesterID && r.Interval().Overlaps(candidate) {
			return nil, domain.NewValidationError("start", fmt.Sprintf("requester already holds reservation %d in this interval", r.ID))
		}
	}
	if interval.NewIndex(reservationIntervals(existing)).Conflicts(padded) {
		return nil, &domain.SlotUnavailableError{ResourceID: res.ID, Interval: candidate, Reason: domain.ReasonConflict}
	}
	if reason, blocked := availability.Blocked(res, candidate); blocked {
		return nil, &domain.SlotUnavailableError{ResourceID: res.ID, Interval: candidate, Reason: reason}
	}

	owner, err := s.policy.Owns(ctx, req.RequesterID, res)
	if err != nil {
		return nil, err
	}

	r := &models.Reservation{
		ResourceID:  res.ID,
		RequesterID: req.RequesterID,
		Start:       req.Start,
		End:         req.End,
		Status:      lifecycle.InitialStatus(res.RequiresApproval() && !owner),
		Notes:       req.Notes,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.reservations.InsertReservation(ctx, r, s.blocking, res.Policy.Buffer); err != nil {
		if domain.IsSlotUnavailable(err) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to insert reservation: %w", err)
	}
	return r, nil
}

// ApproveReservation moves a pending reservation to approved and records the
// decision in the approval log.
func (s *ReservationService) ApproveReservation(ctx context.Context, reservationID, approverID int64, comment string, now time.Time) (*models.Reservation, error) {
	return s.decide(ctx, reservationID, approverID, lifecycle.EventApprove, models.DecisionApproved, comment, now)
}

// RejectReservation moves a pending reservation to rejected, records the
// decision and offers the freed interval to the waitlist.
func (s *ReservationService) RejectReservation(ctx context.Context, reservationID, approverID int64, comment string, now time.Time) (*models.Reservation, error) {
	return s.decide(ctx, reservationID, approverID, lifecycle.EventReject, models.DecisionRejected, comment, now)
}

func (s *ReservationService) decide(ctx context.Context, reservationID, approverID int64, ev lifecycle.Event, decision models.ApprovalDecision, comment string, now time.Time) (*models.Reservation, error) {
	now = s.resolveNow(now)
	return s.transition(ctx, reservationID, approverID, ev, comment, now, func(r *models.Reservation) {
		action := &models.ApprovalAction{
			ReservationID: r.ID,
			ApproverID:    approverID,
			Action:        decision,
			Comment:       comment,
			CreatedAt:     now,
		}
		if err := s.approvals.AppendApprovalAction(ctx, action); err != nil {
			s.logger.Error().Err(err).
				Int64("reservation_id", r.ID).
				Int64("approver_id", approverID).
				Msg("Failed to record approval action")
		}
	})
}

// CancelReservation cancels a pending or approved reservation on behalf of
// its requester or a principal with authority over the resource.
func (s *ReservationService) CancelReservation(ctx context.Context, reservationID, actorID int64, now time.Time) (*models.Reservation, error) {
	return s.transition(ctx, reservationID, actorID, lifecycle.EventCancel, "", s.resolveNow(now), nil)
}

// transition applies ev under the resource lock, runs after on success and
// promotes waitlisted demand when the transition frees calendar space.
func (s *ReservationService) transition(ctx context.Context, reservationID, actorID int64, ev lifecycle.Event, comment string, now time.Time, after func(*models.Reservation)) (*models.Reservation, error) {
	current, err := s.reservations.GetReservation(ctx, reservationID)
	if err != nil {
		return nil, fmt.Errorf("failed to get reservation %d: %w", reservationID, err)
	}
	res, err := s.getResource(ctx, current.ResourceID)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(ctx, actorID, ev, current, res); err != nil {
		s.logger.Debug().Err(err).Int64("reservation_id", reservationID).Msg("Transition not authorized")
		return nil, err
	}

	var (
		updated  *models.Reservation
		from     models.ReservationStatus
		promoted []*models.WaitlistEntry
	)
	err = s.withLock(ctx, res.ID, func() error {
		var err error
		updated, from, err = s.changeStatus(ctx, reservationID, ev, res, now)
		if err != nil {
			return err
		}
		if after != nil {
			after(updated)
		}
		if lifecycle.FreesSlot(from, updated.Status, s.blocking) {
			promoted = s.promoteFreedLocked(ctx, res, updated.Interval(), now)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.IncTransition(string(updated.Status))
	s.logger.Info().
		Int64("reservation_id", updated.ID).
		Int64("resource_id", updated.ResourceID).
		Int64("actor_id", actorID).
		Str("from", string(from)).
		Str("to", string(updated.Status)).
		Msg("Reservation status changed")
	s.emit(ctx, reservationEvent(updated, actorID, comment, now))
	s.emitPromotions(ctx, promoted, now)
	return updated, nil
}

func (s *ReservationService) authorize(ctx context.Context, actorID int64, ev lifecycle.Event, r *models.Reservation, res *models.Resource) error {
	switch ev {
	case lifecycle.EventApprove:
		return s.policy.RequireAuthority(ctx, actorID, res, access.ActionApprove)
	case lifecycle.EventReject:
		return s.policy.RequireAuthority(ctx, actorID, res, access.ActionReject)
	case lifecycle.EventCancel:
		return s.policy.RequireCancel(ctx, actorID, r, res)
	default:
		return nil
	}
}

// changeStatus re-reads the reservation and applies ev with a conditional
// update, retrying on store contention. When contention outlasts the retry
// budget the latest stored status is reported as an invalid transition.
func (s *ReservationService) changeStatus(ctx context.Context, reservationID int64, ev lifecycle.Event, res *models.Resource, now time.Time) (*models.Reservation, models.ReservationStatus, error) {
	var (
		updated *models.Reservation
		from    models.ReservationStatus
	)
	err := s.retry.Do(ctx, isContention, func(attempt int) error {
		if attempt > 0 {
			metrics.IncContentionRetry()
		}
		cur, err := s.reservations.GetReservation(ctx, reservationID)
		if err != nil {
			return fmt.Errorf("failed to get reservation %d: %w", reservationID, err)
		}
		to, err := lifecycle.Next(cur.ID, cur.Status, ev)
		if err != nil {
			return err
		}
		if to == models.StatusApproved {
			if err := s.approvalGuard(ctx, cur, res); err != nil {
				return err
			}
		}
		if err := s.reservations.UpdateReservationStatus(ctx, cur.ID, cur.Status, to, now); err != nil {
			if isContention(err) {
				return err
			}
			return fmt.Errorf("failed to update reservation %d: %w", cur.ID, err)
		}
		from = cur.Status
		cur.Status = to
		cur.UpdatedAt = now
		cur.Version++
		updated = cur
		return nil
	})
	if isContention(err) {
		latest := ""
		if cur, gerr := s.reservations.GetReservation(ctx, reservationID); gerr == nil {
			latest = string(cur.Status)
		}
		return nil, "", &domain.InvalidTransitionError{ReservationID: reservationID, From: latest, Event: string(ev)}
	}
	if err != nil {
		return nil, "", err
	}
	return updated, from, nil
}

// approvalGuard re-checks conflicts when pending reservations do not block:
// two overlapping pending requests must not both become approved.
func (s *ReservationService) approvalGuard(ctx context.Context, r *models.Reservation, res *models.Resource) error {
	if s.conflictPolicy != models.PolicyApprovedOnly {
		return nil
	}
	approved, err := s.reservations.ListBlocking(ctx, res.ID, r.Interval().Pad(res.Policy.Buffer), []models.ReservationStatus{models.StatusApproved})
	if err != nil {
		return fmt.Errorf("failed to list approved reservations: %w", err)
	}
	for _, o := range approved {
		if o.ID != r.ID {
			return &domain.SlotUnavailableError{ResourceID: res.ID, Interval: r.Interval(), Reason: domain.ReasonConflict}
		}
	}
	return nil
}

func isContention(err error) bool {
	return errors.Is(err, domain.ErrStoreContention)
}

func reservationIntervals(rs []*models.Reservation) []interval.Interval {
	out := make([]interval.Interval, 0, len(rs))
	for _, r := range rs {
		out = append(out, r.Interval())
	}
	return out
}

func reservationEvent(r *models.Reservation, actorID int64, comment string, at time.Time) events.LifecycleEvent {
	ev := events.NewLifecycleEvent(lifecycle.EventType(r.Status), at)
	ev.ReservationID = r.ID
	ev.ResourceID = r.ResourceID
	ev.UserID = r.RequesterID
	ev.ActorID = actorID
	ev.Status = string(r.Status)
	ev.Start = r.Start
	ev.End = r.End
	ev.Comment = comment
	return ev
}

// emit hands ev to the sink. Failures are logged and never reach the caller.
func (s *ReservationService) emit(ctx context.Context, ev events.LifecycleEvent) {
	if s.sink == nil || ev.Type == "" {
		return
	}
	if err := s.sink.Publish(ctx, ev); err != nil {
		s.logger.Warn().Err(err).
			Str("event_type", ev.Type).
			Int64("reservation_id", ev.ReservationID).
			Int64("waitlist_entry_id", ev.WaitlistEntryID).
			Msg("Failed to publish lifecycle event")
	}
}
