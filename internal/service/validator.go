package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"camp-service/internal/models"
	"camp-service/pkg/response"
)

// scheduleProposal is one candidate window the validator decides on. The
// activity and camp are resolved by the caller so a batch does not re-fetch
// them per member.
type scheduleProposal struct {
	Activity     *models.Activity
	Camp         *models.Camp
	LocationID   *int64
	StaffID      *int64
	Start        time.Time
	End          time.Time
	IsLiveStream bool
	// CoreActivityID links a derived schedule to the core activity it is
	// layered under; schedules related through it share a window by design.
	CoreActivityID *int64
	ExcludeID      *int64
}

// The two activity families that may never share a time window at camp level.
// Check-in/check-out blocks sit outside both families.
var exclusiveWith = map[models.ActivityType][]models.ActivityType{
	models.ActivityCore:     {models.ActivityOptional, models.ActivityResting},
	models.ActivityOptional: {models.ActivityCore},
	models.ActivityResting:  {models.ActivityCore},
}

// validateProposal runs the admission checks in order. Hard failures (bad
// time ordering, wrong staff role) come back as an error and abort the
// operation; everything else is a soft conflict the caller may aggregate.
func (s *Service) validateProposal(ctx context.Context, p scheduleProposal) ([]string, error) {
	const op = "service.validateProposal"

	// 1. Time validity (hard)
	if !p.Start.Before(p.End) {
		return nil, fmt.Errorf("%s: start %s is not before end %s: %w",
			op, p.Start.Format(time.RFC3339), p.End.Format(time.RFC3339), response.ErrValidation)
	}

	var conflicts []string

	// 2. Camp containment (soft)
	if p.Start.Before(p.Camp.StartDate) || p.End.After(p.Camp.EndDate) {
		conflicts = append(conflicts, fmt.Sprintf(
			"activity %q: window %s - %s is outside camp duration %s - %s",
			p.Activity.Name,
			p.Start.Format(time.RFC3339), p.End.Format(time.RFC3339),
			p.Camp.StartDate.Format(time.RFC3339), p.Camp.EndDate.Format(time.RFC3339),
		))
	}

	// 3. Activity-type overlap (soft)
	if excluded := exclusiveWith[p.Activity.Type]; len(excluded) > 0 {
		overlapping, err := s.store.ListOverlapping(ctx, p.Activity.CampID, p.Start, p.End, excluded, p.ExcludeID)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}

		for _, other := range overlapping {
			if relatedThroughCore(p, other) {
				continue
			}

			otherActivity, err := s.store.GetActivity(ctx, other.ActivityID)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", op, err)
			}

			conflicts = append(conflicts, fmt.Sprintf(
				"activity %q: %s schedule overlaps existing %s schedule %d (%s - %s)",
				p.Activity.Name, p.Activity.Type, otherActivity.Type, other.ID,
				other.StartTime.Format(time.RFC3339), other.EndTime.Format(time.RFC3339),
			))
		}
	}

	// 4. Location conflict (soft)
	if p.LocationID != nil {
		taken, err := s.store.ExistsAtLocation(ctx, *p.LocationID, p.Start, p.End, p.ExcludeID)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}

		if taken {
			conflicts = append(conflicts, fmt.Sprintf(
				"activity %q: location %d is already booked for an overlapping window",
				p.Activity.Name, *p.LocationID,
			))
		}
	}

	// 5. Staff availability. A livestream schedule is valid without staff;
	// a wrong role is hard, a double-booking is soft.
	if p.StaffID != nil {
		staff, err := s.store.GetUser(ctx, *p.StaffID)
		if err != nil {
			if errors.Is(err, response.ErrNotFound) {
				return nil, fmt.Errorf("%s: staff %d: %w", op, *p.StaffID, response.ErrNotFound)
			}
			return nil, fmt.Errorf("%s: %w", op, err)
		}

		if staff.Role != models.RoleStaff {
			return nil, fmt.Errorf("%s: user %d has role %q, not staff: %w",
				op, *p.StaffID, staff.Role, response.ErrRule)
		}

		busy, err := s.store.IsStaffBusy(ctx, *p.StaffID, p.Start, p.End, p.ExcludeID)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}

		if busy {
			conflicts = append(conflicts, fmt.Sprintf(
				"activity %q: staff %d is already assigned to an overlapping schedule",
				p.Activity.Name, *p.StaffID,
			))
		}
	} else if !p.IsLiveStream {
		conflicts = append(conflicts, fmt.Sprintf(
			"activity %q: staff is required for a non-livestream schedule", p.Activity.Name,
		))
	}

	return conflicts, nil
}

// relatedThroughCore reports whether the proposal and an existing schedule
// are the core/derived halves of the same layering: the proposal is derived
// from the schedule's activity, or the schedule is derived from the
// proposal's. The mutual-exclusion rule only binds unrelated schedules.
func relatedThroughCore(p scheduleProposal, other *models.ActivitySchedule) bool {
	if p.CoreActivityID != nil && other.ActivityID == *p.CoreActivityID {
		return true
	}
	if other.CoreActivityID != nil && *other.CoreActivityID == p.Activity.ID {
		return true
	}
	return false
}
