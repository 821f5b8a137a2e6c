package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"camp-service/api"
	"camp-service/internal/models"
	"camp-service/pkg/response"
)

// batchMember is one validated-for-structure member of a core batch, ready
// for soft-conflict validation and persistence.
type batchMember struct {
	activity       *models.Activity
	req            *api.ScheduleCreateRequest
	start, end     time.Time
	coreActivityID *int64
}

// CreateCoreSchedule creates a core schedule plus its derived child schedules
// as one batch. Hard failures (unknown activity, bad time ordering, wrong
// staff role, a core activity posted as a child) abort before anything is
// persisted. Soft conflicts are collected per member while valid siblings are
// still persisted, so callers must inspect both Successes and Errors.
func (s *Service) CreateCoreSchedule(ctx context.Context, req *api.CoreScheduleCreateRequest) (*api.BatchScheduleResponse, error) {
	const op = "service.CreateCoreSchedule"

	activity, err := s.store.GetActivity(ctx, req.ActivityID)
	if err != nil {
		if errors.Is(err, response.ErrNotFound) {
			return nil, fmt.Errorf("%s: activity %d: %w", op, req.ActivityID, response.ErrNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if activity.Type != models.ActivityCore {
		return nil, fmt.Errorf("%s: activity %d is %q, not core: %w", op, activity.ID, activity.Type, response.ErrRule)
	}

	camp, err := s.store.GetCamp(ctx, activity.CampID)
	if err != nil {
		if errors.Is(err, response.ErrNotFound) {
			return nil, fmt.Errorf("%s: camp %d: %w", op, activity.CampID, response.ErrNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	members := make([]batchMember, 0, 1+len(req.Children))

	coreMember, err := s.buildMember(ctx, op, activity, &req.ScheduleCreateRequest, nil)
	if err != nil {
		return nil, err
	}
	members = append(members, coreMember)

	for i := range req.Children {
		childReq := req.Children[i]

		childActivity, err := s.store.GetActivity(ctx, childReq.ActivityID)
		if err != nil {
			if errors.Is(err, response.ErrNotFound) {
				return nil, fmt.Errorf("%s: activity %d: %w", op, childReq.ActivityID, response.ErrNotFound)
			}
			return nil, fmt.Errorf("%s: %w", op, err)
		}

		if childActivity.CampID != camp.ID {
			return nil, fmt.Errorf("%s: activity %d belongs to camp %d, not %d: %w",
				op, childActivity.ID, childActivity.CampID, camp.ID, response.ErrRule)
		}

		if childActivity.Type == models.ActivityCore {
			return nil, fmt.Errorf("%s: activity %d: a core activity cannot be a child of another core schedule: %w",
				op, childActivity.ID, response.ErrRule)
		}

		// Children inherit the core window when they carry none.
		if childReq.Start == "" {
			childReq.Start = req.Start
		}
		if childReq.End == "" {
			childReq.End = req.End
		}

		member, err := s.buildMember(ctx, op, childActivity, &childReq, &activity.ID)
		if err != nil {
			return nil, err
		}
		members = append(members, member)
	}

	unlock, err := s.acquireBatchLocks(ctx, op, members)
	if err != nil {
		return nil, err
	}
	defer unlock()

	result := &api.BatchScheduleResponse{
		Successes: []api.ScheduleResponse{},
		Errors:    []string{},
	}

	for _, member := range members {
		conflicts, err := s.validateProposal(ctx, scheduleProposal{
			Activity:       member.activity,
			Camp:           camp,
			LocationID:     member.req.LocationID,
			StaffID:        member.req.StaffID,
			Start:          member.start,
			End:            member.end,
			IsLiveStream:   member.req.IsLiveStream,
			CoreActivityID: member.coreActivityID,
		})
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}

		if len(conflicts) > 0 {
			result.Errors = append(result.Errors, conflicts...)
			continue
		}

		schedule := &models.ActivitySchedule{
			ActivityID:     member.activity.ID,
			LocationID:     member.req.LocationID,
			StaffID:        member.req.StaffID,
			StartTime:      member.start,
			EndTime:        member.end,
			Status:         models.ScheduleScheduled,
			CoreActivityID: member.coreActivityID,
			IsLiveStream:   member.req.IsLiveStream,
		}

		id, err := s.store.CreateSchedule(ctx, schedule)
		if err != nil {
			return nil, fmt.Errorf("%s: create schedule: %w", op, err)
		}
		schedule.ID = id

		result.Successes = append(result.Successes, *toScheduleResponse(schedule, member.activity))
	}

	return result, nil
}

// buildMember runs the hard, pre-persistence checks for one batch member:
// window parsing, time ordering, staff existence and role.
func (s *Service) buildMember(ctx context.Context, op string, activity *models.Activity, req *api.ScheduleCreateRequest, coreActivityID *int64) (batchMember, error) {
	start, end, err := parseWindow(req.Start, req.End)
	if err != nil {
		return batchMember{}, fmt.Errorf("%s: activity %d: %w", op, activity.ID, err)
	}

	if !start.Before(end) {
		return batchMember{}, fmt.Errorf("%s: activity %d: start %s is not before end %s: %w",
			op, activity.ID, start.Format(time.RFC3339), end.Format(time.RFC3339), response.ErrValidation)
	}

	if req.StaffID != nil {
		staff, err := s.store.GetUser(ctx, *req.StaffID)
		if err != nil {
			if errors.Is(err, response.ErrNotFound) {
				return batchMember{}, fmt.Errorf("%s: staff %d: %w", op, *req.StaffID, response.ErrNotFound)
			}
			return batchMember{}, fmt.Errorf("%s: %w", op, err)
		}

		if staff.Role != models.RoleStaff {
			return batchMember{}, fmt.Errorf("%s: user %d has role %q, not staff: %w",
				op, *req.StaffID, staff.Role, response.ErrRule)
		}
	}

	return batchMember{
		activity:       activity,
		req:            req,
		start:          start,
		end:            end,
		coreActivityID: coreActivityID,
	}, nil
}

// CreateOptionalSchedule creates a single optional (or resting) schedule.
// Unlike the batch path, any conflict aborts the whole operation.
func (s *Service) CreateOptionalSchedule(ctx context.Context, req *api.ScheduleCreateRequest) (*api.ScheduleResponse, error) {
	const op = "service.CreateOptionalSchedule"

	activity, err := s.store.GetActivity(ctx, req.ActivityID)
	if err != nil {
		if errors.Is(err, response.ErrNotFound) {
			return nil, fmt.Errorf("%s: activity %d: %w", op, req.ActivityID, response.ErrNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if activity.Type != models.ActivityOptional && activity.Type != models.ActivityResting {
		return nil, fmt.Errorf("%s: activity %d is %q, not optional or resting: %w",
			op, activity.ID, activity.Type, response.ErrRule)
	}

	camp, err := s.store.GetCamp(ctx, activity.CampID)
	if err != nil {
		if errors.Is(err, response.ErrNotFound) {
			return nil, fmt.Errorf("%s: camp %d: %w", op, activity.CampID, response.ErrNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	member, err := s.buildMember(ctx, op, activity, req, nil)
	if err != nil {
		return nil, err
	}

	unlock, err := s.acquireScheduleLocks(ctx, op, req.LocationID, req.StaffID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	conflicts, err := s.validateProposal(ctx, scheduleProposal{
		Activity:     activity,
		Camp:         camp,
		LocationID:   req.LocationID,
		StaffID:      req.StaffID,
		Start:        member.start,
		End:          member.end,
		IsLiveStream: req.IsLiveStream,
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if len(conflicts) > 0 {
		return nil, fmt.Errorf("%s: %s: %w", op, conflicts[0], response.ErrConflict)
	}

	schedule := &models.ActivitySchedule{
		ActivityID:   activity.ID,
		LocationID:   req.LocationID,
		StaffID:      req.StaffID,
		StartTime:    member.start,
		EndTime:      member.end,
		Status:       models.ScheduleScheduled,
		IsLiveStream: req.IsLiveStream,
	}

	id, err := s.store.CreateSchedule(ctx, schedule)
	if err != nil {
		return nil, fmt.Errorf("%s: create schedule: %w", op, err)
	}
	schedule.ID = id

	return toScheduleResponse(schedule, activity), nil
}

// RescheduleSchedule moves an existing schedule to a new window, re-running
// the validator with the schedule excluded so it does not conflict with
// itself.
func (s *Service) RescheduleSchedule(ctx context.Context, id int64, req *api.RescheduleRequest) (*api.ScheduleResponse, error) {
	const op = "service.RescheduleSchedule"

	schedule, err := s.store.GetSchedule(ctx, id)
	if err != nil {
		if errors.Is(err, response.ErrNotFound) {
			return nil, fmt.Errorf("%s: schedule %d: %w", op, id, response.ErrNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	activity, err := s.store.GetActivity(ctx, schedule.ActivityID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	camp, err := s.store.GetCamp(ctx, activity.CampID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	start, end, err := parseWindow(req.Start, req.End)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	unlock, err := s.acquireScheduleLocks(ctx, op, schedule.LocationID, schedule.StaffID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	conflicts, err := s.validateProposal(ctx, scheduleProposal{
		Activity:       activity,
		Camp:           camp,
		LocationID:     schedule.LocationID,
		StaffID:        schedule.StaffID,
		Start:          start,
		End:            end,
		IsLiveStream:   schedule.IsLiveStream,
		CoreActivityID: schedule.CoreActivityID,
		ExcludeID:      &schedule.ID,
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if len(conflicts) > 0 {
		return nil, fmt.Errorf("%s: %s: %w", op, conflicts[0], response.ErrConflict)
	}

	if err := s.store.UpdateScheduleWindow(ctx, id, start, end); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	schedule.StartTime = start
	schedule.EndTime = end

	return toScheduleResponse(schedule, activity), nil
}

func (s *Service) GetSchedule(ctx context.Context, id int64) (*api.ScheduleResponse, error) {
	const op = "service.GetSchedule"

	schedule, err := s.store.GetSchedule(ctx, id)
	if err != nil {
		if errors.Is(err, response.ErrNotFound) {
			return nil, fmt.Errorf("%s: %w", op, response.ErrNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	activity, err := s.store.GetActivity(ctx, schedule.ActivityID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return toScheduleResponse(schedule, activity), nil
}

// acquireScheduleLocks guards the validate-then-insert window against a
// concurrent creation for the same location or staff passing validation
// before either commits.
func (s *Service) acquireScheduleLocks(ctx context.Context, op string, locationID, staffID *int64) (func(), error) {
	var keys []string
	if locationID != nil {
		keys = append(keys, fmt.Sprintf("location:%d", *locationID))
	}
	if staffID != nil {
		keys = append(keys, fmt.Sprintf("staff:%d", *staffID))
	}

	return s.lockKeys(ctx, op, keys)
}

// acquireBatchLocks collects the distinct location and staff keys across all
// batch members before persisting any of them.
func (s *Service) acquireBatchLocks(ctx context.Context, op string, members []batchMember) (func(), error) {
	seen := make(map[string]struct{})
	var keys []string

	add := func(key string) {
		if _, ok := seen[key]; ok {
			return
		}
		seen[key] = struct{}{}
		keys = append(keys, key)
	}

	for _, member := range members {
		if member.req.LocationID != nil {
			add(fmt.Sprintf("location:%d", *member.req.LocationID))
		}
		if member.req.StaffID != nil {
			add(fmt.Sprintf("staff:%d", *member.req.StaffID))
		}
	}

	return s.lockKeys(ctx, op, keys)
}

func (s *Service) lockKeys(ctx context.Context, op string, keys []string) (func(), error) {
	var held []string
	unlock := func() {
		for _, key := range held {
			_ = s.locker.Unlock(context.WithoutCancel(ctx), key)
		}
	}

	for _, key := range keys {
		locked, err := s.locker.Lock(ctx, key, s.opts.LockTTL)
		if err != nil {
			unlock()
			return nil, fmt.Errorf("%s: lock error: %w", op, err)
		}
		if !locked {
			unlock()
			return nil, fmt.Errorf("%s: %w", op, response.ErrLocked)
		}
		held = append(held, key)
	}

	return unlock, nil
}

func parseWindow(startRaw, endRaw string) (time.Time, time.Time, error) {
	start, err := time.Parse(time.RFC3339, startRaw)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid start: %w", response.ErrValidation)
	}

	end, err := time.Parse(time.RFC3339, endRaw)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid end: %w", response.ErrValidation)
	}

	return start, end, nil
}

func toScheduleResponse(schedule *models.ActivitySchedule, activity *models.Activity) *api.ScheduleResponse {
	return &api.ScheduleResponse{
		ID:             schedule.ID,
		ActivityID:     schedule.ActivityID,
		ActivityType:   string(activity.Type),
		CampID:         activity.CampID,
		LocationID:     schedule.LocationID,
		StaffID:        schedule.StaffID,
		Start:          schedule.StartTime,
		End:            schedule.EndTime,
		Status:         string(schedule.Status),
		CoreActivityID: schedule.CoreActivityID,
		IsLiveStream:   schedule.IsLiveStream,
	}
}
