package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"camp-service/api"
	"camp-service/internal/models"
	"camp-service/pkg/response"
)

// EntryKind names the attendance entry point. Each expects a particular
// activity type on the target schedule.
type EntryKind string

const (
	EntryCore     EntryKind = "core"
	EntryOptional EntryKind = "optional"
	EntryCheckin  EntryKind = "checkin"
	EntryCheckout EntryKind = "checkout"
)

var entryActivityType = map[EntryKind]models.ActivityType{
	EntryCore:     models.ActivityCore,
	EntryOptional: models.ActivityOptional,
	EntryCheckin:  models.ActivityCheckin,
	EntryCheckout: models.ActivityCheckout,
}

// RecordAttendance writes one attendance log per camper against the schedule
// and advances the schedule to attendance_checked. Re-recording on an
// already-checked schedule re-applies the log upserts; the status write is a
// no-op then.
func (s *Service) RecordAttendance(ctx context.Context, kind EntryKind, req *api.AttendanceCheckRequest) (*api.AttendanceCheckResponse, error) {
	const op = "service.RecordAttendance"

	expectedType, ok := entryActivityType[kind]
	if !ok {
		return nil, fmt.Errorf("%s: unknown entry kind %q: %w", op, kind, response.ErrValidation)
	}

	status := models.ParticipantStatus(req.Status)
	if status != models.ParticipantPresent && status != models.ParticipantAbsent && status != models.ParticipantLate {
		return nil, fmt.Errorf("%s: invalid status %q: %w", op, req.Status, response.ErrValidation)
	}

	schedule, err := s.store.GetSchedule(ctx, req.ActivityScheduleID)
	if err != nil {
		if errors.Is(err, response.ErrNotFound) {
			return nil, fmt.Errorf("%s: schedule %d: %w", op, req.ActivityScheduleID, response.ErrNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	// A schedule pointing at a missing activity is data corruption, not a
	// bad request.
	activity, err := s.store.GetActivity(ctx, schedule.ActivityID)
	if err != nil {
		if errors.Is(err, response.ErrNotFound) {
			return nil, fmt.Errorf("%s: activity %d for schedule %d: %w",
				op, schedule.ActivityID, schedule.ID, response.ErrNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if activity.Type != expectedType {
		return nil, fmt.Errorf("%s: schedule %d is a %q activity, expected %q: %w",
			op, schedule.ID, activity.Type, expectedType, response.ErrRule)
	}

	// A child of a core schedule cannot itself be the core check-in point.
	if kind == EntryCore && schedule.CoreActivityID != nil {
		return nil, fmt.Errorf("%s: schedule %d is a child of core activity %d: %w",
			op, schedule.ID, *schedule.CoreActivityID, response.ErrRule)
	}

	created, updated, skipped, err := s.applyAttendance(ctx, schedule, req.CamperIDs, status, req.RecordedBy)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	scheduleStatus := models.ScheduleAttendanceChecked
	if created+updated == 0 {
		scheduleStatus = schedule.Status
	}

	return &api.AttendanceCheckResponse{
		ActivityScheduleID: schedule.ID,
		ScheduleStatus:     string(scheduleStatus),
		CreatedCount:       created,
		UpdatedCount:       updated,
		SkippedCamperIDs:   skipped,
	}, nil
}

// applyAttendance resolves the camper ids and hands the store one atomic
// unit: all log upserts plus the status flip. Unknown campers are skipped
// and logged unless strict mode is on.
func (s *Service) applyAttendance(ctx context.Context, schedule *models.ActivitySchedule, camperIDs []int64, status models.ParticipantStatus, recordedBy int64) (created, updated int, skipped []int64, err error) {
	const op = "service.applyAttendance"

	existing, err := s.store.FilterExistingCampers(ctx, camperIDs)
	if err != nil {
		return 0, 0, nil, fmt.Errorf("%s: %w", op, err)
	}

	known := make(map[int64]struct{}, len(existing))
	for _, id := range existing {
		known[id] = struct{}{}
	}

	logs := make([]*models.AttendanceLog, 0, len(camperIDs))
	seen := make(map[int64]struct{}, len(camperIDs))
	now := s.now()

	for _, camperID := range camperIDs {
		if _, dup := seen[camperID]; dup {
			continue
		}
		seen[camperID] = struct{}{}

		if _, ok := known[camperID]; !ok {
			if s.opts.StrictCampers {
				return 0, 0, nil, fmt.Errorf("%s: camper %d: %w", op, camperID, response.ErrNotFound)
			}

			s.log.Warn("Skipping unknown camper",
				slog.Int64("camper_id", camperID),
				slog.Int64("schedule_id", schedule.ID),
			)
			skipped = append(skipped, camperID)
			continue
		}

		logs = append(logs, &models.AttendanceLog{
			CamperID:           camperID,
			ActivityScheduleID: schedule.ID,
			StaffID:            recordedBy,
			Status:             status,
			Timestamp:          now,
		})
	}

	if len(logs) == 0 {
		return 0, 0, skipped, nil
	}

	created, updated, err = s.store.RecordAttendance(ctx, schedule.ID, models.ScheduleAttendanceChecked, logs)
	if err != nil {
		return 0, 0, nil, fmt.Errorf("%s: %w", op, err)
	}

	return created, updated, skipped, nil
}

func (s *Service) ListAttendance(ctx context.Context, scheduleID int64) ([]*api.AttendanceLogResponse, error) {
	const op = "service.ListAttendance"

	if _, err := s.store.GetSchedule(ctx, scheduleID); err != nil {
		if errors.Is(err, response.ErrNotFound) {
			return nil, fmt.Errorf("%s: %w", op, response.ErrNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	logs, err := s.store.ListAttendance(ctx, scheduleID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	result := make([]*api.AttendanceLogResponse, 0, len(logs))
	for _, entry := range logs {
		result = append(result, &api.AttendanceLogResponse{
			ID:                 entry.ID,
			CamperID:           entry.CamperID,
			ActivityScheduleID: entry.ActivityScheduleID,
			StaffID:            entry.StaffID,
			Status:             string(entry.Status),
			Timestamp:          entry.Timestamp,
		})
	}

	return result, nil
}
