package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"camp-service/api"
	"camp-service/internal/models"
	"camp-service/pkg/response"
)

func TestCreateCoreSchedule_PartialSuccess(t *testing.T) {
	env := newTestEnv(Options{}).withCamp().
		withActivity(20, models.ActivityCore).
		withActivity(30, models.ActivityResting).
		withActivity(31, models.ActivityCheckin).
		withStaff(5).withStaff(6).withStaff(7)

	dayTwo := refTime.Add(2 * 24 * time.Hour)

	// staff 6 is already booked elsewhere in the core window
	busy := &models.ActivitySchedule{
		ActivityID: 30,
		StaffID:    ptr(6),
		StartTime:  dayTwo,
		EndTime:    dayTwo.Add(2 * time.Hour),
		Status:     models.ScheduleScheduled,
	}
	if _, err := env.store.CreateSchedule(context.Background(), busy); err != nil {
		t.Fatalf("seeding busy schedule: %v", err)
	}

	result, err := env.svc.CreateCoreSchedule(context.Background(), &api.CoreScheduleCreateRequest{
		ScheduleCreateRequest: api.ScheduleCreateRequest{
			ActivityID: 20,
			StaffID:    ptr(5),
			Start:      rfc3339(dayTwo.Add(3 * time.Hour)),
			End:        rfc3339(dayTwo.Add(4 * time.Hour)),
		},
		Children: []api.ScheduleCreateRequest{
			{ActivityID: 31, StaffID: ptr(7)},          // inherits core window, clean
			{ActivityID: 30, StaffID: ptr(6),           // staff 6 busy at this time
				Start: rfc3339(dayTwo),
				End:   rfc3339(dayTwo.Add(time.Hour))},
		},
	})
	if err != nil {
		t.Fatalf("batch should not hard-fail: %v", err)
	}

	if len(result.Successes) != 2 {
		t.Fatalf("want 2 successes (core + checkin child), got %d", len(result.Successes))
	}
	if len(result.Errors) != 1 {
		t.Fatalf("want 1 soft error, got %d: %v", len(result.Errors), result.Errors)
	}
	if !strings.Contains(result.Errors[0], "staff 6") {
		t.Fatalf("error should name the busy staff, got %q", result.Errors[0])
	}

	// the child carries the core activity reference, the core does not
	coreResp := result.Successes[0]
	childResp := result.Successes[1]
	if coreResp.CoreActivityID != nil {
		t.Fatalf("core schedule must not reference a core activity")
	}
	if childResp.CoreActivityID == nil || *childResp.CoreActivityID != 20 {
		t.Fatalf("child schedule should reference core activity 20, got %v", childResp.CoreActivityID)
	}
}

func TestCreateCoreSchedule_DerivedChildSharesCoreWindow(t *testing.T) {
	env := newTestEnv(Options{}).withCamp().
		withActivity(20, models.ActivityCore).
		withActivity(30, models.ActivityOptional).
		withStaff(5).withStaff(6)

	dayTwo := refTime.Add(2 * 24 * time.Hour)

	// the child carries no window and inherits the core's; layering it under
	// its own core must not count as a type overlap
	result, err := env.svc.CreateCoreSchedule(context.Background(), &api.CoreScheduleCreateRequest{
		ScheduleCreateRequest: api.ScheduleCreateRequest{
			ActivityID: 20,
			StaffID:    ptr(5),
			Start:      rfc3339(dayTwo),
			End:        rfc3339(dayTwo.Add(time.Hour)),
		},
		Children: []api.ScheduleCreateRequest{
			{ActivityID: 30, StaffID: ptr(6)},
		},
	})
	if err != nil {
		t.Fatalf("batch should not hard-fail: %v", err)
	}

	if len(result.Errors) != 0 {
		t.Fatalf("want no soft errors, got %v", result.Errors)
	}
	if len(result.Successes) != 2 {
		t.Fatalf("want 2 successes (core + derived child), got %d", len(result.Successes))
	}

	childResp := result.Successes[1]
	if childResp.CoreActivityID == nil || *childResp.CoreActivityID != 20 {
		t.Fatalf("child schedule should reference core activity 20, got %v", childResp.CoreActivityID)
	}
	if !childResp.Start.Equal(dayTwo) || !childResp.End.Equal(dayTwo.Add(time.Hour)) {
		t.Fatalf("child should inherit the core window, got %s - %s", childResp.Start, childResp.End)
	}
}

func TestRescheduleSchedule_CoreMayOverlapOwnDerivedChild(t *testing.T) {
	env := newTestEnv(Options{}).withCamp().
		withActivity(20, models.ActivityCore).
		withActivity(30, models.ActivityResting).
		withStaff(5).withStaff(6)

	dayTwo := refTime.Add(2 * 24 * time.Hour)

	result, err := env.svc.CreateCoreSchedule(context.Background(), &api.CoreScheduleCreateRequest{
		ScheduleCreateRequest: api.ScheduleCreateRequest{
			ActivityID: 20,
			StaffID:    ptr(5),
			Start:      rfc3339(dayTwo),
			End:        rfc3339(dayTwo.Add(time.Hour)),
		},
		Children: []api.ScheduleCreateRequest{
			{ActivityID: 30, StaffID: ptr(6)},
		},
	})
	if err != nil || len(result.Successes) != 2 {
		t.Fatalf("seeding core batch: err=%v successes=%d", err, len(result.Successes))
	}

	// shifting the core still overlaps its own derived child, which is not a
	// conflict; an unrelated resting schedule in the same window still is
	moved, err := env.svc.RescheduleSchedule(context.Background(), result.Successes[0].ID, &api.RescheduleRequest{
		Start: rfc3339(dayTwo.Add(30 * time.Minute)),
		End:   rfc3339(dayTwo.Add(90 * time.Minute)),
	})
	if err != nil {
		t.Fatalf("reschedule over own derived child should succeed: %v", err)
	}
	if !moved.Start.Equal(dayTwo.Add(30 * time.Minute)) {
		t.Fatalf("window not moved, start = %s", moved.Start)
	}

	unrelated := &models.ActivitySchedule{
		ActivityID: 30,
		StaffID:    ptr(6),
		StartTime:  dayTwo.Add(2 * time.Hour),
		EndTime:    dayTwo.Add(3 * time.Hour),
		Status:     models.ScheduleScheduled,
	}
	if _, err := env.store.CreateSchedule(context.Background(), unrelated); err != nil {
		t.Fatalf("seeding unrelated schedule: %v", err)
	}

	_, err = env.svc.RescheduleSchedule(context.Background(), result.Successes[0].ID, &api.RescheduleRequest{
		Start: rfc3339(dayTwo.Add(2 * time.Hour)),
		End:   rfc3339(dayTwo.Add(3 * time.Hour)),
	})
	if !errors.Is(err, response.ErrConflict) {
		t.Fatalf("want ErrConflict with unrelated schedule, got %v", err)
	}
}

func TestCreateCoreSchedule_HardFailureAbortsBatch(t *testing.T) {
	env := newTestEnv(Options{}).withCamp().
		withActivity(20, models.ActivityCore).
		withActivity(30, models.ActivityOptional).
		withStaff(5).withCamper(8)

	dayTwo := refTime.Add(2 * 24 * time.Hour)

	// child assigns a camper as staff: hard failure, nothing persists
	_, err := env.svc.CreateCoreSchedule(context.Background(), &api.CoreScheduleCreateRequest{
		ScheduleCreateRequest: api.ScheduleCreateRequest{
			ActivityID: 20,
			StaffID:    ptr(5),
			Start:      rfc3339(dayTwo),
			End:        rfc3339(dayTwo.Add(time.Hour)),
		},
		Children: []api.ScheduleCreateRequest{
			{ActivityID: 30, StaffID: ptr(8)},
		},
	})
	if !errors.Is(err, response.ErrRule) {
		t.Fatalf("want ErrRule, got %v", err)
	}

	if len(env.store.schedules) != 0 {
		t.Fatalf("hard failure must persist nothing, found %d schedules", len(env.store.schedules))
	}
}

func TestCreateCoreSchedule_NonCoreActivityRejected(t *testing.T) {
	env := newTestEnv(Options{}).withCamp().withActivity(10, models.ActivityOptional).withStaff(5)

	_, err := env.svc.CreateCoreSchedule(context.Background(), &api.CoreScheduleCreateRequest{
		ScheduleCreateRequest: api.ScheduleCreateRequest{
			ActivityID: 10,
			StaffID:    ptr(5),
			Start:      rfc3339(refTime.Add(2 * 24 * time.Hour)),
			End:        rfc3339(refTime.Add(2*24*time.Hour + time.Hour)),
		},
	})
	if !errors.Is(err, response.ErrRule) {
		t.Fatalf("want ErrRule, got %v", err)
	}
}

func TestCreateOptionalSchedule_UnknownActivity(t *testing.T) {
	env := newTestEnv(Options{})

	_, err := env.svc.CreateOptionalSchedule(context.Background(), &api.ScheduleCreateRequest{
		ActivityID: 99,
		Start:      rfc3339(refTime),
		End:        rfc3339(refTime.Add(time.Hour)),
	})
	if !errors.Is(err, response.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestCreateOptionalSchedule_LockDenied(t *testing.T) {
	env := newTestEnv(Options{}).withCamp().withActivity(10, models.ActivityOptional).withStaff(5)
	env.locker.denied["staff:5"] = true

	_, err := env.svc.CreateOptionalSchedule(context.Background(), &api.ScheduleCreateRequest{
		ActivityID: 10,
		StaffID:    ptr(5),
		Start:      rfc3339(refTime.Add(2 * 24 * time.Hour)),
		End:        rfc3339(refTime.Add(2*24*time.Hour + time.Hour)),
	})
	if !errors.Is(err, response.ErrLocked) {
		t.Fatalf("want ErrLocked, got %v", err)
	}

	if len(env.store.schedules) != 0 {
		t.Fatalf("nothing should be persisted while locked")
	}
}

func TestRescheduleSchedule_ExcludesSelf(t *testing.T) {
	env := newTestEnv(Options{}).withCamp().withActivity(10, models.ActivityOptional).withStaff(5)

	dayTwo := refTime.Add(2 * 24 * time.Hour)

	created, err := env.svc.CreateOptionalSchedule(context.Background(), &api.ScheduleCreateRequest{
		ActivityID: 10,
		LocationID: ptr(7),
		StaffID:    ptr(5),
		Start:      rfc3339(dayTwo),
		End:        rfc3339(dayTwo.Add(time.Hour)),
	})
	if err != nil {
		t.Fatalf("creating schedule: %v", err)
	}

	// shift by 30 minutes; the new window overlaps the old one, which must
	// not count as a conflict with itself
	moved, err := env.svc.RescheduleSchedule(context.Background(), created.ID, &api.RescheduleRequest{
		Start: rfc3339(dayTwo.Add(30 * time.Minute)),
		End:   rfc3339(dayTwo.Add(90 * time.Minute)),
	})
	if err != nil {
		t.Fatalf("reschedule should succeed: %v", err)
	}

	if !moved.Start.Equal(dayTwo.Add(30 * time.Minute)) {
		t.Fatalf("window not moved, start = %s", moved.Start)
	}
}

func TestRescheduleSchedule_ConflictWithOther(t *testing.T) {
	env := newTestEnv(Options{}).withCamp().
		withActivity(10, models.ActivityOptional).
		withActivity(11, models.ActivityOptional).
		withStaff(5).withStaff(6)

	dayTwo := refTime.Add(2 * 24 * time.Hour)

	first, err := env.svc.CreateOptionalSchedule(context.Background(), &api.ScheduleCreateRequest{
		ActivityID: 10,
		LocationID: ptr(7),
		StaffID:    ptr(5),
		Start:      rfc3339(dayTwo),
		End:        rfc3339(dayTwo.Add(time.Hour)),
	})
	if err != nil {
		t.Fatalf("creating first schedule: %v", err)
	}

	if _, err := env.svc.CreateOptionalSchedule(context.Background(), &api.ScheduleCreateRequest{
		ActivityID: 11,
		LocationID: ptr(7),
		StaffID:    ptr(6),
		Start:      rfc3339(dayTwo.Add(2 * time.Hour)),
		End:        rfc3339(dayTwo.Add(3 * time.Hour)),
	}); err != nil {
		t.Fatalf("creating second schedule: %v", err)
	}

	// moving the first into the second's window double-books location 7
	_, err = env.svc.RescheduleSchedule(context.Background(), first.ID, &api.RescheduleRequest{
		Start: rfc3339(dayTwo.Add(2 * time.Hour)),
		End:   rfc3339(dayTwo.Add(3 * time.Hour)),
	})
	if !errors.Is(err, response.ErrConflict) {
		t.Fatalf("want ErrConflict, got %v", err)
	}
}
