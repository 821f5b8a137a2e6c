package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"camp-service/internal/idempotency"
	"camp-service/internal/models"
	"camp-service/pkg/response"
)

type logKey struct {
	camperID   int64
	scheduleID int64
}

type fakeStore struct {
	camps      map[int64]*models.Camp
	activities map[int64]*models.Activity
	users      map[int64]*models.User
	schedules  map[int64]*models.ActivitySchedule
	logs       map[logKey]*models.AttendanceLog

	nextScheduleID int64
	nextLogID      int64

	attendanceCommits int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		camps:      make(map[int64]*models.Camp),
		activities: make(map[int64]*models.Activity),
		users:      make(map[int64]*models.User),
		schedules:  make(map[int64]*models.ActivitySchedule),
		logs:       make(map[logKey]*models.AttendanceLog),
	}
}

func (f *fakeStore) GetCamp(_ context.Context, id int64) (*models.Camp, error) {
	camp, ok := f.camps[id]
	if !ok {
		return nil, fmt.Errorf("fakeStore.GetCamp: %w", response.ErrNotFound)
	}
	return camp, nil
}

func (f *fakeStore) GetActivity(_ context.Context, id int64) (*models.Activity, error) {
	activity, ok := f.activities[id]
	if !ok {
		return nil, fmt.Errorf("fakeStore.GetActivity: %w", response.ErrNotFound)
	}
	return activity, nil
}

func (f *fakeStore) GetUser(_ context.Context, id int64) (*models.User, error) {
	user, ok := f.users[id]
	if !ok {
		return nil, fmt.Errorf("fakeStore.GetUser: %w", response.ErrNotFound)
	}
	return user, nil
}

func (f *fakeStore) FilterExistingCampers(_ context.Context, ids []int64) ([]int64, error) {
	var existing []int64
	for _, id := range ids {
		if user, ok := f.users[id]; ok && user.Role == models.RoleCamper {
			existing = append(existing, id)
		}
	}
	return existing, nil
}

func (f *fakeStore) GetSchedule(_ context.Context, id int64) (*models.ActivitySchedule, error) {
	schedule, ok := f.schedules[id]
	if !ok {
		return nil, fmt.Errorf("fakeStore.GetSchedule: %w", response.ErrNotFound)
	}
	copied := *schedule
	return &copied, nil
}

func overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return aStart.Before(bEnd) && bStart.Before(aEnd)
}

func (f *fakeStore) ListOverlapping(_ context.Context, campID int64, start, end time.Time, types []models.ActivityType, excludeID *int64) ([]*models.ActivitySchedule, error) {
	wanted := make(map[models.ActivityType]struct{}, len(types))
	for _, t := range types {
		wanted[t] = struct{}{}
	}

	var result []*models.ActivitySchedule
	for _, schedule := range f.schedules {
		if excludeID != nil && schedule.ID == *excludeID {
			continue
		}
		activity, ok := f.activities[schedule.ActivityID]
		if !ok || activity.CampID != campID {
			continue
		}
		if _, ok := wanted[activity.Type]; !ok {
			continue
		}
		if overlaps(schedule.StartTime, schedule.EndTime, start, end) {
			result = append(result, schedule)
		}
	}
	return result, nil
}

func (f *fakeStore) ExistsAtLocation(_ context.Context, locationID int64, start, end time.Time, excludeID *int64) (bool, error) {
	for _, schedule := range f.schedules {
		if excludeID != nil && schedule.ID == *excludeID {
			continue
		}
		if schedule.LocationID == nil || *schedule.LocationID != locationID {
			continue
		}
		if overlaps(schedule.StartTime, schedule.EndTime, start, end) {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeStore) IsStaffBusy(_ context.Context, staffID int64, start, end time.Time, excludeID *int64) (bool, error) {
	for _, schedule := range f.schedules {
		if excludeID != nil && schedule.ID == *excludeID {
			continue
		}
		if schedule.StaffID == nil || *schedule.StaffID != staffID {
			continue
		}
		if overlaps(schedule.StartTime, schedule.EndTime, start, end) {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeStore) CreateSchedule(_ context.Context, schedule *models.ActivitySchedule) (int64, error) {
	f.nextScheduleID++
	copied := *schedule
	copied.ID = f.nextScheduleID
	f.schedules[copied.ID] = &copied
	return copied.ID, nil
}

func (f *fakeStore) UpdateScheduleStatus(_ context.Context, id int64, status models.ScheduleStatus) error {
	schedule, ok := f.schedules[id]
	if !ok {
		return response.ErrNotFound
	}
	schedule.Status = status
	return nil
}

func (f *fakeStore) UpdateScheduleWindow(_ context.Context, id int64, start, end time.Time) error {
	schedule, ok := f.schedules[id]
	if !ok {
		return response.ErrNotFound
	}
	schedule.StartTime = start
	schedule.EndTime = end
	return nil
}

func (f *fakeStore) RecordAttendance(_ context.Context, scheduleID int64, status models.ScheduleStatus, logs []*models.AttendanceLog) (int, int, error) {
	schedule, ok := f.schedules[scheduleID]
	if !ok {
		return 0, 0, response.ErrNotFound
	}

	var created, updated int
	for _, entry := range logs {
		key := logKey{camperID: entry.CamperID, scheduleID: entry.ActivityScheduleID}
		if existing, ok := f.logs[key]; ok {
			existing.StaffID = entry.StaffID
			existing.Status = entry.Status
			existing.Timestamp = entry.Timestamp
			updated++
			continue
		}

		f.nextLogID++
		copied := *entry
		copied.ID = f.nextLogID
		f.logs[key] = &copied
		created++
	}

	if schedule.Status == models.ScheduleScheduled {
		schedule.Status = status
	}

	f.attendanceCommits++

	return created, updated, nil
}

func (f *fakeStore) ListAttendance(_ context.Context, scheduleID int64) ([]*models.AttendanceLog, error) {
	var result []*models.AttendanceLog
	for _, entry := range f.logs {
		if entry.ActivityScheduleID == scheduleID {
			result = append(result, entry)
		}
	}
	return result, nil
}

type fakeLocker struct {
	denied    map[string]bool
	lockCalls []string
	held      map[string]bool
}

func newFakeLocker() *fakeLocker {
	return &fakeLocker{
		denied: make(map[string]bool),
		held:   make(map[string]bool),
	}
}

func (f *fakeLocker) Lock(_ context.Context, key string, _ time.Duration) (bool, error) {
	f.lockCalls = append(f.lockCalls, key)
	if f.denied[key] {
		return false, nil
	}
	f.held[key] = true
	return true, nil
}

func (f *fakeLocker) Unlock(_ context.Context, key string) error {
	delete(f.held, key)
	return nil
}

type fakeMatcher struct {
	campers []models.RecognizedCamper
	err     error
	calls   int
}

func (f *fakeMatcher) Match(_ context.Context, _ int64, _ []models.RecognizedFace) ([]models.RecognizedCamper, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.campers, nil
}

type fakeNotifier struct {
	err    error
	calls  int
	topics []string
}

func (f *fakeNotifier) Broadcast(_ context.Context, topic string, _ any) error {
	f.calls++
	f.topics = append(f.topics, topic)
	if f.err != nil {
		return f.err
	}
	return nil
}

type testEnv struct {
	svc      *Service
	store    *fakeStore
	locker   *fakeLocker
	matcher  *fakeMatcher
	notifier *fakeNotifier
	cache    *idempotency.MemoryCache
}

func newTestEnv(opts Options) *testEnv {
	store := newFakeStore()
	locker := newFakeLocker()
	matcher := &fakeMatcher{}
	notifier := &fakeNotifier{}
	cache := idempotency.NewMemoryCache(0)

	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	svc := NewService(log, store, locker, cache, matcher, notifier, opts)

	return &testEnv{
		svc:      svc,
		store:    store,
		locker:   locker,
		matcher:  matcher,
		notifier: notifier,
		cache:    cache,
	}
}

// Shared fixture helpers. Camp 1 runs for five days starting a day from the
// reference time.

var refTime = time.Date(2026, 7, 1, 12, 0, 0, 0, time.UTC)

func (e *testEnv) withCamp() *testEnv {
	e.store.camps[1] = &models.Camp{
		ID:        1,
		Name:      "Pine Ridge",
		StartDate: refTime.Add(24 * time.Hour),
		EndDate:   refTime.Add(5 * 24 * time.Hour),
	}
	return e
}

func (e *testEnv) withActivity(id int64, activityType models.ActivityType) *testEnv {
	e.store.activities[id] = &models.Activity{
		ID:     id,
		CampID: 1,
		Name:   fmt.Sprintf("activity-%d", id),
		Type:   activityType,
	}
	return e
}

func (e *testEnv) withStaff(id int64) *testEnv {
	e.store.users[id] = &models.User{ID: id, Name: fmt.Sprintf("staff-%d", id), Role: models.RoleStaff}
	return e
}

func (e *testEnv) withCamper(id int64) *testEnv {
	e.store.users[id] = &models.User{ID: id, Name: fmt.Sprintf("camper-%d", id), Role: models.RoleCamper}
	return e
}

func ptr(v int64) *int64 {
	return &v
}

func rfc3339(t time.Time) string {
	return t.Format(time.RFC3339)
}
