package service

import (
	"context"
	"log/slog"
	"time"

	"camp-service/internal/broadcast"
	"camp-service/internal/idempotency"
	"camp-service/internal/lock"
	"camp-service/internal/models"
	"camp-service/internal/recognition"
)

type Service struct {
	store    Store
	locker   lock.Locker
	cache    idempotency.Cache
	matcher  recognition.Matcher
	notifier broadcast.Notifier
	log      *slog.Logger
	opts     Options

	now func() time.Time
}

type Options struct {
	// StrictCampers aborts an attendance batch when a camper id does not
	// resolve; the default skips the unknown id and logs it.
	StrictCampers bool

	// IdempotencyTTL is how long a processed webhook result is replayed for
	// duplicate deliveries.
	IdempotencyTTL time.Duration

	// ProcessingTTL bounds how long a webhook request may hold the
	// processing claim before a crashed worker's claim expires.
	ProcessingTTL time.Duration

	// MinConfidence drops matcher candidates below this score.
	MinConfidence float64

	// LockTTL bounds the distributed lock held around validate-then-create.
	LockTTL time.Duration
}

func NewService(log *slog.Logger, store Store, locker lock.Locker, cache idempotency.Cache, matcher recognition.Matcher, notifier broadcast.Notifier, opts Options) *Service {
	if opts.IdempotencyTTL == 0 {
		opts.IdempotencyTTL = time.Hour
	}
	if opts.ProcessingTTL == 0 {
		opts.ProcessingTTL = 30 * time.Second
	}
	if opts.LockTTL == 0 {
		opts.LockTTL = 10 * time.Second
	}

	return &Service{
		store:    store,
		locker:   locker,
		cache:    cache,
		matcher:  matcher,
		notifier: notifier,
		log:      log,
		opts:     opts,
		now:      time.Now,
	}
}

type Store interface {
	// Collaborator lookups
	GetCamp(ctx context.Context, id int64) (*models.Camp, error)
	GetActivity(ctx context.Context, id int64) (*models.Activity, error)
	GetUser(ctx context.Context, id int64) (*models.User, error)
	FilterExistingCampers(ctx context.Context, ids []int64) ([]int64, error)

	// Schedules
	GetSchedule(ctx context.Context, id int64) (*models.ActivitySchedule, error)
	ListOverlapping(ctx context.Context, campID int64, start, end time.Time, types []models.ActivityType, excludeID *int64) ([]*models.ActivitySchedule, error)
	ExistsAtLocation(ctx context.Context, locationID int64, start, end time.Time, excludeID *int64) (bool, error)
	IsStaffBusy(ctx context.Context, staffID int64, start, end time.Time, excludeID *int64) (bool, error)
	CreateSchedule(ctx context.Context, schedule *models.ActivitySchedule) (int64, error)
	UpdateScheduleStatus(ctx context.Context, id int64, status models.ScheduleStatus) error
	UpdateScheduleWindow(ctx context.Context, id int64, start, end time.Time) error

	// Attendance
	RecordAttendance(ctx context.Context, scheduleID int64, status models.ScheduleStatus, logs []*models.AttendanceLog) (created, updated int, err error)
	ListAttendance(ctx context.Context, scheduleID int64) ([]*models.AttendanceLog, error)
}
