package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"camp-service/internal/models"
	"camp-service/pkg/response"

	"github.com/lib/pq"
)

type Storage struct {
	db *sql.DB
}

func New(storagePath string) (*Storage, error) {
	const op = "storage.postgres.New"

	db, err := sql.Open("postgres", storagePath)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &Storage{db: db}, nil
}

func (s *Storage) Close() error {
	if s == nil || s.db == nil {
		return nil
	}

	return s.db.Close()
}

// #### collaborator lookups ####

func (s *Storage) GetCamp(ctx context.Context, id int64) (*models.Camp, error) {
	const op = "storage.postgres.GetCamp"

	var camp models.Camp

	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, start_date, end_date FROM camps WHERE id=$1`, id,
	).Scan(&camp.ID, &camp.Name, &camp.StartDate, &camp.EndDate)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("%s: %w", op, response.ErrNotFound)
		}

		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &camp, nil
}

func (s *Storage) GetActivity(ctx context.Context, id int64) (*models.Activity, error) {
	const op = "storage.postgres.GetActivity"

	var activity models.Activity

	err := s.db.QueryRowContext(ctx,
		`SELECT id, camp_id, name, activity_type FROM activities WHERE id=$1`, id,
	).Scan(&activity.ID, &activity.CampID, &activity.Name, &activity.Type)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("%s: %w", op, response.ErrNotFound)
		}

		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &activity, nil
}

func (s *Storage) GetUser(ctx context.Context, id int64) (*models.User, error) {
	const op = "storage.postgres.GetUser"

	var user models.User

	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, role FROM users WHERE id=$1`, id,
	).Scan(&user.ID, &user.Name, &user.Role)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("%s: %w", op, response.ErrNotFound)
		}

		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &user, nil
}

// FilterExistingCampers returns the subset of ids that resolve to a user with
// the camper role, preserving no particular order.
func (s *Storage) FilterExistingCampers(ctx context.Context, ids []int64) ([]int64, error) {
	const op = "storage.postgres.FilterExistingCampers"

	rows, err := s.db.QueryContext(ctx,
		`SELECT id FROM users WHERE role=$1 AND id = ANY($2)`,
		models.RoleCamper, pq.Array(ids),
	)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	defer rows.Close()

	var existing []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		existing = append(existing, id)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return existing, nil
}

// #### schedules ####

func (s *Storage) GetSchedule(ctx context.Context, id int64) (*models.ActivitySchedule, error) {
	const op = "storage.postgres.GetSchedule"

	var schedule models.ActivitySchedule

	err := s.db.QueryRowContext(ctx,
		`SELECT id, activity_id, location_id, staff_id, start_time, end_time, status, core_activity_id, is_live_stream
		 FROM activity_schedules WHERE id=$1`, id,
	).Scan(
		&schedule.ID, &schedule.ActivityID, &schedule.LocationID, &schedule.StaffID,
		&schedule.StartTime, &schedule.EndTime, &schedule.Status, &schedule.CoreActivityID,
		&schedule.IsLiveStream,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("%s: %w", op, response.ErrNotFound)
		}

		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &schedule, nil
}

// ListOverlapping returns schedules of the given activity types in the camp
// whose windows overlap [start, end). Overlap is half-open: a < d AND c < b.
func (s *Storage) ListOverlapping(ctx context.Context, campID int64, start, end time.Time, types []models.ActivityType, excludeID *int64) ([]*models.ActivitySchedule, error) {
	const op = "storage.postgres.ListOverlapping"

	typeNames := make([]string, 0, len(types))
	for _, t := range types {
		typeNames = append(typeNames, string(t))
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT sch.id, sch.activity_id, sch.location_id, sch.staff_id, sch.start_time, sch.end_time,
		        sch.status, sch.core_activity_id, sch.is_live_stream
		 FROM activity_schedules sch
		 JOIN activities act ON act.id = sch.activity_id
		 WHERE act.camp_id = $1
		   AND act.activity_type = ANY($2)
		   AND sch.start_time < $4
		   AND $3 < sch.end_time
		   AND ($5::bigint IS NULL OR sch.id <> $5)`,
		campID, pq.Array(typeNames), start, end, excludeID,
	)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	defer rows.Close()

	var schedules []*models.ActivitySchedule
	for rows.Next() {
		var schedule models.ActivitySchedule
		err := rows.Scan(
			&schedule.ID, &schedule.ActivityID, &schedule.LocationID, &schedule.StaffID,
			&schedule.StartTime, &schedule.EndTime, &schedule.Status, &schedule.CoreActivityID,
			&schedule.IsLiveStream,
		)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}

		schedules = append(schedules, &schedule)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return schedules, nil
}

func (s *Storage) ExistsAtLocation(ctx context.Context, locationID int64, start, end time.Time, excludeID *int64) (bool, error) {
	const op = "storage.postgres.ExistsAtLocation"

	var exists bool

	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (
			SELECT 1 FROM activity_schedules
			WHERE location_id = $1
			  AND start_time < $3
			  AND $2 < end_time
			  AND ($4::bigint IS NULL OR id <> $4)
		 )`,
		locationID, start, end, excludeID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}

	return exists, nil
}

func (s *Storage) IsStaffBusy(ctx context.Context, staffID int64, start, end time.Time, excludeID *int64) (bool, error) {
	const op = "storage.postgres.IsStaffBusy"

	var busy bool

	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (
			SELECT 1 FROM activity_schedules
			WHERE staff_id = $1
			  AND start_time < $3
			  AND $2 < end_time
			  AND ($4::bigint IS NULL OR id <> $4)
		 )`,
		staffID, start, end, excludeID,
	).Scan(&busy)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}

	return busy, nil
}

func (s *Storage) CreateSchedule(ctx context.Context, schedule *models.ActivitySchedule) (int64, error) {
	const op = "storage.postgres.CreateSchedule"

	var id int64

	err := s.db.QueryRowContext(ctx,
		`INSERT INTO activity_schedules
		 (activity_id, location_id, staff_id, start_time, end_time, status, core_activity_id, is_live_stream)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 RETURNING id`,
		schedule.ActivityID, schedule.LocationID, schedule.StaffID,
		schedule.StartTime, schedule.EndTime, schedule.Status,
		schedule.CoreActivityID, schedule.IsLiveStream,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	return id, nil
}

func (s *Storage) UpdateScheduleStatus(ctx context.Context, id int64, status models.ScheduleStatus) error {
	const op = "storage.postgres.UpdateScheduleStatus"

	res, err := s.db.ExecContext(ctx,
		`UPDATE activity_schedules SET status=$1 WHERE id=$2`, status, id,
	)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", op, response.ErrNotFound)
	}

	return nil
}

func (s *Storage) UpdateScheduleWindow(ctx context.Context, id int64, start, end time.Time) error {
	const op = "storage.postgres.UpdateScheduleWindow"

	res, err := s.db.ExecContext(ctx,
		`UPDATE activity_schedules SET start_time=$1, end_time=$2 WHERE id=$3`, start, end, id,
	)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", op, response.ErrNotFound)
	}

	return nil
}

// #### attendance ####

// RecordAttendance upserts one log per camper and flips the schedule status
// in a single transaction, so a schedule is never left attendance_checked
// with none of its logs written, or the other way round.
func (s *Storage) RecordAttendance(ctx context.Context, scheduleID int64, status models.ScheduleStatus, logs []*models.AttendanceLog) (int, int, error) {
	const op = "storage.postgres.RecordAttendance"

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, 0, fmt.Errorf("%s: begin tx: %w", op, err)
	}

	defer func() {
		_ = tx.Rollback()
	}()

	var created, updated int

	for _, entry := range logs {
		var inserted bool

		err := tx.QueryRowContext(ctx,
			`INSERT INTO attendance_logs (camper_id, activity_schedule_id, staff_id, status, timestamp)
			 VALUES ($1, $2, $3, $4, $5)
			 ON CONFLICT (camper_id, activity_schedule_id)
			 DO UPDATE SET staff_id = EXCLUDED.staff_id,
			               status = EXCLUDED.status,
			               timestamp = EXCLUDED.timestamp
			 RETURNING (xmax = 0)`,
			entry.CamperID, entry.ActivityScheduleID, entry.StaffID, entry.Status, entry.Timestamp,
		).Scan(&inserted)
		if err != nil {
			return 0, 0, fmt.Errorf("%s: upsert log: %w", op, err)
		}

		if inserted {
			created++
		} else {
			updated++
		}
	}

	// No-op when the schedule is already past scheduled.
	_, err = tx.ExecContext(ctx,
		`UPDATE activity_schedules SET status=$1 WHERE id=$2 AND status=$3`,
		status, scheduleID, models.ScheduleScheduled,
	)
	if err != nil {
		return 0, 0, fmt.Errorf("%s: update status: %w", op, err)
	}

	if err := tx.Commit(); err != nil {
		return 0, 0, fmt.Errorf("%s: commit: %w", op, err)
	}

	return created, updated, nil
}

func (s *Storage) ListAttendance(ctx context.Context, scheduleID int64) ([]*models.AttendanceLog, error) {
	const op = "storage.postgres.ListAttendance"

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, camper_id, activity_schedule_id, staff_id, status, timestamp
		 FROM attendance_logs WHERE activity_schedule_id=$1
		 ORDER BY timestamp`, scheduleID,
	)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	defer rows.Close()

	var logs []*models.AttendanceLog
	for rows.Next() {
		var entry models.AttendanceLog
		err := rows.Scan(
			&entry.ID, &entry.CamperID, &entry.ActivityScheduleID,
			&entry.StaffID, &entry.Status, &entry.Timestamp,
		)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}

		logs = append(logs, &entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return logs, nil
}
