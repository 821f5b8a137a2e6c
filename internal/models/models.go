package models

import "time"

type ActivityType string

const (
	ActivityCore     ActivityType = "core"
	ActivityOptional ActivityType = "optional"
	ActivityCheckin  ActivityType = "checkin"
	ActivityCheckout ActivityType = "checkout"
	ActivityResting  ActivityType = "resting"
)

type ScheduleStatus string

const (
	ScheduleScheduled         ScheduleStatus = "scheduled"
	ScheduleAttendanceChecked ScheduleStatus = "attendance_checked"
)

type ParticipantStatus string

const (
	ParticipantPresent ParticipantStatus = "present"
	ParticipantAbsent  ParticipantStatus = "absent"
	ParticipantLate    ParticipantStatus = "late"
)

type Role string

const (
	RoleStaff  Role = "staff"
	RoleCamper Role = "camper"
	RoleAdmin  Role = "admin"
	RoleParent Role = "parent"
)

type Activity struct {
	ID     int64        `db:"id"`
	CampID int64        `db:"camp_id"`
	Name   string       `db:"name"`
	Type   ActivityType `db:"activity_type"`
}

type Camp struct {
	ID        int64     `db:"id"`
	Name      string    `db:"name"`
	StartDate time.Time `db:"start_date"`
	EndDate   time.Time `db:"end_date"`
}

type User struct {
	ID   int64  `db:"id"`
	Name string `db:"name"`
	Role Role   `db:"role"`
}

type ActivitySchedule struct {
	ID             int64          `db:"id"`
	ActivityID     int64          `db:"activity_id"`
	LocationID     *int64         `db:"location_id"`
	StaffID        *int64         `db:"staff_id"`
	StartTime      time.Time      `db:"start_time"`
	EndTime        time.Time      `db:"end_time"`
	Status         ScheduleStatus `db:"status"`
	CoreActivityID *int64         `db:"core_activity_id"`
	IsLiveStream   bool           `db:"is_live_stream"`
}

type AttendanceLog struct {
	ID                 int64             `db:"id"`
	CamperID           int64             `db:"camper_id"`
	ActivityScheduleID int64             `db:"activity_schedule_id"`
	StaffID            int64             `db:"staff_id"`
	Status             ParticipantStatus `db:"status"`
	Timestamp          time.Time         `db:"timestamp"`
}

// RecognizedFace is the raw payload the recognition service delivers for a
// single detected face, before it has been matched to a camper.
type RecognizedFace struct {
	FaceID     string  `json:"face_id"`
	Embedding  string  `json:"embedding"`
	Confidence float64 `json:"confidence"`
}

// RecognizedCamper is a matcher candidate: a camper id plus the confidence
// the embedding matcher assigned to the match.
type RecognizedCamper struct {
	CamperID   int64   `json:"camper_id"`
	Confidence float64 `json:"confidence"`
}
