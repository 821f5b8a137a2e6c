package api

import "time"

// Schedules

type ScheduleCreateRequest struct {
	ActivityID   int64  `json:"activity_id" validate:"required"`
	LocationID   *int64 `json:"location_id,omitempty"`
	StaffID      *int64 `json:"staff_id,omitempty"`
	Start        string `json:"start" validate:"required"`
	End          string `json:"end" validate:"required"`
	IsLiveStream bool   `json:"is_live_stream"`
}

// CoreScheduleCreateRequest creates a core schedule plus derived child
// schedules in one batch. Children inherit the core window unless they
// carry their own.
type CoreScheduleCreateRequest struct {
	ScheduleCreateRequest
	Children []ScheduleCreateRequest `json:"children,omitempty"`
}

type RescheduleRequest struct {
	Start string `json:"start" validate:"required"`
	End   string `json:"end" validate:"required"`
}

type ScheduleResponse struct {
	ID             int64     `json:"id"`
	ActivityID     int64     `json:"activity_id"`
	ActivityType   string    `json:"activity_type"`
	CampID         int64     `json:"camp_id"`
	LocationID     *int64    `json:"location_id,omitempty"`
	StaffID        *int64    `json:"staff_id,omitempty"`
	Start          time.Time `json:"start"`
	End            time.Time `json:"end"`
	Status         string    `json:"status"`
	CoreActivityID *int64    `json:"core_activity_id,omitempty"`
	IsLiveStream   bool      `json:"is_live_stream"`
}

// BatchScheduleResponse is the partial-success aggregate for batch creation:
// one invalid member does not abort valid siblings, so callers must inspect
// both lists.
type BatchScheduleResponse struct {
	Successes []ScheduleResponse `json:"successes"`
	Errors    []string           `json:"errors"`
}

// Attendance

type AttendanceCheckRequest struct {
	ActivityScheduleID int64   `json:"activity_schedule_id" validate:"required"`
	CamperIDs          []int64 `json:"camper_ids" validate:"required,min=1"`
	Status             string  `json:"status" validate:"required,oneof=present absent late"`
	RecordedBy         int64   `json:"recorded_by" validate:"required"`
}

type AttendanceLogResponse struct {
	ID                 int64     `json:"id"`
	CamperID           int64     `json:"camper_id"`
	ActivityScheduleID int64     `json:"activity_schedule_id"`
	StaffID            int64     `json:"staff_id"`
	Status             string    `json:"status"`
	Timestamp          time.Time `json:"timestamp"`
}

type AttendanceCheckResponse struct {
	ActivityScheduleID int64   `json:"activity_schedule_id"`
	ScheduleStatus     string  `json:"schedule_status"`
	CreatedCount       int     `json:"created_count"`
	UpdatedCount       int     `json:"updated_count"`
	SkippedCamperIDs   []int64 `json:"skipped_camper_ids,omitempty"`
}

// Recognition webhook

type RecognizedFaceDTO struct {
	FaceID     string  `json:"face_id"`
	Embedding  string  `json:"embedding"`
	Confidence float64 `json:"confidence"`
}

type RecognitionWebhookRequest struct {
	RequestID          string              `json:"request_id"`
	ActivityScheduleID int64               `json:"activity_schedule_id" validate:"required"`
	RecognizedFaces    []RecognizedFaceDTO `json:"recognized_faces" validate:"required,min=1"`
	Metadata           map[string]string   `json:"metadata,omitempty"`
}

type RecognizedCamperDTO struct {
	CamperID   int64   `json:"camper_id"`
	Confidence float64 `json:"confidence"`
}

type RecognitionWebhookResponse struct {
	Success           bool                  `json:"success"`
	RequestID         string                `json:"request_id"`
	Timestamp         time.Time             `json:"timestamp"`
	UpdatedCount      int                   `json:"updated_count"`
	CreatedCount      int                   `json:"created_count"`
	RecognizedCampers []RecognizedCamperDTO `json:"recognized_campers"`
	BroadcastSent     bool                  `json:"broadcast_sent"`
}
