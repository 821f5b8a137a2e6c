package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"camp-service/api"
	"camp-service/internal/idempotency"
	"camp-service/internal/models"
	"camp-service/pkg/response"
	"camp-service/pkg/sl"
)

// ProcessRecognition makes repeated delivery of the same recognition event
// produce exactly one observable effect. The request id must be supplied by
// the caller; generating one here would defeat retry-safety.
//
// Side effects are strictly ordered: attendance persists first, then the
// result is cached, then the broadcast goes out. A crash between the last
// two leaves a correctly deduplicated, persisted result that simply was not
// pushed live.
func (s *Service) ProcessRecognition(ctx context.Context, req *api.RecognitionWebhookRequest) (*api.RecognitionWebhookResponse, error) {
	const op = "service.ProcessRecognition"

	if req.RequestID == "" {
		return nil, fmt.Errorf("%s: request id is required: %w", op, response.ErrValidation)
	}

	cached, found, err := s.cache.Get(ctx, req.RequestID)
	if err != nil {
		if errors.Is(err, idempotency.ErrInProgress) {
			return nil, fmt.Errorf("%s: request %s: %w", op, req.RequestID, response.ErrLocked)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if found {
		var resp api.RecognitionWebhookResponse
		if err := json.Unmarshal(cached, &resp); err != nil {
			return nil, fmt.Errorf("%s: decode cached result: %w", op, err)
		}

		s.log.Info("Returning cached recognition result", slog.String("request_id", req.RequestID))

		return &resp, nil
	}

	claimed, err := s.cache.BeginProcessing(ctx, req.RequestID, s.opts.ProcessingTTL)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if !claimed {
		// Lost the race with a concurrent delivery of the same id.
		return nil, fmt.Errorf("%s: request %s: %w", op, req.RequestID, response.ErrLocked)
	}

	resp, err := s.processRecognition(ctx, req)
	if err != nil {
		// Drop the claim so the next delivery is treated as new. The claim's
		// own TTL covers the case where this release never runs.
		if releaseErr := s.cache.Release(context.WithoutCancel(ctx), req.RequestID); releaseErr != nil {
			s.log.Error("Failed to release processing claim", sl.Err(releaseErr))
		}
		return nil, err
	}

	return resp, nil
}

func (s *Service) processRecognition(ctx context.Context, req *api.RecognitionWebhookRequest) (*api.RecognitionWebhookResponse, error) {
	const op = "service.processRecognition"

	schedule, err := s.store.GetSchedule(ctx, req.ActivityScheduleID)
	if err != nil {
		if errors.Is(err, response.ErrNotFound) {
			return nil, fmt.Errorf("%s: schedule %d: %w", op, req.ActivityScheduleID, response.ErrNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	faces := make([]models.RecognizedFace, 0, len(req.RecognizedFaces))
	for _, f := range req.RecognizedFaces {
		faces = append(faces, models.RecognizedFace{
			FaceID:     f.FaceID,
			Embedding:  f.Embedding,
			Confidence: f.Confidence,
		})
	}

	candidates, err := s.matcher.Match(ctx, schedule.ID, faces)
	if err != nil {
		return nil, fmt.Errorf("%s: matcher: %w: %v", op, response.ErrUpstream, err)
	}

	var camperIDs []int64
	var recognized []api.RecognizedCamperDTO
	for _, candidate := range candidates {
		if candidate.Confidence < s.opts.MinConfidence {
			continue
		}
		camperIDs = append(camperIDs, candidate.CamperID)
		recognized = append(recognized, api.RecognizedCamperDTO{
			CamperID:   candidate.CamperID,
			Confidence: candidate.Confidence,
		})
	}

	status := participantStatusFromMetadata(req.Metadata)
	recordedBy := recorderFromMetadata(req.Metadata)

	var created, updated int
	if len(camperIDs) > 0 {
		created, updated, _, err = s.applyAttendance(ctx, schedule, camperIDs, status, recordedBy)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
	}

	resp := &api.RecognitionWebhookResponse{
		Success:           true,
		RequestID:         req.RequestID,
		Timestamp:         s.now().UTC(),
		UpdatedCount:      updated,
		CreatedCount:      created,
		RecognizedCampers: recognized,
	}

	// Cache before broadcasting so a duplicate delivered after a partial
	// failure still replays a committed result.
	payload, err := json.Marshal(resp)
	if err != nil {
		return nil, fmt.Errorf("%s: encode result: %w", op, err)
	}

	if err := s.cache.Store(ctx, req.RequestID, payload, s.opts.IdempotencyTTL); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	topic := fmt.Sprintf("attendance:%d", schedule.ID)
	if err := s.notifier.Broadcast(ctx, topic, resp); err != nil {
		// Attendance is already committed; clients can still poll.
		s.log.Error("Broadcast failed",
			slog.String("topic", topic),
			slog.String("request_id", req.RequestID),
			sl.Err(err),
		)
	} else {
		resp.BroadcastSent = true
	}

	return resp, nil
}

func participantStatusFromMetadata(metadata map[string]string) models.ParticipantStatus {
	switch models.ParticipantStatus(metadata["participant_status"]) {
	case models.ParticipantAbsent:
		return models.ParticipantAbsent
	case models.ParticipantLate:
		return models.ParticipantLate
	default:
		return models.ParticipantPresent
	}
}

// recorderFromMetadata resolves who gets credited for the writes; zero means
// the recognition system itself.
func recorderFromMetadata(metadata map[string]string) int64 {
	raw, ok := metadata["recorded_by"]
	if !ok {
		return 0
	}

	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0
	}

	return id
}
