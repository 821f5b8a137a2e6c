package webhook

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"camp-service/api"
	"camp-service/pkg/response"
	"camp-service/pkg/sl"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"
)

type RecognitionProcessor interface {
	ProcessRecognition(ctx context.Context, req *api.RecognitionWebhookRequest) (*api.RecognitionWebhookResponse, error)
}

type Request struct {
	api.RecognitionWebhookRequest
}

func New(log *slog.Logger, processor RecognitionProcessor) http.HandlerFunc {
	validate := validator.New()

	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.recognition.webhook.New"

		log = log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		var req Request

		if err := render.DecodeJSON(r.Body, &req); err != nil {
			log.Error("Failed to decode request body", sl.Err(err))
			w.WriteHeader(http.StatusBadRequest)
			render.JSON(w, r, response.Error(string(response.BAD_REQUEST), "failed to decode request"))
			return
		}

		// The idempotency key must come from the caller; the header wins
		// over the body field.
		if headerID := r.Header.Get("X-Request-ID"); headerID != "" {
			req.RequestID = headerID
		}

		if req.RequestID == "" {
			log.Error("request id is missing")
			w.WriteHeader(http.StatusBadRequest)
			render.JSON(w, r, response.Error(string(response.VALIDATION_FAILED),
				"X-Request-ID header or request_id field is required"))
			return
		}

		log.Info("Recognition webhook received",
			slog.String("recognition_request_id", req.RequestID),
			slog.Int64("schedule_id", req.ActivityScheduleID),
			slog.Int("faces", len(req.RecognizedFaces)),
		)

		if err := validate.Struct(req.RecognitionWebhookRequest); err != nil {
			var validateErrs validator.ValidationErrors
			if errors.As(err, &validateErrs) {
				log.Error("Invalid request", sl.Err(err))
				w.WriteHeader(http.StatusBadRequest)
				render.JSON(w, r, response.ValidationError(validateErrs))
				return
			}

			log.Error("Failed to validate request", sl.Err(err))
			w.WriteHeader(http.StatusBadRequest)
			render.JSON(w, r, response.Error(string(response.BAD_REQUEST), "invalid request"))
			return
		}

		result, err := processor.ProcessRecognition(r.Context(), &req.RecognitionWebhookRequest)

		if errors.Is(err, response.ErrLocked) {
			log.Warn("duplicate request still processing", slog.String("recognition_request_id", req.RequestID))
			w.WriteHeader(http.StatusConflict)
			render.JSON(w, r, response.Error(string(response.LOCKED), "request is being processed, retry later"))
			return
		}

		if errors.Is(err, response.ErrNotFound) {
			log.Error("resource not found", sl.Err(err))
			w.WriteHeader(http.StatusNotFound)
			render.JSON(w, r, response.Error(string(response.NOT_FOUND), "resource not found"))
			return
		}

		if errors.Is(err, response.ErrValidation) {
			log.Error("validation failed", sl.Err(err))
			w.WriteHeader(http.StatusBadRequest)
			render.JSON(w, r, response.Error(string(response.VALIDATION_FAILED), err.Error()))
			return
		}

		if errors.Is(err, response.ErrUpstream) {
			log.Error("matcher unavailable", sl.Err(err))
			w.WriteHeader(http.StatusBadGateway)
			render.JSON(w, r, response.Error(string(response.UPSTREAM_FAILED), "recognition matcher unavailable"))
			return
		}

		if err != nil {
			log.Error("Failed to process recognition webhook", sl.Err(err))
			w.WriteHeader(http.StatusInternalServerError)
			render.JSON(w, r, response.Error(string(response.FAILED_REQUEST), "failed to process recognition webhook"))
			return
		}

		log.Info("Recognition webhook processed",
			slog.String("recognition_request_id", result.RequestID),
			slog.Int("created", result.CreatedCount),
			slog.Int("updated", result.UpdatedCount),
			slog.Bool("broadcast_sent", result.BroadcastSent),
		)

		render.JSON(w, r, result)
	}
}
