package check

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"camp-service/api"
	"camp-service/internal/service"
	"camp-service/pkg/response"
	"camp-service/pkg/sl"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"
)

type AttendanceRecorder interface {
	RecordAttendance(ctx context.Context, kind service.EntryKind, req *api.AttendanceCheckRequest) (*api.AttendanceCheckResponse, error)
}

type Request struct {
	api.AttendanceCheckRequest
}

type Response struct {
	response.Response
	Attendance api.AttendanceCheckResponse `json:"attendance,omitempty"`
}

// New builds the handler for one attendance entry point; the same mechanism
// serves core, optional, check-in and check-out routes.
func New(log *slog.Logger, recorder AttendanceRecorder, kind service.EntryKind) http.HandlerFunc {
	validate := validator.New()

	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.attendance.check.New"

		log = log.With(
			slog.String("op", op),
			slog.String("entry", string(kind)),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		var req Request

		if err := render.DecodeJSON(r.Body, &req); err != nil {
			log.Error("Failed to decode request body", sl.Err(err))
			w.WriteHeader(http.StatusBadRequest)
			render.JSON(w, r, response.Error(string(response.BAD_REQUEST), "failed to decode request"))
			return
		}

		log.Info("Request body decoded", slog.Any("request", req))

		if err := validate.Struct(req.AttendanceCheckRequest); err != nil {
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

		attendance, err := recorder.RecordAttendance(r.Context(), kind, &req.AttendanceCheckRequest)

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

		if errors.Is(err, response.ErrRule) {
			log.Error("business rule violated", sl.Err(err))
			w.WriteHeader(http.StatusUnprocessableEntity)
			render.JSON(w, r, response.Error(string(response.RULE_VIOLATION), err.Error()))
			return
		}

		if err != nil {
			log.Error("Failed to record attendance", sl.Err(err))
			w.WriteHeader(http.StatusInternalServerError)
			render.JSON(w, r, response.Error(string(response.FAILED_REQUEST), "failed to record attendance"))
			return
		}

		log.Info("Attendance recorded", slog.Any("attendance", attendance))

		w.WriteHeader(http.StatusCreated)
		render.JSON(w, r, Response{
			Attendance: *attendance,
		})
	}
}
