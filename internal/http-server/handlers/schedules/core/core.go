package core

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

type CoreScheduleCreator interface {
	CreateCoreSchedule(ctx context.Context, req *api.CoreScheduleCreateRequest) (*api.BatchScheduleResponse, error)
}

type Request struct {
	api.CoreScheduleCreateRequest
}

type Response struct {
	response.Response
	api.BatchScheduleResponse
}

func New(log *slog.Logger, creator CoreScheduleCreator) http.HandlerFunc {
	validate := validator.New()

	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.schedules.core.New"

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

		log.Info("Request body decoded", slog.Any("request", req))

		if err := validate.Struct(req.CoreScheduleCreateRequest); err != nil {
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

		result, err := creator.CreateCoreSchedule(r.Context(), &req.CoreScheduleCreateRequest)

		if errors.Is(err, response.ErrNotFound) {
			log.Error("resource not found")
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

		if errors.Is(err, response.ErrLocked) {
			log.Error("resource is locked")
			w.WriteHeader(http.StatusLocked)
			render.JSON(w, r, response.Error(string(response.LOCKED), "resource is locked, retry later"))
			return
		}

		if err != nil {
			log.Error("Failed to create core schedule", sl.Err(err))
			w.WriteHeader(http.StatusInternalServerError)
			render.JSON(w, r, response.Error(string(response.FAILED_REQUEST), "failed to create core schedule"))
			return
		}

		log.Info("Core schedule batch processed",
			slog.Int("successes", len(result.Successes)),
			slog.Int("errors", len(result.Errors)),
		)

		w.WriteHeader(http.StatusCreated)
		render.JSON(w, r, Response{
			BatchScheduleResponse: *result,
		})
	}
}
