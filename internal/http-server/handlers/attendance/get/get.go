package get

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"camp-service/api"
	"camp-service/pkg/response"
	"camp-service/pkg/sl"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
)

type AttendanceLister interface {
	ListAttendance(ctx context.Context, scheduleID int64) ([]*api.AttendanceLogResponse, error)
}

type Response struct {
	response.Response
	Logs []*api.AttendanceLogResponse `json:"logs"`
}

func New(log *slog.Logger, lister AttendanceLister) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.attendance.get.New"

		log = log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		scheduleID, err := strconv.ParseInt(r.URL.Query().Get("schedule_id"), 10, 64)
		if err != nil {
			log.Error("Invalid schedule_id", sl.Err(err))
			w.WriteHeader(http.StatusBadRequest)
			render.JSON(w, r, response.Error(string(response.BAD_REQUEST), "schedule_id is required"))
			return
		}

		logs, err := lister.ListAttendance(r.Context(), scheduleID)

		if errors.Is(err, response.ErrNotFound) {
			log.Error("schedule not found", slog.Int64("schedule_id", scheduleID))
			w.WriteHeader(http.StatusNotFound)
			render.JSON(w, r, response.Error(string(response.NOT_FOUND), "schedule not found"))
			return
		}

		if err != nil {
			log.Error("Failed to list attendance", sl.Err(err))
			w.WriteHeader(http.StatusInternalServerError)
			render.JSON(w, r, response.Error(string(response.FAILED_REQUEST), "failed to list attendance"))
			return
		}

		render.JSON(w, r, Response{
			Logs: logs,
		})
	}
}
