package submission

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/ecmps/submission-engine/pkg/submission/api"
)

func (h *HttpHandler) Register(r *echo.Echo) {
	v1 := r.Group("/api/v1")

	v1.POST("/evaluations/queue", h.QueueEvaluations)
	v1.POST("/submissions/queue", h.QueueSubmissions)
	v1.POST("/submissions/process/:id", h.ProcessSet)
	v1.GET("/submissions/last-updated", h.GetLastUpdated)
	v1.POST("/submissions/error-email", h.SendErrorEmail)

	r.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
}

func bindValidate(ctx echo.Context, i interface{}) error {
	if err := ctx.Bind(i); err != nil {
		return err
	}

	if err := ctx.Validate(i); err != nil {
		return err
	}

	return nil
}

// errorResponse maps pipeline errors onto the fixed {status, error, message}
// envelope. Validation failures surface before mutation and map to 4xx;
// everything else is a 500 carrying the pipeline label.
func errorResponse(ctx echo.Context, err error) error {
	var nf *NotFoundError
	var pre *PreconditionError
	var pipe *PipelineError

	switch {
	case errors.As(err, &nf):
		return ctx.JSON(http.StatusNotFound, api.ErrorResponse{
			Status:  http.StatusNotFound,
			Error:   "Not Found",
			Message: nf.Error(),
		})
	case errors.As(err, &pre):
		return ctx.JSON(http.StatusBadRequest, api.ErrorResponse{
			Status:  http.StatusBadRequest,
			Error:   "Bad Request",
			Message: pre.Error(),
		})
	case errors.As(err, &pipe):
		return ctx.JSON(http.StatusInternalServerError, api.ErrorResponse{
			Status:  http.StatusInternalServerError,
			Error:   pipe.Label,
			Message: pipe.Message,
		})
	default:
		return ctx.JSON(http.StatusInternalServerError, api.ErrorResponse{
			Status:  http.StatusInternalServerError,
			Error:   "Internal Server Error",
			Message: err.Error(),
		})
	}
}

// QueueEvaluations godoc
//
//	@Summary		Queues evaluation sets for the given monitoring plans
//	@Description	Creates one evaluation set per item and stamps the origin records as in-queue
//	@Tags			evaluations
//	@Accept			json
//	@Produce		json
//	@Success		200
//	@Router			/api/v1/evaluations/queue [post]
func (h *HttpHandler) QueueEvaluations(ctx echo.Context) error {
	var req api.QueueEvaluationsRequest
	if err := bindValidate(ctx, &req); err != nil {
		return err
	}

	err := h.service.Enqueue(ctx.Request().Context(), QueueParams{
		SetType:   SetTypeEvaluation,
		UserID:    req.UserID,
		UserEmail: req.UserEmail,
		Items:     req.Items,
	})
	if err != nil {
		return errorResponse(ctx, err)
	}

	return ctx.JSON(http.StatusOK, map[string]string{"message": "Records successfully queued for evaluation"})
}

// QueueSubmissions godoc
//
//	@Summary		Queues submission sets for the given monitoring plans
//	@Description	Creates one submission set per item and hands each to the processing worker
//	@Tags			submissions
//	@Accept			json
//	@Produce		json
//	@Success		200
//	@Router			/api/v1/submissions/queue [post]
func (h *HttpHandler) QueueSubmissions(ctx echo.Context) error {
	var req api.QueueSubmissionsRequest
	if err := bindValidate(ctx, &req); err != nil {
		return err
	}

	err := h.service.Enqueue(ctx.Request().Context(), QueueParams{
		SetType:       SetTypeSubmission,
		UserID:        req.UserID,
		UserEmail:     req.UserEmail,
		ActivityID:    req.ActivityID,
		HasCritErrors: req.HasCritErrors,
		Items:         req.Items,
	})
	if err != nil {
		return errorResponse(ctx, err)
	}

	return ctx.JSON(http.StatusOK, map[string]string{"message": "Records successfully queued for submission"})
}

// ProcessSet godoc
//
//	@Summary		Re-drives processing for a queued or stalled submission set
//	@Tags			submissions
//	@Produce		json
//	@Success		200
//	@Router			/api/v1/submissions/process/{id} [post]
func (h *HttpHandler) ProcessSet(ctx echo.Context) error {
	setID := ctx.Param("id")

	set, err := h.db.GetSet(nil, setID)
	if err != nil {
		return errorResponse(ctx, err)
	}
	if set == nil {
		return errorResponse(ctx, &NotFoundError{Entity: "Submission set", ID: setID})
	}

	if h.publisher != nil {
		if err := h.publisher.PublishProcess(ctx.Request().Context(), setID); err != nil {
			return errorResponse(ctx, err)
		}
		return ctx.JSON(http.StatusOK, map[string]string{"message": "Submission set queued for processing"})
	}

	if err := h.processor.Process(ctx.Request().Context(), setID); err != nil {
		return errorResponse(ctx, err)
	}
	return ctx.JSON(http.StatusOK, map[string]string{"message": "Submission set processed"})
}

// GetLastUpdated godoc
//
//	@Summary		Lists emission submissions completed since the given time
//	@Tags			submissions
//	@Produce		json
//	@Success		200	{object}	api.LastUpdatedResponse
//	@Router			/api/v1/submissions/last-updated [get]
func (h *HttpHandler) GetLastUpdated(ctx echo.Context) error {
	raw := ctx.QueryParam("since")
	since, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return ctx.JSON(http.StatusBadRequest, api.ErrorResponse{
			Status:  http.StatusBadRequest,
			Error:   "Bad Request",
			Message: "since must be an RFC3339 timestamp",
		})
	}

	resp, err := h.service.GetLastUpdated(ctx.Request().Context(), since)
	if err != nil {
		return errorResponse(ctx, err)
	}
	return ctx.JSON(http.StatusOK, resp)
}

// SendErrorEmail godoc
//
//	@Summary		Re-sends the failure notification for an errored submission set
//	@Tags			submissions
//	@Produce		json
//	@Success		200
//	@Router			/api/v1/submissions/error-email [post]
func (h *HttpHandler) SendErrorEmail(ctx echo.Context) error {
	var req api.ErrorEmailRequest
	if err := bindValidate(ctx, &req); err != nil {
		return err
	}

	if err := h.notifier.SendErrorEmail(ctx.Request().Context(), req); err != nil {
		h.logger.Error("failed to send error email",
			zap.String("setId", req.SubmissionSetID), zap.Error(err))
		return errorResponse(ctx, err)
	}

	return ctx.JSON(http.StatusOK, map[string]string{"message": "Error email sent"})
}
