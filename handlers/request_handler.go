package handlers

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"

	"agent-runner-server/middleware"
	"agent-runner-server/models"
	"agent-runner-server/services"
)

const defaultWaitTimeout = 60 * time.Second

// RequestDispatcher is the part of the dispatcher the handlers use
type RequestDispatcher interface {
	OnRequest(ctx context.Context, req models.Request) (uint64, <-chan models.WorkerReport, error)
	Stats() models.DispatcherStats
}

// RequestQueue hands requests to the shared Redis request queue
type RequestQueue interface {
	PushRequest(ctx context.Context, queueKey string, req models.Request) error
}

// InterpreterStats reports interpreter lock usage
type InterpreterStats interface {
	Stats() models.InterpreterStats
}

type RequestHandler struct {
	dispatcher  RequestDispatcher
	interpreter InterpreterStats
	waitTimeout time.Duration

	queue    RequestQueue
	queueKey string
}

func NewRequestHandler(d RequestDispatcher, interp InterpreterStats) *RequestHandler {
	return &RequestHandler{dispatcher: d, interpreter: interp, waitTimeout: defaultWaitTimeout}
}

// WithQueue lets clients enqueue requests on queueKey instead of dispatching
// them in this process.
func (h *RequestHandler) WithQueue(q RequestQueue, queueKey string) *RequestHandler {
	h.queue = q
	h.queueKey = queueKey
	return h
}

// SubmitRequest godoc
// @Summary Submit a text-processing request
// @Description Spawns a worker for the request. With wait=true the response carries the worker report. With queue=true the request is pushed to the Redis request queue.
// @Tags requests
// @Accept json
// @Produce json
// @Param request body models.SubmitRequest true "Request to process"
// @Success 200 {object} models.SubmitResponse
// @Success 202 {object} models.SubmitResponse
// @Failure 400 {object} map[string]string
// @Failure 500 {object} map[string]string
// @Failure 503 {object} map[string]string
// @Router /requests [post]
func (h *RequestHandler) SubmitRequest(c *fiber.Ctx) error {
	var body models.SubmitRequest
	if err := c.BodyParser(&body); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if body.Text == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "text is required",
		})
	}

	req := models.Request{Text: body.Text, SessionID: body.SessionID, UserID: body.UserID}
	if body.Queue {
		return h.enqueue(c, body, req)
	}

	seq, done, err := h.dispatcher.OnRequest(middleware.GetXRayContext(c), req)
	if err != nil {
		status := fiber.StatusInternalServerError
		if errors.Is(err, services.ErrDispatcherStopped) {
			status = fiber.StatusServiceUnavailable
		}
		return c.Status(status).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	if !body.Wait {
		return c.Status(fiber.StatusAccepted).JSON(models.SubmitResponse{Sequence: seq, Status: "accepted"})
	}

	select {
	case report, ok := <-done:
		if !ok {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "worker stopped without a report",
			})
		}
		status := "completed"
		if !report.Outcome.OK() {
			status = "failed"
		}
		return c.JSON(models.SubmitResponse{Sequence: seq, Status: status, Report: &report})
	case <-time.After(h.waitTimeout):
		return c.Status(fiber.StatusAccepted).JSON(models.SubmitResponse{Sequence: seq, Status: "pending"})
	}
}

// GetStats godoc
// @Summary Dispatcher and interpreter counters
// @Tags requests
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /stats [get]
func (h *RequestHandler) GetStats(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"dispatcher":  h.dispatcher.Stats(),
		"interpreter": h.interpreter.Stats(),
	})
}

func (h *RequestHandler) enqueue(c *fiber.Ctx, body models.SubmitRequest, req models.Request) error {
	if h.queue == nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "request queue is not configured",
		})
	}
	if body.Wait {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "wait is not supported for queued requests",
		})
	}
	if err := h.queue.PushRequest(middleware.GetXRayContext(c), h.queueKey, req); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to queue request: " + err.Error(),
		})
	}
	return c.Status(fiber.StatusAccepted).JSON(models.SubmitResponse{Status: "queued"})
}
