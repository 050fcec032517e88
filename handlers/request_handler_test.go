package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"

	"agent-runner-server/models"
	"agent-runner-server/services"
)

type stubDispatcher struct {
	err     error
	reports chan models.WorkerReport
	got     []models.Request
}

func (d *stubDispatcher) OnRequest(ctx context.Context, req models.Request) (uint64, <-chan models.WorkerReport, error) {
	if d.err != nil {
		return 0, nil, d.err
	}
	d.got = append(d.got, req)
	return uint64(len(d.got)), d.reports, nil
}

func (d *stubDispatcher) Stats() models.DispatcherStats {
	return models.DispatcherStats{Received: uint64(len(d.got)), Accepting: d.err == nil, Failed: map[string]uint64{}}
}

type stubInterpreter struct{}

func (stubInterpreter) Stats() models.InterpreterStats {
	return models.InterpreterStats{Starts: 1, Acquisitions: 3}
}

func newTestApp(h *RequestHandler) *fiber.App {
	app := fiber.New()
	app.Post("/api/requests", h.SubmitRequest)
	app.Get("/api/stats", h.GetStats)
	return app
}

func postJSON(t *testing.T, app *fiber.App, body string) (int, models.SubmitResponse, string) {
	t.Helper()
	req := httptest.NewRequest("POST", "/api/requests", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	var out models.SubmitResponse
	_ = json.Unmarshal(raw, &out)
	return resp.StatusCode, out, string(raw)
}

func TestSubmitRequestAccepted(t *testing.T) {
	d := &stubDispatcher{reports: make(chan models.WorkerReport, 1)}
	app := newTestApp(NewRequestHandler(d, stubInterpreter{}))

	status, out, _ := postJSON(t, app, `{"text":"hello","session_id":"s","user_id":"u"}`)
	if status != fiber.StatusAccepted || out.Status != "accepted" || out.Sequence != 1 {
		t.Fatalf("status %d, body %+v", status, out)
	}
	if len(d.got) != 1 || d.got[0] != (models.Request{Text: "hello", SessionID: "s", UserID: "u"}) {
		t.Fatalf("dispatched %+v", d.got)
	}
}

func TestSubmitRequestWaitsForReport(t *testing.T) {
	tests := []struct {
		name    string
		outcome models.Outcome
		want    string
	}{
		{name: "completed", outcome: models.Success("pong"), want: "completed"},
		{name: "failed", outcome: models.Fail(models.FailureInvocation, services.ErrInvocation), want: "failed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := &stubDispatcher{reports: make(chan models.WorkerReport, 1)}
			d.reports <- models.WorkerReport{WorkerID: "w-1", Outcome: tt.outcome}
			app := newTestApp(NewRequestHandler(d, stubInterpreter{}))

			status, out, raw := postJSON(t, app, `{"text":"ping","wait":true}`)
			if status != fiber.StatusOK || out.Status != tt.want {
				t.Fatalf("status %d, body %s", status, raw)
			}
			if out.Report == nil || out.Report.WorkerID != "w-1" {
				t.Fatalf("missing report: %s", raw)
			}
		})
	}
}

func TestSubmitRequestWaitTimesOut(t *testing.T) {
	d := &stubDispatcher{reports: make(chan models.WorkerReport)}
	h := NewRequestHandler(d, stubInterpreter{})
	h.waitTimeout = 10 * time.Millisecond
	app := newTestApp(h)

	status, out, _ := postJSON(t, app, `{"text":"slow","wait":true}`)
	if status != fiber.StatusAccepted || out.Status != "pending" {
		t.Fatalf("status %d, body %+v", status, out)
	}
}

func TestSubmitRequestRejections(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		body   string
		status int
	}{
		{name: "malformed body", body: `{"text":`, status: fiber.StatusBadRequest},
		{name: "empty text", body: `{"text":""}`, status: fiber.StatusBadRequest},
		{name: "dispatcher stopped", err: services.ErrDispatcherStopped, body: `{"text":"x"}`, status: fiber.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := &stubDispatcher{err: tt.err}
			app := newTestApp(NewRequestHandler(d, stubInterpreter{}))
			if status, _, raw := postJSON(t, app, tt.body); status != tt.status {
				t.Fatalf("status %d, want %d (%s)", status, tt.status, raw)
			}
		})
	}
}

func TestGetStats(t *testing.T) {
	d := &stubDispatcher{reports: make(chan models.WorkerReport, 1)}
	app := newTestApp(NewRequestHandler(d, stubInterpreter{}))

	resp, err := app.Test(httptest.NewRequest("GET", "/api/stats", nil), -1)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	defer resp.Body.Close()

	var out struct {
		Dispatcher  models.DispatcherStats  `json:"dispatcher"`
		Interpreter models.InterpreterStats `json:"interpreter"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !out.Dispatcher.Accepting || out.Interpreter.Starts != 1 || out.Interpreter.Acquisitions != 3 {
		t.Fatalf("stats = %+v", out)
	}
}

type stubQueue struct {
	err    error
	key    string
	pushed []models.Request
}

func (q *stubQueue) PushRequest(ctx context.Context, queueKey string, req models.Request) error {
	if q.err != nil {
		return q.err
	}
	q.key = queueKey
	q.pushed = append(q.pushed, req)
	return nil
}

func TestSubmitRequestQueued(t *testing.T) {
	d := &stubDispatcher{reports: make(chan models.WorkerReport, 1)}
	q := &stubQueue{}
	app := newTestApp(NewRequestHandler(d, stubInterpreter{}).WithQueue(q, "agent_requests"))

	status, out, raw := postJSON(t, app, `{"text":"later","session_id":"s","queue":true}`)
	if status != fiber.StatusAccepted || out.Status != "queued" {
		t.Fatalf("status %d, body %s", status, raw)
	}
	if len(d.got) != 0 {
		t.Fatal("queued request must not be dispatched locally")
	}
	if q.key != "agent_requests" || len(q.pushed) != 1 || q.pushed[0] != (models.Request{Text: "later", SessionID: "s"}) {
		t.Fatalf("pushed %+v to %q", q.pushed, q.key)
	}
}

func TestSubmitRequestQueueRejections(t *testing.T) {
	tests := []struct {
		name   string
		queue  RequestQueue
		body   string
		status int
	}{
		{name: "no queue configured", body: `{"text":"x","queue":true}`, status: fiber.StatusBadRequest},
		{name: "wait on queued request", queue: &stubQueue{}, body: `{"text":"x","queue":true,"wait":true}`, status: fiber.StatusBadRequest},
		{name: "push fails", queue: &stubQueue{err: errors.New("redis down")}, body: `{"text":"x","queue":true}`, status: fiber.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewRequestHandler(&stubDispatcher{}, stubInterpreter{})
			if tt.queue != nil {
				h.WithQueue(tt.queue, "q")
			}
			if status, _, raw := postJSON(t, newTestApp(h), tt.body); status != tt.status {
				t.Fatalf("status %d, want %d (%s)", status, tt.status, raw)
			}
		})
	}
}
