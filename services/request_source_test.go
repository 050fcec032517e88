package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"agent-runner-server/models"
)

type stubSubmitter struct {
	mu       sync.Mutex
	requests []models.Request
	stopAt   int
}

func (s *stubSubmitter) OnRequest(ctx context.Context, req models.Request) (uint64, <-chan models.WorkerReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopAt > 0 && len(s.requests) >= s.stopAt {
		return 0, nil, ErrDispatcherStopped
	}
	s.requests = append(s.requests, req)
	done := make(chan models.WorkerReport)
	close(done)
	return uint64(len(s.requests)), done, nil
}

func (s *stubSubmitter) submitted() []models.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Request(nil), s.requests...)
}

func TestSimulatedSourceSubmitsCount(t *testing.T) {
	t.Parallel()

	sub := &stubSubmitter{}
	src := NewSimulatedSource(5, time.Millisecond, []string{"alpha", "beta"}, zerolog.Nop())
	if err := src.Run(context.Background(), sub); err != nil {
		t.Fatalf("run: %v", err)
	}

	reqs := sub.submitted()
	if len(reqs) != 5 {
		t.Fatalf("submitted %d requests", len(reqs))
	}
	sessions := make(map[string]bool)
	for i, req := range reqs {
		wantPrefix := []string{"alpha", "beta"}[i%2]
		if !strings.HasPrefix(req.Text, wantPrefix) {
			t.Fatalf("request %d text %q", i, req.Text)
		}
		if req.SessionID == "" || !strings.HasPrefix(req.UserID, "user-") {
			t.Fatalf("request %d missing ids: %+v", i, req)
		}
		sessions[req.SessionID] = true
	}
	if len(sessions) != 5 {
		t.Fatal("session ids must be unique")
	}
}

func TestSimulatedSourceStopsWithDispatcher(t *testing.T) {
	t.Parallel()

	sub := &stubSubmitter{stopAt: 2}
	src := NewSimulatedSource(10, 0, nil, zerolog.Nop())
	if err := src.Run(context.Background(), sub); err != nil {
		t.Fatalf("run: %v", err)
	}
	if got := len(sub.submitted()); got != 2 {
		t.Fatalf("submitted %d requests after stop", got)
	}
}

func TestSimulatedSourceHonoursContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	sub := &stubSubmitter{}
	src := NewSimulatedSource(10, time.Hour, nil, zerolog.Nop())
	if err := src.Run(ctx, sub); err != nil {
		t.Fatalf("run: %v", err)
	}
	if got := len(sub.submitted()); got != 1 {
		t.Fatalf("submitted %d requests", got)
	}
}

type stubQueue struct {
	mu      sync.Mutex
	results []func() (models.Request, error)
	cancel  context.CancelFunc
}

func (q *stubQueue) PopRequest(ctx context.Context, key string, timeout time.Duration) (models.Request, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.results) == 0 {
		q.cancel()
		return models.Request{}, ctx.Err()
	}
	next := q.results[0]
	q.results = q.results[1:]
	return next()
}

func TestQueueSourceForwardsRequests(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	queue := &stubQueue{cancel: cancel, results: []func() (models.Request, error){
		func() (models.Request, error) { return models.Request{Text: "first"}, nil },
		func() (models.Request, error) { return models.Request{}, redis.Nil },
		func() (models.Request, error) { return models.Request{}, errors.New("connection reset") },
		func() (models.Request, error) { return models.Request{Text: "second", SessionID: "s"}, nil },
	}}

	src := NewQueueSource(queue, "", zerolog.Nop())
	src.backoff = time.Millisecond
	if src.key != DefaultRequestQueue {
		t.Fatalf("key = %q", src.key)
	}

	sub := &stubSubmitter{}
	errCh := make(chan error, 1)
	go func() { errCh <- src.Run(ctx, sub) }()

	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("queue source did not stop")
	}

	reqs := sub.submitted()
	if len(reqs) != 2 || reqs[0].Text != "first" || reqs[1].Text != "second" {
		t.Fatalf("submitted %+v", reqs)
	}
}

func TestQueueSourceStopsWithDispatcher(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	queue := &stubQueue{cancel: cancel, results: []func() (models.Request, error){
		func() (models.Request, error) { return models.Request{Text: "a"}, nil },
		func() (models.Request, error) { return models.Request{Text: "b"}, nil },
		func() (models.Request, error) { return models.Request{Text: "c"}, nil },
	}}
	sub := &stubSubmitter{stopAt: 1}

	if err := NewQueueSource(queue, "q", zerolog.Nop()).Run(ctx, sub); err != nil {
		t.Fatalf("run: %v", err)
	}
	if got := len(sub.submitted()); got != 1 {
		t.Fatalf("submitted %d", got)
	}
}

func TestIsEmptyQueue(t *testing.T) {
	t.Parallel()

	if !IsEmptyQueue(redis.Nil) {
		t.Fatal("redis.Nil should be an empty queue")
	}
	if IsEmptyQueue(errors.New("boom")) {
		t.Fatal("other errors are not empty queue")
	}
}
