package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"agent-runner-server/models"
)

// Submitter accepts requests; *Dispatcher implements it.
type Submitter interface {
	OnRequest(ctx context.Context, req models.Request) (uint64, <-chan models.WorkerReport, error)
}

// RequestSource produces requests until it is exhausted or ctx is done.
type RequestSource interface {
	Run(ctx context.Context, submit Submitter) error
}

var defaultTexts = []string{
	"What tools do you have access to?",
	"Summarize the open issues in the repository.",
	"Hello! Who are you?",
	"Draft a short status update for the team.",
}

// SimulatedSource submits a fixed number of generated requests, one per
// stagger interval, each with fresh session and user ids.
type SimulatedSource struct {
	count   int
	stagger time.Duration
	texts   []string
	log     zerolog.Logger
}

func NewSimulatedSource(count int, stagger time.Duration, texts []string, log zerolog.Logger) *SimulatedSource {
	if len(texts) == 0 {
		texts = defaultTexts
	}
	return &SimulatedSource{
		count:   count,
		stagger: stagger,
		texts:   texts,
		log:     log.With().Str("component", "simulated_source").Logger(),
	}
}

func (s *SimulatedSource) Run(ctx context.Context, submit Submitter) error {
	var tick <-chan time.Time
	if s.stagger > 0 {
		ticker := time.NewTicker(s.stagger)
		defer ticker.Stop()
		tick = ticker.C
	}

	for i := 0; i < s.count; i++ {
		req := models.Request{
			Text:      fmt.Sprintf("%s (#%d)", s.texts[i%len(s.texts)], i+1),
			SessionID: uuid.NewString(),
			UserID:    "user-" + uuid.NewString()[:8],
		}
		if _, _, err := submit.OnRequest(ctx, req); err != nil {
			if errors.Is(err, ErrDispatcherStopped) {
				return nil
			}
			s.log.Error().Err(err).Int("index", i).Msg("failed to submit simulated request")
		}
		if i == s.count-1 || tick == nil {
			continue
		}
		select {
		case <-tick:
		case <-ctx.Done():
			return nil
		}
	}
	s.log.Info().Int("count", s.count).Msg("simulated requests submitted")
	return nil
}

type requestQueue interface {
	PopRequest(ctx context.Context, queueKey string, timeout time.Duration) (models.Request, error)
}

// QueueSource consumes requests from a Redis list.
type QueueSource struct {
	queue   requestQueue
	key     string
	poll    time.Duration
	backoff time.Duration
	log     zerolog.Logger
}

func NewQueueSource(queue requestQueue, key string, log zerolog.Logger) *QueueSource {
	if key == "" {
		key = DefaultRequestQueue
	}
	return &QueueSource{
		queue:   queue,
		key:     key,
		poll:    5 * time.Second,
		backoff: time.Second,
		log:     log.With().Str("component", "queue_source").Str("queue", key).Logger(),
	}
}

func (s *QueueSource) Run(ctx context.Context, submit Submitter) error {
	s.log.Info().Msg("consuming request queue")
	for {
		if ctx.Err() != nil {
			return nil
		}
		req, err := s.queue.PopRequest(ctx, s.key, s.poll)
		if err != nil {
			if IsEmptyQueue(err) {
				continue // Timeout, no request available
			}
			if ctx.Err() != nil {
				return nil
			}
			s.log.Error().Err(err).Msg("error reading from queue")
			select {
			case <-time.After(s.backoff):
			case <-ctx.Done():
				return nil
			}
			continue
		}

		if _, _, err := submit.OnRequest(ctx, req); err != nil {
			if errors.Is(err, ErrDispatcherStopped) {
				return nil
			}
			s.log.Error().Err(err).Msg("failed to submit queued request")
		}
	}
}
