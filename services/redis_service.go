package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-xray-sdk-go/xray"
	"github.com/redis/go-redis/v9"

	"agent-runner-server/models"
)

const (
	DefaultRequestQueue   = "agent_requests"
	DefaultOutcomeChannel = "agent_outcomes"
)

type RedisService struct {
	client         *redis.Client
	outcomeChannel string
}

func NewRedisService(host string, port int, outcomeChannel string) *RedisService {
	client := redis.NewClient(&redis.Options{
		Addr: fmt.Sprintf("%s:%d", host, port),
	})
	if outcomeChannel == "" {
		outcomeChannel = DefaultOutcomeChannel
	}
	return &RedisService{client: client, outcomeChannel: outcomeChannel}
}

// PushRequest appends a request to the given queue
func (r *RedisService) PushRequest(ctx context.Context, queueKey string, req models.Request) error {
	return capture(ctx, "Redis.LPush", func(ctx1 context.Context) error {
		jsonData, err := json.Marshal(req)
		if err != nil {
			return err
		}
		if seg := xray.GetSegment(ctx1); seg != nil {
			seg.AddMetadata("redis.queue_key", queueKey)
			seg.AddMetadata("redis.operation", "LPUSH")
		}
		return r.client.LPush(ctx1, queueKey, string(jsonData)).Err()
	})
}

// PopRequest blocks up to timeout for the next request on the queue.
// It returns redis.Nil when the queue stayed empty.
func (r *RedisService) PopRequest(ctx context.Context, queueKey string, timeout time.Duration) (models.Request, error) {
	result, err := r.client.BRPop(ctx, timeout, queueKey).Result()
	if err != nil {
		return models.Request{}, err
	}
	// result[0] is the queue key, result[1] is the data
	var req models.Request
	if err := json.Unmarshal([]byte(result[1]), &req); err != nil {
		return models.Request{}, fmt.Errorf("decode request: %w", err)
	}
	return req, nil
}

// PublishOutcome forwards a worker report to subscribers. Nothing is stored.
func (r *RedisService) PublishOutcome(ctx context.Context, report models.WorkerReport) error {
	return capture(ctx, "Redis.Publish", func(ctx1 context.Context) error {
		jsonData, err := json.Marshal(report)
		if err != nil {
			return err
		}
		if seg := xray.GetSegment(ctx1); seg != nil {
			seg.AddMetadata("redis.channel", r.outcomeChannel)
			seg.AddMetadata("redis.operation", "PUBLISH")
		}
		return r.client.Publish(ctx1, r.outcomeChannel, string(jsonData)).Err()
	})
}

// Ping checks Redis connection
func (r *RedisService) Ping(ctx context.Context) error {
	return capture(ctx, "Redis.Ping", func(ctx1 context.Context) error {
		if seg := xray.GetSegment(ctx1); seg != nil {
			seg.AddMetadata("redis.operation", "PING")
		}
		return r.client.Ping(ctx1).Err()
	})
}

func (r *RedisService) Close() error {
	return r.client.Close()
}

// IsEmptyQueue reports whether err only signals a BRPOP timeout.
func IsEmptyQueue(err error) bool {
	return errors.Is(err, redis.Nil)
}
