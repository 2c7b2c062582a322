package messaging

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"wallbox-service/internal/logger"
	"wallbox-service/internal/types"

	"github.com/redis/go-redis/v9"
)

const (
	StatusHash     = "wallbox"
	StatusChannel  = "wallbox"
	CommandList    = "wallbox:command"
	FaultSet       = "wallbox:fault"
	FaultStream    = "events:faults"
	faultStreamLen = 1000

	// Publishing runs under the controller lock, so a stalled server must not
	// hold it for long.
	publishTimeout = 500 * time.Millisecond
)

type Callbacks struct {
	CommandCallback func(string) error // "start", "stop", "enable", "relay:on", ...
}

type RedisClient struct {
	client    *redis.Client
	callbacks Callbacks
	logger    *logger.Logger
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

func NewRedisClient(addr string, db int, l *logger.Logger, callbacks Callbacks) *RedisClient {
	ctx, cancel := context.WithCancel(context.Background())
	return &RedisClient{
		client: redis.NewClient(&redis.Options{
			Addr:                  addr,
			DB:                    db,
			ContextTimeoutEnabled: true,
		}),
		callbacks: callbacks,
		logger:    l.WithTag("Redis"),
		ctx:       ctx,
		cancel:    cancel,
	}
}

func (r *RedisClient) Connect() error {
	r.logger.Infof("Attempting to connect to Redis at %s", r.client.Options().Addr)

	if err := r.client.Ping(r.ctx).Err(); err != nil {
		return fmt.Errorf("redis connection failed: %w", err)
	}
	r.logger.Infof("Successfully connected to Redis")
	return nil
}

// StartListening starts the operator command listener.
func (r *RedisClient) StartListening() error {
	if r.callbacks.CommandCallback == nil {
		return errors.New("no command callback registered")
	}
	r.wg.Add(1)
	go r.listCommandListener(CommandList, r.callbacks.CommandCallback)
	return nil
}

func (r *RedisClient) listCommandListener(key string, handler func(string) error) {
	defer r.wg.Done()
	r.logger.Infof("Starting list command listener for %s", key)

	for {
		// BRPOP with a short timeout so cancellation is noticed.
		result, err := r.client.BRPop(r.ctx, 5*time.Second, key).Result()
		if err != nil {
			if r.ctx.Err() != nil {
				r.logger.Infof("Context cancelled, exiting %s listener", key)
				return
			}
			if errors.Is(err, redis.Nil) {
				continue
			}
			r.logger.Warnf("Error reading from %s list: %v", key, err)
			select {
			case <-r.ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}

		if len(result) >= 2 { // BRPOP returns [key, value]
			value := result[1]
			r.logger.Debugf("Received command from %s: %s", key, value)
			if err := handler(value); err != nil {
				r.logger.Warnf("Error handling %s command %q: %v", key, value, err)
			}
		}
	}
}

// StatusFields is the hash representation of a status snapshot.
func StatusFields(s types.Status) map[string]interface{} {
	return map[string]interface{}{
		"state":           s.State.String(),
		"relay":           onOff(s.RelayEnabled),
		"enabled":         strconv.FormatBool(s.SessionEnabled),
		"pilot":           s.Pilot.String(),
		"peer-state":      s.PeerState.String(),
		"session":         s.SessionID,
		"state:timestamp": s.Timestamp.Format(time.RFC3339),
	}
}

func onOff(v bool) string {
	if v {
		return "on"
	}
	return "off"
}

// PublishStatus writes the snapshot and notifies subscribers in one pipeline.
func (r *RedisClient) PublishStatus(s types.Status) error {
	r.logger.Debugf("Publishing status: state=%s relay=%v enabled=%v", s.State, s.RelayEnabled, s.SessionEnabled)

	ctx, cancel := context.WithTimeout(r.ctx, publishTimeout)
	defer cancel()

	pipe := r.client.Pipeline()
	pipe.HSet(ctx, StatusHash, StatusFields(s))
	pipe.Publish(ctx, StatusChannel, "status")
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to publish status: %w", err)
	}
	return nil
}

// ReportFault adds or clears a fault code and records the event in the fault stream.
func (r *RedisClient) ReportFault(code int, description string, present bool) error {
	r.logger.Infof("Reporting fault %d present=%v: %s", code, present, description)

	ctx, cancel := context.WithTimeout(r.ctx, publishTimeout)
	defer cancel()

	pipe := r.client.Pipeline()
	if present {
		pipe.SAdd(ctx, FaultSet, code)
		pipe.XAdd(ctx, &redis.XAddArgs{
			Stream: FaultStream,
			MaxLen: faultStreamLen,
			Values: map[string]interface{}{
				"group":       "wallbox",
				"code":        code,
				"description": description,
				"ts":          time.Now().Unix(),
			},
		})
	} else {
		pipe.SRem(ctx, FaultSet, code)
		// Negative code marks the fault cleared.
		pipe.XAdd(ctx, &redis.XAddArgs{
			Stream: FaultStream,
			MaxLen: faultStreamLen,
			Values: map[string]interface{}{
				"group": "wallbox",
				"code":  -code,
			},
		})
	}
	pipe.Publish(ctx, StatusChannel, "fault")

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to report fault %d: %w", code, err)
	}
	return nil
}

func (r *RedisClient) Close() error {
	r.logger.Infof("Closing Redis client")
	r.cancel()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		r.logger.Infof("All Redis goroutines finished")
	case <-time.After(5 * time.Second):
		r.logger.Warnf("Timeout waiting for Redis goroutines to finish")
	}

	return r.client.Close()
}
