package service

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/prismsocial/prism-server/internal/domain"
)

// SignalService fans out change notifications over redis pub/sub.
type SignalService struct {
	rdb *redis.Client
}

func NewSignalService(redisClient *redis.Client) *SignalService {
	return &SignalService{
		rdb: redisClient,
	}
}

// Publish sends one event, fire-and-forget from the caller's view.
func (s *SignalService) Publish(ctx context.Context, channel string, event domain.Event) error {

	jsonstr, err := json.Marshal(event)
	if err != nil {
		return err
	}

	err = s.rdb.Publish(ctx, channel, jsonstr).Err()
	if err != nil {
		return err
	}

	return nil
}

// Realtime bridges a websocket session to the pub/sub stream. Library
// IDs arriving on request replace the current subscription set;
// matching events go out on response until the context ends.
func (s *SignalService) Realtime(ctx context.Context, request <-chan []string, response chan<- domain.Event) {

	pubsub := s.rdb.Subscribe(ctx)
	defer pubsub.Close()

	var subscribed []string
	ch := pubsub.Channel()

	for {
		select {
		case <-ctx.Done():
			return
		case libraries, ok := <-request:
			if !ok {
				return
			}

			if len(subscribed) > 0 {
				if err := pubsub.Unsubscribe(ctx, subscribed...); err != nil {
					slog.Error(
						"Failed to unsubscribe",
						slog.String("error", err.Error()),
						slog.String("module", "signal"),
					)
				}
			}

			subscribed = make([]string, 0, len(libraries))
			for _, lib := range libraries {
				subscribed = append(subscribed, domain.EventChannelPrefix+lib)
			}

			if len(subscribed) > 0 {
				if err := pubsub.Subscribe(ctx, subscribed...); err != nil {
					slog.Error(
						"Failed to subscribe",
						slog.String("error", err.Error()),
						slog.String("module", "signal"),
					)
				}
			}
		case msg, ok := <-ch:
			if !ok {
				return
			}

			var event domain.Event
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				slog.Error(
					"Failed to decode event",
					slog.String("error", err.Error()),
					slog.String("module", "signal"),
				)
				continue
			}

			select {
			case response <- event:
			case <-ctx.Done():
				return
			}
		}
	}
}
