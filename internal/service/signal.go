package service

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/civicworks/civicd/internal/domain"
)

const eventChannel = "civicd:events"

// SignalService fans issue lifecycle events out to realtime
// subscribers through redis pub/sub.
type SignalService struct {
	rdb *redis.Client
}

func NewSignalService(redisClient *redis.Client) *SignalService {
	return &SignalService{
		rdb: redisClient,
	}
}

func (s *SignalService) Publish(ctx context.Context, event domain.Event) error {

	jsonstr, err := json.Marshal(event)
	if err != nil {
		return err
	}

	err = s.rdb.Publish(ctx, eventChannel, jsonstr).Err()
	if err != nil {
		return err
	}

	return nil
}

// Realtime forwards events matching the subscribed prefixes to output
// until ctx is done or input closes. Prefix updates arrive on input.
func (s *SignalService) Realtime(ctx context.Context, input <-chan []string, output chan<- domain.Event) {
	sub := s.rdb.Subscribe(ctx, eventChannel)
	defer sub.Close()

	ch := sub.Channel()
	var prefixes []string

	for {
		select {
		case <-ctx.Done():
			return
		case next, ok := <-input:
			if !ok {
				return
			}
			prefixes = next
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var event domain.Event
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				continue
			}
			if !matches(event, prefixes) {
				continue
			}
			select {
			case output <- event:
			case <-ctx.Done():
				return
			}
		}
	}
}

func matches(event domain.Event, prefixes []string) bool {
	for _, p := range prefixes {
		if p == "issues" || strings.HasPrefix(event.Prefix(), p) {
			return true
		}
	}
	return false
}
