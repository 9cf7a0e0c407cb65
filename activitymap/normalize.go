// Package activitymap turns auth activity events into flat audit records
// and fans them out to several sinks.
package activitymap

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/goliatone/go-folio-auth"
)

// MetadataKeyActorType carries auth.ActorRef.Type in the record metadata
const MetadataKeyActorType = "actor_type"

const (
	defaultChannel    = "auth"
	defaultObjectType = "user"
	defaultActorID    = "anonymous"
)

// Record is the audit shape written to logs
type Record struct {
	ActorID    string         `json:"actor_id"`
	Verb       string         `json:"verb"`
	ObjectType string         `json:"object_type,omitempty"`
	ObjectID   string         `json:"object_id,omitempty"`
	Channel    string         `json:"channel"`
	Provider   string         `json:"provider,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}

// Normalize flattens event. The provider metadata entry is lifted into
// Record.Provider.
func Normalize(event auth.ActivityEvent) Record {
	occurredAt := event.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now().UTC()
	}

	metadata := cloneMap(event.Metadata)
	provider, _ := metadata["provider"].(string)
	delete(metadata, "provider")

	if actorType := strings.TrimSpace(event.Actor.Type); actorType != "" {
		if _, exists := metadata[MetadataKeyActorType]; !exists {
			metadata[MetadataKeyActorType] = actorType
		}
	}
	if len(metadata) == 0 {
		metadata = nil
	}

	return Record{
		ActorID:    firstNonEmpty(strings.TrimSpace(event.Actor.ID), strings.TrimSpace(event.UserID), defaultActorID),
		Verb:       string(event.EventType),
		ObjectType: defaultObjectType,
		ObjectID:   strings.TrimSpace(event.UserID),
		Channel:    defaultChannel,
		Provider:   provider,
		Metadata:   metadata,
		OccurredAt: occurredAt,
	}
}

// LogSink writes every event to logger at info level
type LogSink struct {
	logger auth.Logger
}

// NewLogSink creates a LogSink
func NewLogSink(logger auth.Logger) *LogSink {
	return &LogSink{logger: logger}
}

// Record implements auth.ActivitySink
func (s *LogSink) Record(_ context.Context, event auth.ActivityEvent) error {
	if s.logger == nil {
		return nil
	}

	r := Normalize(event)
	args := []any{
		"verb", r.Verb,
		"actor_id", r.ActorID,
		"object_id", r.ObjectID,
		"occurred_at", r.OccurredAt.Format(time.RFC3339),
	}
	if r.Provider != "" {
		args = append(args, "provider", r.Provider)
	}
	for k, v := range r.Metadata {
		args = append(args, k, v)
	}

	s.logger.Info("auth activity", args...)
	return nil
}

// Fanout records each event on every sink and joins their errors
func Fanout(sinks ...auth.ActivitySink) auth.ActivitySink {
	return auth.ActivitySinkFunc(func(ctx context.Context, event auth.ActivityEvent) error {
		var errs []error
		for _, sink := range sinks {
			if sink == nil {
				continue
			}
			if err := sink.Record(ctx, event); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	})
}

func cloneMap(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for key, value := range in {
		out[key] = value
	}
	return out
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if value != "" {
			return value
		}
	}
	return ""
}
