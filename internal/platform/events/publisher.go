// Package events provides a fire-and-forget NATS JetStream publisher for
// catalog domain events.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/example/animefan/internal/platform/logging"
)

const (
	StreamName = "CATALOG_EVENTS"

	SubjectAnimeViewed      = "catalog.anime.viewed"
	SubjectAnimeChanged     = "catalog.anime.changed"
	SubjectReviewChanged    = "catalog.review.changed"
	SubjectRelationChanged  = "catalog.relation.changed"
	SubjectStatsInvalidate  = "catalog.stats.invalidate"
	SubjectReconcileSummary = "catalog.reconcile.completed"
)

// Event is the envelope on every catalog.* subject.
type Event struct {
	EventID    string         `json:"event_id"`
	EventName  string         `json:"event_name"`
	UserID     string         `json:"user_id,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
	Properties map[string]any `json:"properties,omitempty"`
}

// Publisher is safe to use as a nil pointer or zero value; both drop events.
type Publisher struct {
	js  nats.JetStreamContext
	log *zap.Logger
}

func New(js nats.JetStreamContext, log *zap.Logger) *Publisher {
	return &Publisher{js: js, log: logging.OrNop(log).Named("events")}
}

// EnsureStream creates the catalog event stream, or widens its subjects.
func (p *Publisher) EnsureStream(_ context.Context) error {
	if p == nil || p.js == nil {
		return nil
	}
	info, err := p.js.StreamInfo(StreamName)
	if err == nil {
		for _, s := range info.Config.Subjects {
			if s == "catalog.>" {
				return nil
			}
		}
		cfg := info.Config
		cfg.Subjects = []string{"catalog.>"}
		_, err := p.js.UpdateStream(&cfg)
		return err
	}
	if !errors.Is(err, nats.ErrStreamNotFound) {
		return err
	}
	_, err = p.js.AddStream(&nats.StreamConfig{
		Name:     StreamName,
		Subjects: []string{"catalog.>"},
		Storage:  nats.FileStorage,
		MaxAge:   7 * 24 * time.Hour,
		// Dedup window for retried publishes carrying the same event id.
		Duplicates: 2 * time.Minute,
	})
	return err
}

// NewEvent builds the envelope for one occurrence.
func NewEvent(eventName, userID string, props map[string]any) Event {
	return Event{
		EventID:    uuid.NewString(),
		EventName:  eventName,
		UserID:     userID,
		OccurredAt: time.Now().UTC(),
		Properties: props,
	}
}

// Message encodes ev for subject. The event id doubles as the JetStream
// dedup id, so a retried publish is stored once.
func (ev Event) Message(subject string) (*nats.Msg, error) {
	data, err := json.Marshal(ev)
	if err != nil {
		return nil, err
	}
	msg := nats.NewMsg(subject)
	msg.Data = data
	msg.Header.Set(nats.MsgIdHdr, ev.EventID)
	return msg, nil
}

// Publish sends an event asynchronously. Failures are logged and never
// surface to the caller.
func (p *Publisher) Publish(subject, eventName, userID string, props map[string]any) {
	if p == nil || p.js == nil {
		return
	}
	msg, err := NewEvent(eventName, userID, props).Message(subject)
	if err != nil {
		p.log.Warn("event encode failed", zap.String("event", eventName), zap.Error(err))
		return
	}
	if _, err := p.js.PublishMsgAsync(msg); err != nil {
		p.log.Warn("event publish failed", zap.String("subject", subject), zap.String("event", eventName), zap.Error(err))
	}
}
