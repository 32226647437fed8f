package events

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublisher_NilSafe(t *testing.T) {
	var p *Publisher
	p.Publish(SubjectReviewChanged, "review.created", "u1", map[string]any{"anime_id": "a1"})
	if err := p.EnsureStream(context.Background()); err != nil {
		t.Fatalf("nil publisher EnsureStream: %v", err)
	}
}

func TestPublisher_NoJetStreamIsNoop(t *testing.T) {
	p := New(nil, nil)
	p.Publish(SubjectAnimeViewed, "anime.viewed", "", nil)
	if err := p.EnsureStream(context.Background()); err != nil {
		t.Fatalf("stub EnsureStream: %v", err)
	}
}

func TestEventMessage(t *testing.T) {
	ev := NewEvent("review.created", "u1", map[string]any{"anime_id": "a1"})
	require.NotEmpty(t, ev.EventID)

	msg, err := ev.Message(SubjectReviewChanged)
	require.NoError(t, err)
	assert.Equal(t, SubjectReviewChanged, msg.Subject)
	assert.Equal(t, ev.EventID, msg.Header.Get(nats.MsgIdHdr))

	var got Event
	require.NoError(t, json.Unmarshal(msg.Data, &got))
	assert.Equal(t, "review.created", got.EventName)
	assert.Equal(t, "u1", got.UserID)
	assert.Equal(t, "a1", got.Properties["anime_id"])
}

func TestEventMessage_Unencodable(t *testing.T) {
	_, err := NewEvent("x", "", map[string]any{"bad": make(chan int)}).Message("catalog.x")
	assert.Error(t, err)
}
