package queue

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/OFFIS-RIT/kiwi/entitygraph/pkg/common"

	"github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type published struct {
	exchange string
	key      string
	msg      amqp091.Publishing
}

type fakeChannel struct {
	mu         sync.Mutex
	published  []published
	publishErr error
	deliveries chan amqp091.Delivery
}

func (f *fakeChannel) PublishWithContext(_ context.Context, exchange, key string, _, _ bool, msg amqp091.Publishing) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.publishErr != nil {
		return f.publishErr
	}
	f.published = append(f.published, published{exchange: exchange, key: key, msg: msg})
	return nil
}

func (f *fakeChannel) Qos(int, int, bool) error { return nil }

func (f *fakeChannel) Consume(string, string, bool, bool, bool, bool, amqp091.Table) (<-chan amqp091.Delivery, error) {
	return f.deliveries, nil
}

func (f *fakeChannel) sent() []published {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]published(nil), f.published...)
}

type fakeAcker struct {
	mu      sync.Mutex
	acks    int
	nacks   int
	requeue bool
}

func (a *fakeAcker) Ack(uint64, bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.acks++
	return nil
}

func (a *fakeAcker) Nack(_ uint64, _ bool, requeue bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.nacks++
	a.requeue = requeue
	return nil
}

func (a *fakeAcker) Reject(uint64, bool) error { return nil }

func (a *fakeAcker) counts() (int, int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.acks, a.nacks
}

func delivery(t *testing.T, acker *fakeAcker, body any, headers amqp091.Table) amqp091.Delivery {
	t.Helper()
	var b []byte
	switch v := body.(type) {
	case string:
		b = []byte(v)
	default:
		var err error
		b, err = json.Marshal(v)
		require.NoError(t, err)
	}
	return amqp091.Delivery{
		Acknowledger: acker,
		Body:         b,
		Headers:      headers,
		RoutingKey:   common.EventEntityCreated,
		ContentType:  "application/json",
	}
}

func TestDecodeEvent(t *testing.T) {
	acker := &fakeAcker{}
	event, err := DecodeEvent(delivery(t, acker, `{"type":"entities.merged","project_id":"7","entity_ids":["a","b"]}`, nil))
	require.NoError(t, err)
	assert.Equal(t, common.EventEntitiesMerged, event.Type)
	assert.Equal(t, "7", event.ProjectID)
	assert.Equal(t, []string{"a", "b"}, event.EntityIDs)

	event, err = DecodeEvent(delivery(t, acker, `{"project_id":"7"}`, nil))
	require.NoError(t, err)
	assert.Equal(t, common.EventEntityCreated, event.Type)

	_, err = DecodeEvent(delivery(t, acker, `{"type":"entity.created"}`, nil))
	assert.ErrorIs(t, err, ErrMalformedEvent)
	_, err = DecodeEvent(delivery(t, acker, `not json`, nil))
	assert.ErrorIs(t, err, ErrMalformedEvent)
}

func TestHandleForwardsEvent(t *testing.T) {
	ch := &fakeChannel{}
	events := make(chan common.Event, 1)
	c := NewConsumer(ch, "graph", 3, ChannelHandler(events))

	acker := &fakeAcker{}
	c.Handle(context.Background(), delivery(t, acker, common.Event{Type: common.EventDocumentDeleted, ProjectID: "1"}, nil))

	got := <-events
	assert.Equal(t, common.EventDocumentDeleted, got.Type)
	acks, nacks := acker.counts()
	assert.Equal(t, 1, acks)
	assert.Zero(t, nacks)
	assert.Empty(t, ch.sent())
}

func TestHandleMalformedGoesToDLQ(t *testing.T) {
	ch := &fakeChannel{}
	c := NewConsumer(ch, "graph", 3, func(context.Context, common.Event) error {
		t.Fatal("handler must not be called")
		return nil
	})

	acker := &fakeAcker{}
	c.Handle(context.Background(), delivery(t, acker, `{`, nil))

	sent := ch.sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "graph_dlq", sent[0].key)
	assert.Equal(t, "", sent[0].exchange)
	acks, _ := acker.counts()
	assert.Equal(t, 1, acks)
}

func TestHandleFailureRetriesThenDeadLetters(t *testing.T) {
	ch := &fakeChannel{}
	c := NewConsumer(ch, "graph", 2, func(context.Context, common.Event) error {
		return errors.New("engine busy")
	})
	event := common.Event{Type: common.EventEntityCreated, ProjectID: "1"}

	c.Handle(context.Background(), delivery(t, &fakeAcker{}, event, nil))
	c.Handle(context.Background(), delivery(t, &fakeAcker{}, event, amqp091.Table{"x-retries": int32(1)}))
	c.Handle(context.Background(), delivery(t, &fakeAcker{}, event, amqp091.Table{"x-retries": int64(2)}))

	sent := ch.sent()
	require.Len(t, sent, 3)
	assert.Equal(t, "graph_retry", sent[0].key)
	assert.Equal(t, int32(1), sent[0].msg.Headers["x-retries"])
	assert.Equal(t, "graph_retry", sent[1].key)
	assert.Equal(t, int32(2), sent[1].msg.Headers["x-retries"])
	assert.Equal(t, "graph_dlq", sent[2].key)
}

func TestHandlePublishFailureRequeues(t *testing.T) {
	ch := &fakeChannel{publishErr: errors.New("channel closed")}
	c := NewConsumer(ch, "graph", 2, nil)

	acker := &fakeAcker{}
	c.Handle(context.Background(), delivery(t, acker, `[]`, nil))
	acks, nacks := acker.counts()
	assert.Zero(t, acks)
	assert.Equal(t, 1, nacks)
	assert.True(t, acker.requeue)
}

func TestHandleDuringShutdownRequeues(t *testing.T) {
	ch := &fakeChannel{}
	c := NewConsumer(ch, "graph", 2, ChannelHandler(make(chan common.Event)))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	acker := &fakeAcker{}
	c.Handle(ctx, delivery(t, acker, common.Event{Type: common.EventEntityCreated, ProjectID: "1"}, nil))
	_, nacks := acker.counts()
	assert.Equal(t, 1, nacks)
	assert.Empty(t, ch.sent())
}

func TestRunConsumesUntilCanceled(t *testing.T) {
	ch := &fakeChannel{deliveries: make(chan amqp091.Delivery)}
	events := make(chan common.Event, 2)
	c := NewConsumer(ch, "graph", 2, ChannelHandler(events))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error)
	go func() { done <- c.Run(ctx) }()

	ch.deliveries <- delivery(t, &fakeAcker{}, common.Event{Type: common.EventEntityCreated, ProjectID: "1"}, nil)
	select {
	case got := <-events:
		assert.Equal(t, "1", got.ProjectID)
	case <-time.After(time.Second):
		t.Fatal("event not delivered")
	}

	cancel()
	assert.NoError(t, <-done)

	closed := &fakeChannel{deliveries: make(chan amqp091.Delivery)}
	close(closed.deliveries)
	assert.Error(t, NewConsumer(closed, "graph", 1, nil).Run(context.Background()))
}

func TestSuperviseReconnectsAfterClosedChannel(t *testing.T) {
	closed := &fakeChannel{deliveries: make(chan amqp091.Delivery)}
	close(closed.deliveries)
	live := &fakeChannel{deliveries: make(chan amqp091.Delivery)}
	events := make(chan common.Event, 1)

	var mu sync.Mutex
	dials, connects, closes := 0, 0, 0
	dial := func(context.Context) (*Session, error) {
		mu.Lock()
		defer mu.Unlock()
		dials++
		var ch *fakeChannel
		switch dials {
		case 1:
			return nil, errors.New("broker down")
		case 2:
			ch = closed
		default:
			ch = live
		}
		return &Session{
			Consumer: NewConsumer(ch, "graph", 1, ChannelHandler(events)),
			Close: func() {
				mu.Lock()
				closes++
				mu.Unlock()
			},
		}, nil
	}
	onConnect := func() {
		mu.Lock()
		connects++
		mu.Unlock()
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		Supervise(ctx, dial, nil, onConnect)
		close(done)
	}()

	live.deliveries <- delivery(t, &fakeAcker{}, common.Event{Type: common.EventEntityCreated, ProjectID: "7"}, nil)
	select {
	case got := <-events:
		assert.Equal(t, "7", got.ProjectID)
	case <-time.After(time.Second):
		t.Fatal("event not delivered after reconnect")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("supervisor did not stop")
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 3, dials)
	assert.Equal(t, 2, connects)
	assert.Equal(t, 2, closes)
}

func TestSuperviseStopsWithContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	called := false
	Supervise(ctx, func(context.Context) (*Session, error) {
		called = true
		return nil, errors.New("unreachable")
	}, nil, nil)
	assert.False(t, called)
}

func TestPublishEvent(t *testing.T) {
	ch := &fakeChannel{}
	err := PublishEvent(context.Background(), ch, "graph_events", common.Event{
		Type:      common.EventEntitiesMerged,
		ProjectID: "3",
		EntityIDs: []string{"a", "b"},
	})
	require.NoError(t, err)

	sent := ch.sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "graph_events", sent[0].exchange)
	assert.Equal(t, common.EventEntitiesMerged, sent[0].key)
	assert.Equal(t, "application/json", sent[0].msg.ContentType)
	assert.Len(t, sent[0].msg.MessageId, 21)

	var decoded common.Event
	require.NoError(t, json.Unmarshal(sent[0].msg.Body, &decoded))
	assert.Equal(t, "3", decoded.ProjectID)
	assert.False(t, decoded.OccurredAt.IsZero())

	assert.Error(t, PublishEvent(context.Background(), ch, "graph_events", common.Event{Type: common.EventEntityCreated}))
}

func TestRetries(t *testing.T) {
	assert.Equal(t, 0, Retries(amqp091.Delivery{}))
	assert.Equal(t, 3, Retries(amqp091.Delivery{Headers: amqp091.Table{"x-retries": 3}}))
	assert.Equal(t, 0, Retries(amqp091.Delivery{Headers: amqp091.Table{"x-retries": "3"}}))
}
