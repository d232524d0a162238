package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWriter struct {
	failures int
	calls    int
	written  []kafka.Message
	closed   bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.calls++
	if w.calls <= w.failures {
		return errors.New("leader not available")
	}
	w.written = append(w.written, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func testPublisher(w *fakeWriter, attempts int) *KafkaPublisher {
	p := newKafkaPublisher(w, KafkaConfig{MaxAttempts: attempts})
	p.backoff = time.Millisecond
	return p
}

func TestNew_EncodesPayload(t *testing.T) {
	at := time.Date(2025, time.March, 3, 9, 0, 0, 0, time.UTC)
	e, err := New(LeadCreated, "lead-1", at, map[string]string{"broker_id": "ana"})

	require.NoError(t, err)
	assert.NotEmpty(t, e.ID)
	assert.Equal(t, LeadCreated, e.Type)
	assert.JSONEq(t, `{"broker_id":"ana"}`, string(e.Payload))
}

func TestKafkaPublisher_WritesKeyedJSON(t *testing.T) {
	w := &fakeWriter{}
	p := testPublisher(w, 3)
	e, err := New(DistributionConfirmed, "run-1", time.Now(), map[string]int{"stock_a": 5})
	require.NoError(t, err)

	require.NoError(t, p.Publish(context.Background(), e))

	require.Len(t, w.written, 1)
	msg := w.written[0]
	assert.Equal(t, "run-1", string(msg.Key))
	assert.Equal(t, "event_type", msg.Headers[0].Key)

	var decoded Event
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, e.ID, decoded.ID)
	assert.Equal(t, DistributionConfirmed, decoded.Type)
}

func TestKafkaPublisher_RetriesThenSucceeds(t *testing.T) {
	w := &fakeWriter{failures: 2}
	p := testPublisher(w, 3)

	err := p.Publish(context.Background(), Event{Type: CycleClosed, Key: "c"})

	require.NoError(t, err)
	assert.Equal(t, 3, w.calls)
}

func TestKafkaPublisher_GivesUp(t *testing.T) {
	w := &fakeWriter{failures: 10}
	p := testPublisher(w, 2)

	err := p.Publish(context.Background(), Event{Type: CycleClosed, Key: "c"})

	require.Error(t, err)
	assert.Equal(t, 2, w.calls)
	assert.Contains(t, err.Error(), "leader not available")
}

func TestKafkaPublisher_Close(t *testing.T) {
	w := &fakeWriter{}
	require.NoError(t, testPublisher(w, 1).Close())
	assert.True(t, w.closed)
}

func TestNewKafkaPublisher_RequiresBrokersAndTopic(t *testing.T) {
	_, err := NewKafkaPublisher(KafkaConfig{Topic: "t"})
	assert.Error(t, err)
	_, err = NewKafkaPublisher(KafkaConfig{Brokers: []string{"localhost:9092"}})
	assert.Error(t, err)
}

func TestRecorder(t *testing.T) {
	var r Recorder
	var p Publisher = &r

	require.NoError(t, p.Publish(context.Background(), Event{Type: LeadCreated}))
	require.NoError(t, p.Publish(context.Background(), Event{Type: CycleClosed}))

	assert.Len(t, r.Events(), 2)
	assert.Len(t, r.OfType(CycleClosed), 1)
	assert.NoError(t, Nop{}.Publish(context.Background(), Event{}))
}
