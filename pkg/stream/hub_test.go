package stream

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nanogov/governor/pkg/decisionlog"
	"nanogov/governor/pkg/enforce"
	"nanogov/governor/pkg/policy"
	"nanogov/governor/pkg/policy/store"
)

func receive(t *testing.T, ch chan Event) Event {
	t.Helper()
	select {
	case evt := <-ch:
		return evt
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for event")
		return Event{}
	}
}

func TestNewEvent(t *testing.T) {
	evt := NewEvent(EventReady, map[string]string{"id": "123"})
	assert.Equal(t, EventReady, evt.Type)
	assert.NotEmpty(t, evt.At)

	var payload map[string]string
	require.NoError(t, json.Unmarshal(evt.Data, &payload))
	assert.Equal(t, "123", payload["id"])

	assert.Nil(t, NewEvent(EventReady, nil).Data)
}

func TestSubscribePublishUnsubscribe(t *testing.T) {
	h := NewHub()
	var counts []int
	h.OnSubscriberChange(func(n int) { counts = append(counts, n) })

	ch := h.Subscribe(1)
	assert.Equal(t, 1, h.Subscribers())
	h.Publish(NewEvent(EventReady, nil))
	assert.Equal(t, EventReady, receive(t, ch).Type)

	h.Unsubscribe(ch)
	h.Unsubscribe(ch)
	_, open := <-ch
	assert.False(t, open)
	assert.Equal(t, []int{1, 0}, counts)
}

func TestPublishDropsWhenBufferFull(t *testing.T) {
	h := NewHub()
	ch := h.Subscribe(1)
	defer h.Unsubscribe(ch)

	h.Publish(NewEvent("first", nil))
	h.Publish(NewEvent("second", nil))

	assert.Equal(t, "first", receive(t, ch).Type)
	select {
	case evt := <-ch:
		t.Fatalf("did not expect second event, got %q", evt.Type)
	default:
	}
	assert.Equal(t, uint64(1), h.Dropped())
}

func TestSubscribeUsesDefaultBuffer(t *testing.T) {
	h := NewHub()
	ch := h.Subscribe(0)
	defer h.Unsubscribe(ch)
	assert.Equal(t, DefaultBuffer, cap(ch))
}

func TestObserveDecision(t *testing.T) {
	h := NewHub()
	ch := h.Subscribe(4)
	defer h.Unsubscribe(ch)

	entry := decisionlog.Entry{Seq: 7, PolicyID: policy.DefaultPolicyID, RuleID: "MEM-000", Action: policy.ActionDeny, Checkpoint: policy.CheckpointRuntime}
	h.Observe(enforce.Decision{
		Checkpoint: policy.CheckpointRuntime,
		Verdict:    enforce.VerdictDeny,
		Entry:      &entry,
		Entries:    []decisionlog.Entry{entry},
		Generation: 3,
	}, nil)

	evt := receive(t, ch)
	require.Equal(t, EventDecision, evt.Type)

	var got struct {
		Checkpoint string              `json:"checkpoint"`
		Verdict    string              `json:"verdict"`
		Entries    []decisionlog.Entry `json:"entries"`
		Generation uint64              `json:"policy_generation"`
	}
	require.NoError(t, json.Unmarshal(evt.Data, &got))
	assert.Equal(t, "runtime", got.Checkpoint)
	assert.Equal(t, "deny", got.Verdict)
	assert.Equal(t, uint64(3), got.Generation)
	require.Len(t, got.Entries, 1)
	assert.Equal(t, "MEM-000", got.Entries[0].RuleID)
}

func TestObserveStoreEvent(t *testing.T) {
	h := NewHub()
	ch := h.Subscribe(4)
	defer h.Unsubscribe(ch)

	h.ObserveStoreEvent(store.Event{
		Op:       store.OpAdmit,
		PolicyID: "GOV-SEC-AA11BB22",
		Err:      errors.New("bad signature"),
		Reason:   policy.ReasonInvalidSignature,
		Active:   1,
	})

	evt := receive(t, ch)
	require.Equal(t, EventAdmission, evt.Type)
	var got AdmissionEvent
	require.NoError(t, json.Unmarshal(evt.Data, &got))
	assert.Equal(t, "admit", got.Op)
	assert.False(t, got.Accepted)
	assert.Equal(t, string(policy.ReasonInvalidSignature), got.Reason)
	assert.Equal(t, 1, got.Active)
}
