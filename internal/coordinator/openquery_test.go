package coordinator

import (
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenQueryClosesAfterEnoughResponses(t *testing.T) {
	h := NewOpenQueryHandler()
	id, done := h.Open(2, nil, nil, time.Now().Add(time.Minute))

	_, ok := h.AddResponse(id, ReplicaResponse{From: net.ParseIP("127.0.0.1")})
	assert.False(t, ok)

	_, ok = h.AddResponse(id, ReplicaResponse{From: net.ParseIP("127.0.0.2")})
	assert.True(t, ok)

	select {
	case <-done:
	default:
		t.Fatal("expected done to be closed")
	}

	out, ok := h.Outcome(id)
	require.True(t, ok)
	assert.Len(t, out.Responses, 2)
	assert.NoError(t, out.Err)
	assert.Equal(t, 0, h.Pending())
}

func TestOpenQueryFailsWhenErrorsPrecludeSuccess(t *testing.T) {
	h := NewOpenQueryHandler()
	id, done := h.Open(3, nil, nil, time.Now().Add(time.Minute))

	_, ok := h.AddResponse(id, ReplicaResponse{})
	assert.False(t, ok)

	h.Fail(id, errors.New("replica down"))
	select {
	case <-done:
		t.Fatal("one error with two still possible must not close yet")
	default:
	}

	h.Fail(id, errors.New("replica down again"))
	select {
	case <-done:
	default:
		t.Fatal("expected done to be closed after enough errors")
	}

	out, ok := h.Outcome(id)
	require.True(t, ok)
	assert.Error(t, out.Err)
}

func TestOpenQueryExpiresPastDeadline(t *testing.T) {
	h := NewOpenQueryHandler()
	id, done := h.Open(1, nil, nil, time.Now().Add(-time.Second))

	expired := h.Expire(time.Now())
	assert.Equal(t, []int32{id}, expired)

	select {
	case <-done:
	default:
		t.Fatal("expected done to be closed")
	}
	out, ok := h.Outcome(id)
	require.True(t, ok)
	assert.Error(t, out.Err)
}

func TestOpenQueryExpireLeavesFreshQueriesAlone(t *testing.T) {
	h := NewOpenQueryHandler()
	_, _ = h.Open(1, nil, nil, time.Now().Add(time.Minute))

	expired := h.Expire(time.Now())
	assert.Empty(t, expired)
	assert.Equal(t, 1, h.Pending())
}

func TestOpenQueryIDsAreNeverReused(t *testing.T) {
	h := NewOpenQueryHandler()
	id1, done1 := h.Open(1, nil, nil, time.Now().Add(time.Minute))
	h.AddResponse(id1, ReplicaResponse{})
	<-done1

	id2, _ := h.Open(1, nil, nil, time.Now().Add(time.Minute))
	assert.NotEqual(t, id1, id2)
}
