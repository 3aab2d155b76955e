package events

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestPublishReachesTypedAndWildcardHandlers(t *testing.T) {
	d := NewInMemoryDispatcher(zaptest.NewLogger(t))

	var typed, wildcard []EventType
	d.Subscribe(EventTicketClosed, func(_ context.Context, e Event) error {
		typed = append(typed, e.Type)
		return nil
	})
	d.Subscribe(AllEvents, func(_ context.Context, e Event) error {
		wildcard = append(wildcard, e.Type)
		return nil
	})

	require.NoError(t, d.Publish(context.Background(), New(EventTicketClosed, "t-1", "u-1", time.Now(), nil)))
	require.NoError(t, d.Publish(context.Background(), New(EventAuthLogin, "", "u-1", time.Now(), nil)))

	assert.Equal(t, []EventType{EventTicketClosed}, typed)
	assert.Equal(t, []EventType{EventTicketClosed, EventAuthLogin}, wildcard)
}

func TestFailingHandlerDoesNotStopOthers(t *testing.T) {
	d := NewInMemoryDispatcher(zaptest.NewLogger(t))
	called := false
	d.Subscribe(EventTicketCreated, func(context.Context, Event) error { return errors.New("boom") })
	d.Subscribe(EventTicketCreated, func(context.Context, Event) error {
		called = true
		return nil
	})

	assert.NoError(t, d.Publish(context.Background(), New(EventTicketCreated, "t-1", "u-1", time.Now(), nil)))
	assert.True(t, called)
}

func TestNewStampsID(t *testing.T) {
	a := New(EventTicketCreated, "t-1", "u-1", time.Now(), nil)
	b := New(EventTicketCreated, "t-1", "u-1", time.Now(), nil)
	assert.NotEmpty(t, a.ID)
	assert.NotEqual(t, a.ID, b.ID)
}
