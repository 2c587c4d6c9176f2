package groutine_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/srg/joyc/internal/groutine"
)

func TestGo(t *testing.T) {
	// GOAL: Verify named goroutines run with their name in the context
	//
	// TEST SCENARIO: Start a goroutine → it runs → Name resolves inside it

	nameCh := make(chan string, 1)
	groutine.Go(context.Background(), "telemetry-drain", func(ctx context.Context) {
		nameCh <- groutine.Name(ctx)
	})

	select {
	case name := <-nameCh:
		assert.Equal(t, "telemetry-drain", name, "goroutine MUST see its own name")
	case <-time.After(time.Second):
		t.Fatal("goroutine MUST run")
	}
}

func TestGo_NilParent(t *testing.T) {
	// GOAL: Verify a nil parent context falls back to background
	//
	// TEST SCENARIO: Start with nil parent → fn receives a live context

	ctxCh := make(chan context.Context, 1)
	groutine.Go(nil, "orphan", func(ctx context.Context) {
		ctxCh <- ctx
	})

	select {
	case ctx := <-ctxCh:
		require.NotNil(t, ctx, "fn MUST receive a context")
		assert.NoError(t, ctx.Err(), "fallback context MUST be live")
	case <-time.After(time.Second):
		t.Fatal("goroutine MUST run")
	}
}

func TestGo_ParentCancelPropagates(t *testing.T) {
	// GOAL: Verify the parent context reaches the goroutine

	parent, cancel := context.WithCancel(context.Background())
	doneCh := make(chan struct{})
	groutine.Go(parent, "watcher", func(ctx context.Context) {
		<-ctx.Done()
		close(doneCh)
	})

	cancel()

	select {
	case <-doneCh:
	case <-time.After(time.Second):
		t.Fatal("goroutine MUST observe parent cancellation")
	}
}

func TestName_OutsideGo(t *testing.T) {
	assert.Empty(t, groutine.Name(context.Background()), "plain context MUST have no name")
	assert.Empty(t, groutine.Name(nil), "nil context MUST be safe")
}
