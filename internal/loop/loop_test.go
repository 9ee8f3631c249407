package loop

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestAfterFires(t *testing.T) {
	l := New()
	select {
	case <-l.After(int64(5 * time.Millisecond)):
	case <-time.After(time.Second):
		t.Fatal("After channel never fired")
	}
}

func TestSpawnRunsConcurrently(t *testing.T) {
	l := New()
	done := make(chan struct{})
	l.Spawn(func() { close(done) })
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("spawned function never ran")
	}
	require.NotNil(t, l)
}
