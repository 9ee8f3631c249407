// Package loop provides the worker-process implementation of app.Loop,
// the opaque scheduler handle exposed to applications as scope.pagi.loop.
// Go's runtime is the scheduler; this type only gives applications a
// narrow, intentional surface onto it (timers and a spawn point) instead
// of letting them reach for goroutines and time.After directly, so every
// application concurrency primitive stays attributable to one worker.
package loop

import "time"

// Loop implements app.Loop.
type Loop struct{}

// New returns a ready-to-use Loop. It holds no state: every method is a
// thin, intentional wrapper over the Go runtime primitive it replaces.
func New() *Loop { return &Loop{} }

// After returns a channel that fires once after d (nanoseconds), mirroring
// time.After but expressed through the opaque scheduler handle applications
// receive instead of a direct time.After call.
func (l *Loop) After(d int64) <-chan struct{} {
	ch := make(chan struct{}, 1)
	time.AfterFunc(time.Duration(d), func() { ch <- struct{}{} })
	return ch
}

// Spawn runs fn on a new goroutine, never inline, so a slow caller never
// stalls whatever handed it the scope.
func (l *Loop) Spawn(fn func()) {
	go fn()
}
