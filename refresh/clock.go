package refresh

import (
	"sync/atomic"
	"time"
)

// Timer is a pending AfterFunc call.
type Timer interface {
	Stop() bool
}

// Clock is the time source the scheduler uses.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

type systemClock struct{}

// SystemClock returns a Clock backed by the time package.
func SystemClock() Clock {
	return systemClock{}
}

func (systemClock) Now() time.Time {
	return time.Now()
}

func (systemClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// AppState reports whether the host application is in the background.
type AppState interface {
	IsBackground() bool
}

// ManualAppState is an AppState driven by the host.
type ManualAppState struct {
	background atomic.Bool
}

func (m *ManualAppState) IsBackground() bool {
	return m.background.Load()
}

func (m *ManualAppState) SetBackground(background bool) {
	m.background.Store(background)
}

// foreground is the AppState used when none is supplied.
type foreground struct{}

func (foreground) IsBackground() bool { return false }
