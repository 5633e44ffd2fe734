package console

import (
	"os"
	"sync"
)

// Monitor observes raw console traffic. Every byte read from or written to
// the target is forwarded to the attached monitor in the order it occurred.
//
// Monitors are observational only: no console logic depends on them, and a
// misbehaving monitor must never stall or abort the session. The Console
// delivers traffic to its monitor through a bounded queue and drops events
// if the monitor cannot keep up.
type Monitor interface {
	// TargetRead is invoked with data read from the target.
	TargetRead(data []byte)

	// TargetWrite is invoked with data written to the target.
	TargetWrite(data []byte)

	// Close releases monitor resources. The console closes its monitor
	// when the session is closed.
	Close() error
}

// Direction indicates which way monitored traffic flowed.
type Direction int

const (
	// DirRead is data read from the target
	DirRead Direction = iota
	// DirWrite is data written to the target
	DirWrite
)

// Event is one monitored chunk of console traffic.
type Event struct {
	Dir  Direction
	Data []byte
}

// monitorQueueDepth bounds the async delivery queue per monitor. Traffic
// beyond this backlog is dropped rather than blocking the session.
const monitorQueueDepth = 256

// asyncMonitor decouples monitor delivery from the console I/O path.
// Enqueue never blocks; delivery happens on a dedicated goroutine.
type asyncMonitor struct {
	mon    Monitor
	events chan Event
	done   chan struct{}
	once   sync.Once
}

func newAsyncMonitor(mon Monitor) *asyncMonitor {
	a := &asyncMonitor{
		mon:    mon,
		events: make(chan Event, monitorQueueDepth),
		done:   make(chan struct{}),
	}
	go a.deliver()
	return a
}

func (a *asyncMonitor) deliver() {
	defer close(a.done)
	for ev := range a.events {
		switch ev.Dir {
		case DirRead:
			a.mon.TargetRead(ev.Data)
		case DirWrite:
			a.mon.TargetWrite(ev.Data)
		}
	}
}

// enqueue hands traffic to the delivery goroutine. The data is copied so the
// caller may reuse its buffer. If the queue is full the event is dropped.
func (a *asyncMonitor) enqueue(dir Direction, data []byte) {
	if len(data) == 0 {
		return
	}
	buf := make([]byte, len(data))
	copy(buf, data)

	select {
	case a.events <- Event{Dir: dir, Data: buf}:
	default:
		// Monitor is falling behind; drop rather than stall the session.
	}
}

func (a *asyncMonitor) close() error {
	var err error
	a.once.Do(func() {
		close(a.events)
		<-a.done
		err = a.mon.Close()
	})
	return err
}

// FileMonitor records console traffic to a file, interleaving reads and
// writes in the order they occurred. Useful for capturing a session
// transcript for later analysis.
type FileMonitor struct {
	f *os.File
}

// NewFileMonitor creates (or truncates) the transcript file at path.
func NewFileMonitor(path string) (*FileMonitor, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	return &FileMonitor{f: f}, nil
}

// TargetRead implements Monitor. Write errors are ignored; a broken
// transcript must not abort the session.
func (m *FileMonitor) TargetRead(data []byte) {
	_, _ = m.f.Write(data)
}

// TargetWrite implements Monitor.
func (m *FileMonitor) TargetWrite(data []byte) {
	_, _ = m.f.Write(data)
}

// Close implements Monitor.
func (m *FileMonitor) Close() error {
	return m.f.Close()
}

// ChannelMonitor exposes console traffic as a channel of Events, for
// consumers that render the session live (e.g., the terminal monitor UI).
// Events are dropped if the consumer falls behind.
type ChannelMonitor struct {
	events chan Event
	once   sync.Once
}

// NewChannelMonitor returns a monitor buffering up to depth events.
func NewChannelMonitor(depth int) *ChannelMonitor {
	if depth <= 0 {
		depth = monitorQueueDepth
	}
	return &ChannelMonitor{events: make(chan Event, depth)}
}

// Events returns the stream of monitored traffic. The channel is closed
// when the monitor is closed.
func (m *ChannelMonitor) Events() <-chan Event {
	return m.events
}

// TargetRead implements Monitor.
func (m *ChannelMonitor) TargetRead(data []byte) {
	m.send(Event{Dir: DirRead, Data: data})
}

// TargetWrite implements Monitor.
func (m *ChannelMonitor) TargetWrite(data []byte) {
	m.send(Event{Dir: DirWrite, Data: data})
}

func (m *ChannelMonitor) send(ev Event) {
	select {
	case m.events <- ev:
	default:
	}
}

// Close implements Monitor.
func (m *ChannelMonitor) Close() error {
	m.once.Do(func() { close(m.events) })
	return nil
}
