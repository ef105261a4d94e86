// Package hotkey detects system-wide press and release of a configured
// key combination.
package hotkey

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	hook "github.com/robotn/gohook"
)

// ErrRegistration is returned when the global hook cannot be installed
// or the configured combination cannot be parsed.
var ErrRegistration = errors.New("hotkey registration failed")

// EventKind distinguishes logical press and release of the full combo.
type EventKind int

const (
	// Pressed is emitted once when the last key of the combo goes down.
	Pressed EventKind = iota
	// Released is emitted once when any key of the combo goes up.
	Released
)

// Event is a logical hotkey transition. OS auto-repeat is debounced:
// exactly one Pressed per physical hold, one Released per let-go.
type Event struct {
	Kind EventKind
}

// Monitor watches the global keyboard state for the configured combo.
type Monitor struct {
	combo Combo

	mu      sync.Mutex
	events  chan Event
	stop    chan struct{}
	started bool
}

// New creates a monitor for the given combo string, e.g. "ctrl+alt+space".
func New(combo string) (*Monitor, error) {
	c, err := ParseCombo(combo)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRegistration, err)
	}
	return &Monitor{combo: c}, nil
}

// Start installs the global keyboard hook and returns the event stream.
// The returned channel is closed by Stop.
func (m *Monitor) Start() (<-chan Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.started {
		return nil, fmt.Errorf("%w: monitor already started", ErrRegistration)
	}

	raw := hook.Start()
	if raw == nil {
		return nil, fmt.Errorf("%w: install keyboard hook", ErrRegistration)
	}

	m.events = make(chan Event, 16)
	m.stop = make(chan struct{})
	m.started = true

	go m.loop(raw)

	slog.Info("hotkey registered", "combo", m.combo.String())
	return m.events, nil
}

// Stop uninstalls the hook and closes the event stream.
func (m *Monitor) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.started {
		return
	}
	m.started = false
	close(m.stop)
	hook.End()
}

func (m *Monitor) loop(raw chan hook.Event) {
	defer close(m.events)

	tr := newTracker(m.combo)
	for {
		select {
		case <-m.stop:
			return
		case ev, ok := <-raw:
			if !ok {
				return
			}

			var key string
			var down bool
			switch ev.Kind {
			case hook.KeyDown, hook.KeyHold:
				key, down = keyName(ev.Rawcode), true
			case hook.KeyUp:
				key, down = keyName(ev.Rawcode), false
			default:
				continue
			}

			out, fire := tr.handle(key, down)
			if !fire {
				continue
			}

			select {
			case m.events <- out:
			default:
				// Orchestrator is wedged; dropping beats blocking the
				// OS hook callback path.
				slog.Warn("hotkey event dropped", "kind", out.Kind)
			}
		}
	}
}

func keyName(rawcode uint16) string {
	return normalizeKey(hook.RawcodetoKeychar(rawcode))
}
