package input

import (
	"encoding/json"
	"io"
	"log"
	"os"
	"sync"
	"time"

	"github.com/pkg/errors"
)

func init() {
	RegisterBackend("replay", func() (Capture, Sink, error) {
		screen := NewVirtualScreen(1920, 1080)
		return NewReplay(os.Stdin, screen), screen, nil
	})
}

// replayLine is one JSON line of a replay script: a notification plus an
// optional pause before it is delivered.
type replayLine struct {
	Notification
	WaitMS int `json:"wait_ms,omitempty"`
}

// Replay is a Capture that feeds notifications decoded from a JSON-lines
// stream into the handler, moving a VirtualScreen's cursor for every pointer
// notification the handler lets through.
type Replay struct {
	src    io.Reader
	screen *VirtualScreen

	mu       sync.Mutex
	enabled  bool
	started  bool
	stopOnce sync.Once
	stop     chan struct{}
	finished chan struct{}
}

func NewReplay(src io.Reader, screen *VirtualScreen) *Replay {
	return &Replay{
		src:      src,
		screen:   screen,
		enabled:  true,
		stop:     make(chan struct{}),
		finished: make(chan struct{}),
	}
}

// Start begins delivery on its own goroutine.
func (r *Replay) Start(h Handler) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return errors.New("input: replay already started")
	}
	r.started = true
	go r.run(h)
	return nil
}

func (r *Replay) Stop() error {
	r.stopOnce.Do(func() { close(r.stop) })
	return nil
}

func (r *Replay) SetEnabled(enabled bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.enabled = enabled
}

// Finished is closed once the script is exhausted or the replay is stopped.
func (r *Replay) Finished() <-chan struct{} {
	return r.finished
}

func (r *Replay) isEnabled() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.enabled
}

func (r *Replay) run(h Handler) {
	defer close(r.finished)

	dec := json.NewDecoder(r.src)
	delivered := 0
	for {
		var line replayLine
		if err := dec.Decode(&line); err != nil {
			if err != io.EOF {
				log.Printf("Input: Replay stopped on bad line: %v", err)
			}
			log.Printf("Input: Replay finished after %d notifications", delivered)
			return
		}

		if line.WaitMS > 0 {
			select {
			case <-time.After(time.Duration(line.WaitMS) * time.Millisecond):
			case <-r.stop:
				return
			}
		}
		select {
		case <-r.stop:
			return
		default:
		}

		if !r.isEnabled() {
			continue
		}
		n := line.Notification
		delivered++
		if h(n) == PassThrough && n.Kind.Positional() {
			r.screen.MoveCursor(n.Location)
		}
	}
}
