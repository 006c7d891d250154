package input

import (
	"sort"
	"sync"

	"github.com/pkg/errors"
)

// ErrNoBackend is returned when no input backend is registered under a name.
var ErrNoBackend = errors.New("input: no such backend")

// BackendFactory opens a capture and its matching sink.
type BackendFactory func() (Capture, Sink, error)

var (
	backendsMu sync.Mutex
	backends   = make(map[string]BackendFactory)
)

// RegisterBackend makes a backend available by name. OS bindings register
// themselves from init.
func RegisterBackend(name string, f BackendFactory) {
	backendsMu.Lock()
	defer backendsMu.Unlock()
	backends[name] = f
}

// OpenBackend opens the named backend.
func OpenBackend(name string) (Capture, Sink, error) {
	backendsMu.Lock()
	f, ok := backends[name]
	backendsMu.Unlock()

	if !ok {
		return nil, nil, errors.Wrapf(ErrNoBackend, "%q (have %v)", name, Backends())
	}
	capture, sink, err := f()
	if err != nil {
		return nil, nil, errors.Wrapf(err, "failed to open input backend %q", name)
	}
	return capture, sink, nil
}

// Backends lists the registered backend names.
func Backends() []string {
	backendsMu.Lock()
	defer backendsMu.Unlock()

	names := make([]string, 0, len(backends))
	for name := range backends {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
