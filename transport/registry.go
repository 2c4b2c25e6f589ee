package transport

import (
	"errors"
	"fmt"
	"sort"

	"github.com/puzpuzpuz/xsync/v3"
)

var (
	// ErrUnknownTransport is returned by Lookup for a name nobody registered.
	ErrUnknownTransport = errors.New("transport: unknown transport")
	// ErrDuplicateTransport is returned by Register when the name is taken.
	ErrDuplicateTransport = errors.New("transport: transport already registered")
)

// Registry maps transport names ("rfcomm", "serial", "tcp") to dialers.
// It is safe for concurrent use.
type Registry struct {
	dialers *xsync.MapOf[string, Dialer]
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{dialers: xsync.NewMapOf[string, Dialer]()}
}

// Register adds d under name.
func (r *Registry) Register(name string, d Dialer) error {
	if name == "" || d == nil {
		return fmt.Errorf("transport: register %q: empty name or nil dialer", name)
	}

	if _, loaded := r.dialers.LoadOrStore(name, d); loaded {
		return fmt.Errorf("%w: %s", ErrDuplicateTransport, name)
	}

	return nil
}

// Lookup returns the dialer registered under name.
func (r *Registry) Lookup(name string) (Dialer, error) {
	d, ok := r.dialers.Load(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTransport, name)
	}

	return d, nil
}

// Names returns the registered names in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, r.dialers.Size())
	r.dialers.Range(func(name string, _ Dialer) bool {
		names = append(names, name)
		return true
	})
	sort.Strings(names)

	return names
}

var defaultRegistry = NewRegistry()

// Register adds d to the default registry. It panics on a duplicate name,
// as it is meant to be called from package init functions.
func Register(name string, d Dialer) {
	if err := defaultRegistry.Register(name, d); err != nil {
		panic(err)
	}
}

// Lookup returns a dialer from the default registry.
func Lookup(name string) (Dialer, error) {
	return defaultRegistry.Lookup(name)
}

// Names lists the transports of the default registry.
func Names() []string {
	return defaultRegistry.Names()
}
