package serialization

import (
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/yndnr/reactq/internal/core/domain"
)

// Serializer writes and reads individual values.
type Serializer interface {
	// Name identifies the wire format.
	Name() string
	// Version identifies the revision of the wire format.
	Version() Version
	// Serialize writes v to w.
	Serialize(w io.Writer, v any) error
	// Deserialize reads one value from r into the pointer v.
	Deserialize(r io.Reader, v any) error
}

// Policy selects serializers for writing and recovery.
type Policy interface {
	// Default returns the serializer used for new checkpoints.
	Default() Serializer
	// Resolve returns the serializer that wrote data under (name, version).
	Resolve(name string, version Version) (Serializer, error)
}

// Current versions of the built-in serializers.
var (
	BintlyVersion = V(1, 0, 0, 0)
	JSONVersion   = V(1, 0, 0, 0)
)

type registryKey struct {
	name    string
	version Version
}

// Registry is a Policy backed by an explicit (name, version) table.
type Registry struct {
	mu          sync.RWMutex
	serializers map[registryKey]Serializer
	def         Serializer
}

// NewRegistry creates a registry whose default is def. def is registered too.
func NewRegistry(def Serializer, others ...Serializer) *Registry {
	r := &Registry{serializers: make(map[registryKey]Serializer)}
	r.Register(def)
	for _, s := range others {
		r.Register(s)
	}
	r.def = def
	return r
}

// DefaultPolicy returns a registry defaulting to bintly, with json available.
func DefaultPolicy() *Registry {
	return NewRegistry(NewBintly(BintlyVersion), NewJSON(JSONVersion))
}

// Register adds s under its name and version.
func (r *Registry) Register(s Serializer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.serializers[registryKey{name: s.Name(), version: s.Version()}] = s
}

// SetDefault changes the serializer used for new checkpoints.
func (r *Registry) SetDefault(name string, version Version) error {
	s, err := r.Resolve(name, version)
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.def = s
	r.mu.Unlock()
	return nil
}

// Default implements Policy.
func (r *Registry) Default() Serializer {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.def
}

// Resolve implements Policy.
func (r *Registry) Resolve(name string, version Version) (Serializer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.serializers[registryKey{name: name, version: version}]
	if !ok {
		return nil, domain.ErrUnknownSerializer.WithDetails(fmt.Sprintf("%s/%s", name, version))
	}
	return s, nil
}

// Names lists registered serializers as "name/version", sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.serializers))
	for k := range r.serializers {
		out = append(out, k.name+"/"+k.version.String())
	}
	sort.Strings(out)
	return out
}
