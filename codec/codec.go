// Package codec provides the item serializers used by linkdb.
//
// The codec name is recorded in the database configuration and resolved
// through Lookup when a database is reopened. Custom codecs must be
// registered before opening a database that uses them.
package codec

import (
	"errors"
	"fmt"
	"slices"
	"sync"
)

// Codec encodes/decodes item payloads.
// Implementations must be safe for concurrent use.
type Codec interface {
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
	Name() string
}

// ErrDuplicate is returned when registering a name that is already taken.
var ErrDuplicate = errors.New("codec: name already registered")

var (
	mu     sync.RWMutex
	codecs = map[string]Codec{
		JSON{}.Name():   JSON{},
		GoJSON{}.Name(): GoJSON{},
	}
)

// Register makes c resolvable by its name.
func Register(c Codec) error {
	if c == nil || c.Name() == "" {
		return errors.New("codec: nil codec or empty name")
	}

	mu.Lock()
	defer mu.Unlock()

	if _, ok := codecs[c.Name()]; ok {
		return fmt.Errorf("%w: %q", ErrDuplicate, c.Name())
	}
	codecs[c.Name()] = c
	return nil
}

// Lookup returns the codec registered under name.
func Lookup(name string) (Codec, bool) {
	mu.RLock()
	defer mu.RUnlock()

	c, ok := codecs[name]
	return c, ok
}

// Names returns the registered codec names in sorted order.
func Names() []string {
	mu.RLock()
	defer mu.RUnlock()

	names := make([]string, 0, len(codecs))
	for name := range codecs {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
