package linkdb

import (
	"encoding/binary"
	"fmt"
	"reflect"
	"sort"
	"sync"

	"github.com/hupe1980/linkdb/codec"
)

// Item is a payload stored behind a Link.
//
// OnCreate is called exactly once, when the item is first stored. OnLoad is
// called on every transition to loaded, including right after OnCreate. Both
// receive the owning link so the item can keep a back-reference; anything
// not persisted by the codec should be rebuilt in OnLoad. Hooks must not
// call methods of any Link.
//
// Items must be pointer types so the codec can decode into them.
type Item interface {
	OnCreate(link *Link)
	OnLoad(link *Link)
}

// rootTag is reserved for the root item.
const rootTag = "linkdb.root"

// Registry maps type tags to item constructors. Each Go type has exactly one
// tag and each tag exactly one type.
type Registry struct {
	mu     sync.RWMutex
	byTag  map[string]registration
	byType map[reflect.Type]string
}

type registration struct {
	typ     reflect.Type
	factory func() Item
}

// NewRegistry returns a registry that knows only the root item.
func NewRegistry() *Registry {
	r := &Registry{
		byTag:  make(map[string]registration),
		byType: make(map[reflect.Type]string),
	}
	r.add(rootTag, reflect.TypeFor[*rootItem](), func() Item { return &rootItem{} })
	return r
}

// Register binds tag to the type produced by factory. Registering the same
// pair twice is a no-op.
func (r *Registry) Register(tag string, factory func() Item) error {
	if tag == "" {
		return fmt.Errorf("%w: empty tag", ErrInvalidRegistration)
	}
	if tag == rootTag {
		return fmt.Errorf("%w: tag %q is reserved", ErrInvalidRegistration, tag)
	}
	if factory == nil {
		return fmt.Errorf("%w: nil factory for %q", ErrInvalidRegistration, tag)
	}

	proto := factory()
	if proto == nil {
		return fmt.Errorf("%w: factory for %q returned nil", ErrInvalidRegistration, tag)
	}
	typ := reflect.TypeOf(proto)
	if typ.Kind() != reflect.Pointer {
		return fmt.Errorf("%w: %s is not a pointer type", ErrInvalidRegistration, typ)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if reg, ok := r.byTag[tag]; ok {
		if reg.typ != typ {
			return fmt.Errorf("%w: tag %q already bound to %s", ErrInvalidRegistration, tag, reg.typ)
		}
		return nil
	}
	if other, ok := r.byType[typ]; ok {
		return fmt.Errorf("%w: %s already registered as %q", ErrInvalidRegistration, typ, other)
	}

	r.add(tag, typ, factory)
	return nil
}

// Register is the typed form of Registry.Register.
func Register[T Item](r *Registry, tag string, factory func() T) error {
	if factory == nil {
		return fmt.Errorf("%w: nil factory for %q", ErrInvalidRegistration, tag)
	}
	return r.Register(tag, func() Item { return factory() })
}

func (r *Registry) add(tag string, typ reflect.Type, factory func() Item) {
	r.byTag[tag] = registration{typ: typ, factory: factory}
	r.byType[typ] = tag
}

// Tag returns the tag of item's type.
func (r *Registry) Tag(item Item) (string, error) {
	typ := reflect.TypeOf(item)

	r.mu.RLock()
	defer r.mu.RUnlock()

	tag, ok := r.byType[typ]
	if !ok {
		return "", fmt.Errorf("%w: %v", ErrUnknownType, typ)
	}
	return tag, nil
}

// New constructs an empty item for tag.
func (r *Registry) New(tag string) (Item, error) {
	r.mu.RLock()
	reg, ok := r.byTag[tag]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: tag %q", ErrUnknownType, tag)
	}
	return reg.factory(), nil
}

// Tags returns the registered tags in sorted order.
func (r *Registry) Tags() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tags := make([]string, 0, len(r.byTag))
	for tag := range r.byTag {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	return tags
}

// ensure registers item's type under its default tag if the type is unknown.
func (r *Registry) ensure(item Item) error {
	if item == nil {
		return fmt.Errorf("%w: nil item", ErrInvalidRegistration)
	}

	typ := reflect.TypeOf(item)

	r.mu.RLock()
	_, ok := r.byType[typ]
	r.mu.RUnlock()
	if ok {
		return nil
	}

	if typ.Kind() != reflect.Pointer {
		return fmt.Errorf("%w: %s is not a pointer type", ErrInvalidRegistration, typ)
	}

	elem := typ.Elem()
	return r.Register(DefaultTag(item), func() Item {
		return reflect.New(elem).Interface().(Item)
	})
}

// DefaultTag is the tag used for automatically registered types: the
// package path and name of the pointed-to type.
func DefaultTag(item Item) string {
	typ := reflect.TypeOf(item)
	if typ.Kind() == reflect.Pointer {
		typ = typ.Elem()
	}
	if typ.PkgPath() == "" {
		return typ.String()
	}
	return typ.PkgPath() + "." + typ.Name()
}

// encodeItem serializes item as uvarint(len(tag)) | tag | payload.
func encodeItem(c codec.Codec, r *Registry, gid int64, item Item) ([]byte, error) {
	tag, err := r.Tag(item)
	if err != nil {
		return nil, &ItemError{GID: gid, Err: err}
	}

	payload, err := c.Marshal(item)
	if err != nil {
		return nil, &ItemError{GID: gid, Tag: tag, Err: err}
	}

	out := make([]byte, 0, binary.MaxVarintLen64+len(tag)+len(payload))
	out = binary.AppendUvarint(out, uint64(len(tag)))
	out = append(out, tag...)
	return append(out, payload...), nil
}

// decodeItem reverses encodeItem.
func decodeItem(c codec.Codec, r *Registry, gid int64, data []byte) (Item, error) {
	n, k := binary.Uvarint(data)
	if k <= 0 || uint64(len(data)-k) < n {
		return nil, &ItemError{GID: gid, Err: fmt.Errorf("%w: bad type tag header", ErrCorrupt)}
	}
	tag := string(data[k : k+int(n)])

	item, err := r.New(tag)
	if err != nil {
		return nil, &ItemError{GID: gid, Tag: tag, Err: err}
	}

	if err := c.Unmarshal(data[k+int(n):], item); err != nil {
		return nil, &ItemError{GID: gid, Tag: tag, Err: fmt.Errorf("%w: %w", ErrCorrupt, err)}
	}
	return item, nil
}
