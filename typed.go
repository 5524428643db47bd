package linkdb

import "fmt"

// GetLink is the typed form of DB.GetLink.
func GetLink[T Item](db *DB, name string, factory func() T) (*Link, error) {
	if factory == nil {
		return nil, fmt.Errorf("%w: nil factory", ErrInvalidRegistration)
	}
	return db.GetLink(name, func() Item { return factory() })
}

// Get returns the item of l as a T.
func Get[T Item](l *Link) (T, error) {
	var zero T

	item, err := l.Get()
	if err != nil {
		return zero, err
	}

	t, ok := item.(T)
	if !ok {
		return zero, &ItemError{GID: l.gid, Err: fmt.Errorf("%w: item is %T, not %T", ErrUnknownType, item, zero)}
	}
	return t, nil
}

// Update is the typed form of Link.Update.
func Update[T Item](l *Link, fn func(T) error) error {
	return l.Update(func(item Item) error {
		t, ok := item.(T)
		if !ok {
			var zero T
			return &ItemError{GID: l.gid, Err: fmt.Errorf("%w: item is %T, not %T", ErrUnknownType, item, zero)}
		}
		return fn(t)
	})
}
