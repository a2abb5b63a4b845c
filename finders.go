package relorm

import (
	"context"
	"fmt"
	"reflect"
)

func schemaOfType[T Entity](s *Session) (*schema, error) {
	t := reflect.TypeOf((*T)(nil)).Elem()
	if t.Kind() != reflect.Ptr || t.Elem().Kind() != reflect.Struct {
		return nil, invalid(t.String(), "", "finders need a struct pointer type")
	}
	return s.conn.schemaFor(t)
}

func entitiesOf[T Entity](entries []*entry) []T {
	out := make([]T, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.ptr.Interface().(T))
	}
	return out
}

// Find returns the roots matching filter in the requested order. No match
// is an empty slice, not an error.
func Find[T Entity](ctx context.Context, s *Session, filter Filter, opts *FindOptions) ([]T, error) {
	sc, err := schemaOfType[T](s)
	if err != nil {
		return nil, err
	}
	entries, err := s.find(ctx, sc, filter, opts)
	if err != nil {
		return nil, err
	}
	return entitiesOf[T](entries), nil
}

// FindOne returns the first match or ErrNotFound.
func FindOne[T Entity](ctx context.Context, s *Session, filter Filter, opts *FindOptions) (T, error) {
	var zero T
	one := FindOptions{Limit: 1}
	if opts != nil {
		one = *opts
		one.Limit = 1
	}
	found, err := Find[T](ctx, s, filter, &one)
	if err != nil {
		return zero, err
	}
	if len(found) == 0 {
		return zero, ErrNotFound
	}
	return found[0], nil
}

// FindByID answers from the identity map when it can.
func FindByID[T Entity](ctx context.Context, s *Session, id interface{}) (T, error) {
	var zero T
	sc, err := schemaOfType[T](s)
	if err != nil {
		return zero, err
	}
	s.mu.Lock()
	e, ok := s.identity[identityKey{sc.Table, normalizeKey(id)}]
	s.mu.Unlock()
	if ok && !e.stub {
		if e.state == entityRemoved {
			return zero, ErrNotFound
		}
		return e.ptr.Interface().(T), nil
	}
	return FindOne[T](ctx, s, Filter{sc.pkName(): id}, nil)
}

// Count returns how many roots match filter.
func Count[T Entity](ctx context.Context, s *Session, filter Filter) (int64, error) {
	sc, err := schemaOfType[T](s)
	if err != nil {
		return 0, err
	}
	sel, err := newFindCompiler(s.conn, sc).exclude(s.removedKeys(sc)).countRoots(filter)
	if err != nil {
		return 0, err
	}
	q, args, err := sel.ToSql()
	if err != nil {
		return 0, err
	}
	rows, err := s.conn.query(ctx, s.conn.DB, q, args...)
	if err != nil {
		return 0, err
	}
	defer rows.Close()
	var n int64
	if rows.Next() {
		if err := rows.Scan(&n); err != nil {
			return 0, err
		}
	}
	return n, rows.Err()
}

// removedKeys lists the keys of sc rows removed in the session but still in storage.
func (s *Session) removedKeys(sc *schema) []interface{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	var keys []interface{}
	for _, e := range s.removed {
		if e.schema == sc && e.key != nil {
			keys = append(keys, e.key)
		}
	}
	return keys
}

func (s *Session) find(ctx context.Context, sc *schema, filter Filter, opts *FindOptions) ([]*entry, error) {
	if opts == nil {
		opts = &FindOptions{}
	}
	if opts.Limit < 0 || opts.Offset < 0 {
		return nil, invalid(sc.typ.Name(), "", "negative limit or offset")
	}
	sel, err := newFindCompiler(s.conn, sc).exclude(s.removedKeys(sc)).selectRoots(filter, opts)
	if err != nil {
		return nil, err
	}
	q, args, err := sel.ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := s.conn.query(ctx, s.conn.DB, q, args...)
	if err != nil {
		return nil, fmt.Errorf("relorm: find %s: %w", sc.Table, err)
	}
	entries, err := s.hydrate(sc, rows)
	if err != nil {
		return nil, err
	}
	for _, name := range opts.Populate {
		rel, ok := sc.relation(name)
		if !ok {
			return nil, invalid(sc.typ.Name(), name, "unknown relation")
		}
		if _, err := s.load(ctx, sc, rel, entries); err != nil {
			return nil, err
		}
	}
	return entries, nil
}
