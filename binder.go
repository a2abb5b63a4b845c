package relorm

import (
	"database/sql"
	"fmt"
	"reflect"

	"github.com/google/uuid"
)

// assign stores val into dst, converting between compatible kinds and going
// through sql.Scanner when dst implements it.
func assign(dst reflect.Value, val interface{}) error {
	if val == nil {
		dst.Set(reflect.Zero(dst.Type()))
		return nil
	}
	if scanner, ok := dst.Addr().Interface().(sql.Scanner); ok {
		return scanner.Scan(val)
	}
	rv := reflect.ValueOf(val)
	if rv.Type().AssignableTo(dst.Type()) {
		dst.Set(rv)
		return nil
	}
	if dst.Kind() == reflect.Ptr {
		elem := reflect.New(dst.Type().Elem())
		if err := assign(elem.Elem(), val); err != nil {
			return err
		}
		dst.Set(elem)
		return nil
	}
	if compatibleKinds(rv.Kind(), dst.Kind()) && rv.Type().ConvertibleTo(dst.Type()) {
		dst.Set(rv.Convert(dst.Type()))
		return nil
	}
	return fmt.Errorf("cannot assign %T to %s", val, dst.Type())
}

func kindClass(k reflect.Kind) int {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return 1
	case reflect.String:
		return 2
	case reflect.Bool:
		return 3
	}
	return 0
}

func compatibleKinds(a, b reflect.Kind) bool {
	ca, cb := kindClass(a), kindClass(b)
	return ca != 0 && ca == cb
}

func (s *Session) scanDest(f *field) interface{} {
	if f.shadow {
		if kindOf(f.Type) == "int" {
			return new(sql.NullInt64)
		}
		return new(sql.NullString)
	}
	return reflect.New(f.Type).Interface()
}

// hydrate binds every row, selected in sc.columns() order, to a managed
// instance. Rows already in the identity map resolve to the existing instance
// and keep its in memory state.
func (s *Session) hydrate(sc *schema, rows *sql.Rows) ([]*entry, error) {
	defer rows.Close()
	cols := sc.columns()
	var out []*entry
	for rows.Next() {
		dests := make([]interface{}, len(cols))
		for i, f := range cols {
			dests[i] = s.scanDest(f)
		}
		if err := rows.Scan(dests...); err != nil {
			return nil, err
		}
		e, err := s.bind(sc, cols, dests)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Session) bind(sc *schema, cols []*field, dests []interface{}) (*entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	values := make(map[string]interface{}, len(cols))
	for i, f := range cols {
		values[f.Name] = driverValue(reflect.ValueOf(dests[i]).Elem().Interface())
	}
	key := normalizeKey(values[sc.pkName()])
	ik := identityKey{sc.Table, key}
	e, ok := s.identity[ik]
	if ok && !e.stub {
		return e, nil
	}
	if !ok {
		e = &entry{schema: sc, ptr: reflect.New(sc.typ), tempID: uuid.NewString(), key: key, state: entityManaged}
		s.register(e)
	}
	e.stub = false

	v := e.value()
	for i, f := range cols {
		if f.shadow {
			if e.shadow == nil {
				e.shadow = map[string]interface{}{}
			}
			e.shadow[f.Name] = normalizeKey(values[f.Name])
			continue
		}
		v.FieldByIndex(f.index).Set(reflect.ValueOf(dests[i]).Elem())
	}

	for _, name := range sc.relationNames {
		rel := sc.relations[name]
		if rel.Kind != relationBelongsTo || rel.TargetColumn != rel.target.pkName() {
			continue
		}
		holder, ok := sc.holder(v, rel)
		if !ok {
			continue
		}
		fk := normalizeKey(values[rel.SourceColumn])
		if fk == nil {
			holder.Set(reflect.Zero(holder.Type()))
			continue
		}
		owner, err := s.reference(rel.target, fk)
		if err != nil {
			return nil, err
		}
		holder.Set(owner.ptr)
	}
	e.snapshot = s.snapshot(e)
	return e, nil
}

// reference returns the managed instance for key, creating a stub when the
// row has not been loaded yet.
func (s *Session) reference(sc *schema, key interface{}) (*entry, error) {
	if e, ok := s.identity[identityKey{sc.Table, key}]; ok {
		return e, nil
	}
	ptr := reflect.New(sc.typ)
	if err := sc.setPK(ptr.Elem(), key); err != nil {
		return nil, err
	}
	e := &entry{schema: sc, ptr: ptr, tempID: uuid.NewString(), key: key, state: entityManaged, stub: true}
	s.register(e)
	return e, nil
}

func (s *Session) register(e *entry) {
	s.identity[identityKey{e.schema.Table, e.key}] = e
	s.tracked[e.ptr.Interface()] = e
	s.entries = append(s.entries, e)
}
