package relorm

import (
	"context"
	"fmt"
	"reflect"

	"github.com/golobby/relorm/qb"
)

func (s *Session) sourceValue(e *entry, rel *relation) (interface{}, error) {
	f := e.schema.field(rel.SourceColumn)
	v, err := s.columnValue(e, f)
	if err != nil {
		return nil, err
	}
	return normalizeKey(driverValue(v)), nil
}

func (s *Session) targetValue(e *entry, rel *relation) (interface{}, error) {
	f := rel.target.field(rel.TargetColumn)
	v, err := s.columnValue(e, f)
	if err != nil {
		return nil, err
	}
	return normalizeKey(driverValue(v)), nil
}

// load fetches rel for every owner with one IN query, fills the holders and
// returns the related entries grouped by the owner's source value.
func (s *Session) load(ctx context.Context, sc *schema, rel *relation, owners []*entry) (map[interface{}][]*entry, error) {
	var keys []interface{}
	seen := map[interface{}]bool{}
	for _, e := range owners {
		k, err := s.sourceValue(e, rel)
		if err != nil {
			return nil, err
		}
		if k != nil && !seen[k] {
			seen[k] = true
			keys = append(keys, k)
		}
	}

	groups := map[interface{}][]*entry{}
	if len(keys) > 0 {
		target := rel.target
		d := s.conn.Dialect
		var cols []string
		for _, name := range target.columnNames() {
			cols = append(cols, rootAlias+"."+d.Quote(name))
		}
		q, args, err := qb.Select{
			Table:    d.Quote(target.Table),
			Alias:    rootAlias,
			Selected: &qb.Selected{Columns: cols},
			Where: &qb.Where{Conds: []qb.Expr{
				qb.Cond{Lhs: rootAlias + "." + d.Quote(rel.TargetColumn), Op: qb.In, Rhs: keys},
			}},
			OrderBy: &qb.OrderBy{Terms: []qb.OrderTerm{
				{Expr: qb.Column(rootAlias + "." + d.Quote(target.pkName())), Order: qb.OrderByASC},
			}},
		}.ToSql()
		if err != nil {
			return nil, err
		}
		rows, err := s.conn.query(ctx, s.conn.DB, q, args...)
		if err != nil {
			return nil, err
		}
		related, err := s.hydrate(target, rows)
		if err != nil {
			return nil, err
		}
		for _, r := range related {
			if r.state == entityRemoved {
				continue
			}
			k, err := s.targetValue(r, rel)
			if err != nil {
				return nil, err
			}
			groups[k] = append(groups[k], r)
		}
	}

	for _, e := range owners {
		holder, ok := sc.holder(e.value(), rel)
		if !ok {
			continue
		}
		k, err := s.sourceValue(e, rel)
		if err != nil {
			return nil, err
		}
		members := groups[k]
		if rel.isCollection() {
			slice := reflect.MakeSlice(holder.Type(), 0, len(members))
			byValue := holder.Type().Elem().Kind() != reflect.Ptr
			for _, m := range members {
				if byValue {
					slice = reflect.Append(slice, m.value())
				} else {
					slice = reflect.Append(slice, m.ptr)
				}
			}
			holder.Set(slice)
			continue
		}
		if len(members) == 0 {
			holder.Set(reflect.Zero(holder.Type()))
		} else {
			holder.Set(members[0].ptr)
		}
	}
	return groups, nil
}

func (sc *schema) relationTo(target reflect.Type, kind relationKind) *relation {
	for _, name := range sc.relationNames {
		rel := sc.relations[name]
		if rel.Kind == kind && rel.Target == target {
			return rel
		}
	}
	return nil
}

func (s *Session) loadOne(ctx context.Context, obj Entity, target reflect.Type, kind relationKind) ([]*entry, error) {
	ptr := reflect.ValueOf(obj)
	if !ptr.IsValid() || ptr.Kind() != reflect.Ptr || ptr.IsNil() {
		return nil, invalid(fmt.Sprintf("%T", obj), "", "relations load through non-nil struct pointers")
	}
	sc, err := s.conn.schemaFor(ptr.Type())
	if err != nil {
		return nil, err
	}
	if target.Kind() != reflect.Ptr {
		return nil, invalid(target.String(), "", "relation loaders need a struct pointer type")
	}
	rel := sc.relationTo(target.Elem(), kind)
	if rel == nil {
		return nil, invalid(sc.typ.Name(), "", "no %s relation to %s", kind, target.Elem().Name())
	}
	s.mu.Lock()
	e, ok := s.tracked[obj]
	s.mu.Unlock()
	if !ok {
		e = &entry{schema: sc, ptr: ptr}
	}
	groups, err := s.load(ctx, sc, rel, []*entry{e})
	if err != nil {
		return nil, err
	}
	k, err := s.sourceValue(e, rel)
	if err != nil {
		return nil, err
	}
	return groups[k], nil
}

// HasMany loads the collection of owner that holds OUT entities.
func HasMany[OUT Entity](ctx context.Context, s *Session, owner Entity) ([]OUT, error) {
	entries, err := s.loadOne(ctx, owner, reflect.TypeOf((*OUT)(nil)).Elem(), relationHasMany)
	if err != nil {
		return nil, err
	}
	return entitiesOf[OUT](entries), nil
}

func HasOne[PROPERTY Entity](ctx context.Context, s *Session, owner Entity) (PROPERTY, error) {
	var zero PROPERTY
	entries, err := s.loadOne(ctx, owner, reflect.TypeOf((*PROPERTY)(nil)).Elem(), relationHasOne)
	if err != nil {
		return zero, err
	}
	if len(entries) == 0 {
		return zero, ErrNotFound
	}
	return entries[0].ptr.Interface().(PROPERTY), nil
}

func BelongsTo[OWNER Entity](ctx context.Context, s *Session, property Entity) (OWNER, error) {
	var zero OWNER
	entries, err := s.loadOne(ctx, property, reflect.TypeOf((*OWNER)(nil)).Elem(), relationBelongsTo)
	if err != nil {
		return zero, err
	}
	if len(entries) == 0 {
		return zero, ErrNotFound
	}
	return entries[0].ptr.Interface().(OWNER), nil
}
