package relorm

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/golobby/relorm/qb"
	"github.com/google/uuid"
)

type SessionState int

const (
	StateClean SessionState = iota
	StatePending
	StateFlushing
)

func (s SessionState) String() string {
	switch s {
	case StateClean:
		return "clean"
	case StatePending:
		return "pending"
	case StateFlushing:
		return "flushing"
	}
	return fmt.Sprintf("SessionState(%d)", int(s))
}

type entityState int

const (
	entityNew entityState = iota
	entityManaged
	entityRemoved
)

// entry tracks one entity instance inside a session.
type entry struct {
	schema *schema
	ptr    reflect.Value
	tempID string
	key    interface{}
	state  entityState
	// stub entries only carry a key, they are filled by the next hydration of their row.
	stub     bool
	presetPK bool
	snapshot map[string]interface{}
	// shadow holds values of columns without a struct field.
	shadow map[string]interface{}
	// linked owners by relation name, for dependents without a holder field.
	linked map[string]*entry
}

func (e *entry) value() reflect.Value {
	return e.ptr.Elem()
}

type identityKey struct {
	table string
	key   interface{}
}

// Session is a unit of work: it stages new, changed and removed entities
// until Flush and maps every loaded row to a single instance until Clear.
//
// Flush holds the session lock for the whole transaction: Persist, Remove,
// Clear and hydrating finders wait for it. Entities must not be modified by
// other goroutines while a flush runs.
type Session struct {
	conn     *Connection
	mu       sync.Mutex
	flushMu  sync.Mutex
	state    atomic.Int32
	identity map[identityKey]*entry
	tracked  map[interface{}]*entry
	entries  []*entry
	pending  []*entry
	removed  []*entry
	now      func() time.Time
}

func newSession(conn *Connection) *Session {
	return &Session{
		conn:     conn,
		identity: map[identityKey]*entry{},
		tracked:  map[interface{}]*entry{},
		now:      time.Now,
	}
}

func (s *Session) Connection() *Connection {
	return s.conn
}

func (s *Session) State() SessionState {
	return SessionState(s.state.Load())
}

func (s *Session) setState(state SessionState) {
	s.state.Store(int32(state))
}

// markPending moves a clean session to pending.
func (s *Session) markPending() {
	s.state.CompareAndSwap(int32(StateClean), int32(StatePending))
}

// TempID returns the session scoped id given to obj when it was registered.
func (s *Session) TempID(obj Entity) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.tracked[obj]
	if !ok {
		return "", false
	}
	return e.tempID, true
}

// Contains reports whether obj is tracked and not scheduled for removal.
func (s *Session) Contains(obj Entity) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.tracked[obj]
	return ok && e.state != entityRemoved
}

// Fields are keyed by column name, Go field name or relation name.
type Fields map[string]interface{}

// Create builds a new T from fields and registers it in the session.
// It gets its key on the next Flush.
func Create[T Entity](s *Session, fields Fields) (T, error) {
	var zero T
	t := reflect.TypeOf(zero)
	if t == nil || t.Kind() != reflect.Ptr || t.Elem().Kind() != reflect.Struct {
		return zero, invalid(fmt.Sprint(t), "", "Create needs a struct pointer type")
	}
	sc, err := s.conn.schemaFor(t)
	if err != nil {
		return zero, err
	}
	ptr := reflect.New(t.Elem())
	shadow := map[string]interface{}{}

	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, key := range keys {
		val := fields[key]
		if rel, ok := sc.relation(key); ok {
			if err := setHolder(sc, ptr.Elem(), rel, val); err != nil {
				return zero, err
			}
			continue
		}
		f := sc.lookup(key)
		if f == nil {
			return zero, invalid(sc.typ.Name(), key, "unknown field")
		}
		if f.shadow {
			shadow[f.Name] = val
			continue
		}
		if val == nil && !f.Nullable {
			return zero, invalid(sc.typ.Name(), f.GoName, "cannot be nil")
		}
		if err := assign(ptr.Elem().FieldByIndex(f.index), val); err != nil {
			return zero, &ValidationError{Entity: sc.typ.Name(), Field: f.GoName, Reason: err.Error(), Err: err}
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	e, err := s.persist(ptr, map[interface{}]bool{})
	if err != nil {
		return zero, err
	}
	for k, v := range shadow {
		if e.shadow == nil {
			e.shadow = map[string]interface{}{}
		}
		e.shadow[k] = v
	}
	return ptr.Interface().(T), nil
}

func setHolder(sc *schema, v reflect.Value, rel *relation, val interface{}) error {
	holder, ok := sc.holder(v, rel)
	if !ok {
		return invalid(sc.typ.Name(), rel.Name, "relation has no holder field")
	}
	if val == nil {
		holder.Set(reflect.Zero(holder.Type()))
		return nil
	}
	rv := reflect.ValueOf(val)
	if rv.Type().AssignableTo(holder.Type()) {
		holder.Set(rv)
		return nil
	}
	if rel.isCollection() && rv.Kind() == reflect.Slice {
		out := reflect.MakeSlice(holder.Type(), 0, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			item := reflect.ValueOf(rv.Index(i).Interface())
			if !item.IsValid() || !item.Type().AssignableTo(holder.Type().Elem()) {
				return invalid(sc.typ.Name(), rel.Name, "cannot hold %s", rv.Index(i).Type())
			}
			out = reflect.Append(out, item)
		}
		holder.Set(out)
		return nil
	}
	return invalid(sc.typ.Name(), rel.Name, "cannot hold %T", val)
}

// Persist registers obj, and the related entities reachable through its
// holders, as new entities. Managed entities are left as they are.
func (s *Session) Persist(objs ...Entity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, obj := range objs {
		if _, err := s.persist(reflect.ValueOf(obj), map[interface{}]bool{}); err != nil {
			return err
		}
	}
	return nil
}

func (s *Session) persist(ptr reflect.Value, visited map[interface{}]bool) (*entry, error) {
	if !ptr.IsValid() {
		return nil, invalid("nil", "", "entities are persisted through non-nil struct pointers")
	}
	if ptr.Kind() != reflect.Ptr || ptr.IsNil() || ptr.Elem().Kind() != reflect.Struct {
		return nil, invalid(ptr.Type().String(), "", "entities are persisted through non-nil struct pointers")
	}
	id := ptr.Interface()
	e, tracked := s.tracked[id]
	if visited[id] {
		return e, nil
	}
	visited[id] = true

	if tracked {
		if e.state == entityRemoved {
			e.state = entityManaged
			s.removed = without(s.removed, e)
		}
	} else {
		sc, err := s.conn.schemaFor(ptr.Type())
		if err != nil {
			return nil, err
		}
		if err := validateEntity(sc, ptr.Elem()); err != nil {
			return nil, err
		}
		e = &entry{schema: sc, ptr: ptr, tempID: uuid.NewString(), state: entityNew}
		if key := sc.pkValue(ptr.Elem()); key != nil {
			if other, ok := s.identity[identityKey{sc.Table, key}]; ok && other.ptr.Interface() != id {
				return nil, invalid(sc.typ.Name(), sc.pk().GoName, "key %v is already managed by another instance", key)
			}
			e.presetPK = true
		}
		s.tracked[id] = e
		s.entries = append(s.entries, e)
		s.pending = append(s.pending, e)
		s.markPending()
		s.conn.logger.Debugf("persist %s as %s", sc.Table, e.tempID)
	}

	sc := e.schema
	for _, name := range sc.relationNames {
		rel := sc.relations[name]
		holder, ok := sc.holder(ptr.Elem(), rel)
		if !ok {
			continue
		}
		switch rel.Kind {
		case relationBelongsTo:
			if holder.IsNil() {
				continue
			}
			if _, err := s.persist(holder, visited); err != nil {
				return nil, err
			}
		case relationHasOne:
			if holder.IsNil() {
				continue
			}
			member, err := s.persist(holder, visited)
			if err != nil {
				return nil, err
			}
			linkBack(member, sc, rel, e)
		case relationHasMany:
			for i := 0; i < holder.Len(); i++ {
				item := holder.Index(i)
				if item.Kind() != reflect.Ptr {
					item = item.Addr()
				}
				if item.IsNil() {
					continue
				}
				member, err := s.persist(item, visited)
				if err != nil {
					return nil, err
				}
				linkBack(member, sc, rel, e)
			}
		}
	}
	return e, nil
}

// linkBack points the dependent side of an owning relation back at its owner.
func linkBack(member *entry, ownerSchema *schema, rel *relation, owner *entry) {
	inverse := inverseOf(ownerSchema, rel)
	if inverse == nil {
		if member.linked == nil {
			member.linked = map[string]*entry{}
		}
		member.linked["\x00"+rel.TargetColumn] = owner
		return
	}
	if holder, ok := member.schema.holder(member.value(), inverse); ok {
		if holder.IsNil() {
			holder.Set(owner.ptr)
		}
		return
	}
	if member.linked == nil {
		member.linked = map[string]*entry{}
	}
	member.linked[inverse.Name] = owner
}

// inverseOf finds the belongs-to relation on rel's target that stores rel's foreign key.
func inverseOf(ownerSchema *schema, rel *relation) *relation {
	for _, name := range rel.target.relationNames {
		candidate := rel.target.relations[name]
		if candidate.Kind == relationBelongsTo && candidate.target == ownerSchema && candidate.SourceColumn == rel.TargetColumn {
			return candidate
		}
	}
	return nil
}

// Remove schedules obj, and the tracked members of its collections, for deletion.
// Removing a new entity just forgets it.
func (s *Session) Remove(objs ...Entity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, obj := range objs {
		e, ok := s.tracked[obj]
		if !ok {
			return fmt.Errorf("%w: %T", ErrNotManaged, obj)
		}
		s.remove(e)
	}
	return nil
}

func (s *Session) remove(e *entry) {
	switch e.state {
	case entityRemoved:
		return
	case entityNew:
		s.pending = without(s.pending, e)
		s.forget(e)
	default:
		e.state = entityRemoved
		s.removed = append(s.removed, e)
		s.markPending()
	}
	sc := e.schema
	for _, name := range sc.relationNames {
		rel := sc.relations[name]
		if rel.Kind == relationBelongsTo {
			continue
		}
		holder, ok := sc.holder(e.value(), rel)
		if !ok {
			continue
		}
		var members []reflect.Value
		if rel.isCollection() {
			for i := 0; i < holder.Len(); i++ {
				item := holder.Index(i)
				if item.Kind() != reflect.Ptr {
					item = item.Addr()
				}
				members = append(members, item)
			}
		} else if !holder.IsNil() {
			members = append(members, holder)
		}
		for _, m := range members {
			if m.IsNil() {
				continue
			}
			if member, ok := s.tracked[m.Interface()]; ok {
				s.remove(member)
			}
		}
	}
}

func (s *Session) forget(e *entry) {
	delete(s.tracked, e.ptr.Interface())
	if e.key != nil {
		k := identityKey{e.schema.Table, e.key}
		if s.identity[k] == e {
			delete(s.identity, k)
		}
	}
	s.entries = without(s.entries, e)
}

func without(entries []*entry, e *entry) []*entry {
	out := entries[:0:0]
	for _, other := range entries {
		if other != e {
			out = append(out, other)
		}
	}
	return out
}

// Clear detaches every entity and drops pending changes. Storage is untouched.
func (s *Session) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.identity = map[identityKey]*entry{}
	s.tracked = map[interface{}]*entry{}
	s.entries = nil
	s.pending = nil
	s.removed = nil
	s.setState(StateClean)
}

// Flush writes pending changes in one transaction. Inserts run owners first,
// deletes run dependents first. On failure the transaction is rolled back,
// assigned keys are reset and every change stays pending.
func (s *Session) Flush(ctx context.Context) error {
	if !s.flushMu.TryLock() {
		return ErrFlushInProgress
	}
	defer s.flushMu.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	inserts := s.insertOrder()
	removes := s.deleteOrder()
	var candidates []*entry
	for _, e := range s.entries {
		if e.state == entityManaged && !e.stub {
			candidates = append(candidates, e)
		}
	}
	if len(inserts) == 0 && len(removes) == 0 && len(candidates) == 0 {
		return nil
	}
	previous := s.State()
	s.setState(StateFlushing)

	var (
		assigned []*entry
		updated  = map[*entry]map[string]interface{}{}
	)
	now := s.now()
	err := s.conn.transaction(ctx, func(tx *sql.Tx) error {
		for _, e := range inserts {
			if err := validateEntity(e.schema, e.value()); err != nil {
				return err
			}
			if err := s.insert(ctx, tx, e, now); err != nil {
				return err
			}
			if !e.presetPK {
				assigned = append(assigned, e)
			}
		}
		for _, e := range candidates {
			snap, changed, err := s.update(ctx, tx, e, now)
			if err != nil {
				return err
			}
			if changed {
				updated[e] = snap
			}
		}
		for _, e := range removes {
			if err := s.delete(ctx, tx, e); err != nil {
				return err
			}
		}
		return nil
	})

	if err != nil {
		for _, e := range assigned {
			_ = e.schema.setPK(e.value(), nil)
		}
		if previous == StateClean {
			previous = StatePending
		}
		s.setState(previous)
		s.conn.logger.Errorf("flush failed: %v", err)
		return err
	}
	for _, e := range inserts {
		e.state = entityManaged
		e.key = e.schema.pkValue(e.value())
		s.identity[identityKey{e.schema.Table, e.key}] = e
		e.snapshot = s.snapshot(e)
		s.pending = without(s.pending, e)
	}
	for e, snap := range updated {
		e.snapshot = snap
	}
	for _, e := range removes {
		s.removed = without(s.removed, e)
		s.forget(e)
	}
	if len(s.pending) > 0 || len(s.removed) > 0 {
		s.setState(StatePending)
	} else {
		s.setState(StateClean)
	}
	s.conn.logger.Infof("flushed %d inserts, %d updates, %d deletes", len(inserts), len(updated), len(removes))
	return nil
}

// insertOrder sorts pending entities so every owner precedes its dependents.
func (s *Session) insertOrder() []*entry {
	var (
		ordered []*entry
		visit   func(e *entry)
	)
	seen := map[*entry]bool{}
	visit = func(e *entry) {
		if seen[e] {
			return
		}
		seen[e] = true
		for _, owner := range s.ownersOf(e) {
			if owner.state == entityNew && owner != e {
				visit(owner)
			}
		}
		ordered = append(ordered, e)
	}
	for _, e := range s.pending {
		visit(e)
	}
	return ordered
}

func (s *Session) ownersOf(e *entry) []*entry {
	var owners []*entry
	for _, name := range e.schema.relationNames {
		rel := e.schema.relations[name]
		if rel.Kind != relationBelongsTo {
			continue
		}
		if owner, ok := s.ownerOf(e, rel); ok {
			if oe, tracked := s.tracked[owner.Interface()]; tracked {
				owners = append(owners, oe)
			}
		}
	}
	for _, oe := range e.linked {
		owners = append(owners, oe)
	}
	return owners
}

// deleteOrder sorts removed entities so dependents precede their owners.
func (s *Session) deleteOrder() []*entry {
	rank := map[*schema]int{}
	for i, sc := range s.conn.dependencyOrder() {
		rank[sc] = i
	}
	out := append([]*entry(nil), s.removed...)
	sort.SliceStable(out, func(i, j int) bool {
		return rank[out[i].schema] > rank[out[j].schema]
	})
	return out
}

func (s *Session) ownerOf(e *entry, rel *relation) (reflect.Value, bool) {
	if holder, ok := e.schema.holder(e.value(), rel); ok && !holder.IsNil() {
		return holder, true
	}
	if oe, ok := e.linked[rel.Name]; ok {
		return oe.ptr, true
	}
	return reflect.Value{}, false
}

// columnValue reads the value stored in column f of e. Foreign keys come
// from the referenced owner when there is one.
func (s *Session) columnValue(e *entry, f *field) (interface{}, error) {
	if f.relation != "" {
		rel := e.schema.relations[f.relation]
		if owner, ok := s.ownerOf(e, rel); ok {
			tf := rel.target.field(rel.TargetColumn)
			if tf == nil || tf.shadow {
				return nil, invalid(e.schema.typ.Name(), f.Name, "%s.%s is not a struct field", rel.TargetTable, rel.TargetColumn)
			}
			ov := owner.Elem().FieldByIndex(tf.index)
			var val interface{}
			if !ov.IsZero() {
				val = normalizeKey(ov.Interface())
			}
			if !f.shadow {
				if err := assign(e.value().FieldByIndex(f.index), val); err != nil {
					return nil, err
				}
			}
			return val, nil
		}
	}
	if oe, ok := e.linked["\x00"+f.Name]; ok {
		val := oe.schema.pkValue(oe.value())
		if !f.shadow {
			if err := assign(e.value().FieldByIndex(f.index), val); err != nil {
				return nil, err
			}
		}
		return val, nil
	}
	if f.shadow {
		return e.shadow[f.Name], nil
	}
	fv := e.value().FieldByIndex(f.index)
	if f.IsPK && fv.IsZero() {
		return nil, nil
	}
	return fv.Interface(), nil
}

func (s *Session) columnValues(e *entry, skipEmptyPK bool) ([]string, []interface{}, error) {
	var (
		cols []string
		vals []interface{}
	)
	for _, f := range e.schema.columns() {
		v, err := s.columnValue(e, f)
		if err != nil {
			return nil, nil, err
		}
		if f.IsPK && skipEmptyPK && v == nil {
			continue
		}
		cols = append(cols, f.Name)
		vals = append(vals, v)
	}
	return cols, vals, nil
}

// snapshot records driver values so in place changes behind pointers are detected.
func (s *Session) snapshot(e *entry) map[string]interface{} {
	cols, vals, err := s.columnValues(e, false)
	if err != nil {
		return nil
	}
	snap := make(map[string]interface{}, len(cols))
	for i, col := range cols {
		snap[col] = driverValue(vals[i])
	}
	return snap
}

func driverValue(v interface{}) interface{} {
	dv, err := driver.DefaultParameterConverter.ConvertValue(v)
	if err != nil {
		if valuer, ok := v.(driver.Valuer); ok {
			if dv, err = valuer.Value(); err == nil {
				return dv
			}
		}
		return v
	}
	return dv
}

func (s *Session) insert(ctx context.Context, tx *sql.Tx, e *entry, now time.Time) error {
	sc := e.schema
	d := s.conn.Dialect
	touchTimestamps(sc, e.value(), now, true)
	cols, vals, err := s.columnValues(e, true)
	if err != nil {
		return err
	}
	ins := qb.Insert{
		Table:   d.Quote(sc.Table),
		Columns: d.quoteAll(cols),
	}
	if len(cols) > 0 {
		ins.Values = [][]interface{}{vals}
	}
	if e.presetPK {
		q, args := ins.ToSql()
		_, err := s.conn.exec(ctx, tx, q, args...)
		return d.translateError(sc.Table, err)
	}

	var id interface{}
	if d.UseReturning {
		ins.Returning = d.Quote(sc.pkName())
		q, args := ins.ToSql()
		rows, err := s.conn.query(ctx, tx, q, args...)
		if err != nil {
			return d.translateError(sc.Table, err)
		}
		var key int64
		if rows.Next() {
			err = rows.Scan(&key)
		} else {
			err = rows.Err()
			if err == nil {
				err = fmt.Errorf("relorm: insert into %s returned no key", sc.Table)
			}
		}
		_ = rows.Close()
		if err != nil {
			return d.translateError(sc.Table, err)
		}
		id = key
	} else {
		q, args := ins.ToSql()
		res, err := s.conn.exec(ctx, tx, q, args...)
		if err != nil {
			return d.translateError(sc.Table, err)
		}
		key, err := res.LastInsertId()
		if err != nil {
			return err
		}
		id = key
	}
	return sc.setPK(e.value(), id)
}

func (s *Session) update(ctx context.Context, tx *sql.Tx, e *entry, now time.Time) (map[string]interface{}, bool, error) {
	sc := e.schema
	current := s.snapshot(e)
	var changed []string
	for _, col := range sc.columnNames() {
		if col == sc.pkName() {
			continue
		}
		if !reflect.DeepEqual(current[col], e.snapshot[col]) {
			changed = append(changed, col)
		}
	}
	if len(changed) == 0 {
		return nil, false, nil
	}
	if err := validateEntity(sc, e.value()); err != nil {
		return nil, false, err
	}
	if touchTimestamps(sc, e.value(), now, false) {
		current = s.snapshot(e)
		for _, f := range sc.columns() {
			if f.IsUpdatedAt && !contains(changed, f.Name) {
				changed = append(changed, f.Name)
			}
		}
	}
	d := s.conn.Dialect
	var set [][2]interface{}
	for _, col := range changed {
		set = append(set, [2]interface{}{d.Quote(col), current[col]})
	}
	q, args := qb.Update{
		Table: d.Quote(sc.Table),
		Set:   set,
		Where: &qb.Where{Conds: []qb.Expr{qb.Cond{Lhs: d.Quote(sc.pkName()), Op: qb.Eq, Rhs: e.key}}},
	}.ToSql()
	if _, err := s.conn.exec(ctx, tx, q, args...); err != nil {
		return nil, false, d.translateError(sc.Table, err)
	}
	s.conn.logger.Debugf("updated %s %v: %s", sc.Table, e.key, strings.Join(changed, ", "))
	return current, true, nil
}

func (s *Session) delete(ctx context.Context, tx *sql.Tx, e *entry) error {
	sc := e.schema
	d := s.conn.Dialect
	q, args := qb.Delete{
		From:  d.Quote(sc.Table),
		Where: &qb.Where{Conds: []qb.Expr{qb.Cond{Lhs: d.Quote(sc.pkName()), Op: qb.Eq, Rhs: e.key}}},
	}.ToSql()
	_, err := s.conn.exec(ctx, tx, q, args...)
	return d.translateError(sc.Table, err)
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
