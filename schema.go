package relorm

import (
	"fmt"
	"reflect"

	"github.com/iancoleman/strcase"
)

type relationKind int

const (
	relationHasMany relationKind = iota + 1
	relationHasOne
	relationBelongsTo
)

func (k relationKind) String() string {
	switch k {
	case relationHasMany:
		return "1-N"
	case relationHasOne:
		return "1-1"
	case relationBelongsTo:
		return "N-1"
	}
	return "?"
}

// relation joins a row of the declaring table to rows of TargetTable where
// TargetTable.TargetColumn equals the declaring row's SourceColumn.
type relation struct {
	Name         string
	Kind         relationKind
	Target       reflect.Type
	TargetTable  string
	TargetColumn string
	SourceColumn string
	holder       []int
	target       *schema
}

func (r *relation) isCollection() bool {
	return r.Kind == relationHasMany
}

type schema struct {
	Connection    string
	Table         string
	typ           reflect.Type
	fields        []*field
	relations     map[string]*relation
	relationNames []string
	validator     *structValidator
}

func entityType(e Entity) reflect.Type {
	t := reflect.TypeOf(e)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t
}

func tableNameOf(e Entity) string {
	configurator := newEntityConfigurator()
	e.ConfigureEntity(configurator)
	if configurator.table != "" {
		return configurator.table
	}
	return pluralizer.Plural(strcase.ToSnake(entityType(e).Name()))
}

// holderField finds the struct field holding related entities of target.
// With an explicit name the field must exist, otherwise the first field of
// a matching shape is used and a missing holder is not an error.
func holderField(this Entity, name string, target reflect.Type, kind reflect.Kind) ([]int, error) {
	t := entityType(this)
	matches := func(ft reflect.Type) bool {
		if ft.Kind() != kind {
			return false
		}
		elem := ft.Elem()
		if kind == reflect.Slice && elem.Kind() == reflect.Ptr {
			elem = elem.Elem()
		}
		return elem == target
	}
	if name != "" {
		sf, ok := t.FieldByName(name)
		if !ok {
			return nil, invalid(t.Name(), name, "no such field")
		}
		if !matches(sf.Type) {
			return nil, invalid(t.Name(), name, "cannot hold %s", target.Name())
		}
		return sf.Index, nil
	}
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		if sf.IsExported() && matches(sf.Type) {
			return sf.Index, nil
		}
	}
	return nil, nil
}

func schemaOf(v Entity) (*schema, error) {
	configurator := newEntityConfigurator()
	configurator.this = v
	v.ConfigureEntity(configurator)

	s := &schema{typ: entityType(v)}
	if s.typ.Kind() != reflect.Struct {
		return nil, invalid(s.typ.String(), "", "entities must be structs")
	}
	s.Table = tableNameOf(v)
	configurator.table = s.Table
	s.Connection = configurator.connection
	if s.Connection == "" {
		s.Connection = "default"
	}
	s.fields = fieldsOf(s.typ, configurator.columnConstraints, nil)

	for _, resolve := range configurator.resolveRelations {
		if err := resolve(); err != nil {
			return nil, err
		}
	}
	s.relations = configurator.relations
	s.relationNames = configurator.relationNames

	for _, name := range s.relationNames {
		rel := s.relations[name]
		if rel.Kind != relationBelongsTo {
			continue
		}
		f := s.field(rel.SourceColumn)
		if f == nil {
			f = &field{Name: rel.SourceColumn, Type: int64Type, shadow: true}
			s.fields = append(s.fields, f)
		}
		f.relation = rel.Name
	}

	var pks int
	for _, f := range s.fields {
		if f.IsPK {
			pks++
		}
	}
	if pks != 1 {
		return nil, invalid(s.typ.Name(), "", "expected exactly one primary key, found %d", pks)
	}
	s.validator = newStructValidator(s.fields)
	return s, nil
}

var int64Type = reflect.TypeOf(int64(0))

// columns returns the persisted fields in declaration order.
func (s *schema) columns() []*field {
	var cols []*field
	for _, f := range s.fields {
		if !f.Virtual {
			cols = append(cols, f)
		}
	}
	return cols
}

func (s *schema) columnNames() []string {
	var names []string
	for _, f := range s.columns() {
		names = append(names, f.Name)
	}
	return names
}

func (s *schema) field(column string) *field {
	for _, f := range s.fields {
		if !f.Virtual && f.Name == column {
			return f
		}
	}
	return nil
}

// lookup resolves a user supplied key: column name, Go field name or its snake case.
func (s *schema) lookup(key string) *field {
	if f := s.field(key); f != nil {
		return f
	}
	snake := strcase.ToSnake(key)
	for _, f := range s.fields {
		if f.Virtual {
			continue
		}
		if f.GoName == key || f.Name == snake {
			return f
		}
	}
	return nil
}

func (s *schema) relation(name string) (*relation, bool) {
	rel, ok := s.relations[name]
	return rel, ok
}

func (s *schema) pk() *field {
	for _, f := range s.fields {
		if f.IsPK {
			return f
		}
	}
	return nil
}

func (s *schema) pkName() string {
	return s.pk().Name
}

// pkValue returns the primary key of v, a struct value, or nil when unset.
func (s *schema) pkValue(v reflect.Value) interface{} {
	fv := v.FieldByIndex(s.pk().index)
	if fv.IsZero() {
		return nil
	}
	return normalizeKey(fv.Interface())
}

func (s *schema) setPK(v reflect.Value, id interface{}) error {
	fv := v.FieldByIndex(s.pk().index)
	if id == nil {
		fv.Set(reflect.Zero(fv.Type()))
		return nil
	}
	rv := reflect.ValueOf(id)
	if !rv.Type().ConvertibleTo(fv.Type()) {
		return fmt.Errorf("relorm: cannot assign key %v to %s.%s", id, s.typ.Name(), s.pk().GoName)
	}
	fv.Set(rv.Convert(fv.Type()))
	return nil
}

// normalizeKey makes keys scanned by different drivers comparable in maps.
func normalizeKey(v interface{}) interface{} {
	switch k := v.(type) {
	case int:
		return int64(k)
	case int32:
		return int64(k)
	case uint:
		return int64(k)
	case uint32:
		return int64(k)
	case uint64:
		return int64(k)
	case []byte:
		return string(k)
	}
	return v
}

func (s *schema) holder(v reflect.Value, rel *relation) (reflect.Value, bool) {
	if rel.holder == nil {
		return reflect.Value{}, false
	}
	return v.FieldByIndex(rel.holder), true
}

func (s *schema) String() string {
	return s.Table
}
