package relorm

import (
	"fmt"
	"reflect"
	"sort"

	"github.com/golobby/relorm/qb"
)

const rootAlias = "e0"

// findCompiler turns a Filter and FindOptions into a single SELECT over the
// root table. Relation filters become EXISTS semi-joins so a root is never
// repeated, and ordering by a related column uses a correlated subquery that
// repeats the relation's filter: the sort key comes only from matching rows.
type findCompiler struct {
	conn    *Connection
	root    *schema
	aliases map[string]string
	preds   map[string][]qb.Expr
	// excluded root keys, rows removed in the session but not flushed yet.
	excluded []interface{}
}

func newFindCompiler(conn *Connection, root *schema) *findCompiler {
	return &findCompiler{
		conn:    conn,
		root:    root,
		aliases: map[string]string{},
		preds:   map[string][]qb.Expr{},
	}
}

// exclude leaves the roots with the given primary keys out of the result.
func (fc *findCompiler) exclude(keys []interface{}) *findCompiler {
	fc.excluded = append(fc.excluded, keys...)
	return fc
}

func (fc *findCompiler) quote(name string) string {
	return fc.conn.Dialect.Quote(name)
}

func (fc *findCompiler) column(alias, name string) string {
	return alias + "." + fc.quote(name)
}

func (fc *findCompiler) alias(relation string) string {
	if a, ok := fc.aliases[relation]; ok {
		return a
	}
	a := fmt.Sprintf("e%d", len(fc.aliases)+1)
	fc.aliases[relation] = a
	return a
}

func asFilter(v interface{}) (Filter, bool) {
	switch f := v.(type) {
	case Filter:
		return f, true
	case map[string]interface{}:
		return f, true
	}
	return nil, false
}

func sortedKeys(f Filter) []string {
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (fc *findCompiler) where(filter Filter) (*qb.Where, error) {
	where := &qb.Where{}
	for _, key := range sortedKeys(filter) {
		val := filter[key]
		rel, isRelation := fc.root.relation(key)
		if !isRelation {
			cond, err := fc.predicate(fc.root, rootAlias, key, val)
			if err != nil {
				return nil, err
			}
			where.And(cond)
			continue
		}
		nested, ok := asFilter(val)
		if !ok {
			cond, err := fc.referenceEquals(rel, val)
			if err != nil {
				return nil, err
			}
			where.And(cond)
			continue
		}
		alias := fc.alias(key)
		var preds []qb.Expr
		for _, nestedKey := range sortedKeys(nested) {
			if _, deeper := rel.target.relation(nestedKey); deeper {
				return nil, invalid(fc.root.typ.Name(), key+"."+nestedKey, "filters reach one relation level")
			}
			cond, err := fc.predicate(rel.target, alias, nestedKey, nested[nestedKey])
			if err != nil {
				return nil, err
			}
			preds = append(preds, cond)
		}
		fc.preds[key] = preds
		where.And(qb.Exists{Select: fc.related(rel, alias, "1")})
	}
	if len(fc.excluded) > 0 {
		where.And(qb.Cond{Lhs: fc.column(rootAlias, fc.root.pkName()), Op: qb.NotIn, Rhs: fc.excluded})
	}
	return where, nil
}

// referenceEquals matches a belongs-to relation against an owner instance.
func (fc *findCompiler) referenceEquals(rel *relation, val interface{}) (qb.Expr, error) {
	col := fc.column(rootAlias, rel.SourceColumn)
	if val == nil && rel.Kind == relationBelongsTo {
		return qb.Cond{Lhs: col, Op: qb.Eq}, nil
	}
	rv := reflect.ValueOf(val)
	if rel.Kind != relationBelongsTo || rv.Kind() != reflect.Ptr || rv.IsNil() || rv.Elem().Type() != rel.Target {
		return nil, invalid(fc.root.typ.Name(), rel.Name, "relation filters take a Filter or a %s", rel.Target.Name())
	}
	tf := rel.target.field(rel.TargetColumn)
	if tf == nil || tf.shadow {
		return nil, invalid(fc.root.typ.Name(), rel.Name, "cannot compare by %s", rel.TargetColumn)
	}
	key := rv.Elem().FieldByIndex(tf.index).Interface()
	return qb.Cond{Lhs: col, Op: qb.Eq, Rhs: key}, nil
}

func (fc *findCompiler) predicate(sc *schema, alias, key string, val interface{}) (qb.Expr, error) {
	f := sc.lookup(key)
	if f == nil {
		return nil, invalid(sc.typ.Name(), key, "unknown field")
	}
	col := fc.column(alias, f.Name)
	switch v := val.(type) {
	case Operator:
		if v.op == qb.In {
			return qb.Cond{Lhs: col, Op: qb.In, Rhs: v.value}, nil
		}
		if v.value == nil && v.op != qb.Eq && v.op != qb.NE {
			return nil, invalid(sc.typ.Name(), key, "%s needs a value", v.op)
		}
		return qb.Cond{Lhs: col, Op: v.op, Rhs: v.value}, nil
	case Filter, map[string]interface{}:
		return nil, invalid(sc.typ.Name(), key, "not a relation")
	default:
		return qb.Cond{Lhs: col, Op: qb.Eq, Rhs: val}, nil
	}
}

// related selects from rel's target rows joined to the current root row,
// narrowed by the relation's filter when there is one.
func (fc *findCompiler) related(rel *relation, alias string, selected string) qb.Select {
	where := &qb.Where{Conds: []qb.Expr{qb.Raw{
		SQL: fmt.Sprintf("%s = %s", fc.column(alias, rel.TargetColumn), fc.column(rootAlias, rel.SourceColumn)),
	}}}
	where.And(fc.preds[rel.Name]...)
	return qb.Select{
		Table:    fc.quote(rel.TargetTable),
		Alias:    alias,
		Selected: &qb.Selected{Columns: []string{selected}},
		Where:    where,
	}
}

func (fc *findCompiler) orderBy(orders []Order) (*qb.OrderBy, error) {
	ob := &qb.OrderBy{}
	pkOrdered := false
	for _, o := range orders {
		dir := qb.OrderByASC
		if o.Descending {
			dir = qb.OrderByDesc
		}
		relName, col := o.split()
		if relName == "" {
			f := fc.root.lookup(col)
			if f == nil {
				return nil, invalid(fc.root.typ.Name(), col, "unknown order field")
			}
			pkOrdered = pkOrdered || f.IsPK
			key := fc.conn.Dialect.sortKey(fc.column(rootAlias, f.Name), f.Type)
			ob.Terms = append(ob.Terms, qb.OrderTerm{Expr: qb.Column(key), Order: dir})
			continue
		}
		rel, ok := fc.root.relation(relName)
		if !ok {
			return nil, invalid(fc.root.typ.Name(), o.Path, "unknown relation")
		}
		f := rel.target.lookup(col)
		if f == nil {
			return nil, invalid(fc.root.typ.Name(), o.Path, "unknown order field")
		}
		alias := fc.alias(relName)
		aggregate := qb.Aggregators.Min
		if o.Descending {
			aggregate = qb.Aggregators.Max
		}
		sub := fc.related(rel, alias, aggregate(fc.conn.Dialect.sortKey(fc.column(alias, f.Name), f.Type)))
		ob.Terms = append(ob.Terms, qb.OrderTerm{Expr: qb.SubQuery{Select: sub}, Order: dir})
	}
	if !pkOrdered {
		ob.Terms = append(ob.Terms, qb.OrderTerm{Expr: qb.Column(fc.column(rootAlias, fc.root.pkName())), Order: qb.OrderByASC})
	}
	return ob, nil
}

func (fc *findCompiler) selectRoots(filter Filter, opts *FindOptions) (qb.Select, error) {
	where, err := fc.where(filter)
	if err != nil {
		return qb.Select{}, err
	}
	ob, err := fc.orderBy(opts.OrderBy)
	if err != nil {
		return qb.Select{}, err
	}
	var cols []string
	for _, name := range fc.root.columnNames() {
		cols = append(cols, fc.column(rootAlias, name))
	}
	sel := qb.Select{
		Table:    fc.quote(fc.root.Table),
		Alias:    rootAlias,
		Selected: &qb.Selected{Columns: cols},
		Where:    where,
		OrderBy:  ob,
		NoLimit:  fc.conn.Dialect.NoLimit,
	}
	if opts.Limit > 0 {
		sel.Limit = &qb.Limit{N: opts.Limit}
	}
	if opts.Offset > 0 {
		sel.Offset = &qb.Offset{N: opts.Offset}
	}
	return sel, nil
}

func (fc *findCompiler) countRoots(filter Filter) (qb.Select, error) {
	where, err := fc.where(filter)
	if err != nil {
		return qb.Select{}, err
	}
	return qb.Select{
		Table:    fc.quote(fc.root.Table),
		Alias:    rootAlias,
		Selected: &qb.Selected{Columns: []string{qb.Aggregators.Count("*")}},
		Where:    where,
	}, nil
}
