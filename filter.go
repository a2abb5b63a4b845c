package relorm

import (
	"strings"

	"github.com/golobby/relorm/qb"
)

// Filter maps column or field names to expected values and relation names
// to nested Filters over the related rows.
//
//	relorm.Filter{"addresses": relorm.Filter{"type": "home"}}
//
// matches every root with at least one home address.
type Filter map[string]interface{}

// Operator compares a column with something other than equality.
type Operator struct {
	op    string
	value interface{}
}

func Eq(v interface{}) Operator   { return Operator{op: qb.Eq, value: v} }
func Ne(v interface{}) Operator   { return Operator{op: qb.NE, value: v} }
func Gt(v interface{}) Operator   { return Operator{op: qb.GT, value: v} }
func Ge(v interface{}) Operator   { return Operator{op: qb.GE, value: v} }
func Lt(v interface{}) Operator   { return Operator{op: qb.LT, value: v} }
func Le(v interface{}) Operator   { return Operator{op: qb.LE, value: v} }
func Like(pattern string) Operator { return Operator{op: qb.Like, value: pattern} }

func In(values ...interface{}) Operator {
	return Operator{op: qb.In, value: values}
}

// Order is a sort term. Path is a column of the root entity or
// "relation.column" for a column of related rows.
type Order struct {
	Path       string
	Descending bool
}

func Asc(path string) Order {
	return Order{Path: path}
}

func Desc(path string) Order {
	return Order{Path: path, Descending: true}
}

func (o Order) split() (relation, column string) {
	if i := strings.IndexByte(o.Path, '.'); i >= 0 {
		return o.Path[:i], o.Path[i+1:]
	}
	return "", o.Path
}

type FindOptions struct {
	OrderBy []Order
	// Limit caps the number of roots returned, zero means no limit.
	Limit  int
	Offset int
	// Populate names relations whose holders are filled after the query.
	Populate []string
}
