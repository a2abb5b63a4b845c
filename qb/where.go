package qb

import (
	"fmt"
	"strings"
)

const (
	Eq   = "="
	GT   = ">"
	LT   = "<"
	GE   = ">="
	LE   = "<="
	NE   = "!="
	Like  = "LIKE"
	In    = "IN"
	NotIn = "NOT IN"
)

// Expr is a SQL fragment with its bound arguments.
type Expr interface {
	ToSql() (string, []interface{})
}

// Cond is a binary comparison between a column and a bound value.
type Cond struct {
	Lhs string
	Op  string
	Rhs interface{}
}

func (b Cond) ToSql() (string, []interface{}) {
	switch {
	case b.Op == In || b.Op == NotIn:
		values, _ := b.Rhs.([]interface{})
		if len(values) == 0 {
			// IN () is not valid SQL: an empty set never matches, its negation always does.
			if b.Op == In {
				return "1 = 0", nil
			}
			return "1 = 1", nil
		}
		return fmt.Sprintf("%s %s (%s)", b.Lhs, b.Op, strings.Join(placeholders(len(values)), ", ")), values
	case b.Rhs == nil && b.Op == Eq:
		return fmt.Sprintf("%s IS NULL", b.Lhs), nil
	case b.Rhs == nil && b.Op == NE:
		return fmt.Sprintf("%s IS NOT NULL", b.Lhs), nil
	default:
		return fmt.Sprintf("%s %s ?", b.Lhs, b.Op), []interface{}{b.Rhs}
	}
}

// Raw is a verbatim fragment, used for column to column comparisons.
type Raw struct {
	SQL  string
	Args []interface{}
}

func (r Raw) ToSql() (string, []interface{}) {
	return r.SQL, r.Args
}

// Exists renders EXISTS (subquery). It panics when the subquery is
// malformed, which only a caller bug can cause.
type Exists struct {
	Select Select
}

func (e Exists) ToSql() (string, []interface{}) {
	sub, args := mustSelect(e.Select)
	return fmt.Sprintf("EXISTS (%s)", sub), args
}

// SubQuery renders a parenthesized scalar subquery.
type SubQuery struct {
	Select Select
}

func (s SubQuery) ToSql() (string, []interface{}) {
	sub, args := mustSelect(s.Select)
	return fmt.Sprintf("(%s)", sub), args
}

func mustSelect(s Select) (string, []interface{}) {
	sub, args, err := s.ToSql()
	if err != nil {
		panic(fmt.Sprintf("qb: subquery: %v", err))
	}
	return sub, args
}

// Where joins its conditions with AND.
type Where struct {
	Conds []Expr
}

func (w *Where) And(conds ...Expr) *Where {
	w.Conds = append(w.Conds, conds...)
	return w
}

func (w Where) ToSql() (string, []interface{}) {
	var parts []string
	var args []interface{}
	for _, c := range w.Conds {
		part, partArgs := c.ToSql()
		parts = append(parts, part)
		args = append(args, partArgs...)
	}
	return strings.Join(parts, " AND "), args
}

func (w *Where) empty() bool {
	return w == nil || len(w.Conds) == 0
}
