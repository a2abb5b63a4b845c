package qb

import (
	"fmt"
	"strings"
)

const (
	OrderByASC  = "ASC"
	OrderByDesc = "DESC"
)

type OrderTerm struct {
	Expr  Expr
	Order string
}

type OrderBy struct {
	Terms []OrderTerm
}

func (o OrderBy) ToSql() (string, []interface{}) {
	var parts []string
	var args []interface{}
	for _, term := range o.Terms {
		expr, exprArgs := term.Expr.ToSql()
		parts = append(parts, fmt.Sprintf("%s %s", expr, term.Order))
		args = append(args, exprArgs...)
	}
	return "ORDER BY " + strings.Join(parts, ", "), args
}

// Column is an unbound column reference usable as an Expr.
type Column string

func (c Column) ToSql() (string, []interface{}) {
	return string(c), nil
}

type Limit struct {
	N int
}

func (l Limit) String() string {
	return fmt.Sprintf("LIMIT %d", l.N)
}

type Offset struct {
	N int
}

func (o Offset) String() string {
	return fmt.Sprintf("OFFSET %d", o.N)
}

type Selected struct {
	Columns []string
}

func (s Selected) String() string {
	return strings.Join(s.Columns, ", ")
}

type Select struct {
	Table    string
	Alias    string
	Selected *Selected
	Where    *Where
	OrderBy  *OrderBy
	Limit    *Limit
	Offset   *Offset
	// NoLimit is emitted as the LIMIT value when only an offset is set,
	// for engines that reject OFFSET without LIMIT.
	NoLimit string
}

func (s Select) ToSql() (string, []interface{}, error) {
	base := "SELECT"
	var args []interface{}
	if s.Selected == nil {
		s.Selected = &Selected{
			Columns: []string{"*"},
		}
	}
	base += " " + s.Selected.String()

	if s.Table == "" {
		return "", nil, fmt.Errorf("table name cannot be empty")
	}
	base += " FROM " + s.Table
	if s.Alias != "" {
		base += " AS " + s.Alias
	}

	if !s.Where.empty() {
		where, whereArgs := s.Where.ToSql()
		base += " WHERE " + where
		args = append(args, whereArgs...)
	}

	if s.OrderBy != nil && len(s.OrderBy.Terms) > 0 {
		orderBy, orderArgs := s.OrderBy.ToSql()
		base += " " + orderBy
		args = append(args, orderArgs...)
	}

	if s.Limit != nil {
		base += " " + s.Limit.String()
	} else if s.Offset != nil && s.NoLimit != "" {
		base += " LIMIT " + s.NoLimit
	}

	if s.Offset != nil {
		base += " " + s.Offset.String()
	}

	return base, args, nil
}
