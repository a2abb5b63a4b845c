package qb

import (
	"fmt"
	"strings"
)

type Insert struct {
	Table     string
	Columns   []string
	Values    [][]interface{}
	Returning string
}

func (i Insert) flatValues() []interface{} {
	var values []interface{}
	for _, row := range i.Values {
		values = append(values, row...)
	}
	return values
}

func (i Insert) getValuesStr() string {
	var output []string
	for _, valueRow := range i.Values {
		output = append(output, fmt.Sprintf("(%s)", strings.Join(placeholders(len(valueRow)), ", ")))
	}
	return strings.Join(output, ", ")
}

func (i Insert) ToSql() (string, []interface{}) {
	var base string
	if len(i.Columns) == 0 {
		base = fmt.Sprintf("INSERT INTO %s DEFAULT VALUES", i.Table)
	} else {
		base = fmt.Sprintf("INSERT INTO %s (%s) VALUES %s",
			i.Table,
			strings.Join(i.Columns, ", "),
			i.getValuesStr(),
		)
	}
	if i.Returning != "" {
		base += " RETURNING " + i.Returning
	}
	return base, i.flatValues()
}
