package qb

import (
	"fmt"
	"strings"
)

type Update struct {
	Table string
	Set   [][2]interface{}
	Where *Where
}

func (u Update) ToSql() (string, []interface{}) {
	var pairs []string
	var args []interface{}
	for _, pair := range u.Set {
		pairs = append(pairs, fmt.Sprintf("%s = ?", pair[0]))
		args = append(args, pair[1])
	}
	base := fmt.Sprintf("UPDATE %s SET %s", u.Table, strings.Join(pairs, ", "))
	if !u.Where.empty() {
		where, whereArgs := u.Where.ToSql()
		base += " WHERE " + where
		args = append(args, whereArgs...)
	}
	return base, args
}
