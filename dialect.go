package relorm

import (
	"errors"
	"reflect"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/golobby/relorm/qb"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
)

type Dialect struct {
	DriverName   string
	Placeholder  qb.PlaceholderFunc
	IdentQuote   string
	UseReturning bool
	// NoLimit is the LIMIT value used when only an offset is requested.
	NoLimit        string
	PrimaryKeyType string
	DropCascade    bool
	// TypeNames maps a column kind (int, string, float, bool, time, bytes) to its DDL type.
	TypeNames map[string]string
	// ConstraintKind reports whether err is a constraint breach and which one.
	ConstraintKind func(err error) (ConstraintKind, bool)
	// OrderCollation makes string sort keys compare byte by byte. Empty when
	// the default collation already does.
	OrderCollation string
}

var Dialects = &struct {
	MySQL      *Dialect
	PostgreSQL *Dialect
	SQLite3    *Dialect
}{
	MySQL: &Dialect{
		DriverName:     "mysql",
		Placeholder:    qb.QuestionMark,
		IdentQuote:     "`",
		NoLimit:        "18446744073709551615",
		PrimaryKeyType: "BIGINT AUTO_INCREMENT PRIMARY KEY",
		TypeNames: map[string]string{
			"int": "BIGINT", "string": "VARCHAR(255)", "float": "DOUBLE",
			"bool": "BOOLEAN", "time": "DATETIME", "bytes": "BLOB",
		},
		ConstraintKind: mysqlConstraintKind,
		OrderCollation: "utf8mb4_bin",
	},
	PostgreSQL: &Dialect{
		DriverName:     "postgres",
		Placeholder:    qb.Dollar,
		IdentQuote:     `"`,
		UseReturning:   true,
		NoLimit:        "ALL",
		PrimaryKeyType: "BIGSERIAL PRIMARY KEY",
		DropCascade:    true,
		TypeNames: map[string]string{
			"int": "BIGINT", "string": "TEXT", "float": "DOUBLE PRECISION",
			"bool": "BOOLEAN", "time": "TIMESTAMP", "bytes": "BYTEA",
		},
		ConstraintKind: postgresConstraintKind,
		OrderCollation: `"C"`,
	},
	SQLite3: &Dialect{
		DriverName:     "sqlite3",
		Placeholder:    qb.QuestionMark,
		IdentQuote:     `"`,
		NoLimit:        "-1",
		PrimaryKeyType: "INTEGER PRIMARY KEY AUTOINCREMENT",
		TypeNames: map[string]string{
			"int": "INTEGER", "string": "TEXT", "float": "REAL",
			"bool": "BOOLEAN", "time": "DATETIME", "bytes": "BLOB",
		},
		ConstraintKind: sqliteConstraintKind,
	},
}

func getDialect(driver string) (*Dialect, error) {
	switch driver {
	case "mysql":
		return Dialects.MySQL, nil
	case "sqlite", "sqlite3":
		return Dialects.SQLite3, nil
	case "postgres", "postgresql":
		return Dialects.PostgreSQL, nil
	default:
		return nil, errors.New("relorm: no dialect matched with driver " + driver)
	}
}

// Quote quotes a table or column identifier.
func (d *Dialect) Quote(name string) string {
	return d.IdentQuote + strings.ReplaceAll(name, d.IdentQuote, d.IdentQuote+d.IdentQuote) + d.IdentQuote
}

// sortKey renders column as an ORDER BY key for a field of type t.
func (d *Dialect) sortKey(column string, t reflect.Type) string {
	if d.OrderCollation == "" || kindOf(t) != "string" {
		return column
	}
	return column + " COLLATE " + d.OrderCollation
}

func (d *Dialect) quoteAll(names []string) []string {
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = d.Quote(n)
	}
	return out
}

func (d *Dialect) rebind(query string) string {
	return qb.Rebind(query, d.Placeholder)
}

// translateError wraps constraint breaches in *ConstraintViolationError and
// returns every other error untouched.
func (d *Dialect) translateError(table string, err error) error {
	if err == nil || d.ConstraintKind == nil {
		return err
	}
	if kind, ok := d.ConstraintKind(err); ok {
		return &ConstraintViolationError{Table: table, Kind: kind, Err: err}
	}
	return err
}

var (
	timeType  = reflect.TypeOf(time.Time{})
	bytesType = reflect.TypeOf([]byte(nil))
	// database/sql Null* wrappers by type name.
	nullTypeKinds = map[string]string{
		"NullString": "string", "NullInt64": "int", "NullInt32": "int", "NullInt16": "int",
		"NullByte": "int", "NullFloat64": "float", "NullBool": "bool", "NullTime": "time",
	}
)

// kindOf maps a Go field type to a TypeNames key.
func kindOf(t reflect.Type) string {
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t.PkgPath() == "database/sql" {
		if k, ok := nullTypeKinds[t.Name()]; ok {
			return k
		}
	}
	if t == bytesType {
		return "bytes"
	}
	if t == timeType {
		return "time"
	}
	switch t.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return "int"
	case reflect.Float32, reflect.Float64:
		return "float"
	case reflect.Bool:
		return "bool"
	default:
		return "string"
	}
}

func sqliteConstraintKind(err error) (ConstraintKind, bool) {
	var se sqlite3.Error
	if !errors.As(err, &se) || se.Code != sqlite3.ErrConstraint {
		return "", false
	}
	switch se.ExtendedCode {
	case sqlite3.ErrConstraintUnique:
		return ConstraintUnique, true
	case sqlite3.ErrConstraintPrimaryKey:
		return ConstraintPrimaryKey, true
	case sqlite3.ErrConstraintForeignKey:
		return ConstraintForeignKey, true
	case sqlite3.ErrConstraintNotNull:
		return ConstraintNotNull, true
	default:
		return ConstraintCheck, true
	}
}

func postgresConstraintKind(err error) (ConstraintKind, bool) {
	var pe *pq.Error
	if !errors.As(err, &pe) || pe.Code.Class() != "23" {
		return "", false
	}
	switch pe.Code {
	case "23505":
		return ConstraintUnique, true
	case "23503":
		return ConstraintForeignKey, true
	case "23502":
		return ConstraintNotNull, true
	default:
		return ConstraintCheck, true
	}
}

func mysqlConstraintKind(err error) (ConstraintKind, bool) {
	var me *mysql.MySQLError
	if !errors.As(err, &me) {
		return "", false
	}
	switch me.Number {
	case 1062:
		return ConstraintUnique, true
	case 1451, 1452:
		return ConstraintForeignKey, true
	case 1048, 1364:
		return ConstraintNotNull, true
	case 3819:
		return ConstraintCheck, true
	default:
		return "", false
	}
}
