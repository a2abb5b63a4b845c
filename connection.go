package relorm

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"reflect"

	"github.com/jedib0t/go-pretty/table"
)

type Connection struct {
	Name    string
	Dialect *Dialect
	DB      *sql.DB
	logger  Logger
	debug   bool
	// schemas keeps registration order, byType is keyed by typeKey.
	schemas []*schema
	byType  map[string]*schema
	byTable map[string]*schema
}

func typeKey(t reflect.Type) string {
	return t.PkgPath() + "." + t.Name()
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func (c *Connection) Logger() Logger {
	return c.logger
}

// Session starts a new unit of work on this connection.
func (c *Connection) Session() *Session {
	return newSession(c)
}

func (c *Connection) Close() error {
	return c.DB.Close()
}

func (c *Connection) resolveRelations() error {
	for _, s := range c.schemas {
		for _, name := range s.relationNames {
			rel := s.relations[name]
			target, ok := c.byType[typeKey(rel.Target)]
			if !ok {
				return fmt.Errorf("%w: %s referenced by %s.%s", ErrUnknownEntity, rel.Target.Name(), s.Table, name)
			}
			rel.target = target
			if rel.Kind == relationBelongsTo {
				if rel.TargetColumn == "" {
					rel.TargetColumn = target.pkName()
				}
				tf := target.field(rel.TargetColumn)
				if tf == nil {
					return invalid(s.typ.Name(), name, "%s has no column %s", target.Table, rel.TargetColumn)
				}
				if f := s.field(rel.SourceColumn); f != nil && f.shadow {
					f.Type = tf.Type
				}
				continue
			}
			if rel.SourceColumn == "" {
				rel.SourceColumn = s.pkName()
			}
			if target.field(rel.TargetColumn) == nil {
				return invalid(s.typ.Name(), name, "%s has no column %s, declare a BelongsTo on %s",
					target.Table, rel.TargetColumn, target.typ.Name())
			}
		}
	}
	return nil
}

func (c *Connection) schemaFor(t reflect.Type) (*schema, error) {
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	s, ok := c.byType[typeKey(t)]
	if !ok {
		return nil, fmt.Errorf("%w: %s on connection %s", ErrUnknownEntity, t.Name(), c.Name)
	}
	return s, nil
}

// dependencyOrder returns schemas with owners before the entities that belong to them.
func (c *Connection) dependencyOrder() []*schema {
	var (
		ordered []*schema
		visit   func(s *schema)
	)
	state := map[*schema]int{}
	visit = func(s *schema) {
		if state[s] != 0 {
			return
		}
		state[s] = 1
		for _, name := range s.relationNames {
			rel := s.relations[name]
			if rel.Kind == relationBelongsTo && rel.target != s {
				visit(rel.target)
			}
		}
		state[s] = 2
		ordered = append(ordered, s)
	}
	for _, s := range c.schemas {
		visit(s)
	}
	return ordered
}

func (c *Connection) logQuery(query string, args []interface{}) {
	if c.debug {
		c.logger.Debugf("%s %v", query, args)
	}
}

func (c *Connection) exec(ctx context.Context, q querier, query string, args ...interface{}) (sql.Result, error) {
	query = c.Dialect.rebind(query)
	c.logQuery(query, args)
	return q.ExecContext(ctx, query, args...)
}

func (c *Connection) query(ctx context.Context, q querier, query string, args ...interface{}) (*sql.Rows, error) {
	query = c.Dialect.rebind(query)
	c.logQuery(query, args)
	return q.QueryContext(ctx, query, args...)
}

// transaction runs fn in a transaction, rolled back when fn fails or panics.
func (c *Connection) transaction(ctx context.Context, fn func(tx *sql.Tx) error) (err error) {
	tx, err := c.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				c.logger.Errorf("rollback failed: %v", rbErr)
			}
		}
	}()
	if err = fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

func (c *Connection) Schematic() {
	c.WriteSchematic(nil)
}

// WriteSchematic renders every schema as a table, defaulting to stdout.
func (c *Connection) WriteSchematic(out io.Writer) {
	if out == nil {
		out = os.Stdout
	}
	fmt.Fprintf(out, "SQL Dialect: %s\n", c.Dialect.DriverName)
	for _, s := range c.schemas {
		fmt.Fprintf(out, "Table: %s\n", s.Table)
		w := table.NewWriter()
		w.AppendHeader(table.Row{"SQL Name", "Type", "Is Primary Key", "Is Unique", "Is Nullable", "Relation"})
		for _, f := range s.columns() {
			w.AppendRow(table.Row{f.Name, f.Type, f.IsPK, f.IsUnique, f.Nullable, f.relation})
		}
		fmt.Fprintln(out, w.Render())
		for _, name := range s.relationNames {
			rel := s.relations[name]
			fmt.Fprintf(out, "%s %s %s => %s.%s = %s.%s\n", s.Table, rel.Kind, rel.TargetTable,
				rel.TargetTable, rel.TargetColumn, s.Table, rel.SourceColumn)
		}
		fmt.Fprintln(out, "")
	}
}
