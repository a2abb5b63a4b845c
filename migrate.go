package relorm

import (
	"context"
	"fmt"
	"strings"
)

// RefreshDatabase drops and recreates the tables of every registered entity.
// Existing rows are lost.
func (c *Connection) RefreshDatabase(ctx context.Context) error {
	order := c.dependencyOrder()
	for i := len(order) - 1; i >= 0; i-- {
		if _, err := c.exec(ctx, c.DB, c.dropTableSQL(order[i])); err != nil {
			return fmt.Errorf("relorm: drop %s: %w", order[i].Table, err)
		}
	}
	for _, sc := range order {
		if _, err := c.exec(ctx, c.DB, c.createTableSQL(sc)); err != nil {
			return fmt.Errorf("relorm: create %s: %w", sc.Table, err)
		}
	}
	c.logger.Infof("refreshed %d tables on %s", len(order), c.Name)
	return nil
}

func (c *Connection) dropTableSQL(sc *schema) string {
	q := "DROP TABLE IF EXISTS " + c.Dialect.Quote(sc.Table)
	if c.Dialect.DropCascade {
		q += " CASCADE"
	}
	return q
}

func (c *Connection) createTableSQL(sc *schema) string {
	d := c.Dialect
	var defs []string
	for _, f := range sc.columns() {
		kind := kindOf(f.Type)
		if f.IsPK {
			if kind == "int" {
				defs = append(defs, d.Quote(f.Name)+" "+d.PrimaryKeyType)
			} else {
				defs = append(defs, d.Quote(f.Name)+" "+d.TypeNames[kind]+" PRIMARY KEY")
			}
			continue
		}
		def := d.Quote(f.Name) + " " + d.TypeNames[kind]
		if !f.Nullable {
			def += " NOT NULL"
		}
		if f.IsUnique {
			def += " UNIQUE"
		}
		defs = append(defs, def)
	}
	for _, name := range sc.relationNames {
		rel := sc.relations[name]
		if rel.Kind != relationBelongsTo {
			continue
		}
		defs = append(defs, fmt.Sprintf("FOREIGN KEY (%s) REFERENCES %s (%s)",
			d.Quote(rel.SourceColumn), d.Quote(rel.TargetTable), d.Quote(rel.TargetColumn)))
	}
	return fmt.Sprintf("CREATE TABLE %s (%s)", d.Quote(sc.Table), strings.Join(defs, ", "))
}
