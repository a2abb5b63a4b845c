package relorm

import (
	"reflect"

	"github.com/gertd/go-pluralize"
)

var pluralizer = pluralize.NewClient()

type EntityConfigurator struct {
	connection        string
	table             string
	this              Entity
	relations         map[string]*relation
	relationNames     []string
	resolveRelations  []func() error
	columnConstraints []*FieldConfigurator
}

func newEntityConfigurator() *EntityConfigurator {
	return &EntityConfigurator{}
}

func (ec *EntityConfigurator) Table(name string) *EntityConfigurator {
	ec.table = name
	return ec
}

func (ec *EntityConfigurator) Connection(name string) *EntityConfigurator {
	ec.connection = name
	return ec
}

type HasManyConfig struct {
	// Name is the association name used in filters and order paths,
	// defaults to PropertyTable.
	Name               string
	PropertyTable      string
	PropertyForeignKey string
	// Field is the slice field holding the collection, inferred from its type.
	Field string
}

type HasOneConfig struct {
	Name               string
	PropertyTable      string
	PropertyForeignKey string
	Field              string
}

type BelongsToConfig struct {
	// Name defaults to the singular owner table.
	Name              string
	OwnerTable        string
	LocalForeignKey   string
	ForeignColumnName string
	Field             string
}

func (ec *EntityConfigurator) addRelation(rel *relation) {
	if ec.relations == nil {
		ec.relations = map[string]*relation{}
	}
	if _, exists := ec.relations[rel.Name]; !exists {
		ec.relationNames = append(ec.relationNames, rel.Name)
	}
	ec.relations[rel.Name] = rel
}

func (ec *EntityConfigurator) HasMany(property Entity, config HasManyConfig) *EntityConfigurator {
	ec.resolveRelations = append(ec.resolveRelations, func() error {
		target := entityType(property)
		if config.PropertyTable == "" {
			config.PropertyTable = tableNameOf(property)
		}
		if config.PropertyForeignKey == "" {
			config.PropertyForeignKey = pluralizer.Singular(ec.table) + "_id"
		}
		if config.Name == "" {
			config.Name = config.PropertyTable
		}
		holder, err := holderField(ec.this, config.Field, target, reflect.Slice)
		if err != nil {
			return err
		}
		ec.addRelation(&relation{
			Name:         config.Name,
			Kind:         relationHasMany,
			Target:       target,
			TargetTable:  config.PropertyTable,
			TargetColumn: config.PropertyForeignKey,
			holder:       holder,
		})
		return nil
	})
	return ec
}

func (ec *EntityConfigurator) HasOne(property Entity, config HasOneConfig) *EntityConfigurator {
	ec.resolveRelations = append(ec.resolveRelations, func() error {
		target := entityType(property)
		if config.PropertyTable == "" {
			config.PropertyTable = tableNameOf(property)
		}
		if config.PropertyForeignKey == "" {
			config.PropertyForeignKey = pluralizer.Singular(ec.table) + "_id"
		}
		if config.Name == "" {
			config.Name = pluralizer.Singular(config.PropertyTable)
		}
		holder, err := holderField(ec.this, config.Field, target, reflect.Ptr)
		if err != nil {
			return err
		}
		ec.addRelation(&relation{
			Name:         config.Name,
			Kind:         relationHasOne,
			Target:       target,
			TargetTable:  config.PropertyTable,
			TargetColumn: config.PropertyForeignKey,
			holder:       holder,
		})
		return nil
	})
	return ec
}

func (ec *EntityConfigurator) BelongsTo(owner Entity, config BelongsToConfig) *EntityConfigurator {
	ec.resolveRelations = append(ec.resolveRelations, func() error {
		target := entityType(owner)
		if config.OwnerTable == "" {
			config.OwnerTable = tableNameOf(owner)
		}
		if config.LocalForeignKey == "" {
			config.LocalForeignKey = pluralizer.Singular(config.OwnerTable) + "_id"
		}
		if config.Name == "" {
			config.Name = pluralizer.Singular(config.OwnerTable)
		}
		holder, err := holderField(ec.this, config.Field, target, reflect.Ptr)
		if err != nil {
			return err
		}
		ec.addRelation(&relation{
			Name:         config.Name,
			Kind:         relationBelongsTo,
			Target:       target,
			TargetTable:  config.OwnerTable,
			TargetColumn: config.ForeignColumnName,
			SourceColumn: config.LocalForeignKey,
			holder:       holder,
		})
		return nil
	})
	return ec
}

type FieldConfigurator struct {
	fieldName   string
	nullable    bool
	primaryKey  bool
	unique      bool
	column      string
	isCreatedAt bool
	isUpdatedAt bool
}

// Field configures the struct field with the given Go name.
func (ec *EntityConfigurator) Field(name string) *FieldConfigurator {
	cc := &FieldConfigurator{fieldName: name}
	ec.columnConstraints = append(ec.columnConstraints, cc)
	return cc
}

func (fc *FieldConfigurator) IsPrimaryKey() *FieldConfigurator {
	fc.primaryKey = true
	return fc
}

func (fc *FieldConfigurator) IsUnique() *FieldConfigurator {
	fc.unique = true
	return fc
}

func (fc *FieldConfigurator) IsNullable() *FieldConfigurator {
	fc.nullable = true
	return fc
}

func (fc *FieldConfigurator) IsCreatedAt() *FieldConfigurator {
	fc.isCreatedAt = true
	return fc
}

func (fc *FieldConfigurator) IsUpdatedAt() *FieldConfigurator {
	fc.isUpdatedAt = true
	return fc
}

func (fc *FieldConfigurator) ColumnName(name string) *FieldConfigurator {
	fc.column = name
	return fc
}
