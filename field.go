package relorm

import (
	"database/sql/driver"
	"reflect"
	"strings"

	"github.com/iancoleman/strcase"
)

type field struct {
	Name        string
	GoName      string
	IsPK        bool
	IsUnique    bool
	Nullable    bool
	IsCreatedAt bool
	IsUpdatedAt bool
	Virtual     bool
	Type        reflect.Type
	index       []int
	validTag    string
	// relation names the belongs-to association this column is the foreign key of.
	relation string
	// shadow columns have no struct field, their value comes from the relation holder.
	shadow bool
}

type fieldTag struct {
	Name     string
	PK       bool
	Unique   bool
	Nullable bool
	Virtual  bool
}

// fieldMetadataFromTag parses `orm:"col=name pk unique nullable"`.
func fieldMetadataFromTag(t string) fieldTag {
	var tag fieldTag
	for _, tuple := range strings.Fields(t) {
		key, value, _ := strings.Cut(tuple, "=")
		switch key {
		case "col":
			tag.Name = value
		case "pk":
			tag.PK = true
		case "unique":
			tag.Unique = true
		case "nullable":
			tag.Nullable = true
		}
		if tag.Name == "_" {
			tag.Virtual = true
		}
	}
	return tag
}

func getFieldConfiguratorFor(fieldConfigurators []*FieldConfigurator, name string) *FieldConfigurator {
	for _, fc := range fieldConfigurators {
		if fc.fieldName == name {
			return fc
		}
	}
	return &FieldConfigurator{}
}

var valuerType = reflect.TypeOf((*driver.Valuer)(nil)).Elem()

// isScalarStruct reports struct types stored in a single column.
func isScalarStruct(t reflect.Type) bool {
	return t == timeType || t.Implements(valuerType) || reflect.PtrTo(t).Implements(valuerType)
}

// isRelationHolder reports types that can only hold related entities.
func isRelationHolder(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Slice:
		return t != bytesType
	case reflect.Ptr:
		return t.Elem().Kind() == reflect.Struct && !isScalarStruct(t.Elem())
	case reflect.Struct:
		return !isScalarStruct(t)
	case reflect.Map, reflect.Func, reflect.Chan, reflect.Interface:
		return true
	}
	return false
}

func isNullableType(t reflect.Type) bool {
	if t.Kind() == reflect.Ptr {
		return true
	}
	return t.PkgPath() == "database/sql" && strings.HasPrefix(t.Name(), "Null")
}

func fieldsOf(t reflect.Type, fieldConfigurators []*FieldConfigurator, parent []int) []*field {
	var fms []*field
	for i := 0; i < t.NumField(); i++ {
		ft := t.Field(i)
		if !ft.IsExported() {
			continue
		}
		index := append(append([]int{}, parent...), i)
		if ft.Anonymous && ft.Type.Kind() == reflect.Struct && !isScalarStruct(ft.Type) {
			fms = append(fms, fieldsOf(ft.Type, fieldConfigurators, index)...)
			continue
		}

		fc := getFieldConfiguratorFor(fieldConfigurators, ft.Name)
		tag := fieldMetadataFromTag(ft.Tag.Get("orm"))
		fm := &field{
			GoName:   ft.Name,
			Type:     ft.Type,
			index:    index,
			validTag: ft.Tag.Get("valid"),
		}
		switch {
		case fc.column != "":
			fm.Name = fc.column
		case tag.Name != "" && !tag.Virtual:
			fm.Name = tag.Name
		default:
			fm.Name = strcase.ToSnake(ft.Name)
		}
		fm.IsPK = strings.ToLower(ft.Name) == "id" || fc.primaryKey || tag.PK
		fm.IsUnique = fc.unique || tag.Unique
		fm.Nullable = fc.nullable || tag.Nullable || isNullableType(ft.Type)
		fm.IsCreatedAt = ft.Name == "CreatedAt" || fc.isCreatedAt
		fm.IsUpdatedAt = ft.Name == "UpdatedAt" || fc.isUpdatedAt
		fm.Virtual = tag.Virtual || isRelationHolder(ft.Type)
		fms = append(fms, fm)
	}
	return fms
}
