package relorm

import (
	"errors"
	"reflect"

	"github.com/asaskevich/govalidator"
)

// structValidator runs govalidator over a flat copy of the column fields, so
// relation holders (which may point back at the entity) are never walked.
type structValidator struct {
	typ     reflect.Type
	indexes [][]int
}

func newStructValidator(fields []*field) *structValidator {
	var (
		sfs     []reflect.StructField
		indexes [][]int
	)
	for _, f := range fields {
		if f.Virtual || f.shadow || f.validTag == "" || f.validTag == "-" {
			continue
		}
		sfs = append(sfs, reflect.StructField{
			Name: f.GoName,
			Type: f.Type,
			Tag:  reflect.StructTag(`valid:"` + f.validTag + `"`),
		})
		indexes = append(indexes, f.index)
	}
	if len(sfs) == 0 {
		return nil
	}
	return &structValidator{typ: reflect.StructOf(sfs), indexes: indexes}
}

func (sv *structValidator) validate(v reflect.Value) error {
	flat := reflect.New(sv.typ).Elem()
	for i, index := range sv.indexes {
		flat.Field(i).Set(v.FieldByIndex(index))
	}
	_, err := govalidator.ValidateStruct(flat.Interface())
	return err
}

func validateEntity(sc *schema, v reflect.Value) error {
	if sc.validator == nil {
		return nil
	}
	err := sc.validator.validate(v)
	if err == nil {
		return nil
	}
	var errs govalidator.Errors
	if errors.As(err, &errs) && len(errs) > 0 {
		err = errs[0]
	}
	var fe govalidator.Error
	if errors.As(err, &fe) {
		return &ValidationError{Entity: sc.typ.Name(), Field: fe.Name, Reason: fe.Err.Error(), Err: err}
	}
	return &ValidationError{Entity: sc.typ.Name(), Reason: err.Error(), Err: err}
}
