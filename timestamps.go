package relorm

import (
	"database/sql"
	"reflect"
	"time"
)

// Timestamps can be embedded to get created_at and updated_at columns
// maintained at flush.
type Timestamps struct {
	CreatedAt sql.NullTime
	UpdatedAt sql.NullTime
}

// touchTimestamps stamps created/updated fields of v and reports whether an
// updated field was set.
func touchTimestamps(sc *schema, v reflect.Value, now time.Time, inserting bool) bool {
	var touched bool
	for _, f := range sc.fields {
		if f.Virtual || f.shadow {
			continue
		}
		switch {
		case f.IsCreatedAt && inserting:
			fv := v.FieldByIndex(f.index)
			if fv.IsZero() || !validTime(fv) {
				setTime(fv, now)
			}
		case f.IsUpdatedAt:
			setTime(v.FieldByIndex(f.index), now)
			touched = true
		}
	}
	return touched
}

func validTime(fv reflect.Value) bool {
	if nt, ok := fv.Interface().(sql.NullTime); ok {
		return nt.Valid
	}
	return true
}

func setTime(fv reflect.Value, now time.Time) {
	switch fv.Type() {
	case timeType:
		fv.Set(reflect.ValueOf(now))
	case reflect.PtrTo(timeType):
		fv.Set(reflect.ValueOf(&now))
	case reflect.TypeOf(sql.NullTime{}):
		fv.Set(reflect.ValueOf(sql.NullTime{Time: now, Valid: true}))
	}
}
