package fpp

import (
	"crypto/subtle"
	"encoding/json"
	"reflect"

	"fpp-app-layer/internal/domain"
)

// SafeCompare compares two strings, byte slices, slices or maps in constant time.
// Both operands must have the same type.
func SafeCompare(a, b any) (bool, error) {
	if reflect.TypeOf(a) != reflect.TypeOf(b) {
		return false, domain.NewError(domain.KindSafeCompare,
			"Mismatched data types provided: %T and %T", a, b)
	}
	if a == nil {
		return false, domain.NewError(domain.KindSafeCompare, "Cannot compare nil values")
	}

	var left, right []byte
	switch x := a.(type) {
	case string:
		left, right = []byte(x), []byte(b.(string))
	case []byte:
		left, right = x, b.([]byte)
	default:
		switch reflect.TypeOf(a).Kind() {
		case reflect.Slice, reflect.Array, reflect.Map:
		default:
			return false, domain.NewError(domain.KindSafeCompare, "Unsupported data type provided: %T", a)
		}
		var err error
		if left, err = json.Marshal(a); err != nil {
			return false, domain.WrapError(domain.KindSafeCompare, err, "Cannot compare values of type %T", a)
		}
		if right, err = json.Marshal(b); err != nil {
			return false, domain.WrapError(domain.KindSafeCompare, err, "Cannot compare values of type %T", b)
		}
	}

	return subtle.ConstantTimeCompare(left, right) == 1, nil
}
