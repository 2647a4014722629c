package utils

import (
	"reflect"
	"strings"
)

// NormalizePtrDTO trims *string fields and rounds *float64 money fields on a pointer-to-struct DTO.
// Nil pointers stay nil so GORM won't update them. Fields tagged `normalize:"-"` are left as is
// (rates and quantities are not money).
func NormalizePtrDTO(dto any) {
	s, ok := structElem(dto)
	if !ok {
		return
	}
	t := s.Type()
	for i := 0; i < s.NumField(); i++ {
		f := s.Field(i)
		if f.Kind() != reflect.Ptr || f.IsNil() || skipNormalize(t.Field(i)) {
			continue
		}
		normalizeValue(f.Elem())
	}
}

// NormalizeDTO trims string fields and rounds float64 money fields on a pointer-to-struct DTO.
// Used for create DTOs with non-pointer fields.
func NormalizeDTO(dto any) {
	s, ok := structElem(dto)
	if !ok {
		return
	}
	t := s.Type()
	for i := 0; i < s.NumField(); i++ {
		if skipNormalize(t.Field(i)) {
			continue
		}
		normalizeValue(s.Field(i))
	}
}

func normalizeValue(v reflect.Value) {
	if !v.CanSet() {
		return
	}
	switch v.Kind() {
	case reflect.String:
		v.SetString(strings.TrimSpace(v.String()))
	case reflect.Float64:
		v.SetFloat(Round2(v.Float()))
	}
}

func structElem(dto any) (reflect.Value, bool) {
	v := reflect.ValueOf(dto)
	if v.Kind() != reflect.Ptr || v.IsNil() {
		return reflect.Value{}, false
	}
	s := v.Elem()
	return s, s.Kind() == reflect.Struct
}

func skipNormalize(sf reflect.StructField) bool {
	return sf.Tag.Get("normalize") == "-"
}
