package config

import (
	"reflect"
	"strconv"

	"github.com/pkg/errors"
)

// SetDefaults 为结构体设置默认值，基于 def tag
// 只有零值字段会被设置；*bool 等指针字段在为 nil 时分配并赋值，用于区分显式的 false
func SetDefaults(object any) error {
	if object == nil {
		return errors.New("object cannot be nil")
	}

	rv := reflect.ValueOf(object)
	if rv.Kind() != reflect.Ptr {
		return errors.New("object must be a pointer")
	}
	if rv.IsNil() {
		return errors.New("object cannot be nil")
	}

	return setDefaults(rv.Elem())
}

func setDefaults(rv reflect.Value) error {
	if rv.Kind() == reflect.Ptr {
		if rv.IsNil() {
			return nil
		}
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Struct {
		return nil
	}

	rt := rv.Type()
	for i := 0; i < rt.NumField(); i++ {
		field := rt.Field(i)
		fieldValue := rv.Field(i)
		if !fieldValue.CanSet() {
			continue
		}

		// 嵌套结构体与结构体切片递归处理
		switch {
		case fieldValue.Kind() == reflect.Struct,
			fieldValue.Kind() == reflect.Ptr && fieldValue.Type().Elem().Kind() == reflect.Struct:
			if err := setDefaults(fieldValue); err != nil {
				return errors.WithMessagef(err, "field %s", field.Name)
			}
		case fieldValue.Kind() == reflect.Slice:
			for j := 0; j < fieldValue.Len(); j++ {
				if err := setDefaults(fieldValue.Index(j)); err != nil {
					return errors.WithMessagef(err, "field %s[%d]", field.Name, j)
				}
			}
		}

		defTag, ok := field.Tag.Lookup("def")
		if !ok || !fieldValue.IsZero() {
			continue
		}

		if fieldValue.Kind() == reflect.Ptr {
			fieldValue.Set(reflect.New(fieldValue.Type().Elem()))
			fieldValue = fieldValue.Elem()
		}
		if err := setDefaultValue(fieldValue, defTag); err != nil {
			return errors.WithMessagef(err, "failed to set default value for field %s", field.Name)
		}
	}

	return nil
}

func setDefaultValue(rv reflect.Value, defValue string) error {
	switch rv.Kind() {
	case reflect.String:
		rv.SetString(defValue)
	case reflect.Bool:
		val, err := ParseBool(defValue)
		if err != nil {
			return err
		}
		rv.SetBool(val)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		val, err := strconv.ParseInt(defValue, 0, rv.Type().Bits())
		if err != nil {
			return errors.Errorf("invalid int value %q", defValue)
		}
		rv.SetInt(val)
	case reflect.Float32, reflect.Float64:
		val, err := strconv.ParseFloat(defValue, rv.Type().Bits())
		if err != nil {
			return errors.Errorf("invalid float value %q", defValue)
		}
		rv.SetFloat(val)
	default:
		return errors.Errorf("unsupported type %v", rv.Type())
	}
	return nil
}
