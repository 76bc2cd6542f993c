package config

import (
	"encoding"
	"reflect"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// ParseBool 解析 YES/NO、TRUE/FALSE、ON/OFF、1/0，大小写不敏感
func ParseBool(s string) (bool, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "YES", "TRUE", "ON", "1", "Y":
		return true, nil
	case "NO", "FALSE", "OFF", "0", "N":
		return false, nil
	default:
		return false, errors.Errorf("invalid bool value %q", s)
	}
}

// ParseOptionStrings 解析 KEY=VALUE 列表，键统一转为大写，后出现的同名键覆盖前者
func ParseOptionStrings(items []string) (map[string]string, error) {
	options := make(map[string]string, len(items))
	for _, item := range items {
		key, value, ok := strings.Cut(item, "=")
		key = strings.ToUpper(strings.TrimSpace(key))
		if !ok || key == "" {
			return nil, errors.Errorf("invalid option %q, expected KEY=VALUE", item)
		}
		options[key] = value
	}
	return options, nil
}

var textUnmarshalerType = reflect.TypeOf((*encoding.TextUnmarshaler)(nil)).Elem()

// Bind 将选项写入结构体中带 opt tag 的字段，未知的键返回错误
func Bind(options map[string]string, object any) error {
	rv := reflect.ValueOf(object)
	if rv.Kind() != reflect.Ptr || rv.IsNil() || rv.Elem().Kind() != reflect.Struct {
		return errors.New("object must be a non-nil pointer to struct")
	}
	rv = rv.Elem()
	rt := rv.Type()

	used := make(map[string]bool, len(options))
	for i := 0; i < rt.NumField(); i++ {
		key := rt.Field(i).Tag.Get("opt")
		if key == "" || key == "-" {
			continue
		}
		value, ok := options[key]
		if !ok {
			continue
		}
		used[key] = true
		if err := bindValue(rv.Field(i), value); err != nil {
			return errors.WithMessagef(err, "option %s", key)
		}
	}

	var unknown []string
	for key := range options {
		if !used[key] {
			unknown = append(unknown, key)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return errors.Errorf("unknown options: %s", strings.Join(unknown, ", "))
	}
	return nil
}

func bindValue(fv reflect.Value, value string) error {
	if fv.CanAddr() && fv.Addr().Type().Implements(textUnmarshalerType) {
		return fv.Addr().Interface().(encoding.TextUnmarshaler).UnmarshalText([]byte(value))
	}

	if fv.Kind() == reflect.Ptr {
		elem := reflect.New(fv.Type().Elem())
		if err := bindValue(elem.Elem(), value); err != nil {
			return err
		}
		fv.Set(elem)
		return nil
	}

	switch fv.Kind() {
	case reflect.String:
		fv.SetString(value)
	case reflect.Bool:
		b, err := ParseBool(value)
		if err != nil {
			return err
		}
		fv.SetBool(b)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := strconv.ParseInt(strings.TrimSpace(value), 10, fv.Type().Bits())
		if err != nil {
			return errors.Errorf("invalid int value %q", value)
		}
		fv.SetInt(n)
	default:
		return errors.Errorf("unsupported field type %v", fv.Type())
	}
	return nil
}
