package literal

import (
	"encoding/hex"
	"encoding/json"
	"math"
	"reflect"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

func toInt64(value any) (int64, error) {
	switch v := value.(type) {
	case int:
		return int64(v), nil
	case int8:
		return int64(v), nil
	case int16:
		return int64(v), nil
	case int32:
		return int64(v), nil
	case int64:
		return v, nil
	case uint8:
		return int64(v), nil
	case uint16:
		return int64(v), nil
	case uint32:
		return int64(v), nil
	case uint:
		if uint64(v) > math.MaxInt64 {
			return 0, errors.Errorf("value %d overflows int64", v)
		}
		return int64(v), nil
	case uint64:
		if v > math.MaxInt64 {
			return 0, errors.Errorf("value %d overflows int64", v)
		}
		return int64(v), nil
	case bool:
		if v {
			return 1, nil
		}
		return 0, nil
	case float32:
		return floatToInt64(float64(v))
	case float64:
		return floatToInt64(v)
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return n, nil
		}
		f, err := v.Float64()
		if err != nil {
			return 0, errors.Errorf("invalid integer %q", v.String())
		}
		return floatToInt64(f)
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return 0, errors.Errorf("invalid integer %q", v)
		}
		return n, nil
	default:
		return 0, errors.Errorf("unsupported integer value %T", value)
	}
}

func floatToInt64(f float64) (int64, error) {
	if f != math.Trunc(f) || f < math.MinInt64 || f >= math.MaxInt64 {
		return 0, errors.Errorf("value %v is not an integer", f)
	}
	return int64(f), nil
}

func toFloat64(value any) (float64, error) {
	switch v := value.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return 0, errors.Errorf("invalid real %q", v.String())
		}
		return f, nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, errors.Errorf("invalid real %q", v)
		}
		return f, nil
	default:
		n, err := toInt64(value)
		if err != nil {
			return 0, errors.Errorf("unsupported real value %T", value)
		}
		return float64(n), nil
	}
}

func toBool(value any) (bool, error) {
	switch v := value.(type) {
	case bool:
		return v, nil
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "t", "true", "1", "y", "yes", "on":
			return true, nil
		case "f", "false", "0", "n", "no", "off":
			return false, nil
		}
		return false, errors.Errorf("invalid boolean %q", v)
	default:
		n, err := toInt64(value)
		if err != nil {
			return false, errors.Errorf("unsupported boolean value %T", value)
		}
		return n != 0, nil
	}
}

// toBytes 接受 []byte 或十六进制字符串（可带 \x 前缀）
func toBytes(value any) ([]byte, error) {
	switch v := value.(type) {
	case []byte:
		return v, nil
	case string:
		b, err := hex.DecodeString(strings.TrimPrefix(strings.TrimPrefix(v, `\x`), `\\x`))
		if err != nil {
			return nil, errors.Errorf("invalid hex binary %q", v)
		}
		return b, nil
	default:
		return nil, errors.Errorf("unsupported binary value %T", value)
	}
}

func toSlice(value any) ([]any, error) {
	if items, ok := value.([]any); ok {
		return items, nil
	}
	rv := reflect.ValueOf(value)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, errors.Errorf("unsupported list value %T", value)
	}
	items := make([]any, rv.Len())
	for i := range items {
		items[i] = rv.Index(i).Interface()
	}
	return items, nil
}

// ToInt64 将整数、整数值的浮点数、json.Number 或十进制字符串转换为 int64
func ToInt64(value any) (int64, error) {
	return toInt64(value)
}
