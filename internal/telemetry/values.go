package telemetry

import (
	"strconv"
)

// Values 单次更新批次：属性名 -> 转换后的值
// nil 条目表示属性被显式置为"无值"。标量经模式转换器规范化为
// int64 / float64 / bool / string，结构化条目持有本包类型
type Values map[string]any

// Clone 返回批次的浅拷贝
func (v Values) Clone() Values {
	out := make(Values, len(v))
	for k, val := range v {
		out[k] = val
	}
	return out
}

// Int64 以 int64 读取属性，缺失、为 nil 或非整数时 ok 为 false
func (v Values) Int64(attr string) (int64, bool) {
	raw, ok := v[attr]
	if !ok || raw == nil {
		return 0, false
	}
	return toInt64(raw)
}

// Float64 以 float64 读取属性，缺失、为 nil 或非数值时 ok 为 false
func (v Values) Float64(attr string) (float64, bool) {
	raw, ok := v[attr]
	if !ok || raw == nil {
		return 0, false
	}
	return toFloat64(raw)
}

// Has 判断属性是否存在且非 nil
func (v Values) Has(attr string) bool {
	raw, ok := v[attr]
	return ok && raw != nil
}

func toInt64(x any) (int64, bool) {
	switch t := x.(type) {
	case int64:
		return t, true
	case int:
		return int64(t), true
	case int32:
		return int64(t), true
	case uint:
		return int64(t), true
	case uint32:
		return int64(t), true
	case uint64:
		return int64(t), true
	case float64:
		return int64(t), true
	case float32:
		return int64(t), true
	case bool:
		if t {
			return 1, true
		}
		return 0, true
	case string:
		n, err := strconv.ParseInt(t, 10, 64)
		if err != nil {
			return 0, false
		}
		return n, true
	default:
		return 0, false
	}
}

func toFloat64(x any) (float64, bool) {
	switch t := x.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int64:
		return float64(t), true
	case int:
		return float64(t), true
	case int32:
		return float64(t), true
	case uint:
		return float64(t), true
	case uint64:
		return float64(t), true
	case string:
		f, err := strconv.ParseFloat(t, 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

// Truthy 对齐服务端的宽松布尔语义：零值数字、空字符串、
// 空集合和 nil 为假，其余为真
func Truthy(x any) bool {
	switch t := x.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	case int64:
		return t != 0
	case int:
		return t != 0
	case float64:
		return t != 0
	case float32:
		return t != 0
	case map[string]any:
		return len(t) > 0
	case []any:
		return len(t) > 0
	default:
		return true
	}
}
