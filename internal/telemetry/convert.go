package telemetry

import (
	"fmt"

	"go.uber.org/zap"
)

// Converter 将原始载荷值转换为规范化的属性值
// 转换器不会硬失败：畸形标量记录诊断日志后落为 nil（属性存在但无值）
type Converter func(lg *zap.Logger, x any) any

// ConvInt 转换为 int64，畸形输入返回 nil
func ConvInt(lg *zap.Logger, x any) any {
	if x == nil {
		return nil
	}
	n, ok := toInt64(x)
	if !ok {
		lg.Warn("could not convert value to int, storing no value", zap.Any("value", x))
		return nil
	}
	return n
}

// ConvFloat 转换为 float64，畸形输入返回 nil
func ConvFloat(lg *zap.Logger, x any) any {
	if x == nil {
		return nil
	}
	f, ok := toFloat64(x)
	if !ok {
		lg.Warn("could not convert value to float, storing no value", zap.Any("value", x))
		return nil
	}
	return f
}

// ConvBool 保留 nil，其余按真值性转换
func ConvBool(_ *zap.Logger, x any) any {
	if x == nil {
		return nil
	}
	return Truthy(x)
}

// ConvString 转换为字符串，nil 保持 nil
func ConvString(_ *zap.Logger, x any) any {
	if x == nil {
		return nil
	}
	if s, ok := x.(string); ok {
		return s
	}
	return stringify(x)
}

// ConvEmpty 将存在但为假值的输入视为缺失（电话号码、余额等嵌套对象）
// 给定内层转换器时仅对真值执行
func ConvEmpty(inner Converter) Converter {
	return func(lg *zap.Logger, x any) any {
		if !Truthy(x) {
			return nil
		}
		if inner == nil {
			return x
		}
		return inner(lg, x)
	}
}

// ConvLockCoordinate 解码按 1e6 缩放为整数存储的 lock 坐标
func ConvLockCoordinate(lg *zap.Logger, x any) any {
	if x == nil {
		return nil
	}
	f, ok := toFloat64(x)
	if !ok {
		lg.Warn("could not convert lock coordinate, storing no value", zap.Any("value", x))
		return nil
	}
	return f / 1000000
}

// ConvIntList 将原始列表转换为 []int64，丢弃畸形元素，缺失输入返回空切片
func ConvIntList(lg *zap.Logger, x any) any {
	items, ok := x.([]any)
	if !ok {
		if x != nil {
			lg.Warn("expected a list value", zap.Any("value", x))
		}
		return []int64{}
	}
	out := make([]int64, 0, len(items))
	for _, item := range items {
		if n, ok := toInt64(item); ok {
			out = append(out, n)
		} else {
			lg.Warn("dropping malformed list element", zap.Any("value", item))
		}
	}
	return out
}

func stringify(x any) string {
	switch t := x.(type) {
	case string:
		return t
	default:
		return fmt.Sprint(t)
	}
}
