package telemetry

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"
)

// DefaultTimestampSource 状态属性未声明时间戳来源时的默认来源
const DefaultTimestampSource = "state_timestamp_utc"

var (
	// ErrUnknownAttribute 更新批次中出现模式未声明的属性
	ErrUnknownAttribute = errors.New("unknown attribute")

	// ErrMissingAttribute 必填属性在载荷和预设值中都不存在
	ErrMissingAttribute = errors.New("missing required attribute")
)

// Field 声明模式的一个属性：属性名、按序尝试的源键别名、值转换器，
// 以及约束其新鲜度的时间戳属性（为空表示无条件更新）
type Field struct {
	Attr            string
	Keys            []string
	Conv            Converter
	TimestampSource string
	Required        bool
}

// Schema 从松散结构的服务端载荷到命名类型化属性的声明式映射
type Schema struct {
	Name string

	// Ignored 列出已知存在但刻意不映射的源键。值为 nil 时匹配任意载荷值，
	// 非 nil 时仅在载荷值相等时抑制未知键诊断
	Ignored map[string]any

	fields []Field
	byAttr map[string]Field
}

// NewSchema 由字段表构建模式
func NewSchema(name string, ignored map[string]any, fields ...Field) *Schema {
	s := &Schema{
		Name:    name,
		Ignored: ignored,
		fields:  fields,
		byAttr:  make(map[string]Field, len(fields)),
	}
	for _, f := range fields {
		s.byAttr[f.Attr] = f
	}
	return s
}

// Field 返回属性的声明
func (s *Schema) Field(attr string) (Field, bool) {
	f, ok := s.byAttr[attr]
	return f, ok
}

// Fields 按声明顺序返回字段表
func (s *Schema) Fields() []Field {
	return s.fields
}

// Map 提取载荷中源键存在的全部已声明属性。预设值优先并可满足必填项。
// 既未声明也未忽略的源键按 info 级别记录以暴露服务端模式漂移，
// 不会导致映射失败
func (s *Schema) Map(lg *zap.Logger, data map[string]any, preset Values) (Values, error) {
	out := make(Values, len(s.fields))
	for k, v := range preset {
		out[k] = v
	}

	remaining := make(map[string]struct{}, len(data))
	for k := range data {
		remaining[k] = struct{}{}
	}

	for _, f := range s.fields {
		for _, k := range f.Keys {
			delete(remaining, k)
		}
		if _, ok := out[f.Attr]; ok {
			continue
		}
		found := false
		for _, k := range f.Keys {
			raw, ok := data[k]
			if !ok {
				continue
			}
			if f.Conv != nil {
				out[f.Attr] = f.Conv(lg, raw)
			} else {
				out[f.Attr] = raw
			}
			found = true
			break
		}
		if !found && f.Required {
			return nil, fmt.Errorf("%s: %w: %s", s.Name, ErrMissingAttribute, f.Attr)
		}
	}

	s.reportUnknownKeys(lg, data, remaining)
	return out, nil
}

func (s *Schema) reportUnknownKeys(lg *zap.Logger, data map[string]any, remaining map[string]struct{}) {
	if len(remaining) == 0 {
		return
	}
	for k := range remaining {
		ref, ok := s.Ignored[k]
		if ok && (ref == nil || looseEqual(ref, data[k])) {
			delete(remaining, k)
		}
	}
	if len(remaining) == 0 {
		return
	}

	keys := make([]string, 0, len(remaining))
	for k := range remaining {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		return strings.ToLower(keys[i]) < strings.ToLower(keys[j])
	})

	lg.Info("new attributes detected, please report this to the developer",
		zap.String("schema", s.Name))
	for _, k := range keys {
		lg.Info("unrecognized attribute",
			zap.String("schema", s.Name),
			zap.String("key", k),
			zap.String("go_type", fmt.Sprintf("%T", data[k])),
			zap.Any("value", data[k]))
	}
}

func looseEqual(a, b any) bool {
	if fa, ok := toFloat64(a); ok {
		fb, ok := toFloat64(b)
		return ok && fa == fb
	}
	return fmt.Sprint(a) == fmt.Sprint(b)
}
