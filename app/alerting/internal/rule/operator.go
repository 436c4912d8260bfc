package rule

import (
	"fmt"
	"reflect"
	"strconv"

	"github.com/cockroachdb/errors"
)

// Operator 条件比较运算符
type Operator string

const (
	OpGreaterThan    Operator = ">"
	OpLessThan       Operator = "<"
	OpGreaterOrEqual Operator = ">="
	OpLessOrEqual    Operator = "<="
	OpEqual          Operator = "=="
	OpNotEqual       Operator = "!="
	OpIn             Operator = "in"
	OpExists         Operator = "exists"
)

func (o Operator) IsValid() bool {
	switch o {
	case OpGreaterThan, OpLessThan, OpGreaterOrEqual, OpLessOrEqual, OpEqual, OpNotEqual, OpIn, OpExists:
		return true
	}
	return false
}

func (o Operator) numeric() bool {
	switch o {
	case OpGreaterThan, OpLessThan, OpGreaterOrEqual, OpLessOrEqual:
		return true
	}
	return false
}

// Match 对属性表求值。缺失属性除 exists 外一律不匹配；
// 属性类型与运算符不兼容时返回 ErrAttributeType
func (c Condition) Match(attrs map[string]any) (bool, error) {
	actual, ok := attrs[c.Attribute]
	if c.Operator == OpExists {
		want := true
		if b, isBool := c.Value.(bool); isBool {
			want = b
		}
		return ok == want, nil
	}
	if !ok || actual == nil {
		return false, nil
	}

	switch c.Operator {
	case OpEqual:
		return equal(actual, c.Value), nil
	case OpNotEqual:
		return !equal(actual, c.Value), nil
	case OpIn:
		for _, v := range c.Value.([]any) {
			if equal(actual, v) {
				return true, nil
			}
		}
		return false, nil
	}

	a, okA := toFloat(actual)
	if !okA {
		return false, errors.Wrapf(ErrAttributeType, "attribute %q: %v is not numeric", c.Attribute, actual)
	}
	b, _ := toFloat(c.Value)
	switch c.Operator {
	case OpGreaterThan:
		return a > b, nil
	case OpLessThan:
		return a < b, nil
	case OpGreaterOrEqual:
		return a >= b, nil
	case OpLessOrEqual:
		return a <= b, nil
	}
	return false, errors.Wrapf(ErrMalformedRule, "unsupported operator %q", c.Operator)
}

// equal 数值按值比较，其余按字符串表示比较
func equal(a, b any) bool {
	fa, okA := toFloat(a)
	fb, okB := toFloat(b)
	if okA && okB {
		return fa == fb
	}
	if ba, ok := a.(bool); ok {
		bb, ok := b.(bool)
		return ok && ba == bb
	}
	return fmt.Sprint(a) == fmt.Sprint(b)
}

func toFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case int, int8, int16, int32, int64:
		return float64(reflect.ValueOf(x).Int()), true
	case uint, uint8, uint16, uint32, uint64:
		return float64(reflect.ValueOf(x).Uint()), true
	case float32:
		return float64(x), true
	case float64:
		return x, true
	case string:
		f, err := strconv.ParseFloat(x, 64)
		return f, err == nil
	}
	return 0, false
}
