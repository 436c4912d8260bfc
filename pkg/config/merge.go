package config

import (
	"fmt"
	"reflect"
)

// MergeConfig 将 src 中的非零值覆盖到 dst 上并返回 dst
//   - dst 与 src 都为 nil 时返回错误
//   - 任一为 nil 时返回另一个
//   - map 按 key 合并，slice 整体替换，指针递归合并
//
// 注意: 零值视为"未设置"，因此无法通过合并把 bool 改回 false
func MergeConfig[T any](dst, src *T) (*T, error) {
	switch {
	case dst == nil && src == nil:
		return nil, fmt.Errorf("%w: both dst and src are nil", ErrNilConfig)
	case dst == nil:
		return src, nil
	case src == nil:
		return dst, nil
	}
	if err := merge(reflect.ValueOf(dst).Elem(), reflect.ValueOf(src).Elem()); err != nil {
		return nil, err
	}
	return dst, nil
}

func merge(dst, src reflect.Value) error {
	if !src.IsValid() || src.IsZero() {
		return nil
	}
	if (src.Kind() == reflect.Map || src.Kind() == reflect.Slice) && src.Len() == 0 {
		return nil
	}

	switch dst.Kind() {
	case reflect.Struct:
		t := src.Type()
		for i := 0; i < t.NumField(); i++ {
			f := t.Field(i)
			if !f.IsExported() {
				continue
			}
			df := dst.FieldByName(f.Name)
			if !df.CanSet() {
				continue
			}
			if err := merge(df, src.Field(i)); err != nil {
				return fmt.Errorf("field %s: %w", f.Name, err)
			}
		}
	case reflect.Map:
		if dst.IsNil() {
			dst.Set(reflect.MakeMapWithSize(dst.Type(), src.Len()))
		}
		iter := src.MapRange()
		for iter.Next() {
			cur := dst.MapIndex(iter.Key())
			if !cur.IsValid() {
				dst.SetMapIndex(iter.Key(), iter.Value())
				continue
			}
			slot := reflect.New(dst.Type().Elem()).Elem()
			slot.Set(cur)
			if err := merge(slot, iter.Value()); err != nil {
				return err
			}
			dst.SetMapIndex(iter.Key(), slot)
		}
	case reflect.Ptr:
		if dst.IsNil() {
			dst.Set(reflect.New(dst.Type().Elem()))
		}
		return merge(dst.Elem(), src.Elem())
	default:
		if dst.CanSet() {
			dst.Set(src)
		}
	}
	return nil
}
