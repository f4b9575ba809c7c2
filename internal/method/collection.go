package method

import (
	"fmt"
	"reflect"
)

// MapEntry is what a filter rule sees as filterObject when filtering a map.
type MapEntry struct {
	Key   any
	Value any
}

func isCollection(v any) bool {
	if v == nil {
		return false
	}
	k := reflect.TypeOf(v).Kind()
	return k == reflect.Slice || k == reflect.Map
}

// filterCollection returns a copy of v holding only the elements keep accepts.
// Slices keep their order and element type; maps keep their key and value
// types. A nil collection comes back unchanged.
func filterCollection(v any, keep func(el any) (bool, error)) (any, error) {
	if v == nil {
		return nil, nil
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice:
		if rv.IsNil() {
			return v, nil
		}
		out := reflect.MakeSlice(rv.Type(), 0, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			el := rv.Index(i)
			ok, err := keep(el.Interface())
			if err != nil {
				return nil, err
			}
			if ok {
				out = reflect.Append(out, el)
			}
		}
		return out.Interface(), nil
	case reflect.Map:
		if rv.IsNil() {
			return v, nil
		}
		out := reflect.MakeMapWithSize(rv.Type(), rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			ok, err := keep(MapEntry{Key: iter.Key().Interface(), Value: iter.Value().Interface()})
			if err != nil {
				return nil, err
			}
			if ok {
				out.SetMapIndex(iter.Key(), iter.Value())
			}
		}
		return out.Interface(), nil
	default:
		return nil, fmt.Errorf("filter target must be a slice or map, got %T", v)
	}
}
