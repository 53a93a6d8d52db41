package bridge

import (
	"encoding/json"
	"iter"
	"reflect"
	"strconv"
	"strings"
	"time"
)

// KeyIterator is accepted wherever a key collection is expected.
type KeyIterator interface {
	Keys() []any
}

// asString accepts string and any type whose underlying kind is string.
func asString(v any) (string, bool) {
	switch s := v.(type) {
	case string:
		return s, true
	case nil:
		return "", false
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.String {
		return rv.String(), true
	}
	return "", false
}

func validKey(key any) (string, error) {
	k, ok := asString(key)
	if !ok {
		return "", ErrInvalidKey
	}
	return k, nil
}

// keyList normalizes an iterable of keys into a slice, preserving order.
// Slices, arrays, iter.Seq of any element type and KeyIterator are
// iterable; maps are not.
func keyList(keys any) ([]string, error) {
	var raw []any
	switch ks := keys.(type) {
	case nil:
		return nil, ErrInvalidKeys
	case []string:
		return append([]string(nil), ks...), nil
	case []any:
		raw = ks
	case iter.Seq[string]:
		out := []string{}
		for k := range ks {
			out = append(out, k)
		}
		return out, nil
	case iter.Seq[any]:
		for k := range ks {
			raw = append(raw, k)
		}
	case KeyIterator:
		raw = ks.Keys()
	default:
		var ok bool
		if raw, ok = reflectSeq(keys); !ok {
			return nil, ErrInvalidKeys
		}
	}

	out := make([]string, 0, len(raw))
	for _, v := range raw {
		k, ok := asString(v)
		if !ok {
			return nil, ErrInvalidKeys
		}
		out = append(out, k)
	}
	return out, nil
}

// reflectSeq collects the elements of a slice, an array or a func of the
// iter.Seq shape.
func reflectSeq(v any) ([]any, bool) {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		out := make([]any, rv.Len())
		for i := range out {
			out[i] = rv.Index(i).Interface()
		}
		return out, true
	case reflect.Func:
		if rv.IsNil() || !isSeqFunc(rv.Type(), 1) {
			return nil, false
		}
		var out []any
		yield := reflect.MakeFunc(rv.Type().In(0), func(args []reflect.Value) []reflect.Value {
			out = append(out, args[0].Interface())
			return []reflect.Value{reflect.ValueOf(true)}
		})
		rv.Call([]reflect.Value{yield})
		return out, true
	}
	return nil, false
}

// isSeqFunc reports whether t has the shape func(func(T...) bool) with
// arity yield arguments.
func isSeqFunc(t reflect.Type, arity int) bool {
	if t.NumIn() != 1 || t.NumOut() != 0 {
		return false
	}
	y := t.In(0)
	return y.Kind() == reflect.Func &&
		y.NumIn() == arity &&
		y.NumOut() == 1 &&
		y.Out(0).Kind() == reflect.Bool
}

// valueMap normalizes a key/value mapping. Maps of any key type and
// iter.Seq2 funcs are accepted; every key must be a string.
func valueMap(values any) (map[string]any, error) {
	switch vs := values.(type) {
	case nil:
		return nil, ErrInvalidValues
	case map[string]any:
		out := make(map[string]any, len(vs))
		for k, v := range vs {
			out[k] = v
		}
		return out, nil
	case iter.Seq2[string, any]:
		out := map[string]any{}
		for k, v := range vs {
			out[k] = v
		}
		return out, nil
	}

	rv := reflect.ValueOf(values)
	out := map[string]any{}
	switch rv.Kind() {
	case reflect.Map:
		it := rv.MapRange()
		for it.Next() {
			k, ok := asString(it.Key().Interface())
			if !ok {
				return nil, ErrInvalidValues
			}
			out[k] = it.Value().Interface()
		}
		return out, nil
	case reflect.Func:
		if rv.IsNil() || !isSeqFunc(rv.Type(), 2) {
			return nil, ErrInvalidValues
		}
		valid := true
		yield := reflect.MakeFunc(rv.Type().In(0), func(args []reflect.Value) []reflect.Value {
			k, ok := asString(args[0].Interface())
			if !ok {
				valid = false
				return []reflect.Value{reflect.ValueOf(false)}
			}
			out[k] = args[1].Interface()
			return []reflect.Value{reflect.ValueOf(true)}
		})
		rv.Call([]reflect.Value{yield})
		if !valid {
			return nil, ErrInvalidValues
		}
		return out, nil
	}
	return nil, ErrInvalidValues
}

// ttlSeconds converts a TTL to whole seconds. Durations are truncated,
// except that a positive duration under a second becomes 1: engines read a
// duration of 0 as "never expire".
func ttlSeconds(ttl any) (int, error) {
	switch t := ttl.(type) {
	case time.Duration:
		if t > 0 && t < time.Second {
			return 1, nil
		}
		return int(t / time.Second), nil
	case int:
		return t, nil
	case int8:
		return int(t), nil
	case int16:
		return int(t), nil
	case int32:
		return int(t), nil
	case int64:
		return int(t), nil
	case uint:
		return int(t), nil
	case uint8:
		return int(t), nil
	case uint16:
		return int(t), nil
	case uint32:
		return int(t), nil
	case uint64:
		return int(t), nil
	}
	return 0, ErrInvalidTTL
}

// ParseTTL converts textual input into a TTL accepted by Set: "" is nil,
// a bare integer is seconds and anything else must parse as a
// time.Duration ("90s", "5m").
func ParseTTL(s string) (any, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return nil, ErrInvalidTTL
	}
	return d, nil
}

// ParseValue decodes textual input as JSON, falling back to the raw
// string. An empty string is nil.
func ParseValue(s string) any {
	if s == "" {
		return nil
	}
	var v any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return s
	}
	return v
}

// Truthy coerces v to a boolean the way the simple-cache contract does:
// nil, false, "", "0", numeric zero and empty collections are false.
func Truthy(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case string:
		return x != "" && x != "0"
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Bool:
		return rv.Bool()
	case reflect.String:
		return rv.Len() > 0 && rv.String() != "0"
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int() != 0
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return rv.Uint() != 0
	case reflect.Float32, reflect.Float64:
		return rv.Float() != 0
	case reflect.Complex64, reflect.Complex128:
		return rv.Complex() != 0
	case reflect.Slice, reflect.Map:
		return !rv.IsNil() && rv.Len() > 0
	case reflect.Array:
		return rv.Len() > 0
	case reflect.Pointer, reflect.Interface, reflect.Chan, reflect.Func:
		return !rv.IsNil()
	}
	return true
}
