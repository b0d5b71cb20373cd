package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"reflect"
	"sort"
	"strings"
	"time"
)

// isoMillis matches the ISO-8601 layout with millisecond precision used for
// timestamps in keys.
const isoMillis = "2006-01-02T15:04:05.000Z07:00"

// StableKey serializes v deterministically.
//
// Values that are deep-equal up to map key order produce the same string.
// Normalization rules:
//   - nil stays nil
//   - time.Time becomes an ISO-8601 UTC string with milliseconds
//   - slices and arrays are normalized element by element
//   - maps with string keys are rebuilt with sorted keys
//   - url.Values is treated as a map of string slices
//   - structs are normalized through their JSON object form
//   - everything else is left as is
//
// If the normalized value cannot be encoded (NaN, funcs, channels)
// StableKey falls back to fmt.Sprint(v) instead of failing. Self-referencing
// values fall back to their type and address. Nesting depth is unbounded.
func StableKey(v any) string {
	w := keyWalker{path: make(map[visit]struct{})}
	normalized, err := w.normalize(v)
	if err == nil {
		var data []byte
		if data, err = json.Marshal(normalized); err == nil {
			return string(data)
		}
	}

	if errors.Is(err, errKeyCycle) {
		rv := reflect.ValueOf(v)
		switch rv.Kind() {
		case reflect.Map, reflect.Pointer, reflect.Slice:
			return fmt.Sprintf("%T@%#x", v, rv.Pointer())
		}
		return fmt.Sprintf("%T", v)
	}
	return fmt.Sprint(v)
}

// RequestKey builds the cache key of a request identity. Method is
// upper-cased and the URL's own query string is merged into params so
// "/contacts?page=1" and ("/contacts", {"page": "1"}) collapse to one key.
func RequestKey(method, rawURL string, params any) string {
	path := rawURL
	var query url.Values
	if u, err := url.Parse(rawURL); err == nil && u.RawQuery != "" {
		query = u.Query()
		u.RawQuery = ""
		path = u.String()
	}

	identity := map[string]any{
		"method": strings.ToUpper(method),
		"url":    path,
	}
	switch {
	case params != nil && len(query) > 0:
		identity["params"] = map[string]any{"query": query, "params": params}
	case params != nil:
		identity["params"] = params
	case len(query) > 0:
		identity["params"] = query
	}

	return StableKey(identity)
}

var errKeyCycle = errors.New("cache key: value references itself")

// visit identifies a reference value on the current walk path.
type visit struct {
	ptr uintptr
	typ reflect.Type
	len int
}

// keyWalker normalizes values and detects cycles through maps, slices and
// pointers on the path from the root.
type keyWalker struct {
	path map[visit]struct{}
}

// enter marks rv as being walked; the returned func unmarks it.
func (w keyWalker) enter(rv reflect.Value) (func(), error) {
	k := visit{ptr: rv.Pointer(), typ: rv.Type()}
	if rv.Kind() == reflect.Slice {
		k.len = rv.Len()
	}
	if _, ok := w.path[k]; ok {
		return nil, errKeyCycle
	}
	w.path[k] = struct{}{}
	return func() { delete(w.path, k) }, nil
}

func (w keyWalker) normalize(v any) (any, error) {
	switch val := v.(type) {
	case nil:
		return nil, nil
	case time.Time:
		return val.UTC().Format(isoMillis), nil
	case *time.Time:
		if val == nil {
			return nil, nil
		}
		return val.UTC().Format(isoMillis), nil
	case url.Values:
		return w.normalize(map[string][]string(val))
	case json.Marshaler:
		if rv := reflect.ValueOf(v); rv.Kind() == reflect.Pointer && rv.IsNil() {
			return nil, nil
		}
		data, err := val.MarshalJSON()
		if err != nil {
			return nil, err
		}
		var decoded any
		if err := json.Unmarshal(data, &decoded); err != nil {
			return nil, err
		}
		return w.normalize(decoded)
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return nil, nil
		}
		if rv.Kind() == reflect.Pointer {
			leave, err := w.enter(rv)
			if err != nil {
				return nil, err
			}
			defer leave()
		}
		return w.normalize(rv.Elem().Interface())

	case reflect.Slice, reflect.Array:
		if rv.Kind() == reflect.Slice && rv.IsNil() {
			return nil, nil
		}
		// []byte keeps its base64 JSON form.
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			return v, nil
		}
		if rv.Kind() == reflect.Slice {
			leave, err := w.enter(rv)
			if err != nil {
				return nil, err
			}
			defer leave()
		}
		out := make([]any, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			n, err := w.normalize(rv.Index(i).Interface())
			if err != nil {
				return nil, err
			}
			out[i] = n
		}
		return out, nil

	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return v, nil
		}
		if rv.IsNil() {
			return nil, nil
		}
		leave, err := w.enter(rv)
		if err != nil {
			return nil, err
		}
		defer leave()

		keys := make([]string, 0, rv.Len())
		values := make(map[string]reflect.Value, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			k := iter.Key().String()
			keys = append(keys, k)
			values[k] = iter.Value()
		}
		sort.Strings(keys)

		out := make(orderedObject, 0, len(keys))
		for _, k := range keys {
			n, err := w.normalize(values[k].Interface())
			if err != nil {
				return nil, err
			}
			out = append(out, objectField{key: k, value: n})
		}
		return out, nil

	case reflect.Struct:
		data, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		var decoded any
		if err := json.Unmarshal(data, &decoded); err != nil {
			return nil, err
		}
		return w.normalize(decoded)
	}

	return v, nil
}

type objectField struct {
	key   string
	value any
}

// orderedObject encodes as a JSON object with fields in slice order.
type orderedObject []objectField

// MarshalJSON implements json.Marshaler.
func (o orderedObject) MarshalJSON() ([]byte, error) {
	var b strings.Builder
	b.WriteByte('{')
	for i, f := range o {
		if i > 0 {
			b.WriteByte(',')
		}
		k, err := json.Marshal(f.key)
		if err != nil {
			return nil, err
		}
		b.Write(k)
		b.WriteByte(':')
		v, err := json.Marshal(f.value)
		if err != nil {
			return nil, err
		}
		b.Write(v)
	}
	b.WriteByte('}')
	return []byte(b.String()), nil
}
