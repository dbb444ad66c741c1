package compose

import (
	"fmt"
	"strings"
)

// ParameterView is the merged, deferred-evaluation result of an
// environment's file sequence: a pure mapping from dotted path to leaf
// value.
type ParameterView struct {
	data map[string]interface{}
}

func newParameterView(raw map[string]interface{}) *ParameterView {
	return &ParameterView{data: raw}
}

// Thunk is a lazily-computed default for Lookup, evaluated only when no
// path resolves.
type Thunk func() interface{}

// Lookup resolves the first of paths that is defined, walking each as a
// dotted path through the merged tree. def is returned verbatim if none
// resolve, except a Thunk default is invoked only then.
func (v *ParameterView) Lookup(def interface{}, paths ...string) interface{} {
	for _, p := range paths {
		if val, ok := v.lookupOne(p); ok {
			return val
		}
	}
	if thunk, ok := def.(Thunk); ok {
		return thunk()
	}
	return def
}

func (v *ParameterView) lookupOne(path string) (interface{}, bool) {
	segs := strings.Split(path, ".")
	var cur interface{} = v.data
	for _, seg := range segs {
		m, ok := asStringMap(cur)
		if !ok {
			return nil, false
		}
		cur, ok = m[seg]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// asStringMap normalizes map[interface{}]interface{} nodes (yaml.v3's
// generic decode shape) to map[string]interface{} for traversal.
func asStringMap(v interface{}) (map[string]interface{}, bool) {
	switch m := v.(type) {
	case map[string]interface{}:
		return m, true
	case map[interface{}]interface{}:
		out := make(map[string]interface{}, len(m))
		for k, val := range m {
			out[fmt.Sprintf("%v", k)] = val
		}
		return out, true
	default:
		return nil, false
	}
}
