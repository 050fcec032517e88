package services

import (
	"fmt"

	"github.com/dop251/goja"
)

// toValues converts invocation arguments into runtime values, keeping order.
// Only primitive Go values are accepted.
func toValues(rt *goja.Runtime, args []any) ([]goja.Value, error) {
	out := make([]goja.Value, len(args))
	for idx, arg := range args {
		v, err := toValue(rt, arg)
		if err != nil {
			return nil, fmt.Errorf("argument %d: %w", idx, err)
		}
		out[idx] = v
	}
	return out, nil
}

func toValue(rt *goja.Runtime, arg any) (goja.Value, error) {
	switch v := arg.(type) {
	case nil:
		return goja.Null(), nil
	case string:
		return rt.ToValue(v), nil
	case bool:
		return rt.ToValue(v), nil
	case int:
		return rt.ToValue(int64(v)), nil
	case int8:
		return rt.ToValue(int64(v)), nil
	case int16:
		return rt.ToValue(int64(v)), nil
	case int32:
		return rt.ToValue(int64(v)), nil
	case int64:
		return rt.ToValue(v), nil
	case uint8:
		return rt.ToValue(int64(v)), nil
	case uint16:
		return rt.ToValue(int64(v)), nil
	case uint32:
		return rt.ToValue(int64(v)), nil
	case float32:
		return rt.ToValue(float64(v)), nil
	case float64:
		return rt.ToValue(v), nil
	default:
		return nil, fmt.Errorf("unsupported argument type %T", arg)
	}
}

// asAwaitable reports whether v must be driven by the event loop. Promises
// are recognized by the runtime's own export; other objects with a callable
// then are adopted through Promise.resolve.
func asAwaitable(rt *goja.Runtime, v goja.Value) (*goja.Promise, bool, error) {
	obj, ok := v.(*goja.Object)
	if !ok {
		return nil, false, nil
	}
	if p, ok := obj.Export().(*goja.Promise); ok {
		return p, true, nil
	}
	if _, ok := goja.AssertFunction(obj.Get("then")); !ok {
		return nil, false, nil
	}

	ctor := rt.Get("Promise").ToObject(rt)
	resolve, ok := goja.AssertFunction(ctor.Get("resolve"))
	if !ok {
		return nil, false, fmt.Errorf("Promise.resolve is not callable")
	}
	adopted, err := resolve(ctor, obj)
	if err != nil {
		return nil, false, err
	}
	p, ok := adopted.Export().(*goja.Promise)
	if !ok {
		return nil, false, fmt.Errorf("Promise.resolve returned %s", adopted.String())
	}
	return p, true, nil
}

// stringify renders a result the way callers receive it: primitives via
// their string form, objects as JSON, undefined and null as "".
func stringify(rt *goja.Runtime, v goja.Value) string {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return ""
	}
	obj, ok := v.(*goja.Object)
	if !ok {
		return v.String()
	}
	if _, callable := goja.AssertFunction(obj); callable || obj.ClassName() == "Error" {
		return obj.String()
	}
	jsonObj := rt.Get("JSON").ToObject(rt)
	encode, ok := goja.AssertFunction(jsonObj.Get("stringify"))
	if !ok {
		return obj.String()
	}
	out, err := encode(jsonObj, obj)
	if err != nil || out == nil || goja.IsUndefined(out) {
		return obj.String()
	}
	return out.String()
}
