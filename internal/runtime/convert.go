package runtime

import (
	"fmt"

	"go.starlark.net/starlark"
)

// toGo converts a starlark.Value into a plain Go value (map[string]any,
// []any, string, float64/int64, bool, nil) suitable for JSON-ing across
// the provider/policy/approval layers.
func toGo(v starlark.Value) (any, error) {
	switch val := v.(type) {
	case starlark.NoneType:
		return nil, nil
	case starlark.Bool:
		return bool(val), nil
	case starlark.Int:
		if i, ok := val.Int64(); ok {
			return i, nil
		}
		f := val.Float()
		return f, nil
	case starlark.Float:
		return float64(val), nil
	case starlark.String:
		return string(val), nil
	case *starlark.List:
		out := make([]any, 0, val.Len())
		for i := 0; i < val.Len(); i++ {
			item, err := toGo(val.Index(i))
			if err != nil {
				return nil, err
			}
			out = append(out, item)
		}
		return out, nil
	case starlark.Tuple:
		out := make([]any, 0, len(val))
		for _, item := range val {
			gv, err := toGo(item)
			if err != nil {
				return nil, err
			}
			out = append(out, gv)
		}
		return out, nil
	case *starlark.Dict:
		out := make(map[string]any, val.Len())
		for _, item := range val.Items() {
			k, ok := item[0].(starlark.String)
			if !ok {
				return nil, fmt.Errorf("tools args: dict keys must be strings, got %s", item[0].Type())
			}
			gv, err := toGo(item[1])
			if err != nil {
				return nil, err
			}
			out[string(k)] = gv
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported starlark value of type %s", v.Type())
	}
}

// fromGo converts a plain Go value (as returned by an F invocation) into
// a starlark.Value.
func fromGo(v any) (starlark.Value, error) {
	switch val := v.(type) {
	case nil:
		return starlark.None, nil
	case bool:
		return starlark.Bool(val), nil
	case string:
		return starlark.String(val), nil
	case int:
		return starlark.MakeInt(val), nil
	case int64:
		return starlark.MakeInt64(val), nil
	case float64:
		return starlark.Float(val), nil
	case []any:
		elems := make([]starlark.Value, 0, len(val))
		for _, item := range val {
			sv, err := fromGo(item)
			if err != nil {
				return nil, err
			}
			elems = append(elems, sv)
		}
		return starlark.NewList(elems), nil
	case map[string]any:
		d := starlark.NewDict(len(val))
		for k, item := range val {
			sv, err := fromGo(item)
			if err != nil {
				return nil, err
			}
			if err := d.SetKey(starlark.String(k), sv); err != nil {
				return nil, err
			}
		}
		return d, nil
	default:
		return nil, fmt.Errorf("unsupported Go value of type %T for starlark conversion", v)
	}
}
