package manifest

import (
	"bytes"
	"encoding/json"
)

// Prune removes nil values and empty objects or arrays from map entries,
// recursively. Array elements keep their positions.
func Prune(v any) any {
	out, _ := prune(v)
	return out
}

func prune(v any) (any, bool) {
	switch t := v.(type) {
	case nil:
		return nil, false
	case map[string]any:
		for k, e := range t {
			pe, keep := prune(e)
			if !keep {
				delete(t, k)
				continue
			}
			t[k] = pe
		}
		return t, len(t) > 0
	case []any:
		for i, e := range t {
			pe, _ := prune(e)
			t[i] = pe
		}
		return t, len(t) > 0
	default:
		return v, true
	}
}

func decodeNumbers(b []byte) (any, error) {
	var v any
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}

func prunedJSON(b []byte) ([]byte, error) {
	v, err := decodeNumbers(b)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Prune(v))
}
