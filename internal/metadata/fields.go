package metadata

import (
	"bytes"
	"encoding/json"
	"errors"
	"slices"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// ErrNotObject is returned when a payload that must be a JSON object is not.
var ErrNotObject = errors.New("payload is not a JSON object")

// Fields holds the members of a JSON object that the model does not name
// explicitly. Values are kept verbatim and in their original order so they
// survive a decode/encode cycle untouched.
type Fields = orderedmap.OrderedMap[string, json.RawMessage]

func newFields() *Fields {
	return orderedmap.New[string, json.RawMessage]()
}

// decodeFields reads a JSON object into an ordered map of raw members.
func decodeFields(data []byte) (*Fields, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, ErrNotObject
	}
	m := newFields()
	if err := json.Unmarshal(trimmed, m); err != nil {
		return nil, err
	}
	return m, nil
}

// decodeObject decodes data into a value of the plain struct type T. The
// returned extra set holds, in document order, members not listed in known,
// known members holding null, and known members whose value does not fit the
// typed field. Those are written back verbatim, so an unexpected shape never
// fails the document.
func decodeObject[T any](data []byte, known []string) (T, *Fields, error) {
	var v T
	if isNull(data) {
		return v, nil, nil
	}
	all, err := decodeFields(data)
	if err != nil {
		return v, nil, err
	}
	strictErr := json.Unmarshal(data, &v)

	extra := newFields()
	typed := newFields()
	for pair := all.Oldest(); pair != nil; pair = pair.Next() {
		switch {
		case !slices.Contains(known, pair.Key), isNull(pair.Value):
			extra.Set(pair.Key, pair.Value)
		case strictErr == nil:
			// already in v
		case memberFits[T](pair.Key, pair.Value):
			typed.Set(pair.Key, pair.Value)
		default:
			extra.Set(pair.Key, pair.Value)
		}
	}

	if strictErr != nil {
		v = *new(T)
		b, err := json.Marshal(typed)
		if err != nil {
			return v, nil, err
		}
		if err := json.Unmarshal(b, &v); err != nil {
			return v, nil, err
		}
	}
	if extra.Len() == 0 {
		extra = nil
	}
	return v, extra, nil
}

// memberFits reports whether {key: value} decodes into T.
func memberFits[T any](key string, value json.RawMessage) bool {
	single := newFields()
	single.Set(key, value)
	b, err := json.Marshal(single)
	if err != nil {
		return false
	}
	var scratch T
	return json.Unmarshal(b, &scratch) == nil
}

// withExtra appends the extra members to the encoded object b. Keys already
// present in b win, so a null kept in extra gives way once the typed field
// is set.
func withExtra(b []byte, extra *Fields) ([]byte, error) {
	if extra == nil || extra.Len() == 0 {
		return b, nil
	}
	out, err := decodeFields(b)
	if err != nil {
		return nil, err
	}
	for pair := extra.Oldest(); pair != nil; pair = pair.Next() {
		if _, ok := out.Get(pair.Key); !ok {
			out.Set(pair.Key, pair.Value)
		}
	}
	return json.Marshal(out)
}

func cloneFields(f *Fields) *Fields {
	if f == nil {
		return nil
	}
	out := newFields()
	for pair := f.Oldest(); pair != nil; pair = pair.Next() {
		out.Set(pair.Key, cloneRaw(pair.Value))
	}
	return out
}

func cloneRaw(r json.RawMessage) json.RawMessage {
	if r == nil {
		return nil
	}
	return bytes.Clone(r)
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func isObject(raw []byte) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && trimmed[0] == '{'
}

// isArray reports whether raw holds a JSON array.
func isArray(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && trimmed[0] == '['
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}
