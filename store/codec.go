package store

import (
	"bytes"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// MarshalDocument encodes a document in msgpack format. Map keys are
// sorted, so equal documents have equal encodings.
func MarshalDocument(d Document) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetSortMapKeys(true)
	if err := enc.Encode(map[string]any(d)); err != nil {
		return nil, fmt.Errorf("store: encode document: %w", err)
	}
	return buf.Bytes(), nil
}

// UnmarshalDocument decodes a document encoded by MarshalDocument. Integers
// decode as int64 and the creation time as float64.
func UnmarshalDocument(b []byte) (Document, error) {
	m, err := msgpack.NewDecoder(bytes.NewReader(b)).DecodeMap()
	if err != nil {
		return nil, fmt.Errorf("store: decode document: %w", err)
	}
	if m == nil {
		return nil, nil
	}
	d := Document(decoded(m).(map[string]any))
	if ct, ok := d[CreationTimeField].(int64); ok {
		d[CreationTimeField] = float64(ct)
	}
	return d, nil
}

func decoded(v any) any {
	switch v := v.(type) {
	case uint64:
		return int64(v)
	case uint:
		return int64(v)
	case []any:
		for i := range v {
			v[i] = decoded(v[i])
		}
		return v
	case map[string]any:
		for k, e := range v {
			v[k] = decoded(e)
		}
		return v
	default:
		return Normalize(v)
	}
}
