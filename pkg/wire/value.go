package wire

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

// tag identifies the shape of the value that follows, one byte per spec.md
// §6's "integers, floats, byte strings, text, lists, dictionaries, booleans,
// and null".
type tag uint8

const (
	tagNull tag = iota
	tagBool
	tagInt
	tagFloat
	tagBytes
	tagText
	tagList
	tagDict
)

// Dict is an insertion-ordered string-keyed map: grist-style document
// bundles are dictionaries of named fields, and rename/undo replay depends
// on field order being stable across an encode/decode round trip, so a plain
// Go map (unordered iteration) cannot stand in for it.
type Dict struct {
	keys   []string
	values map[string]interface{}
}

// NewDict returns an empty ordered dictionary.
func NewDict() *Dict {
	return &Dict{values: make(map[string]interface{})}
}

// Set assigns key to value, appending key to the iteration order the first
// time it is seen and leaving the order unchanged on overwrite.
func (d *Dict) Set(key string, value interface{}) {
	if _, exists := d.values[key]; !exists {
		d.keys = append(d.keys, key)
	}
	d.values[key] = value
}

// Get returns the value stored at key, if any.
func (d *Dict) Get(key string) (interface{}, bool) {
	v, ok := d.values[key]
	return v, ok
}

// Keys returns the dictionary's keys in insertion order.
func (d *Dict) Keys() []string {
	out := make([]string, len(d.keys))
	copy(out, d.keys)
	return out
}

// Len returns the number of entries.
func (d *Dict) Len() int { return len(d.keys) }

func writeUint32(w io.Writer, v uint32) error {
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint32(buf, v)
	_, err := w.Write(buf)
	return err
}

func readUint32(r io.Reader) (uint32, error) {
	buf := make([]byte, 4)
	if _, err := io.ReadFull(r, buf); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(buf), nil
}

// Encode writes one self-describing value: a tag byte followed by the
// value's payload. Supported Go types are nil, bool, int64 (any narrower
// signed/unsigned integer is first widened by the caller), float64,
// []byte, string, []interface{} and *Dict.
func Encode(w io.Writer, v interface{}) error {
	switch val := v.(type) {
	case nil:
		_, err := w.Write([]byte{byte(tagNull)})
		return err
	case bool:
		b := byte(0)
		if val {
			b = 1
		}
		_, err := w.Write([]byte{byte(tagBool), b})
		return err
	case int64:
		if _, err := w.Write([]byte{byte(tagInt)}); err != nil {
			return err
		}
		buf := make([]byte, 8)
		binary.LittleEndian.PutUint64(buf, uint64(val))
		_, err := w.Write(buf)
		return err
	case int:
		return Encode(w, int64(val))
	case float64:
		if _, err := w.Write([]byte{byte(tagFloat)}); err != nil {
			return err
		}
		buf := make([]byte, 8)
		binary.LittleEndian.PutUint64(buf, math.Float64bits(val))
		_, err := w.Write(buf)
		return err
	case []byte:
		if _, err := w.Write([]byte{byte(tagBytes)}); err != nil {
			return err
		}
		if err := writeUint32(w, uint32(len(val))); err != nil {
			return err
		}
		_, err := w.Write(val)
		return err
	case string:
		if _, err := w.Write([]byte{byte(tagText)}); err != nil {
			return err
		}
		if err := writeUint32(w, uint32(len(val))); err != nil {
			return err
		}
		_, err := io.WriteString(w, val)
		return err
	case []interface{}:
		if _, err := w.Write([]byte{byte(tagList)}); err != nil {
			return err
		}
		if err := writeUint32(w, uint32(len(val))); err != nil {
			return err
		}
		for _, elem := range val {
			if err := Encode(w, elem); err != nil {
				return err
			}
		}
		return nil
	case *Dict:
		if _, err := w.Write([]byte{byte(tagDict)}); err != nil {
			return err
		}
		if err := writeUint32(w, uint32(val.Len())); err != nil {
			return err
		}
		for _, key := range val.Keys() {
			if err := Encode(w, key); err != nil {
				return err
			}
			value, _ := val.Get(key)
			if err := Encode(w, value); err != nil {
				return err
			}
		}
		return nil
	default:
		return fmt.Errorf("wire: cannot encode value of type %T", v)
	}
}

// Decode reads one self-describing value produced by Encode.
func Decode(r io.Reader) (interface{}, error) {
	tagBuf := make([]byte, 1)
	if _, err := io.ReadFull(r, tagBuf); err != nil {
		return nil, err
	}
	switch tag(tagBuf[0]) {
	case tagNull:
		return nil, nil
	case tagBool:
		b := make([]byte, 1)
		if _, err := io.ReadFull(r, b); err != nil {
			return nil, err
		}
		return b[0] != 0, nil
	case tagInt:
		buf := make([]byte, 8)
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, err
		}
		return int64(binary.LittleEndian.Uint64(buf)), nil
	case tagFloat:
		buf := make([]byte, 8)
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, err
		}
		return math.Float64frombits(binary.LittleEndian.Uint64(buf)), nil
	case tagBytes:
		n, err := readUint32(r)
		if err != nil {
			return nil, err
		}
		buf := make([]byte, n)
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, err
		}
		return buf, nil
	case tagText:
		n, err := readUint32(r)
		if err != nil {
			return nil, err
		}
		buf := make([]byte, n)
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, err
		}
		return string(buf), nil
	case tagList:
		n, err := readUint32(r)
		if err != nil {
			return nil, err
		}
		out := make([]interface{}, 0, n)
		for i := uint32(0); i < n; i++ {
			elem, err := Decode(r)
			if err != nil {
				return nil, err
			}
			out = append(out, elem)
		}
		return out, nil
	case tagDict:
		n, err := readUint32(r)
		if err != nil {
			return nil, err
		}
		d := NewDict()
		for i := uint32(0); i < n; i++ {
			keyVal, err := Decode(r)
			if err != nil {
				return nil, err
			}
			key, ok := keyVal.(string)
			if !ok {
				return nil, fmt.Errorf("wire: dict key must be text, got %T", keyVal)
			}
			value, err := Decode(r)
			if err != nil {
				return nil, err
			}
			d.Set(key, value)
		}
		return d, nil
	default:
		return nil, fmt.Errorf("wire: unknown tag byte 0x%x", tagBuf[0])
	}
}
