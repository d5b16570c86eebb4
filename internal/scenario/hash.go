// Package scenario parses input events into scenarios and gives scenarios a
// stable identity in storage.
package scenario

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"hash/fnv"
	"math"
	"reflect"
	"slices"

	"github.com/GFZ-Centre-for-Early-Warning/caravan/internal/domain"
)

// Type tags of the canonical encoding.
const (
	tagNull   byte = 'N'
	tagBool   byte = 'b'
	tagInt    byte = 'i'
	tagFloat  byte = 'f'
	tagString byte = 's'
	tagList   byte = 'l'
	tagMap    byte = 'm'
)

// Hash returns the identity of s: the 64-bit FNV-1a hash of the canonical
// encoding of its persisted columns, in declared column order.
func Hash(s *domain.Scenario) uint64 {
	return HashValue(s.PersistedColumns())
}

// HashValue hashes an arbitrary nested value with the scenario algorithm.
// Lists keep their order, map entries are sorted by encoded key, and
// integral floats hash like integers. Unsupported types panic.
func HashValue(v any) uint64 {
	var buf bytes.Buffer
	encode(&buf, reflect.ValueOf(v))
	h := fnv.New64a()
	_, _ = h.Write(buf.Bytes())
	return h.Sum64()
}

// StorageHash converts a hash to the signed bit pattern stored in a bigint
// column.
func StorageHash(h uint64) int64 {
	return int64(h)
}

func encode(buf *bytes.Buffer, v reflect.Value) {
	if !v.IsValid() {
		buf.WriteByte(tagNull)
		return
	}

	switch v.Kind() {
	case reflect.Interface, reflect.Pointer:
		if v.IsNil() {
			buf.WriteByte(tagNull)
			return
		}
		encode(buf, v.Elem())
	case reflect.Bool:
		buf.WriteByte(tagBool)
		if v.Bool() {
			buf.WriteByte(1)
		} else {
			buf.WriteByte(0)
		}
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		writeInt(buf, v.Int())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		u := v.Uint()
		if u > math.MaxInt64 {
			writeFloat(buf, float64(u))
			return
		}
		writeInt(buf, int64(u))
	case reflect.Float32, reflect.Float64:
		writeNumber(buf, v.Float())
	case reflect.String:
		buf.WriteByte(tagString)
		writeLen(buf, v.Len())
		buf.WriteString(v.String())
	case reflect.Slice, reflect.Array:
		if v.Kind() == reflect.Slice && v.IsNil() {
			buf.WriteByte(tagNull)
			return
		}
		buf.WriteByte(tagList)
		writeLen(buf, v.Len())
		for i := range v.Len() {
			encode(buf, v.Index(i))
		}
	case reflect.Map:
		if v.IsNil() {
			buf.WriteByte(tagNull)
			return
		}
		type entry struct{ key, value []byte }
		entries := make([]entry, 0, v.Len())
		iter := v.MapRange()
		for iter.Next() {
			var k, val bytes.Buffer
			encode(&k, iter.Key())
			encode(&val, iter.Value())
			entries = append(entries, entry{k.Bytes(), val.Bytes()})
		}
		slices.SortFunc(entries, func(a, b entry) int { return bytes.Compare(a.key, b.key) })
		buf.WriteByte(tagMap)
		writeLen(buf, len(entries))
		for _, e := range entries {
			buf.Write(e.key)
			buf.Write(e.value)
		}
	default:
		panic(fmt.Sprintf("scenario: cannot hash value of type %s", v.Type()))
	}
}

func writeNumber(buf *bytes.Buffer, f float64) {
	if f == math.Trunc(f) && f >= math.MinInt64 && f < math.MaxInt64 {
		writeInt(buf, int64(f))
		return
	}
	writeFloat(buf, f)
}

func writeInt(buf *bytes.Buffer, i int64) {
	buf.WriteByte(tagInt)
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(i))
	buf.Write(b[:])
}

func writeFloat(buf *bytes.Buffer, f float64) {
	if math.IsNaN(f) {
		f = math.NaN()
	}
	buf.WriteByte(tagFloat)
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], math.Float64bits(f))
	buf.Write(b[:])
}

func writeLen(buf *bytes.Buffer, n int) {
	var b [binary.MaxVarintLen64]byte
	buf.Write(b[:binary.PutUvarint(b[:], uint64(n))])
}
