// Package contenthash computes stable content hashes for upstream entity
// payloads. Payloads are encoded with CBOR core deterministic encoding and
// hashed with keyed BLAKE3, so the same logical record always hashes to the
// same digest regardless of map ordering or numeric representation.
package contenthash

import (
	"encoding/hex"
	"fmt"
	"math"
	"reflect"

	"github.com/fxamacker/cbor/v2"
	"github.com/zeebo/blake3"
)

// entityDomainKey separates entity hashes from any other keyed BLAKE3 use.
// Changing it invalidates every stored entity hash.
var entityDomainKey = [32]byte{
	's', 'o', 'u', 'r', 'c', 'e', '-', 'c', 'o', 'n', 'n', 'e', 'c', 't', 'i', 'o',
	'n', 's', '.', 'e', 'n', 't', 'i', 't', 'y', 0, 0, 0, 0, 0, 0, 0,
}

var encMode cbor.EncMode

func init() {
	var err error
	options := cbor.CoreDetEncOptions()
	options.Time = cbor.TimeRFC3339Nano
	encMode, err = options.EncMode()
	if err != nil {
		panic("contenthash: CBOR encoder initialization failed: " + err.Error())
	}
}

// Sum returns the hex digest of payload.
func Sum(payload any) (string, error) {
	data, err := Canonical(payload)
	if err != nil {
		return "", err
	}
	return SumBytes(data)
}

// SumBytes hashes already canonical bytes.
func SumBytes(data []byte) (string, error) {
	hasher, err := blake3.NewKeyed(entityDomainKey[:])
	if err != nil {
		return "", fmt.Errorf("contenthash: keyed hasher: %w", err)
	}
	if _, err := hasher.Write(data); err != nil {
		return "", fmt.Errorf("contenthash: write: %w", err)
	}
	return hex.EncodeToString(hasher.Sum(nil)), nil
}

// MustSum panics on encoding errors. Intended for fixtures.
func MustSum(payload any) string {
	sum, err := Sum(payload)
	if err != nil {
		panic(err)
	}
	return sum
}

// Canonical returns the deterministic CBOR encoding used for hashing.
// Integral floats are encoded as integers so a payload decoded from JSON
// hashes the same as its Go-typed original.
func Canonical(payload any) ([]byte, error) {
	data, err := encMode.Marshal(normalize(payload))
	if err != nil {
		return nil, fmt.Errorf("contenthash: encode payload: %w", err)
	}
	return data, nil
}

func normalize(value any) any {
	switch typed := value.(type) {
	case nil:
		return nil
	case map[string]any:
		out := make(map[string]any, len(typed))
		for key, item := range typed {
			out[key] = normalize(item)
		}
		return out
	case []any:
		out := make([]any, len(typed))
		for i, item := range typed {
			out[i] = normalize(item)
		}
		return out
	case float64:
		return normalizeFloat(typed)
	case float32:
		return normalizeFloat(float64(typed))
	case int:
		return int64(typed)
	case int32:
		return int64(typed)
	case uint32:
		return int64(typed)
	}

	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return value
		}
		out := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			out[iter.Key().String()] = normalize(iter.Value().Interface())
		}
		return out
	case reflect.Slice:
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			return value
		}
		out := make([]any, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			out[i] = normalize(rv.Index(i).Interface())
		}
		return out
	}
	return value
}

func normalizeFloat(value float64) any {
	if math.IsInf(value, 0) || math.IsNaN(value) {
		return value
	}
	if value == math.Trunc(value) && math.Abs(value) < 1<<53 {
		return int64(value)
	}
	return value
}
