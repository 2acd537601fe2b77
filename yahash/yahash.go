// Package yahash turns arbitrary call arguments into stable string cache
// keys.
//
// Two equal values must always hash to the same key, no matter how they were
// built: maps with the same pairs inserted in different orders, numbers that
// print the same, and so on. The canonical form is JSON with object keys in
// lexicographic order, which is what [encoding/json] emits for Go maps, with
// scalar values rendered in their natural textual form (`42`, `true`, `foo`)
// rather than as JSON literals.
//
// Callers may install their own serializer; its output short-circuits the
// canonical path when it is already a string.
//
// # Quick start
//
//	key, _ := yahash.Key(map[string]int{"b": 2, "a": 1}, nil)
//	fmt.Println(key) // {"a":1,"b":2}
//
//	key, _ = yahash.Key(42, nil)
//	fmt.Println(key) // 42
package yahash

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Serializer converts raw call arguments into the value that is hashed.
//
// A string result is used as the cache key verbatim; any other result is
// canonical-stringified.
type Serializer func(args any) any

// Key maps args to a stable cache key. The key is empty when args is the
// empty string, or when the serializer returns the empty string; no other
// fallback is applied.
//
// When serializer is non-nil it is applied first. The serializer contract
// mirrors the canonical path: a string result is the key, anything else goes
// through [CanonicalString].
//
// Example:
//
//	key, err := yahash.Key(request, func(args any) any {
//		return args.(Request).ID
//	})
func Key(args any, serializer Serializer) (string, error) {
	if serializer != nil {
		serialized := serializer(args)

		if key, ok := serialized.(string); ok {
			return key, nil
		}

		return CanonicalString(serialized)
	}

	return CanonicalString(args)
}

// CanonicalString renders a value in its canonical textual form.
//
// Scalars use their natural rendering, composite values become JSON with
// lexicographically ordered object keys. Cyclic values fail deterministically
// with the underlying [encoding/json] cycle error.
//
// Example:
//
//	s, _ := yahash.CanonicalString([]int{1, 2, 3})
//	fmt.Println(s) // [1,2,3]
func CanonicalString(value any) (string, error) {
	switch scalar := value.(type) {
	case nil:
		return "null", nil
	case string:
		return scalar, nil
	case bool:
		return strconv.FormatBool(scalar), nil
	case int:
		return strconv.FormatInt(int64(scalar), 10), nil
	case int8:
		return strconv.FormatInt(int64(scalar), 10), nil
	case int16:
		return strconv.FormatInt(int64(scalar), 10), nil
	case int32:
		return strconv.FormatInt(int64(scalar), 10), nil
	case int64:
		return strconv.FormatInt(scalar, 10), nil
	case uint:
		return strconv.FormatUint(uint64(scalar), 10), nil
	case uint8:
		return strconv.FormatUint(uint64(scalar), 10), nil
	case uint16:
		return strconv.FormatUint(uint64(scalar), 10), nil
	case uint32:
		return strconv.FormatUint(uint64(scalar), 10), nil
	case uint64:
		return strconv.FormatUint(scalar, 10), nil
	case float32:
		return strconv.FormatFloat(float64(scalar), 'f', -1, 32), nil
	case float64:
		return strconv.FormatFloat(scalar, 'f', -1, 64), nil
	}

	encoded, err := json.Marshal(value)
	if err != nil {
		return "", fmt.Errorf("[HASH] failed to canonicalize `%T`: %w", value, err)
	}

	return string(encoded), nil
}
