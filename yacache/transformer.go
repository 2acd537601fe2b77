package yacache

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// Transformer converts results to and from the textual form stored in a
// backend. Every handle runs one, so values round-trip identically through
// the memory and Redis tiers; [JSON] is the default.
type Transformer[R any] interface {
	// Serialize renders value in its stored form.
	Serialize(value R) (string, error)
	// Deserialize rebuilds a value from its stored form.
	Deserialize(stored string) (R, error)
}

type jsonTransformer[R any] struct{}

// JSON returns the default transformer: plain [encoding/json].
//
// Example:
//
//	transformer := yacache.JSON[Profile]()
func JSON[R any]() Transformer[R] {
	return jsonTransformer[R]{}
}

func (jsonTransformer[R]) Serialize(value R) (string, error) {
	encoded, err := json.Marshal(value)
	if err != nil {
		return "", fmt.Errorf("[TRANSFORMER] failed to serialize `%T`: %w", value, err)
	}

	return string(encoded), nil
}

func (jsonTransformer[R]) Deserialize(stored string) (R, error) {
	var value R

	if err := json.Unmarshal([]byte(stored), &value); err != nil {
		return value, fmt.Errorf("[TRANSFORMER] failed to deserialize `%T`: %w", value, err)
	}

	return value, nil
}

type msgpackTransformer[R any] struct{}

// Msgpack returns a transformer that encodes results with MessagePack and
// armors the bytes in base64 so they stay safe in string-typed storage.
//
// Example:
//
//	opts := &yacache.DefineOptions[int, Profile]{
//		Transformer: yacache.Msgpack[Profile](),
//	}
func Msgpack[R any]() Transformer[R] {
	return msgpackTransformer[R]{}
}

func (msgpackTransformer[R]) Serialize(value R) (string, error) {
	encoded, err := msgpack.Marshal(value)
	if err != nil {
		return "", fmt.Errorf("[TRANSFORMER] failed to serialize `%T` using msgpack: %w", value, err)
	}

	return base64.StdEncoding.EncodeToString(encoded), nil
}

func (msgpackTransformer[R]) Deserialize(stored string) (R, error) {
	var value R

	decoded, err := base64.StdEncoding.DecodeString(stored)
	if err != nil {
		return value, fmt.Errorf("[TRANSFORMER] failed to decode base64: %w", err)
	}

	if err := msgpack.Unmarshal(decoded, &value); err != nil {
		return value, fmt.Errorf("[TRANSFORMER] failed to deserialize `%T` using msgpack: %w", value, err)
	}

	return value, nil
}
