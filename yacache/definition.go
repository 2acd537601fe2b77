package yacache

import (
	"context"
	"fmt"
)

// The dynamic facade surface reaches typed handles through these adapters.
// Arguments and values are asserted back to the handle's type parameters;
// a mismatch is a caller error, not a cache error.

func (h *Handle[P, R]) callAny(ctx context.Context, args any) (any, error) {
	typed, err := assertArgs[P](h.cacheName, args)
	if err != nil {
		return nil, err
	}

	return h.Call(ctx, typed)
}

func (h *Handle[P, R]) getAny(ctx context.Context, args any) (any, bool, error) {
	typed, err := assertArgs[P](h.cacheName, args)
	if err != nil {
		return nil, false, err
	}

	value, found, err := h.Get(ctx, typed)
	if !found || err != nil {
		return nil, found, err
	}

	return value, true, nil
}

func (h *Handle[P, R]) setAny(
	ctx context.Context,
	args any,
	value any,
	ttl int64,
	references []string,
) error {
	typedArgs, err := assertArgs[P](h.cacheName, args)
	if err != nil {
		return err
	}

	typedValue, ok := value.(R)
	if !ok {
		return fmt.Errorf("%w: `%s` expects %T", ErrWrongValueType, h.cacheName, typedValue)
	}

	return h.Set(ctx, typedArgs, typedValue, ttl, references)
}

func (h *Handle[P, R]) invalidateAny(ctx context.Context, references []string) ([]string, error) {
	return h.Invalidate(ctx, references)
}

func (h *Handle[P, R]) clearAll(ctx context.Context) error {
	return h.Clear(ctx)
}

func (h *Handle[P, R]) clearOne(ctx context.Context, args any) error {
	typed, err := assertArgs[P](h.cacheName, args)
	if err != nil {
		return err
	}

	return h.ClearKey(ctx, typed)
}

func assertArgs[P any](name string, args any) (P, error) {
	typed, ok := args.(P)
	if !ok {
		return typed, fmt.Errorf("%w: `%s` expects %T", ErrWrongArgumentType, name, typed)
	}

	return typed, nil
}
