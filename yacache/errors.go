package yacache

import "errors"

var (
	ErrMissingStorage  = errors.New("[CACHE] storage is required")
	ErrMissingProducer = errors.New("[CACHE] producer is required")
	ErrInvalidTTL      = errors.New("[CACHE] ttl must be a non-negative integer")
	ErrInvalidStale    = errors.New("[CACHE] stale must be a non-negative integer")

	ErrInvalidName  = errors.New("[CACHE] name must be a non-empty string")
	ErrReservedName = errors.New("[CACHE] name is reserved")
	ErrNameTaken    = errors.New("[CACHE] name is already defined")
	ErrNotDefined   = errors.New("is not defined in the cache")

	ErrTTLNotInteger     = errors.New("[CACHE] ttl must be an integer")
	ErrWrongArgumentType = errors.New("[CACHE] arguments have the wrong type for this function")
	ErrWrongValueType    = errors.New("[CACHE] value has the wrong type for this function")
)
