package yastorage

import "errors"

var (
	ErrUnknownStorageType   = errors.New("[STORAGE] unknown storage type")
	ErrMissingCustomStorage = errors.New("[STORAGE] custom storage is required")
	ErrInvalidSize          = errors.New("[MEMORY] size must be a positive integer")

	ErrMissingRedisClient   = errors.New("[REDIS] client is required")
	ErrInvalidReferencesTTL = errors.New("[REDIS] referencesTTL must be a positive integer")

	ErrInvalidGCMode   = errors.New("[REDIS-GC] mode must be `strict` or `lazy`")
	ErrInvalidGCChunk  = errors.New("[REDIS-GC] chunk must be a positive integer")
	ErrInvalidGCCursor = errors.New("[REDIS-GC] lazy cursor must be a non-negative integer")
)
