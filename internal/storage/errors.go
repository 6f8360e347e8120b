package storage

import "errors"

var (
	ErrBackendUnavailable = errors.New("vector backend unreachable")
	ErrDimensionMismatch  = errors.New("embedding dimension mismatch")
	ErrEmptyCollectionID  = errors.New("collection id is empty")
	ErrMetadataMismatch   = errors.New("metadata count does not match chunk count")
)
