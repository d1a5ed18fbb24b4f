package domain

import "errors"

// Sentinel errors used across layers.
var (
	ErrNotFound         = errors.New("not found")
	ErrAlreadyExists    = errors.New("already exists")
	ErrNotImplemented   = errors.New("not implemented")
	ErrQueueClosed      = errors.New("queue closed")
	ErrOverflow         = errors.New("queue overflow")
	ErrNoDevice         = errors.New("no audio device available")
	ErrPermissionDenied = errors.New("microphone permission denied")
	ErrUnsupportedFormat = errors.New("unsupported audio format")
	ErrDeviceLost       = errors.New("audio device lost")
	ErrLoadFailed       = errors.New("neural engine load failed")
	ErrStepFailed       = errors.New("neural engine step failed")
)
