package domain

import "errors"

var (
	ErrNotFound   = errors.New("not found")
	ErrValidation = errors.New("validation failed")
	ErrConflict   = errors.New("conflict")

	// ErrNoAudioAsset means the call's script has no synthesized audio yet.
	ErrNoAudioAsset = errors.New("no audio asset")
)
