package domain

import "errors"

// Sentinel errors for domain operations
var (
	// ErrStorageUnavailable indicates the durable store cannot be used.
	// Callers proceed without durability.
	ErrStorageUnavailable = errors.New("local storage is unavailable")

	// ErrNetworkUnavailable indicates the catalog server could not be reached
	ErrNetworkUnavailable = errors.New("catalog server is unreachable")

	// ErrPlaybackFailed indicates the audio output rejected the source
	ErrPlaybackFailed = errors.New("playback failed")

	// ErrValidationFailed indicates a bad index, identifier or URL
	ErrValidationFailed = errors.New("validation failed")

	// ErrSongNotFound indicates the requested song does not exist
	ErrSongNotFound = errors.New("song not found")

	// ErrRequestRejected indicates the server answered but refused the request
	ErrRequestRejected = errors.New("request rejected by server")
)
