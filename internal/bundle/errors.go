package bundle

import "errors"

// Bundle codec domain errors, surfaced to the worker loop so it can map
// them onto the task error taxonomy described in SPEC_FULL.md §7.
var (
	// ErrEncoding means the audio file could not be read while packing.
	ErrEncoding = errors.New("bundle: audio file missing or unreadable")

	// ErrAuth means the container failed authenticated decryption: wrong
	// password or tampered ciphertext.
	ErrAuth = errors.New("bundle: authentication failed")

	// ErrSchema means the metadata record is absent or malformed JSON.
	ErrSchema = errors.New("bundle: metadata missing or malformed")

	// ErrFormat means the audio member is missing or not named audio.ogg.
	ErrFormat = errors.New("bundle: audio member missing or misnamed")
)
