// Package chunk validates and decodes incoming audio chunk payloads.
//
// Callers submit audio as standard base64 text. Decoding is the first
// pipeline stage: an empty or malformed payload is rejected with a
// *DecodeError before any provider is contacted.
package chunk

import (
	"encoding/base64"
	"errors"
	"fmt"
)

// MinPayloadLen is the minimum number of base64 characters considered worth
// transcribing. Shorter payloads decode to a fraction of a second of audio
// and reliably come back empty from STT providers, so they are treated as
// silence without an outbound call.
const MinPayloadLen = 500

// ErrEmptyPayload is the cause recorded when a chunk carries no audio data.
var ErrEmptyPayload = errors.New("empty audio payload")

// DecodeError is returned when a chunk payload cannot be decoded.
type DecodeError struct {
	// Err is the underlying cause.
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode audio chunk: %v", e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Decode validates and decodes a base64 audio payload. An empty payload or
// invalid base64 text yields a *DecodeError.
func Decode(payload string) ([]byte, error) {
	if payload == "" {
		return nil, &DecodeError{Err: ErrEmptyPayload}
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, &DecodeError{Err: err}
	}
	return data, nil
}

// TooShort reports whether the payload is below the transcription threshold
// and should be treated as silence.
func TooShort(payload string) bool {
	return len(payload) < MinPayloadLen
}
