package state

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// Slot names used by the explorer.
const (
	SlotFavorites  = "api-favorites"
	SlotHistory    = "api-history"
	SlotTranscript = "chat-transcript"
)

// CurrentVersion is the envelope version written by Save.
const CurrentVersion = 1

var (
	// ErrUnsupportedVersion means a record was written by a newer format.
	ErrUnsupportedVersion = errors.New("unsupported record version")
	// ErrCorrupt means a record could not be decoded.
	ErrCorrupt = errors.New("corrupt record")
)

// Envelope wraps every persisted slot value.
type Envelope struct {
	Version int             `json:"version"`
	Data    json.RawMessage `json:"data"`
}

// encodeRecord wraps v in a current-version envelope.
func encodeRecord(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal value: %w", err)
	}
	return json.Marshal(Envelope{Version: CurrentVersion, Data: data})
}

// decodeRecord unwraps an envelope into v. Records without an envelope are
// decoded as-is, which covers values written before versioning existed.
func decodeRecord(raw []byte, v any) error {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return fmt.Errorf("%w: empty", ErrCorrupt)
	}

	if raw[0] == '{' {
		var env Envelope
		if err := json.Unmarshal(raw, &env); err == nil && env.Version != 0 {
			if env.Version > CurrentVersion {
				return fmt.Errorf("%w: %d", ErrUnsupportedVersion, env.Version)
			}
			if err := json.Unmarshal(env.Data, v); err != nil {
				return fmt.Errorf("%w: %v", ErrCorrupt, err)
			}
			return nil
		}
	}

	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return nil
}
