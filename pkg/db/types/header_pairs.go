package dbtypes

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// HeaderPair is one HTTP header as stored in a cached response. Values are raw
// bytes so non-UTF-8 header values survive the round trip.
type HeaderPair struct {
	Name  string `json:"name"`
	Value []byte `json:"value"`
}

// HeaderPairs keeps header order and duplicates; persisted as a JSON array.
type HeaderPairs []HeaderPair

func (h *HeaderPairs) Scan(src any) error {
	if src == nil {
		*h = HeaderPairs{}
		return nil
	}

	var raw []byte
	switch v := src.(type) {
	case string:
		raw = []byte(v)
	case []byte:
		raw = v
	default:
		return fmt.Errorf("HeaderPairs: unsupported Scan type %T", src)
	}

	if len(raw) == 0 {
		*h = HeaderPairs{}
		return nil
	}

	var out []HeaderPair
	if err := json.Unmarshal(raw, &out); err != nil {
		return fmt.Errorf("HeaderPairs: decode: %w", err)
	}
	*h = HeaderPairs(out)
	return nil
}

func (h HeaderPairs) Value() (driver.Value, error) {
	if h == nil {
		return "[]", nil
	}
	raw, err := json.Marshal([]HeaderPair(h))
	if err != nil {
		return nil, fmt.Errorf("HeaderPairs: encode: %w", err)
	}
	return string(raw), nil
}
