package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/roach88/listsync/internal/object"
)

// marshalItems encodes a page's objects as JSON TEXT.
// HTML escaping is disabled so payload strings are stored verbatim.
func marshalItems(items []object.Tracked) (string, error) {
	if items == nil {
		items = []object.Tracked{}
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(items); err != nil {
		return "", fmt.Errorf("marshal items: %w", err)
	}
	return strings.TrimSpace(buf.String()), nil
}

// unmarshalItems decodes JSON TEXT written by marshalItems.
// Numbers in payloads decode as json.Number so large integers survive.
func unmarshalItems(data string) ([]object.Tracked, error) {
	items := []object.Tracked{}
	if data == "" || data == "[]" {
		return items, nil
	}
	dec := json.NewDecoder(strings.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&items); err != nil {
		return nil, fmt.Errorf("unmarshal items: %w", err)
	}
	return items, nil
}
