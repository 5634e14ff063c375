// Package codec encodes request bodies and decodes response bodies for the
// Engine API client.
package codec

import (
	"bytes"
	"fmt"
	"io"

	jsoniter "github.com/json-iterator/go"
)

// Codec converts between Go values and wire payloads.
type Codec interface {
	// ContentType is sent as the Content-Type of encoded bodies.
	ContentType() string
	Encode(v any) ([]byte, error)
	Decode(data []byte, v any) error
}

// JSON is the codec the Engine API speaks.
type JSON struct {
	api jsoniter.API
}

// NewJSON returns a JSON codec with standard library compatible behaviour.
func NewJSON() *JSON {
	return &JSON{api: jsoniter.ConfigCompatibleWithStandardLibrary}
}

// ContentType implements Codec.
func (c *JSON) ContentType() string {
	return "application/json"
}

// Encode implements Codec.
func (c *JSON) Encode(v any) ([]byte, error) {
	data, err := c.api.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode %T: %w", v, err)
	}
	return data, nil
}

// Decode implements Codec. An empty or whitespace-only payload is an error,
// the service always answers with a document.
func (c *JSON) Decode(data []byte, v any) error {
	if len(bytes.TrimSpace(data)) == 0 {
		return fmt.Errorf("decode %T: %w", v, io.ErrUnexpectedEOF)
	}
	if err := c.api.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %T: %w", v, err)
	}
	return nil
}

