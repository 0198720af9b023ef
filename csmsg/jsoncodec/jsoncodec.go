// Package jsoncodec is the default csmsg.Codec: plain encoding/json over
// csmsg.RawPayload.
package jsoncodec

import (
	"encoding/json"

	"github.com/c360/maf/csmsg"
)

// Codec implements csmsg.Codec using encoding/json.
type Codec struct{}

// New returns a ready-to-use Codec. It holds no state and is safe to
// share across goroutines.
func New() *Codec { return &Codec{} }

// Encode implements csmsg.Codec.
func (c *Codec) Encode(v any) (csmsg.Payload, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return csmsg.RawPayload(data), nil
}

// Decode implements csmsg.Codec.
func (c *Codec) Decode(p csmsg.Payload, out any) (csmsg.TranslationStatus, error) {
	if p == nil {
		return csmsg.TranslationNoSource, nil
	}
	if err := json.Unmarshal(p.Bytes(), out); err != nil {
		return csmsg.TranslationSourceCorrupted, err
	}
	return csmsg.TranslationSuccess, nil
}
