// Package schemacodec wraps a JSON codec with per-operation JSON Schema
// validation, surfacing schema violations as
// csmsg.TranslationSourceCorrupted rather than a generic decode error.
package schemacodec

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/xeipuuv/gojsonschema"

	"github.com/c360/maf/csmsg"
)

// Codec validates decoded payloads against a schema registered per
// OperationID before handing them back to the caller.
type Codec struct {
	mu      sync.RWMutex
	schemas map[uint64]*gojsonschema.Schema
}

// New returns an empty Codec. Register schemas with RegisterSchema before
// decoding payloads for the corresponding operation ID.
func New() *Codec {
	return &Codec{schemas: make(map[uint64]*gojsonschema.Schema)}
}

// RegisterSchema compiles schemaJSON and associates it with opID. Payloads
// decoded for opID via DecodeOp are validated against it.
func (c *Codec) RegisterSchema(opID uint64, schemaJSON string) error {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(schemaJSON))
	if err != nil {
		return fmt.Errorf("schemacodec: compile schema for op %d: %w", opID, err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.schemas[opID] = schema
	return nil
}

// Encode implements csmsg.Codec. Encoding never validates; only decoded
// (incoming) payloads are checked, matching the original framework's
// treatment of schemas as an inbound guard.
func (c *Codec) Encode(v any) (csmsg.Payload, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return csmsg.RawPayload(data), nil
}

// Decode implements csmsg.Codec without schema validation. Use DecodeOp
// when the payload's operation ID is known.
func (c *Codec) Decode(p csmsg.Payload, out any) (csmsg.TranslationStatus, error) {
	if p == nil {
		return csmsg.TranslationNoSource, nil
	}
	if err := json.Unmarshal(p.Bytes(), out); err != nil {
		return csmsg.TranslationSourceCorrupted, err
	}
	return csmsg.TranslationSuccess, nil
}

// DecodeOp decodes p into out and, if a schema is registered for opID,
// validates the raw JSON against it first.
func (c *Codec) DecodeOp(opID uint64, p csmsg.Payload, out any) (csmsg.TranslationStatus, error) {
	if p == nil {
		return csmsg.TranslationNoSource, nil
	}

	c.mu.RLock()
	schema := c.schemas[opID]
	c.mu.RUnlock()

	if schema != nil {
		result, err := schema.Validate(gojsonschema.NewBytesLoader(p.Bytes()))
		if err != nil {
			return csmsg.TranslationSourceCorrupted, fmt.Errorf("schemacodec: validate op %d: %w", opID, err)
		}
		if !result.Valid() {
			return csmsg.TranslationSourceCorrupted, fmt.Errorf("schemacodec: op %d payload violates schema: %v", opID, result.Errors())
		}
	}

	if err := json.Unmarshal(p.Bytes(), out); err != nil {
		return csmsg.TranslationSourceCorrupted, err
	}
	return csmsg.TranslationSuccess, nil
}
