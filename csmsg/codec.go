package csmsg

// Codec translates between a typed Go value and the opaque Payload
// carried on the wire. Core packages (component, service, router) never
// import a concrete codec, and neither service.Requester nor
// service.Provider takes one: callers encode and decode payloads with the
// codec they pick.
type Codec interface {
	// Encode produces a Payload from v.
	Encode(v any) (Payload, error)
	// Decode populates out (a pointer) from p. Returns a
	// TranslationStatus alongside the error so callers can distinguish
	// "no payload" from "malformed payload" without parsing err text.
	Decode(p Payload, out any) (TranslationStatus, error)
}
