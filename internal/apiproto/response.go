package apiproto

import (
	"encoding/json"
	"fmt"
	"io"
)

// Response is the {result:int, ...} envelope every call returns. Result
// is the application error code (0 == success); Fields holds the
// verb-specific payload, decoded lazily via Decode.
type Response struct {
	Result int             `json:"result"`
	Fields json.RawMessage `json:"-"`
	raw    map[string]json.RawMessage
}

// ReadResponse decodes one JSON response object from r. The wire protocol
// frames request/response as binary, but the server's own convention
// represents the result envelope as JSON within the frame body — mirrored
// here because internal/apiproto only needs to parse the envelope shape,
// not re-derive a bespoke binary encoding for it.
func ReadResponse(r io.Reader) (*Response, error) {
	dec := json.NewDecoder(r)

	var raw map[string]json.RawMessage
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("decoding response envelope: %w", err)
	}

	resp := &Response{raw: raw}

	if v, ok := raw["result"]; ok {
		if err := json.Unmarshal(v, &resp.Result); err != nil {
			return nil, fmt.Errorf("decoding result field: %w", err)
		}
	}

	return resp, nil
}

// Decode unmarshals the named field of the response into dst.
func (r *Response) Decode(field string, dst any) error {
	v, ok := r.raw[field]
	if !ok {
		return fmt.Errorf("response field %q not present", field)
	}

	return json.Unmarshal(v, dst)
}

// Has reports whether the named field is present in the response.
func (r *Response) Has(field string) bool {
	_, ok := r.raw[field]

	return ok
}

// OK reports whether the response's result code indicates success.
func (r *Response) OK() bool { return r.Result == 0 }
