// Package protocol defines the wire contract between producers and the
// gateway: newline-delimited JSON requests in, one raw JSON response per
// request out. Decoding is strict about the required fields but tolerant of
// unknown action verbs, which the dispatcher rejects with its own error so
// the client can tell a malformed request from an unsupported action.
package protocol

import (
	"bytes"
	"encoding/json"

	"github.com/threelight/redisgate/errors"
)

// Action is a request's operation verb.
type Action string

// The four actions the gateway supports.
const (
	ActionSet  Action = "set"
	ActionDel  Action = "del"
	ActionSAdd Action = "sadd"
	ActionSRem Action = "srem"
)

// Known reports whether the action is one of the supported verbs.
func (a Action) Known() bool {
	switch a {
	case ActionSet, ActionDel, ActionSAdd, ActionSRem:
		return true
	}
	return false
}

// Response statuses.
const (
	StatusOk    = "ok"
	StatusError = "error"
)

// Canned response messages shared with conforming clients.
const (
	MsgInvalidRequest = "Invalid request format"
	MsgInvalidKey     = "Invalid key format"
	MsgInvalidAction  = "Invalid action"
	MsgCompleted      = "Action completed successfully"
)

// Request is one client-submitted operation. Value is kept raw: the schema
// registry validates it structurally and the dispatcher forwards its
// canonical text, so the gateway never needs a decoded form.
type Request struct {
	Action Action          `json:"action"`
	Key    string          `json:"key"`
	Value  json.RawMessage `json:"value,omitempty"`
}

// HasValue reports whether the request carried a value field.
func (r *Request) HasValue() bool {
	return len(r.Value) > 0
}

// CanonicalValue returns the value's canonical JSON text. An absent value
// is treated as the JSON null literal, matching what a client that omitted
// the field intended to store.
func (r *Request) CanonicalValue() string {
	if !r.HasValue() {
		return "null"
	}
	var compact bytes.Buffer
	if err := json.Compact(&compact, r.Value); err != nil {
		// Value passed Unmarshal, so Compact cannot fail; keep the raw text
		// as a safety net.
		return string(r.Value)
	}
	return compact.String()
}

// Response is the gateway's reply to one request.
type Response struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// Ok builds a success response.
func Ok(message string) Response {
	return Response{Status: StatusOk, Message: message}
}

// Error builds an error response.
func Error(message string) Response {
	return Response{Status: StatusError, Message: message}
}

// DecodeRequest parses one request line. It fails on malformed JSON, wrong
// field types, and missing action or key; it does not reject unknown action
// verbs, which produce a distinct dispatcher-level error.
func DecodeRequest(line []byte) (Request, error) {
	var req Request
	if err := json.Unmarshal(line, &req); err != nil {
		return Request{}, errors.WrapInvalid(errors.ErrInvalidRequest, "Protocol", "DecodeRequest", "unmarshal request")
	}
	if req.Action == "" || req.Key == "" {
		return Request{}, errors.WrapInvalid(errors.ErrInvalidRequest, "Protocol", "DecodeRequest", "check required fields")
	}
	return req, nil
}

// EncodeResponse serializes a response to its wire form. The peer reads
// whatever bytes arrive as one logical reply; no trailing delimiter.
func EncodeResponse(resp Response) []byte {
	data, err := json.Marshal(resp)
	if err != nil {
		// Response has only string fields; Marshal cannot fail.
		return []byte(`{"status":"error","message":"internal encoding error"}`)
	}
	return data
}

// DecodeResponse parses a reply, for conforming clients and tests.
func DecodeResponse(data []byte) (Response, error) {
	var resp Response
	if err := json.Unmarshal(data, &resp); err != nil {
		return Response{}, errors.WrapInvalid(err, "Protocol", "DecodeResponse", "unmarshal response")
	}
	return resp, nil
}
