package protocol

import (
	"encoding/json"
	"fmt"
)

type Params struct {
	Envelope json.RawMessage `json:"envelope,omitempty"`
	Payload  json.RawMessage `json:"payload,omitempty"`
}

type Request struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  Params `json:"params"`
	ID      string `json:"id"`
}

type Result struct {
	Envelope Envelope `json:"envelope"`
	Payload  any      `json:"payload"`
}

type ErrorObject struct {
	Code    int       `json:"code"`
	Message string    `json:"message"`
	Data    ErrorData `json:"data"`
}

type ErrorData struct {
	ErrorCode string         `json:"error_code"`
	Details   map[string]any `json:"details"`
}

// Response is a JSON-RPC 2.0 response. The id is a pointer so that a
// malformed request that never produced an id still serializes an explicit
// null, per the JSON-RPC 2.0 spec.
type Response struct {
	JSONRPC string       `json:"jsonrpc"`
	Result  *Result      `json:"result,omitempty"`
	Error   *ErrorObject `json:"error,omitempty"`
	ID      *string      `json:"id"`
}

// DecodeRequest parses and validates the JSON-RPC layer of an inbound
// message. The returned id is best-effort: even when validation fails it
// carries whatever id the raw body declared, so error responses can echo
// it.
func DecodeRequest(body []byte) (*Request, string, *Error) {
	var frame struct {
		JSONRPC string          `json:"jsonrpc"`
		Method  string          `json:"method"`
		Params  json.RawMessage `json:"params"`
		ID      string          `json:"id"`
	}
	if err := json.Unmarshal(body, &frame); err != nil {
		return nil, "", NewError(CodeInvalidJSONRPC,
			fmt.Sprintf("Invalid JSON: %s", err), nil)
	}

	if frame.JSONRPC != JSONRPCVersion {
		return nil, frame.ID, NewError(CodeInvalidJSONRPC,
			fmt.Sprintf("Invalid JSON-RPC version: %s", frame.JSONRPC),
			map[string]any{"expected": JSONRPCVersion})
	}
	if frame.Method != Method {
		return nil, frame.ID, NewError(CodeInvalidMethod,
			fmt.Sprintf("Invalid method: %s", frame.Method),
			map[string]any{"expected": Method})
	}

	var params Params
	if len(frame.Params) == 0 {
		return nil, frame.ID, NewError(CodeMissingRequiredField,
			"Missing or invalid 'params' field", nil)
	}
	if err := json.Unmarshal(frame.Params, &params); err != nil {
		return nil, frame.ID, NewError(CodeMissingRequiredField,
			"Missing or invalid 'params' field", nil)
	}
	if len(params.Envelope) == 0 {
		return nil, frame.ID, NewError(CodeMissingEnvelope,
			"Missing 'envelope' in params", nil)
	}

	return &Request{
		JSONRPC: frame.JSONRPC,
		Method:  frame.Method,
		Params:  params,
		ID:      frame.ID,
	}, frame.ID, nil
}

// DecodeEnvelope unmarshals and fully validates the request envelope.
func DecodeEnvelope(raw json.RawMessage) (*Envelope, *Error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, NewError(CodeInvalidEnvelopeField,
			fmt.Sprintf("Malformed envelope: %s", err), nil)
	}
	if verr := env.Validate(); verr != nil {
		return nil, verr
	}
	return &env, nil
}

// NewSuccessResponse wraps a response envelope and payload, echoing the
// request id.
func NewSuccessResponse(envelope Envelope, payload any, requestID string) *Response {
	return &Response{
		JSONRPC: JSONRPCVersion,
		Result:  &Result{Envelope: envelope, Payload: payload},
		ID:      &requestID,
	}
}

// NewErrorResponse builds a JSON-RPC error response. requestID may be nil
// when the request never produced an id.
func NewErrorResponse(perr *Error, requestID *string) *Response {
	return &Response{
		JSONRPC: JSONRPCVersion,
		Error: &ErrorObject{
			Code:    int(perr.Code),
			Message: perr.Message,
			Data: ErrorData{
				ErrorCode: perr.Code.Name(),
				Details:   perr.Details,
			},
		},
		ID: requestID,
	}
}

// EncodeRequest builds the JSON body for an outbound JSON-RPC request.
func EncodeRequest(envelope Envelope, payload any, requestID string) ([]byte, error) {
	envRaw, err := json.Marshal(envelope)
	if err != nil {
		return nil, err
	}
	payloadRaw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Request{
		JSONRPC: JSONRPCVersion,
		Method:  Method,
		Params:  Params{Envelope: envRaw, Payload: payloadRaw},
		ID:      requestID,
	})
}
