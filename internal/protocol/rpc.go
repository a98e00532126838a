package protocol

import "encoding/json"

// JSON-RPC error codes this process returns. -32600 ("invalid request") is
// the one the app-server surface relies on most: requests before
// initialize, requests against a thread that isn't loaded, and disabled
// features all report it. Unknown methods get -32601; a frame that is not
// valid JSON is logged and gets no response.
const (
	ErrInvalidRequest = -32600
	ErrMethodNotFound = -32601
	ErrInvalidParams  = -32602
	ErrInternal       = -32603
)

// RPCRequest is a client->server call expecting an RPCResponse.
type RPCRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// RPCNotification is a one-way message in either direction; it carries no
// ID and gets no response.
type RPCNotification struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// RPCError is the error object embedded in an RPCResponse.
type RPCError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// RPCResponse answers an RPCRequest by ID. Exactly one of Result/Error is
// set.
type RPCResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// NewRPCError builds an error response for the given request id.
func NewRPCError(id json.RawMessage, code int, message string) RPCResponse {
	return RPCResponse{
		JSONRPC: "2.0",
		ID:      id,
		Error:   &RPCError{Code: code, Message: message},
	}
}

// NewRPCResult builds a success response for the given request id.
func NewRPCResult(id json.RawMessage, result interface{}) (RPCResponse, error) {
	raw, err := json.Marshal(result)
	if err != nil {
		return RPCResponse{}, err
	}
	return RPCResponse{JSONRPC: "2.0", ID: id, Result: raw}, nil
}

// NewNotification builds a server->client notification frame.
func NewNotification(method string, params interface{}) (RPCNotification, error) {
	raw, err := json.Marshal(params)
	if err != nil {
		return RPCNotification{}, err
	}
	return RPCNotification{JSONRPC: "2.0", Method: method, Params: raw}, nil
}
