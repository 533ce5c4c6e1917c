// Package types defines the request contents an agent signs and submits, and
// the envelope that carries them.
package types

import (
	"github.com/colorfulnotion/icagent/principal"
	"github.com/colorfulnotion/icagent/requestid"
)

const (
	RequestTypeCall      = "call"
	RequestTypeQuery     = "query"
	RequestTypeReadState = "read_state"
)

// Request is the content of an envelope.
type Request interface {
	requestid.Mapper
	Type() string
	SenderPrincipal() principal.Principal
}

type CallRequest struct {
	RequestType   string              `cbor:"request_type"`
	CanisterID    principal.Principal `cbor:"canister_id"`
	MethodName    string              `cbor:"method_name"`
	Arg           []byte              `cbor:"arg"`
	Sender        principal.Principal `cbor:"sender"`
	IngressExpiry uint64              `cbor:"ingress_expiry"`
	Nonce         []byte              `cbor:"nonce,omitempty"`
}

func NewCallRequest(sender, canister principal.Principal, method string, arg []byte, expiry uint64) *CallRequest {
	return &CallRequest{
		RequestType:   RequestTypeCall,
		CanisterID:    canister,
		MethodName:    method,
		Arg:           arg,
		Sender:        sender,
		IngressExpiry: expiry,
	}
}

func (r *CallRequest) Type() string                         { return r.RequestType }
func (r *CallRequest) SenderPrincipal() principal.Principal { return r.Sender }

func (r *CallRequest) ToMap() map[string]any {
	m := map[string]any{
		"request_type":   r.RequestType,
		"canister_id":    r.CanisterID,
		"method_name":    r.MethodName,
		"arg":            nonNil(r.Arg),
		"sender":         r.Sender,
		"ingress_expiry": r.IngressExpiry,
	}
	if r.Nonce != nil {
		m["nonce"] = r.Nonce
	}
	return m
}

// QueryRequest has the fields of a call; only the request type differs.
type QueryRequest struct {
	CallRequest
}

func NewQueryRequest(sender, canister principal.Principal, method string, arg []byte, expiry uint64) *QueryRequest {
	q := &QueryRequest{CallRequest: *NewCallRequest(sender, canister, method, arg, expiry)}
	q.RequestType = RequestTypeQuery
	return q
}

type ReadStateRequest struct {
	RequestType   string              `cbor:"request_type"`
	Paths         [][][]byte          `cbor:"paths"`
	Sender        principal.Principal `cbor:"sender"`
	IngressExpiry uint64              `cbor:"ingress_expiry"`
	Nonce         []byte              `cbor:"nonce,omitempty"`
}

func NewReadStateRequest(sender principal.Principal, paths [][][]byte, expiry uint64) *ReadStateRequest {
	return &ReadStateRequest{
		RequestType:   RequestTypeReadState,
		Paths:         paths,
		Sender:        sender,
		IngressExpiry: expiry,
	}
}

// RequestStatusPaths returns the read_state paths for the status of id.
func RequestStatusPaths(id requestid.RequestID) [][][]byte {
	return [][][]byte{{[]byte("request_status"), id.Bytes()}}
}

func (r *ReadStateRequest) Type() string                         { return r.RequestType }
func (r *ReadStateRequest) SenderPrincipal() principal.Principal { return r.Sender }

func (r *ReadStateRequest) ToMap() map[string]any {
	paths := make([]any, len(r.Paths))
	for i, p := range r.Paths {
		segments := make([]any, len(p))
		for j, s := range p {
			segments[j] = nonNil(s)
		}
		paths[i] = segments
	}
	m := map[string]any{
		"request_type":   r.RequestType,
		"paths":          paths,
		"sender":         r.Sender,
		"ingress_expiry": r.IngressExpiry,
	}
	if r.Nonce != nil {
		m["nonce"] = r.Nonce
	}
	return m
}

func nonNil(b []byte) []byte {
	if b == nil {
		return []byte{}
	}
	return b
}
