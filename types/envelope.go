package types

import (
	"fmt"

	"github.com/colorfulnotion/icagent/identity"
	"github.com/colorfulnotion/icagent/requestid"
	"github.com/fxamacker/cbor/v2"
)

// SelfDescribeTag marks a CBOR item as CBOR.
const SelfDescribeTag = 55799

// Envelope carries request content with the sender's authentication.
type Envelope struct {
	Content      Request `cbor:"content"`
	SenderPubkey []byte  `cbor:"sender_pubkey,omitempty"`
	SenderSig    []byte  `cbor:"sender_sig,omitempty"`
}

// Sign computes the request id of req and wraps req in an envelope signed by
// id. The identity must be the request's sender.
func Sign(id identity.Identity, req Request) (*Envelope, requestid.RequestID, error) {
	if !id.Sender().Equal(req.SenderPrincipal()) {
		return nil, requestid.RequestID{}, fmt.Errorf("sender %s does not match identity %s", req.SenderPrincipal(), id.Sender())
	}
	reqID, err := requestid.FromStruct(req)
	if err != nil {
		return nil, reqID, err
	}
	sig, err := id.Sign(reqID)
	if err != nil {
		return nil, reqID, fmt.Errorf("signing request %s: %w", reqID, err)
	}
	return &Envelope{Content: req, SenderPubkey: id.PublicKey(), SenderSig: sig}, reqID, nil
}

// Encode returns the CBOR encoding with the self-describe tag.
func (e *Envelope) Encode() ([]byte, error) {
	return cbor.Marshal(cbor.Tag{Number: SelfDescribeTag, Content: e})
}
