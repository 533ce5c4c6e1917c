// Package identity provides the signers of requests: a principal, the DER
// public key that derives it, and a signature over the request id.
package identity

import (
	"github.com/colorfulnotion/icagent/principal"
	"github.com/colorfulnotion/icagent/requestid"
)

type Identity interface {
	Sender() principal.Principal
	// PublicKey is nil for identities that do not sign.
	PublicKey() []byte
	Sign(id requestid.RequestID) ([]byte, error)
}

// Anonymous sends unsigned requests as the anonymous principal.
type Anonymous struct{}

func (Anonymous) Sender() principal.Principal { return principal.Anonymous() }

func (Anonymous) PublicKey() []byte { return nil }

func (Anonymous) Sign(requestid.RequestID) ([]byte, error) { return nil, nil }
