// Package certificate decodes and verifies state certificates: a hash tree,
// a BLS signature over its root, and at most one level of subnet delegation.
package certificate

import (
	"bytes"
	"fmt"

	"github.com/colorfulnotion/icagent/agenterrors"
	"github.com/colorfulnotion/icagent/hashtree"
	"github.com/colorfulnotion/icagent/requestid"
)

// selfDescribeTag is the CBOR tag 55799 prefix some encoders emit.
var selfDescribeTag = []byte{0xd9, 0xd9, 0xf7}

// Certificate is the decoded form of a certificate. A value returned by Verify
// has passed every check.
type Certificate struct {
	Tree       *hashtree.Tree `cbor:"tree"`
	Signature  []byte         `cbor:"signature"`
	Delegation *Delegation    `cbor:"delegation,omitempty"`

	raw []byte
}

type Delegation struct {
	SubnetID    []byte `cbor:"subnet_id"`
	Certificate []byte `cbor:"certificate"`
}

// Decode parses certificate bytes without verifying them.
func Decode(data []byte) (*Certificate, error) {
	data = bytes.TrimPrefix(data, selfDescribeTag)
	var c Certificate
	if err := hashtree.DecMode.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("%w: %w", agenterrors.ErrVMalformedCertificate, err)
	}
	if c.Tree == nil {
		return nil, fmt.Errorf("%w: missing tree", agenterrors.ErrVMalformedCertificate)
	}
	if err := c.Tree.Validate(); err != nil {
		return nil, err
	}
	if len(c.Signature) == 0 {
		return nil, fmt.Errorf("%w: missing signature", agenterrors.ErrVMalformedCertificate)
	}
	if d := c.Delegation; d != nil && (len(d.SubnetID) == 0 || len(d.Certificate) == 0) {
		return nil, fmt.Errorf("%w: incomplete delegation", agenterrors.ErrVMalformedCertificate)
	}
	c.raw = data
	return &c, nil
}

// Bytes returns the encoding the certificate was decoded from, without the
// self-describe tag.
func (c *Certificate) Bytes() []byte {
	return c.raw
}

// RootHash reconstructs the root digest of the certificate's tree.
func (c *Certificate) RootHash() []byte {
	h := c.Tree.Reconstruct()
	return h.Bytes()
}

func (c *Certificate) Lookup(path ...[]byte) ([]byte, bool) {
	return c.Tree.Lookup(path...)
}

func (c *Certificate) LookupString(path ...string) ([]byte, bool) {
	return c.Tree.LookupString(path...)
}

func (c *Certificate) LookupSubtree(path ...[]byte) (*hashtree.Tree, bool) {
	return c.Tree.LookupSubtree(path...)
}

// RequestStatus holds the request_status entries certified for one request.
// Absent entries are left empty.
type RequestStatus struct {
	Status        string
	Reply         []byte
	RejectCode    []byte
	RejectMessage string
	ErrorCode     string
}

// RequestStatus reads the status subtree of request id. It reports false when
// the certificate has no status entry for the request.
func (c *Certificate) RequestStatus(id requestid.RequestID) (RequestStatus, bool) {
	var rs RequestStatus
	base := [][]byte{[]byte("request_status"), id.Bytes()}
	at := func(leaf string) ([]byte, bool) {
		return c.Tree.Lookup(append(append([][]byte{}, base...), []byte(leaf))...)
	}
	status, ok := at("status")
	if !ok {
		return rs, false
	}
	rs.Status = string(status)
	rs.Reply, _ = at("reply")
	rs.RejectCode, _ = at("reject_code")
	if msg, ok := at("reject_message"); ok {
		rs.RejectMessage = string(msg)
	}
	if code, ok := at("error_code"); ok {
		rs.ErrorCode = string(code)
	}
	return rs, true
}
