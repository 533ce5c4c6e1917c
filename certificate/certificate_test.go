package certificate

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/colorfulnotion/icagent/agenterrors"
	"github.com/colorfulnotion/icagent/bls"
	"github.com/colorfulnotion/icagent/common"
	"github.com/colorfulnotion/icagent/hashtree"
	"github.com/colorfulnotion/icagent/leb128"
	"github.com/colorfulnotion/icagent/principal"
	"github.com/colorfulnotion/icagent/requestid"
	"github.com/fxamacker/cbor/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

var (
	now      = time.Unix(1_700_000_000, 0)
	subnetID = []byte{0xde, 0xad, 0xbe, 0xef}

	canisterInRange  = principal.Principal{Raw: []byte{0, 0, 0, 0, 0, 0, 0, 5, 1, 1}}
	canisterOutRange = principal.Principal{Raw: []byte{0, 0, 0, 0, 0, 0, 0, 0x20, 1, 1}}
	rangeLow         = []byte{0, 0, 0, 0, 0, 0, 0, 1, 1, 1}
	rangeHigh        = []byte{0, 0, 0, 0, 0, 0, 0, 0x10, 1, 1}
)

type signer struct {
	sk  bls.SecretKey
	der []byte
}

func newSigner(t *testing.T, seed string) *signer {
	sk, err := bls.GetSecretKey([]byte(seed))
	require.NoError(t, err)
	pk := sk.PublicKey()
	return &signer{sk: sk, der: bls.WrapDER(pk)}
}

func (s *signer) sign(t *testing.T, tree *hashtree.Tree) []byte {
	root := tree.Reconstruct()
	msg := append(common.DomainSeparator("ic-state-root"), root.Bytes()...)
	sig, err := s.sk.Sign(msg)
	require.NoError(t, err)
	return sig[:]
}

func timeLeaf(at time.Time) *hashtree.Tree {
	return hashtree.Labeled([]byte("time"), hashtree.Leaf(leb128.EncodeUint64(uint64(at.UnixNano()))))
}

func stateTree(canister principal.Principal, data string, at time.Time) *hashtree.Tree {
	return hashtree.Fork(
		hashtree.Labeled([]byte("canister"),
			hashtree.Labeled(canister.Raw,
				hashtree.Labeled([]byte("certified_data"), hashtree.Leaf([]byte(data))))),
		timeLeaf(at),
	)
}

func subnetTree(t *testing.T, subnetKey []byte, withRanges bool) *hashtree.Tree {
	entries := hashtree.Labeled([]byte("public_key"), hashtree.Leaf(subnetKey))
	if withRanges {
		ranges, err := cbor.Marshal([][2][]byte{{rangeLow, rangeHigh}})
		require.NoError(t, err)
		entries = hashtree.Fork(hashtree.Labeled([]byte("canister_ranges"), hashtree.Leaf(ranges)), entries)
	}
	return hashtree.Fork(
		hashtree.Labeled([]byte("subnet"), hashtree.Labeled(subnetID, entries)),
		timeLeaf(now.Add(-time.Hour)),
	)
}

func encode(t *testing.T, c *Certificate) []byte {
	out, err := cbor.Marshal(c)
	require.NoError(t, err)
	return out
}

type fixture struct {
	root   *signer
	subnet *signer
}

func newFixture(t *testing.T) *fixture {
	return &fixture{root: newSigner(t, "root"), subnet: newSigner(t, "subnet")}
}

func (f *fixture) direct(t *testing.T, tree *hashtree.Tree) []byte {
	return encode(t, &Certificate{Tree: tree, Signature: f.root.sign(t, tree)})
}

func (f *fixture) delegationCert(t *testing.T, withRanges bool) []byte {
	tree := subnetTree(t, f.subnet.der, withRanges)
	return f.direct(t, tree)
}

func (f *fixture) delegated(t *testing.T, tree *hashtree.Tree, delegation []byte) []byte {
	return encode(t, &Certificate{
		Tree:       tree,
		Signature:  f.subnet.sign(t, tree),
		Delegation: &Delegation{SubnetID: subnetID, Certificate: delegation},
	})
}

func requireRejected(t *testing.T, err error, cause error) {
	t.Helper()
	require.Error(t, err)
	var verr *VerificationError
	require.True(t, errors.As(err, &verr), "%v", err)
	assert.ErrorIs(t, err, agenterrors.ErrVCertificateVerificationFailed)
	assert.ErrorIs(t, err, cause)
	assert.True(t, agenterrors.IsCertificateError(err))
}

func TestVerifyDirect(t *testing.T) {
	f := newFixture(t)
	data := f.direct(t, stateTree(canisterInRange, "hello", now))

	cert, err := Verify(context.Background(), data, f.root.der, canisterInRange, WithClock(func() time.Time { return now }))
	require.NoError(t, err)
	v, ok := cert.Lookup([]byte("canister"), canisterInRange.Raw, []byte("certified_data"))
	require.True(t, ok)
	assert.Equal(t, "hello", string(v))
	_, ok = cert.LookupString("canister")
	assert.False(t, ok)

	withTag := append([]byte{0xd9, 0xd9, 0xf7}, data...)
	_, err = Create(context.Background(), withTag, f.root.der, canisterInRange, WithClock(func() time.Time { return now }))
	assert.NoError(t, err)
}

func TestTamperDetection(t *testing.T) {
	f := newFixture(t)
	clock := WithClock(func() time.Time { return now })
	tree := stateTree(canisterInRange, "hello", now)
	sig := f.root.sign(t, tree)

	t.Run("signature bit", func(t *testing.T) {
		for _, i := range []int{0, len(sig) / 2, len(sig) - 1} {
			bad := append([]byte{}, sig...)
			bad[i] ^= 0x01
			data := encode(t, &Certificate{Tree: tree, Signature: bad})
			_, err := Verify(context.Background(), data, f.root.der, canisterInRange, clock)
			requireRejected(t, err, agenterrors.ErrVSignatureVerificationFailed)
		}
	})

	t.Run("leaf", func(t *testing.T) {
		data := encode(t, &Certificate{Tree: stateTree(canisterInRange, "hellp", now), Signature: sig})
		_, err := Verify(context.Background(), data, f.root.der, canisterInRange, clock)
		requireRejected(t, err, agenterrors.ErrVSignatureVerificationFailed)
	})

	t.Run("pruned", func(t *testing.T) {
		digest := tree.Left.Reconstruct()
		pruned := hashtree.Fork(hashtree.Pruned(digest), tree.Right)
		data := encode(t, &Certificate{Tree: pruned, Signature: sig})
		cert, err := Verify(context.Background(), data, f.root.der, canisterInRange, clock)
		require.NoError(t, err)
		_, ok := cert.Lookup([]byte("canister"), canisterInRange.Raw, []byte("certified_data"))
		assert.False(t, ok)

		digest[0] ^= 0x01
		tampered := hashtree.Fork(hashtree.Pruned(digest), tree.Right)
		data = encode(t, &Certificate{Tree: tampered, Signature: sig})
		_, err = Verify(context.Background(), data, f.root.der, canisterInRange, clock)
		requireRejected(t, err, agenterrors.ErrVSignatureVerificationFailed)
	})

	t.Run("wrong root key", func(t *testing.T) {
		data := encode(t, &Certificate{Tree: tree, Signature: sig})
		other := newSigner(t, "other root")
		_, err := Verify(context.Background(), data, other.der, canisterInRange, clock)
		requireRejected(t, err, agenterrors.ErrVSignatureVerificationFailed)
	})

	t.Run("malformed root key", func(t *testing.T) {
		data := encode(t, &Certificate{Tree: tree, Signature: sig})
		_, err := Verify(context.Background(), data, f.root.der[:len(f.root.der)-1], canisterInRange, clock)
		requireRejected(t, err, agenterrors.ErrVSignatureVerificationFailed)
		assert.NotErrorIs(t, err, agenterrors.ErrVMalformedDERKey)
	})
}

func TestDelegation(t *testing.T) {
	f := newFixture(t)
	clock := WithClock(func() time.Time { return now })
	delegation := f.delegationCert(t, true)

	t.Run("in range", func(t *testing.T) {
		data := f.delegated(t, stateTree(canisterInRange, "hi", now), delegation)
		_, err := Verify(context.Background(), data, f.root.der, canisterInRange, clock)
		assert.NoError(t, err)
	})

	t.Run("range bounds are inclusive", func(t *testing.T) {
		for _, raw := range [][]byte{rangeLow, rangeHigh} {
			id := principal.Principal{Raw: raw}
			data := f.delegated(t, stateTree(id, "hi", now), delegation)
			_, err := Verify(context.Background(), data, f.root.der, id, clock)
			assert.NoError(t, err)
		}
	})

	t.Run("out of range", func(t *testing.T) {
		data := f.delegated(t, stateTree(canisterOutRange, "hi", now), delegation)
		_, err := Verify(context.Background(), data, f.root.der, canisterOutRange, clock)
		requireRejected(t, err, agenterrors.ErrVCanisterOutOfRange)
	})

	t.Run("management canister skips ranges", func(t *testing.T) {
		noRanges := f.delegationCert(t, false)
		data := f.delegated(t, stateTree(canisterInRange, "hi", now), noRanges)
		_, err := Verify(context.Background(), data, f.root.der, principal.ManagementCanister(), clock)
		assert.NoError(t, err)

		_, err = Verify(context.Background(), data, f.root.der, canisterInRange, clock)
		requireRejected(t, err, agenterrors.ErrVMissingDelegationData)
	})

	t.Run("missing subnet key", func(t *testing.T) {
		tree := hashtree.Fork(hashtree.Labeled([]byte("subnet"), hashtree.Empty()), timeLeaf(now))
		data := f.delegated(t, stateTree(canisterInRange, "hi", now), f.direct(t, tree))
		_, err := Verify(context.Background(), data, f.root.der, canisterInRange, clock)
		requireRejected(t, err, agenterrors.ErrVMissingDelegationData)
	})

	t.Run("delegation signed by another root", func(t *testing.T) {
		imposter := &fixture{root: newSigner(t, "imposter"), subnet: f.subnet}
		data := f.delegated(t, stateTree(canisterInRange, "hi", now), imposter.delegationCert(t, true))
		_, err := Verify(context.Background(), data, f.root.der, canisterInRange, clock)
		requireRejected(t, err, agenterrors.ErrVSignatureVerificationFailed)
	})

	t.Run("certificate signed by root instead of subnet", func(t *testing.T) {
		tree := stateTree(canisterInRange, "hi", now)
		data := encode(t, &Certificate{
			Tree:       tree,
			Signature:  f.root.sign(t, tree),
			Delegation: &Delegation{SubnetID: subnetID, Certificate: delegation},
		})
		_, err := Verify(context.Background(), data, f.root.der, canisterInRange, clock)
		requireRejected(t, err, agenterrors.ErrVSignatureVerificationFailed)
	})

	t.Run("nested delegation", func(t *testing.T) {
		tree := subnetTree(t, f.subnet.der, true)
		inner := f.delegated(t, tree, delegation)
		data := f.delegated(t, stateTree(canisterInRange, "hi", now), inner)
		_, err := Verify(context.Background(), data, f.root.der, canisterInRange, clock)
		requireRejected(t, err, agenterrors.ErrVNestedDelegation)
	})

	t.Run("nested certificate is not time checked", func(t *testing.T) {
		old := f.direct(t, hashtree.Fork(
			hashtree.Labeled([]byte("subnet"), hashtree.Labeled(subnetID, hashtree.Labeled([]byte("public_key"), hashtree.Leaf(f.subnet.der)))),
			timeLeaf(now.Add(-30*24*time.Hour)),
		))
		data := f.delegated(t, stateTree(canisterInRange, "hi", now), old)
		_, err := Verify(context.Background(), data, f.root.der, principal.ManagementCanister(), clock)
		assert.NoError(t, err)
	})
}

func TestFreshness(t *testing.T) {
	f := newFixture(t)
	at := func(t time.Time) Option { return WithClock(func() time.Time { return t }) }

	data := f.direct(t, stateTree(canisterInRange, "x", now))
	testCases := []struct {
		name  string
		opts  []Option
		cause error
	}{
		{"fresh", []Option{at(now.Add(time.Minute))}, nil},
		{"too old", []Option{at(now.Add(DefaultMaxAge + time.Second))}, agenterrors.ErrVCertificateTooOld},
		{"custom max age", []Option{at(now.Add(2 * time.Minute)), WithMaxAge(time.Minute)}, agenterrors.ErrVCertificateTooOld},
		{"in future", []Option{at(now.Add(-MaxClockSkew - time.Second))}, agenterrors.ErrVCertificateInFuture},
		{"disabled", []Option{at(now.Add(time.Hour)), WithoutTimeCheck()}, nil},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Verify(context.Background(), data, f.root.der, canisterInRange, tc.opts...)
			if tc.cause == nil {
				assert.NoError(t, err)
				return
			}
			requireRejected(t, err, tc.cause)
		})
	}

	noTime := hashtree.Labeled([]byte("canister"), hashtree.Empty())
	_, err := Verify(context.Background(), f.direct(t, noTime), f.root.der, canisterInRange, at(now))
	requireRejected(t, err, agenterrors.ErrVMissingTime)
}

type countingVerifier struct {
	calls atomic.Int32
}

func (c *countingVerifier) Verify(pk, msg, sig []byte) bool {
	c.calls.Add(1)
	return bls.DefaultVerifier().Verify(pk, msg, sig)
}

type mapCache struct {
	mu sync.Mutex
	m  map[common.Hash][]byte
}

func (c *mapCache) Get(key common.Hash) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.m[key]
	return v, ok
}

func (c *mapCache) Put(key common.Hash, v []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m[key] = v
	return nil
}

func TestDelegationCache(t *testing.T) {
	f := newFixture(t)
	delegation := f.delegationCert(t, true)
	data := f.delegated(t, stateTree(canisterInRange, "hi", now), delegation)

	cache := &mapCache{m: map[common.Hash][]byte{}}
	counter := &countingVerifier{}
	opts := []Option{WithClock(func() time.Time { return now }), WithDelegationCache(cache), WithVerifier(counter)}

	_, err := Verify(context.Background(), data, f.root.der, canisterInRange, opts...)
	require.NoError(t, err)
	assert.EqualValues(t, 2, counter.calls.Load())

	key := CacheKey(f.root.der, &Delegation{SubnetID: subnetID, Certificate: delegation})
	cached, ok := cache.Get(key)
	require.True(t, ok)
	assert.Equal(t, f.subnet.der, cached)

	_, err = Verify(context.Background(), data, f.root.der, canisterInRange, opts...)
	require.NoError(t, err)
	assert.EqualValues(t, 3, counter.calls.Load())

	// ranges are still enforced on a cache hit
	out := f.delegated(t, stateTree(canisterOutRange, "hi", now), delegation)
	_, err = Verify(context.Background(), out, f.root.der, canisterOutRange, opts...)
	requireRejected(t, err, agenterrors.ErrVCanisterOutOfRange)

	// a different root key never reuses the entry
	other := newSigner(t, "other root")
	_, err = Verify(context.Background(), data, other.der, canisterInRange, opts...)
	requireRejected(t, err, agenterrors.ErrVSignatureVerificationFailed)
}

func TestMalformedCertificate(t *testing.T) {
	f := newFixture(t)
	testCases := map[string][]byte{
		"not cbor":          {0xff},
		"missing tree":      encodeMap(t, map[string]any{"signature": []byte{1}}),
		"missing signature": encodeMap(t, map[string]any{"tree": hashtree.Empty()}),
		"bad tree":          encodeMap(t, map[string]any{"tree": []any{9}, "signature": []byte{1}}),
	}
	for name, data := range testCases {
		t.Run(name, func(t *testing.T) {
			_, err := Verify(context.Background(), data, f.root.der, canisterInRange)
			requireRejected(t, err, agenterrors.ErrVMalformedCertificate)
		})
	}
}

func encodeMap(t *testing.T, m map[string]any) []byte {
	out, err := cbor.Marshal(m)
	require.NoError(t, err)
	return out
}

func TestRequestStatus(t *testing.T) {
	id, err := requestid.Compute(map[string]any{"request_type": "call", "nonce": []byte{1}})
	require.NoError(t, err)
	status := hashtree.Labeled([]byte("request_status"), hashtree.Labeled(id.Bytes(), hashtree.Fork(
		hashtree.Labeled([]byte("reply"), hashtree.Leaf([]byte("DIDL\x00\x00"))),
		hashtree.Labeled([]byte("status"), hashtree.Leaf([]byte("replied"))),
	)))
	cert := &Certificate{Tree: status}

	rs, ok := cert.RequestStatus(id)
	require.True(t, ok)
	assert.Equal(t, "replied", rs.Status)
	assert.Equal(t, []byte("DIDL\x00\x00"), rs.Reply)
	assert.Empty(t, rs.RejectMessage)

	_, ok = cert.RequestStatus(requestid.RequestID{})
	assert.False(t, ok)
}

func TestVerifySpans(t *testing.T) {
	f := newFixture(t)
	data := f.delegated(t, stateTree(canisterInRange, "hi", now), f.delegationCert(t, true))

	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	_, err := Verify(context.Background(), data, f.root.der, canisterInRange,
		WithClock(func() time.Time { return now }), WithTracer(tp.Tracer("test")))
	require.NoError(t, err)

	spans := sr.Ended()
	require.Len(t, spans, 2)
	// the nested certificate finishes first
	assert.Equal(t, "certificate.verify", spans[0].Name())
	assert.Contains(t, spans[0].Attributes(), attribute.Bool("nested", true))
	assert.Contains(t, spans[1].Attributes(), attribute.Bool("delegated", true))
	assert.Equal(t, spans[1].SpanContext().SpanID(), spans[0].Parent().SpanID())
}
