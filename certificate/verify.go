package certificate

import (
	"bytes"
	"context"
	"time"

	"github.com/colorfulnotion/icagent/agenterrors"
	"github.com/colorfulnotion/icagent/bls"
	"github.com/colorfulnotion/icagent/common"
	"github.com/colorfulnotion/icagent/hashtree"
	"github.com/colorfulnotion/icagent/leb128"
	"github.com/colorfulnotion/icagent/log"
	"github.com/colorfulnotion/icagent/principal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	DefaultMaxAge = 5 * time.Minute
	// MaxClockSkew is how far ahead of the local clock a certificate may be.
	MaxClockSkew = 5 * time.Minute

	tracerName = "github.com/colorfulnotion/icagent/certificate"
)

// SignatureVerifier checks a BLS signature under a raw 96-byte public key.
// *bls.Verifier satisfies it.
type SignatureVerifier interface {
	Verify(pk, msg, sig []byte) bool
}

// DelegationCache remembers subnet keys taken from delegations that already
// verified. Keys are derived by CacheKey.
type DelegationCache interface {
	Get(key common.Hash) ([]byte, bool)
	Put(key common.Hash, subnetKey []byte) error
}

type Option func(*config)

type config struct {
	verifier  SignatureVerifier
	cache     DelegationCache
	maxAge    time.Duration
	now       func() time.Time
	tracer    trace.Tracer
	checkTime bool
}

func WithVerifier(v SignatureVerifier) Option {
	return func(c *config) { c.verifier = v }
}

func WithDelegationCache(cache DelegationCache) Option {
	return func(c *config) { c.cache = cache }
}

func WithMaxAge(d time.Duration) Option {
	return func(c *config) { c.maxAge = d }
}

func WithClock(now func() time.Time) Option {
	return func(c *config) { c.now = now }
}

func WithTracer(t trace.Tracer) Option {
	return func(c *config) { c.tracer = t }
}

// WithoutTimeCheck disables the freshness check on the outer certificate.
func WithoutTimeCheck() Option {
	return func(c *config) { c.checkTime = false }
}

func newConfig(opts []Option) *config {
	c := &config{
		maxAge:    DefaultMaxAge,
		now:       time.Now,
		checkTime: true,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.verifier == nil {
		c.verifier = bls.DefaultVerifier()
	}
	if c.tracer == nil {
		c.tracer = otel.Tracer(tracerName)
	}
	return c
}

// CacheKey identifies a verified delegation: SHA-256 over the root key, the
// delegation certificate and the subnet id.
func CacheKey(rootKey []byte, d *Delegation) common.Hash {
	return common.Sha256(rootKey, d.Certificate, d.SubnetID)
}

// Verify decodes certificate bytes and checks them against the DER encoded
// root key for a call addressed to canisterID. Any failure is returned as a
// *VerificationError.
func Verify(ctx context.Context, data []byte, rootKey []byte, canisterID principal.Principal, opts ...Option) (*Certificate, error) {
	cfg := newConfig(opts)
	cert, err := Decode(data)
	if err != nil {
		return nil, reject(err, "decoding certificate")
	}
	v := &verification{config: cfg, rootKey: rootKey, canister: canisterID}
	if err := v.verify(ctx, cert, false); err != nil {
		return nil, err
	}
	return cert, nil
}

// Create is Verify under the name agents use for building a trusted
// certificate.
func Create(ctx context.Context, data []byte, rootKey []byte, canisterID principal.Principal, opts ...Option) (*Certificate, error) {
	return Verify(ctx, data, rootKey, canisterID, opts...)
}

type verification struct {
	*config
	rootKey  []byte
	canister principal.Principal
}

func (v *verification) verify(ctx context.Context, cert *Certificate, nested bool) (err error) {
	ctx, span := v.tracer.Start(ctx, "certificate.verify", trace.WithAttributes(
		attribute.Bool("nested", nested),
		attribute.Bool("delegated", cert.Delegation != nil),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	root := cert.Tree.Reconstruct()
	key, err := v.signingKey(ctx, cert, nested)
	if err != nil {
		return err
	}
	if !v.checkSignature(key, root, cert.Signature) {
		return reject(agenterrors.ErrVSignatureVerificationFailed, "signature verification failed")
	}
	log.Debug(log.CertModule, "certificate signature verified", "root", root.String_short(), "nested", nested)

	if nested || !v.checkTime {
		return nil
	}
	return v.checkFreshness(cert)
}

// checkSignature folds every failure (malformed DER, malformed point, false
// pairing) into false.
func (v *verification) checkSignature(derKey []byte, root common.Hash, sig []byte) bool {
	pk, err := bls.UnwrapDER(derKey)
	if err != nil {
		log.Debug(log.CertModule, "rejecting signing key", "err", err)
		return false
	}
	msg := append(common.DomainSeparator("ic-state-root"), root.Bytes()...)
	return v.verifier.Verify(pk[:], msg, sig)
}

func (v *verification) signingKey(ctx context.Context, cert *Certificate, nested bool) ([]byte, error) {
	d := cert.Delegation
	if d == nil {
		return v.rootKey, nil
	}
	if nested {
		return nil, reject(agenterrors.ErrVNestedDelegation, "delegation certificate is itself delegated")
	}
	inner, err := Decode(d.Certificate)
	if err != nil {
		return nil, reject(err, "decoding delegation certificate")
	}
	if inner.Delegation != nil {
		return nil, reject(agenterrors.ErrVNestedDelegation, "delegation certificate is itself delegated")
	}

	subnetKey, err := v.subnetKey(ctx, inner, d)
	if err != nil {
		return nil, err
	}
	if v.canister.IsManagementCanister() {
		return subnetKey, nil
	}
	if err := v.checkRanges(inner, d.SubnetID); err != nil {
		return nil, err
	}
	return subnetKey, nil
}

func (v *verification) subnetKey(ctx context.Context, inner *Certificate, d *Delegation) ([]byte, error) {
	var cacheKey common.Hash
	if v.cache != nil {
		cacheKey = CacheKey(v.rootKey, d)
		if key, ok := v.cache.Get(cacheKey); ok {
			log.Debug(log.CertModule, "delegation cache hit", "subnet", common.Bytes2Hex(d.SubnetID))
			return key, nil
		}
	}
	if err := v.verify(ctx, inner, true); err != nil {
		return nil, err
	}
	key, ok := inner.Tree.Lookup([]byte("subnet"), d.SubnetID, []byte("public_key"))
	if !ok {
		return nil, reject(agenterrors.ErrVMissingDelegationData, "no public key for subnet %s", common.Bytes2Hex(d.SubnetID))
	}
	if v.cache != nil {
		if err := v.cache.Put(cacheKey, key); err != nil {
			log.Warn(log.CertModule, "caching delegation failed", "err", err)
		}
	}
	return key, nil
}

func (v *verification) checkRanges(inner *Certificate, subnetID []byte) error {
	raw, ok := inner.Tree.Lookup([]byte("subnet"), subnetID, []byte("canister_ranges"))
	if !ok {
		return reject(agenterrors.ErrVMissingDelegationData, "no canister ranges for subnet %s", common.Bytes2Hex(subnetID))
	}
	ranges, err := decodeRanges(raw)
	if err != nil {
		return reject(agenterrors.ErrVMissingDelegationData, "decoding canister ranges: %v", err)
	}
	if !inRanges(v.canister, ranges) {
		return reject(agenterrors.ErrVCanisterOutOfRange, "canister %s is not in the ranges of subnet %s", v.canister, common.Bytes2Hex(subnetID))
	}
	return nil
}

// CanisterRange is an inclusive range of canister ids.
type CanisterRange struct {
	Low  principal.Principal
	High principal.Principal
}

func decodeRanges(raw []byte) ([]CanisterRange, error) {
	var pairs [][2][]byte
	if err := hashtree.DecMode.Unmarshal(bytes.TrimPrefix(raw, selfDescribeTag), &pairs); err != nil {
		return nil, err
	}
	ranges := make([]CanisterRange, 0, len(pairs))
	for _, p := range pairs {
		lo, err := principal.FromBytes(p[0])
		if err != nil {
			return nil, err
		}
		hi, err := principal.FromBytes(p[1])
		if err != nil {
			return nil, err
		}
		ranges = append(ranges, CanisterRange{Low: lo, High: hi})
	}
	return ranges, nil
}

func inRanges(id principal.Principal, ranges []CanisterRange) bool {
	for _, r := range ranges {
		if r.Low.Compare(id) <= 0 && id.Compare(r.High) <= 0 {
			return true
		}
	}
	return false
}

func (v *verification) checkFreshness(cert *Certificate) error {
	raw, ok := cert.Tree.Lookup([]byte("time"))
	if !ok {
		return reject(agenterrors.ErrVMissingTime, "certificate has no time")
	}
	ns, err := leb128.Decode(raw)
	if err != nil || !ns.IsInt64() {
		return reject(agenterrors.ErrVMissingTime, "undecodable certificate time")
	}
	certTime := time.Unix(0, ns.Int64())
	now := v.now()
	if now.Sub(certTime) > v.maxAge {
		return reject(agenterrors.ErrVCertificateTooOld, "certificate time %s is more than %s old", certTime.UTC().Format(time.RFC3339), v.maxAge)
	}
	if certTime.Sub(now) > MaxClockSkew {
		return reject(agenterrors.ErrVCertificateInFuture, "certificate time %s is ahead of the local clock", certTime.UTC().Format(time.RFC3339))
	}
	return nil
}
