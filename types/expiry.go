package types

import "time"

const (
	DefaultIngressExpiry = 5 * time.Minute
	// PermittedDrift is subtracted from every expiry to tolerate a local
	// clock running ahead of the replica.
	PermittedDrift = 60 * time.Second
)

// NewExpiry returns the ingress expiry delta from now, in nanoseconds since
// the epoch.
func NewExpiry(delta time.Duration) uint64 {
	return ExpiryAt(time.Now(), delta)
}

// ExpiryAt rounds now+delta-PermittedDrift down to the minute when it lies
// more than 90 seconds ahead of now, and to the second otherwise.
func ExpiryAt(now time.Time, delta time.Duration) uint64 {
	exp := now.Add(delta - PermittedDrift)
	if exp.Sub(now) > 90*time.Second {
		exp = exp.Truncate(time.Minute)
	} else {
		exp = exp.Truncate(time.Second)
	}
	return uint64(exp.UnixNano())
}
