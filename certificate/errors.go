package certificate

import (
	"fmt"

	"github.com/colorfulnotion/icagent/agenterrors"
)

// VerificationError is returned for every rejected certificate. It matches
// agenterrors.ErrVCertificateVerificationFailed and the specific cause under
// errors.Is.
type VerificationError struct {
	Reason string
	Err    error
}

func (e *VerificationError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%v %s", agenterrors.ErrVCertificateVerificationFailed, e.Reason)
	}
	return fmt.Sprintf("%v %s: %v", agenterrors.ErrVCertificateVerificationFailed, e.Reason, e.Err)
}

func (e *VerificationError) Unwrap() []error {
	if e.Err == nil {
		return []error{agenterrors.ErrVCertificateVerificationFailed}
	}
	return []error{agenterrors.ErrVCertificateVerificationFailed, e.Err}
}

func reject(err error, format string, args ...any) *VerificationError {
	return &VerificationError{Reason: fmt.Sprintf(format, args...), Err: err}
}
