package agenterrors

import (
	"errors"
	"strings"
)

// Codec (C) Errors
var (
	ErrCBadMagic              = errors.New("C1|BadMagic: Message does not start with the DIDL magic header.")
	ErrCUndeclaredTypeRef     = errors.New("C2|UndeclaredTypeRef: Type reference points outside the type table.")
	ErrCUnexpectedEnd         = errors.New("C3|UnexpectedEnd: Unexpected end of buffer.")
	ErrCTrailingData          = errors.New("C4|TrailingData: Bytes left over after decoding all values.")
	ErrCVariantTagNotFound    = errors.New("C5|VariantTagNotFound: Variant tag not found in the expected type.")
	ErrCMissingField          = errors.New("C6|MissingField: Required record field is missing.")
	ErrCTypeMismatch          = errors.New("C7|TypeMismatch: Wire type is not a subtype of the expected type.")
	ErrCInvalidValue          = errors.New("C8|InvalidValue: Value does not fit its declared type.")
	ErrCOutOfRange            = errors.New("C9|OutOfRange: Integer does not fit the fixed-width type.")
	ErrCInvalidTypeTable      = errors.New("C10|InvalidTypeTable: Malformed type table entry.")
	ErrCUnfilledSlot          = errors.New("C11|UnfilledSlot: Recursive type slot referenced before it was defined.")
	ErrCArgCount              = errors.New("C12|ArgCount: Number of values does not match number of types.")
	ErrCInvalidUTF8           = errors.New("C13|InvalidUTF8: Text is not valid UTF-8.")
	ErrCTruncatedLEB          = errors.New("C14|TruncatedLEB: Truncated buffer while reading a LEB128 value.")
	ErrCNegativeUnsigned      = errors.New("C15|NegativeUnsigned: Negative value passed to an unsigned encoder.")
	ErrCDuplicateField        = errors.New("C16|DuplicateField: Two fields share the same label hash.")
	ErrCUnsortedFields        = errors.New("C17|UnsortedFields: Type table fields are not sorted by label hash.")
	ErrCEmptyValue            = errors.New("C18|EmptyValue: The empty type has no values.")
	ErrCOpaqueReference       = errors.New("C19|OpaqueReference: Opaque references are not supported.")
	ErrCUnsupportedAnnotation = errors.New("C20|UnsupportedAnnotation: Unknown function annotation.")
	ErrCLEBOverflow           = errors.New("C21|LEBOverflow: LEB128 value does not fit in 64 bits.")
)

// Hashing (H) Errors
var (
	ErrHUnsupportedValue = errors.New("H1|UnsupportedValue: Value type cannot be hashed into a request id.")
	ErrHNegativeInteger  = errors.New("H2|NegativeInteger: Negative integers cannot be hashed into a request id.")
)

// Principal (P) Errors
var (
	ErrPInvalidText  = errors.New("P1|InvalidText: Principal text is not valid base32.")
	ErrPChecksum     = errors.New("P2|Checksum: Principal checksum does not match.")
	ErrPNotCanonical = errors.New("P3|NotCanonical: Principal text is not in canonical form.")
	ErrPTooLong      = errors.New("P4|TooLong: Principal exceeds 29 bytes.")
)

// Certificate Verification (V) Errors
var (
	ErrVCertificateVerificationFailed = errors.New("V0|CertificateVerificationFailed: Certificate verification failed.")
	ErrVSignatureVerificationFailed   = errors.New("V1|SignatureVerificationFailed: Signature verification failed.")
	ErrVMissingDelegationData         = errors.New("V2|MissingDelegationData: Subnet data missing from the delegation certificate.")
	ErrVCanisterOutOfRange            = errors.New("V3|CanisterOutOfRange: Canister not in subnet's delegated range.")
	ErrVMalformedDERKey               = errors.New("V4|MalformedDERKey: Public key has the wrong length or DER prefix.")
	ErrVMalformedCertificate          = errors.New("V5|MalformedCertificate: Certificate could not be decoded.")
	ErrVNestedDelegation              = errors.New("V6|NestedDelegation: Delegation certificate carries its own delegation.")
	ErrVCertificateTooOld             = errors.New("V7|CertificateTooOld: Certificate time is older than the allowed maximum age.")
	ErrVCertificateInFuture           = errors.New("V8|CertificateInFuture: Certificate time is too far in the future.")
	ErrVMissingTime                   = errors.New("V9|MissingTime: Certificate tree has no time leaf.")
)

// IsCertificateError reports whether err belongs to the certificate verification category.
func IsCertificateError(err error) bool {
	return errors.Is(err, ErrVCertificateVerificationFailed) || strings.HasPrefix(GetErrorCode(err), "V")
}

// GetErrorName extracts the error name from the error message.
func GetErrorName(err error) string {
	if err == nil {
		return "No Error"
	}
	errStr := err.Error()
	if !strings.Contains(errStr, "|") || !strings.Contains(errStr, ":") {
		return errStr
	}
	parts := strings.SplitN(errStr, "|", 2)
	nameParts := strings.SplitN(parts[1], ":", 2)
	return strings.TrimSpace(nameParts[0])
}

// GetErrorCode extracts the error code from the error message.
func GetErrorCode(err error) string {
	if err == nil {
		return ""
	}
	errStr := err.Error()
	if !strings.Contains(errStr, "|") {
		return ""
	}
	parts := strings.SplitN(errStr, "|", 2)
	return strings.TrimSpace(parts[0])
}

// GetErrorCodeWithName returns the error code and name in the format "Code_ErrorName".
func GetErrorCodeWithName(err error) string {
	code := GetErrorCode(err)
	name := GetErrorName(err)
	if code == "" || name == "" {
		return ""
	}
	return code + "_" + name
}
