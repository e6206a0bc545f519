package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	// DefaultHeaderName is the signature header Typeform sends
	DefaultHeaderName = "Typeform-Signature"

	// SignaturePrefix is the required prefix of the signature value
	SignaturePrefix = "sha256="

	// DefaultMaxPayloadBytes is the default inbound payload size limit (1 MiB)
	DefaultMaxPayloadBytes = 1 << 20

	base64SignatureLen = 44
	hexSignatureLen    = 64
)

// timestampHeaders are the accepted timestamp header names, checked in order
var timestampHeaders = []string{
	"Typeform-Timestamp",
	"X-Typeform-Timestamp",
	"X-Webhook-Timestamp",
}

// Rejection reasons returned alongside valid=false. Expected rejections
// are values, never errors: callers branch on the valid flag and log
// the reason.
const (
	ReasonMissingSignature     = "missing or invalid signature header"
	ReasonSignatureMismatch    = "signature mismatch"
	ReasonTimestampOutOfRange  = "timestamp outside tolerance"
	ReasonReplayDetected       = "replay detected"
	ReasonVerificationDisabled = "verification disabled: no secret configured"
)

/* PayloadTooLargeError is raised (not returned as a boolean rejection)
 * when the payload exceeds the configured size limit, so the HTTP
 * boundary can answer with a 4xx and a specific message instead of a
 * generic 401.
 */
type PayloadTooLargeError struct {
	Size int
	Max  int
}

func (e *PayloadTooLargeError) Error() string {
	return fmt.Sprintf("payload size %d exceeds maximum %d bytes", e.Size, e.Max)
}

// UnexpectedVerificationError wraps any unforeseen internal failure so
// it is never silently swallowed as an ordinary rejection
type UnexpectedVerificationError struct {
	Err error
}

func (e *UnexpectedVerificationError) Error() string {
	return fmt.Sprintf("unexpected verification error: %v", e.Err)
}

func (e *UnexpectedVerificationError) Unwrap() error {
	return e.Err
}

// Result is the outcome of one verification
type Result struct {
	Valid bool
	// Reason is set when Valid is false, explaining the rejection
	Reason string
	// Disabled is a side-channel warning: the request passed only
	// because no secret is configured
	Disabled bool
}

/* Verifier validates the authenticity of inbound webhook requests:
 * size limit, HMAC-SHA256 signature, optional timestamp tolerance and
 * replay detection through a shared cache.
 */
type Verifier struct {
	secret          string
	headerName      string
	maxPayloadBytes int
	replay          ReplayCache

	// Now is injectable for tests, defaults to time.Now UTC
	Now func() time.Time
}

// NewVerifier creates a verifier. An empty secret disables signature
// checking (every request passes with a Disabled warning). A nil
// replay cache disables replay detection.
func NewVerifier(secret, headerName string, maxPayloadBytes int, replay ReplayCache) *Verifier {
	if headerName == "" {
		headerName = DefaultHeaderName
	}
	if maxPayloadBytes <= 0 {
		maxPayloadBytes = DefaultMaxPayloadBytes
	}
	return &Verifier{
		secret:          secret,
		headerName:      headerName,
		maxPayloadBytes: maxPayloadBytes,
		replay:          replay,
		Now: func() time.Time {
			return time.Now().UTC()
		},
	}
}

/* Verify checks the request's authenticity. Each step short-circuits
 * on failure, in order: size, signature extraction and format,
 * constant-time HMAC comparison, timestamp tolerance, replay.
 *
 * Expected rejections come back as a Result with Valid=false; only an
 * oversized payload (*PayloadTooLargeError) and internal failures
 * (*UnexpectedVerificationError) are returned as errors, since callers
 * branch on that distinction at the HTTP boundary.
 */
func (v *Verifier) Verify(payload []byte, headers map[string]string, toleranceMinutes int) (result Result, err error) {
	if len(payload) > v.maxPayloadBytes {
		return Result{}, &PayloadTooLargeError{Size: len(payload), Max: v.maxPayloadBytes}
	}

	defer func() {
		if r := recover(); r != nil {
			result = Result{}
			err = &UnexpectedVerificationError{Err: fmt.Errorf("panic: %v", r)}
		}
	}()

	if v.secret == "" {
		return Result{Valid: true, Disabled: true, Reason: ReasonVerificationDisabled}, nil
	}

	provided, ok := extractSignature(headers, v.headerName)
	if !ok {
		return Result{Reason: ReasonMissingSignature}, nil
	}

	expected := computeSignature(v.secret, payload)
	if !signaturesEqual(provided, expected) {
		return Result{Reason: ReasonSignatureMismatch}, nil
	}

	if reason, ok := v.checkTimestamp(headers, toleranceMinutes); !ok {
		return Result{Reason: reason}, nil
	}

	if v.replay != nil {
		fingerprint := Fingerprint(payload, provided)
		now := v.Now()
		if v.replay.Seen(fingerprint, now) {
			return Result{Reason: ReasonReplayDetected}, nil
		}
		v.replay.Remember(fingerprint, now)
	}

	return Result{Valid: true}, nil
}

// Fingerprint builds the replay-detection key for a payload/signature pair
func Fingerprint(payload []byte, sig string) string {
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:]) + ":" + sig
}

/* extractSignature looks up the signature header case-insensitively and
 * enforces the exact format sha256=<44 base64 chars | 64 hex chars>.
 * Any deviation is treated as missing, never a crash.
 */
func extractSignature(headers map[string]string, headerName string) (string, bool) {
	var raw string
	for key, value := range headers {
		if strings.EqualFold(key, headerName) {
			raw = value
			break
		}
	}
	if !strings.HasPrefix(raw, SignaturePrefix) {
		return "", false
	}
	value := raw[len(SignaturePrefix):]
	switch len(value) {
	case base64SignatureLen:
		if !isBase64(value) {
			return "", false
		}
	case hexSignatureLen:
		if !isHex(value) {
			return "", false
		}
	default:
		return "", false
	}
	return raw, true
}

// computeSignature returns sha256=base64(HMAC_SHA256(secret, payload+"\n"))
func computeSignature(secret string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	mac.Write([]byte("\n"))
	return SignaturePrefix + base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

/* signaturesEqual compares the provided signature with the expected one
 * in constant time, so comparison cost never depends on where the
 * first mismatching byte occurs. Hex-encoded signatures are normalized
 * to the base64 form before comparing.
 */
func signaturesEqual(provided, expected string) bool {
	providedValue := provided[len(SignaturePrefix):]
	if len(providedValue) == hexSignatureLen {
		raw, err := hex.DecodeString(providedValue)
		if err != nil {
			return false
		}
		providedValue = base64.StdEncoding.EncodeToString(raw)
	}
	expectedValue := expected[len(SignaturePrefix):]
	return subtle.ConstantTimeCompare([]byte(providedValue), []byte(expectedValue)) == 1
}

// checkTimestamp validates the optional timestamp header: absent passes,
// present must be Unix epoch seconds within the tolerance
func (v *Verifier) checkTimestamp(headers map[string]string, toleranceMinutes int) (string, bool) {
	if toleranceMinutes <= 0 {
		return "", true
	}
	var raw string
	for _, name := range timestampHeaders {
		for key, value := range headers {
			if strings.EqualFold(key, name) {
				raw = strings.TrimSpace(value)
				break
			}
		}
		if raw != "" {
			break
		}
	}
	if raw == "" {
		return "", true
	}
	epoch, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return ReasonTimestampOutOfRange, false
	}
	ts := time.Unix(epoch, 0)
	drift := v.Now().Sub(ts)
	if drift < 0 {
		drift = -drift
	}
	if drift > time.Duration(toleranceMinutes)*time.Minute {
		return ReasonTimestampOutOfRange, false
	}
	return "", true
}

// isBase64 reports whether s is valid standard base64 with no
// embedded whitespace or control characters
func isBase64(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		valid := (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z') ||
			(c >= '0' && c <= '9') || c == '+' || c == '/' || c == '='
		if !valid {
			return false
		}
	}
	_, err := base64.StdEncoding.DecodeString(s)
	return err == nil
}

// isHex reports whether s is lowercase-or-uppercase hex
func isHex(s string) bool {
	_, err := hex.DecodeString(s)
	return err == nil
}

// Sign computes the signature header value for a payload. Exposed for
// tests and for producing outbound signed notifications.
func Sign(secret string, payload []byte) string {
	return computeSignature(secret, payload)
}
