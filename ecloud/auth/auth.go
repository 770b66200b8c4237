// Package auth implements request signing for the ECloud OpenAPI.
//
// Every call to the monitor API carries a set of query parameters which
// are canonicalised, hashed and signed with HMAC-SHA1.  The remote
// verifier recomputes the signature from the wire bytes, so the
// canonical query string produced here must be used verbatim on the
// wire - re-encoding it through url.Values will break authentication.
//
// All methods are safe for concurrent calling.
package auth

import (
	"crypto/hmac"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// Common parameter names added to every signed request
const (
	ParamAccessKey        = "AccessKey"
	ParamTimestamp        = "Timestamp"
	ParamSignatureMethod  = "SignatureMethod"
	ParamSignatureVersion = "SignatureVersion"
	ParamSignatureNonce   = "SignatureNonce"
	ParamVersion          = "Version"
	ParamSignature        = "Signature"
)

const (
	signatureMethod  = "HmacSHA1"
	signatureVersion = "V2.0"
	apiVersion       = "2016-12-05"

	// signingKeyTag is prefixed to the secret key to derive the HMAC key
	signingKeyTag = "BC_SIGNATURE&"

	// timestampFormat is the pattern the verifier expects.  The "Z" is a
	// literal - the timestamp is taken from the local clock, not UTC.
	// This matches the reference implementation and must not be
	// "corrected": normalising to UTC breaks authentication against the
	// real service.
	timestampFormat = "2006-01-02T15:04:05Z"
)

// Credential holds an ECloud access key pair.  It is immutable once
// created.
type Credential struct {
	accessKey string
	secretKey string
}

// NewCredential makes a Credential from an access key and secret key.
//
// Both must be non empty - this is checked once here rather than on
// every signing call.
func NewCredential(accessKey, secretKey string) (*Credential, error) {
	if accessKey == "" {
		return nil, errors.New("auth: access key is required")
	}
	if secretKey == "" {
		return nil, errors.New("auth: secret key is required")
	}
	return &Credential{
		accessKey: accessKey,
		secretKey: secretKey,
	}, nil
}

// AccessKey returns the access key id.
func (c *Credential) AccessKey() string {
	return c.accessKey
}

// String implements fmt.Stringer keeping the secret key out of logs.
func (c *Credential) String() string {
	return c.accessKey + ":***"
}

// PercentEncode encodes s for use in a canonical query string.
//
// Letters, digits and "-", "_", ".", "~" pass through unchanged.  Every
// other byte becomes %XY with uppercase hex, so a space is "%20" (never
// "+") and ":" is "%3A".  The same encoding is applied to keys, values
// and the request path - using a different encoder for any of them
// produces bytes the verifier will reject.
func PercentEncode(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		ch := s[i]
		if isUnreserved(ch) {
			b.WriteByte(ch)
		} else {
			const upperhex = "0123456789ABCDEF"
			b.WriteByte('%')
			b.WriteByte(upperhex[ch>>4])
			b.WriteByte(upperhex[ch&0xf])
		}
	}
	return b.String()
}

func isUnreserved(ch byte) bool {
	return ('A' <= ch && ch <= 'Z') ||
		('a' <= ch && ch <= 'z') ||
		('0' <= ch && ch <= '9') ||
		ch == '-' || ch == '_' || ch == '.' || ch == '~'
}

// CanonicalQueryString serialises params into the canonical form the
// signature is computed over: entries sorted by key in byte order, each
// emitted as encode(key)=encode(value), joined with "&".
//
// The result is a pure function of the map contents, independent of
// iteration order.  Callers putting the query on the wire must use this
// string verbatim.
func CanonicalQueryString(params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, PercentEncode(k)+"="+PercentEncode(params[k]))
	}
	return strings.Join(pairs, "&")
}

// StringToSign builds the exact byte sequence the signature is computed
// over: the uppercased method, the percent encoded path and the SHA-256
// digest of the canonical query string, joined by newlines.
//
// The path is encoded as a single unit with PercentEncode, so internal
// "/" become "%2F".  An empty canonical query string is valid and
// hashes to the well known empty digest.
func StringToSign(method, path, canonicalQuery string) string {
	sum := sha256.Sum256([]byte(canonicalQuery))
	return strings.ToUpper(method) + "\n" + PercentEncode(path) + "\n" + hex.EncodeToString(sum[:])
}

// sign computes the lowercase hex HMAC-SHA1 of stringToSign using the
// tagged secret key.
func sign(stringToSign, secretKey string) string {
	mac := hmac.New(sha1.New, []byte(signingKeyTag+secretKey))
	_, _ = mac.Write([]byte(stringToSign))
	return hex.EncodeToString(mac.Sum(nil))
}

// Signer signs requests for a single Credential.
//
// It keeps no state between calls beyond the immutable credential, so a
// single Signer may be shared between goroutines.  The clock and nonce
// source are replaceable for tests - with both pinned, SignRequest is
// fully deterministic.
type Signer struct {
	cred  *Credential
	now   func() time.Time
	nonce func() string
}

// NewSigner makes a Signer for the given credential.
func NewSigner(cred *Credential) *Signer {
	return &Signer{
		cred:  cred,
		now:   time.Now,
		nonce: newNonce,
	}
}

// newNonce returns a fresh random nonce, 32 hex digits (128 bits).
func newNonce() string {
	u := uuid.New()
	return hex.EncodeToString(u[:])
}

// injectCommonParams returns a copy of params with the common
// parameters added.  The input map is not modified.
func (s *Signer) injectCommonParams(params map[string]string) map[string]string {
	all := make(map[string]string, len(params)+7)
	for k, v := range params {
		all[k] = v
	}
	all[ParamAccessKey] = s.cred.accessKey
	all[ParamTimestamp] = s.now().Format(timestampFormat)
	all[ParamSignatureMethod] = signatureMethod
	all[ParamSignatureVersion] = signatureVersion
	all[ParamSignatureNonce] = s.nonce()
	all[ParamVersion] = apiVersion
	return all
}

// SignRequest signs a request described by an HTTP method, a servlet
// path starting with "/" and a set of query parameters.
//
// It returns the caller's parameters plus the injected common
// parameters plus the Signature.  Timestamp and nonce are regenerated
// on every call, so identical logical requests produce distinct
// signatures, and a retry of the underlying HTTP call must go through
// SignRequest again rather than reuse an earlier result.
func (s *Signer) SignRequest(method, path string, params map[string]string) map[string]string {
	all := s.injectCommonParams(params)
	canonical := CanonicalQueryString(all)
	stringToSign := StringToSign(method, path, canonical)
	all[ParamSignature] = sign(stringToSign, s.cred.secretKey)
	return all
}
