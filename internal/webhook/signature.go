package webhook

import (
	"crypto/hmac"
	"crypto/sha1" //nolint:gosec // legacy X-Hub-Signature is HMAC-SHA1
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"hash"
	"net/http"
	"strings"

	domainerrors "github.com/garyellow/messenger-nlu-bot/internal/errors"
)

// Signature headers.
const (
	HeaderCallouts     = "X-SF-Callouts"
	HeaderSignature256 = "X-Hub-Signature-256"
	HeaderSignature    = "X-Hub-Signature"
)

// Verifier authenticates webhook deliveries.
//
// Requests relayed by other systems (Salesforce callouts) carry X-SF-Callouts
// set to the verify token. Everything else must carry an HMAC of the raw body
// keyed by the app secret, preferring X-Hub-Signature-256 over the legacy
// SHA-1 header.
type Verifier struct {
	appSecret   []byte
	verifyToken []byte
}

// NewVerifier creates a Verifier.
func NewVerifier(appSecret, verifyToken string) *Verifier {
	return &Verifier{appSecret: []byte(appSecret), verifyToken: []byte(verifyToken)}
}

// Verify checks the request headers against body.
func (v *Verifier) Verify(header http.Header, body []byte) error {
	if callout := header.Get(HeaderCallouts); callout != "" {
		if len(v.verifyToken) == 0 || subtle.ConstantTimeCompare([]byte(callout), v.verifyToken) != 1 {
			return domainerrors.ErrCalloutTokenMismatch
		}
		return nil
	}

	sig := header.Get(HeaderSignature256)
	if sig == "" {
		sig = header.Get(HeaderSignature)
	}
	if sig == "" {
		return fmt.Errorf("%w: expected %s, %s or %s", domainerrors.ErrSignatureMissing,
			HeaderSignature256, HeaderSignature, HeaderCallouts)
	}
	return v.checkHMAC(sig, body)
}

func (v *Verifier) checkHMAC(sig string, body []byte) error {
	algo, digest, ok := strings.Cut(sig, "=")
	if !ok {
		return fmt.Errorf("%w: malformed signature header", domainerrors.ErrSignatureMismatch)
	}

	var newHash func() hash.Hash
	switch strings.ToLower(algo) {
	case "sha256":
		newHash = sha256.New
	case "sha1":
		newHash = sha1.New
	default:
		return fmt.Errorf("%w: unsupported algorithm %q", domainerrors.ErrSignatureMismatch, algo)
	}

	got, err := hex.DecodeString(digest)
	if err != nil {
		return fmt.Errorf("%w: signature is not hex", domainerrors.ErrSignatureMismatch)
	}
	if len(v.appSecret) == 0 {
		return fmt.Errorf("%w: app secret not configured", domainerrors.ErrSignatureMismatch)
	}

	mac := hmac.New(newHash, v.appSecret)
	mac.Write(body)
	if !hmac.Equal(got, mac.Sum(nil)) {
		return domainerrors.ErrSignatureMismatch
	}
	return nil
}

// CheckVerifyToken reports whether token matches the configured verify token.
func (v *Verifier) CheckVerifyToken(token string) bool {
	return len(v.verifyToken) > 0 && subtle.ConstantTimeCompare([]byte(token), v.verifyToken) == 1
}

// Sign returns the X-Hub-Signature-256 value for body. Used by tests and local tooling.
func Sign(appSecret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(appSecret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}
