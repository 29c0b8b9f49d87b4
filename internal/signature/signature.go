// Package signature verifies GitHub-style HMAC-SHA256 webhook signatures.
//
// The digest is always computed over the raw request body exactly as received.
// Comparison uses hmac.Equal, which runs in constant time with respect to the
// position of the first differing byte.
package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
)

// HeaderName is the request header carrying the body signature.
const HeaderName = "X-Hub-Signature-256"

// AlgorithmSHA256 is the only recognized signature algorithm.
const AlgorithmSHA256 = "sha256"

var (
	ErrMissingSignature   = errors.New("signature missing")
	ErrMalformedSignature = errors.New("signature malformed")
	ErrSignatureMismatch  = errors.New("signature mismatch")
)

// Signature is a decoded signature header value tagged with its algorithm.
type Signature struct {
	Algorithm string
	Digest    []byte
}

// Parse decodes a header value of the form "sha256=<hex>".
func Parse(header string) (Signature, error) {
	if header == "" {
		return Signature{}, ErrMissingSignature
	}

	algo, hexDigest, ok := strings.Cut(header, "=")
	if !ok || algo != AlgorithmSHA256 || hexDigest == "" {
		return Signature{}, ErrMalformedSignature
	}

	digest, err := hex.DecodeString(hexDigest)
	if err != nil || len(digest) != sha256.Size {
		return Signature{}, ErrMalformedSignature
	}

	return Signature{Algorithm: algo, Digest: digest}, nil
}

// Verify checks header against the HMAC-SHA256 of body keyed by secret.
// It returns one of ErrMissingSignature, ErrMalformedSignature or
// ErrSignatureMismatch on failure.
func Verify(secret, body []byte, header string) error {
	sig, err := Parse(header)
	if err != nil {
		return err
	}

	if !hmac.Equal(compute(secret, body), sig.Digest) {
		return ErrSignatureMismatch
	}
	return nil
}

// Sign returns the header value a sender holding secret would attach to body.
func Sign(secret, body []byte) string {
	return AlgorithmSHA256 + "=" + hex.EncodeToString(compute(secret, body))
}

func compute(secret, body []byte) []byte {
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return mac.Sum(nil)
}
