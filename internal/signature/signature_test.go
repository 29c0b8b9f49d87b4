package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerify(t *testing.T) {
	secret := []byte("s3cr3t")
	body := []byte(`{"action":"created","repository":{"name":"hookgate"}}`)
	valid := Sign(secret, body)

	tests := []struct {
		name    string
		secret  []byte
		body    []byte
		header  string
		wantErr error
	}{
		{
			name:   "valid signature",
			secret: secret,
			body:   body,
			header: valid,
		},
		{
			name:    "tampered body",
			secret:  secret,
			body:    []byte(`{"action":"deleted","repository":{"name":"hookgate"}}`),
			header:  valid,
			wantErr: ErrSignatureMismatch,
		},
		{
			name:    "whitespace change in body",
			secret:  secret,
			body:    []byte(`{"action": "created","repository":{"name":"hookgate"}}`),
			header:  valid,
			wantErr: ErrSignatureMismatch,
		},
		{
			name:    "wrong secret",
			secret:  []byte("other"),
			body:    body,
			header:  valid,
			wantErr: ErrSignatureMismatch,
		},
		{
			name:    "missing header",
			secret:  secret,
			body:    body,
			header:  "",
			wantErr: ErrMissingSignature,
		},
		{
			name:    "plain hex without algorithm",
			secret:  secret,
			body:    body,
			header:  strings.TrimPrefix(valid, "sha256="),
			wantErr: ErrMalformedSignature,
		},
		{
			name:    "sha1 algorithm",
			secret:  secret,
			body:    body,
			header:  "sha1=" + strings.TrimPrefix(valid, "sha256="),
			wantErr: ErrMalformedSignature,
		},
		{
			name:    "invalid hex",
			secret:  secret,
			body:    body,
			header:  "sha256=not-valid-hex",
			wantErr: ErrMalformedSignature,
		},
		{
			name:    "empty digest",
			secret:  secret,
			body:    body,
			header:  "sha256=",
			wantErr: ErrMalformedSignature,
		},
		{
			name:    "truncated digest",
			secret:  secret,
			body:    body,
			header:  valid[:len(valid)-2],
			wantErr: ErrMalformedSignature,
		},
		{
			name:   "binary secret",
			secret: []byte{0x00, 0xff, 0x10},
			body:   body,
			header: Sign([]byte{0x00, 0xff, 0x10}, body),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Verify(tt.secret, tt.body, tt.header)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestSign_MatchesReferenceHMAC(t *testing.T) {
	secret := []byte("s3cr3t")
	body := []byte(`{"action":"created"}`)

	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	want := "sha256=" + hex.EncodeToString(mac.Sum(nil))

	assert.Equal(t, want, Sign(secret, body))
	assert.Len(t, Sign(secret, body), len("sha256=")+64)
}

func TestVerify_AnyOtherBodyFails(t *testing.T) {
	secret := []byte("s3cr3t")
	bodies := [][]byte{
		[]byte(""),
		[]byte("{}"),
		[]byte(`{"a":1}`),
		[]byte(`{"a":1} `),
		[]byte(`{"a":2}`),
	}

	for i, b := range bodies {
		require.NoError(t, Verify(secret, b, Sign(secret, b)))
		for j, other := range bodies {
			if i == j {
				continue
			}
			err := Verify(secret, b, Sign(secret, other))
			assert.ErrorIs(t, err, ErrSignatureMismatch, "body %q signed as %q", b, other)
		}
	}
}

// Both inputs must fail at the comparison step, not earlier, so that any
// timing difference could only come from the comparison itself.
func TestVerify_PrefixAndFullMismatchFailTheSameWay(t *testing.T) {
	secret := []byte("s3cr3t")
	body := []byte(`{"action":"created"}`)
	valid, err := Parse(Sign(secret, body))
	require.NoError(t, err)

	prefix := append([]byte(nil), valid.Digest...)
	prefix[len(prefix)-1] ^= 0xff

	allWrong := make([]byte, len(valid.Digest))
	for i := range allWrong {
		allWrong[i] = valid.Digest[i] ^ 0xff
	}

	for _, digest := range [][]byte{prefix, allWrong} {
		err := Verify(secret, body, "sha256="+hex.EncodeToString(digest))
		assert.True(t, errors.Is(err, ErrSignatureMismatch))
	}
}

func TestParse(t *testing.T) {
	sig, err := Parse("sha256=" + strings.Repeat("ab", 32))
	require.NoError(t, err)
	assert.Equal(t, AlgorithmSHA256, sig.Algorithm)
	assert.Len(t, sig.Digest, 32)

	_, err = Parse("")
	assert.ErrorIs(t, err, ErrMissingSignature)

	_, err = Parse("sha256")
	assert.ErrorIs(t, err, ErrMalformedSignature)
}
