package qrsign

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatefulRoundTrip(t *testing.T) {
	signer := New([]byte("test-secret-0123456789abcdef0123"))
	exp := time.Now().Add(24 * time.Hour).Unix()

	sig := signer.SignStateful("qr-1", exp)
	assert.True(t, signer.VerifyStateful("qr-1", exp, sig))

	// Tampering with any signed field invalidates the signature.
	assert.False(t, signer.VerifyStateful("qr-2", exp, sig))
	assert.False(t, signer.VerifyStateful("qr-1", exp+1, sig))
	assert.False(t, signer.VerifyStateful("qr-1", exp, sig[:len(sig)-1]+"0"))
}

func TestStatefulBadSignatureEncoding(t *testing.T) {
	signer := New([]byte("test-secret-0123456789abcdef0123"))
	assert.False(t, signer.VerifyStateful("qr-1", 1, "not-hex"))
	assert.False(t, signer.VerifyStateful("qr-1", 1, ""))
}

func TestLinkRoundTrip(t *testing.T) {
	signer := New([]byte("test-secret-0123456789abcdef0123"))
	payload := LinkPayload{
		Type:       KindChildRegistration,
		IssuerID:   "parent-1",
		IssuerName: "Mom",
		ChildName:  "Minjun",
		BirthYear:  2015,
		QRID:       "qr-1",
		Exp:        time.Now().Add(time.Hour).Unix(),
	}

	signed, err := signer.SignLink(payload)
	require.NoError(t, err)
	require.NotEmpty(t, signed.Sig)
	assert.True(t, signer.VerifyLink(signed))

	tampered := signed
	tampered.IssuerID = "parent-2"
	assert.False(t, signer.VerifyLink(tampered))

	tampered = signed
	tampered.BirthYear = 2016
	assert.False(t, signer.VerifyLink(tampered))

	tampered = signed
	tampered.Exp++
	assert.False(t, signer.VerifyLink(tampered))
}

func TestLinkSignatureExcludesSig(t *testing.T) {
	signer := New([]byte("test-secret-0123456789abcdef0123"))
	payload := LinkPayload{
		Type:       KindParentLink,
		IssuerID:   "parent-1",
		IssuerName: "Dad",
		QRID:       "qr-9",
		Exp:        1900000000,
	}
	first, err := signer.SignLink(payload)
	require.NoError(t, err)

	// Signing an already-signed payload must yield the same signature.
	second, err := signer.SignLink(first)
	require.NoError(t, err)
	assert.Equal(t, first.Sig, second.Sig)
}

func TestDifferentSecretsDisagree(t *testing.T) {
	a := New([]byte("secret-a-secret-a-secret-a-secret"))
	b := New([]byte("secret-b-secret-b-secret-b-secret"))
	sig := a.SignStateful("qr-1", 100)
	assert.False(t, b.VerifyStateful("qr-1", 100, sig))
}
