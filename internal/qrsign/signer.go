// Package qrsign signs and verifies QR token payloads with a keyed hash.
//
// Signatures always cover a canonical, order-stable field tuple rather than
// the raw request body, so incidental fields added by one issuer code path
// never leak into the signature of another.
package qrsign

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strconv"
)

// LinkKind is the type discriminator of a stateless link payload.
type LinkKind string

const (
	KindChildRegistration LinkKind = "CHILD_REGISTRATION"
	KindParentLink        LinkKind = "PARENT_LINK"
)

// LinkPayload is the self-contained wire form of a registration/link token.
// Everything needed to redeem it travels inside the payload; there is no
// server-side row. Field order here is the canonical signing order.
type LinkPayload struct {
	Type       LinkKind `json:"type"`
	IssuerID   string   `json:"issuerId"`
	IssuerName string   `json:"issuerName"`
	ChildName  string   `json:"childName,omitempty"`
	BirthYear  int      `json:"birthYear,omitempty"`
	Phone      string   `json:"phone,omitempty"`
	QRID       string   `json:"qrId"`
	Exp        int64    `json:"exp"`
	Sig        string   `json:"sig,omitempty"`
}

// StatefulPayload is the wire form of a lock/attendance token. All policy
// detail lives server-side under QRID.
type StatefulPayload struct {
	QRID string `json:"qr_id"`
	Exp  int64  `json:"exp"`
	Sig  string `json:"sig"`
}

type Signer struct {
	secret []byte
}

// New creates a Signer. The secret should be at least 32 bytes.
func New(secret []byte) *Signer {
	return &Signer{secret: secret}
}

// SignStateful computes the hex HMAC-SHA256 over "{qr_id}:{exp}".
func (s *Signer) SignStateful(qrID string, exp int64) string {
	return s.sign([]byte(qrID + ":" + strconv.FormatInt(exp, 10)))
}

// VerifyStateful reports whether sig matches the canonical stateful input.
// Bad input never errors; callers decide the HTTP-level consequence.
func (s *Signer) VerifyStateful(qrID string, exp int64, sig string) bool {
	return s.verify([]byte(qrID+":"+strconv.FormatInt(exp, 10)), sig)
}

// SignLink signs the canonical serialization of the payload minus Sig and
// returns a copy with Sig set.
func (s *Signer) SignLink(payload LinkPayload) (LinkPayload, error) {
	data, err := canonicalLink(payload)
	if err != nil {
		return LinkPayload{}, err
	}
	payload.Sig = s.sign(data)
	return payload, nil
}

// VerifyLink recomputes the signature over the payload minus Sig.
func (s *Signer) VerifyLink(payload LinkPayload) bool {
	data, err := canonicalLink(payload)
	if err != nil {
		return false
	}
	return s.verify(data, payload.Sig)
}

func canonicalLink(payload LinkPayload) ([]byte, error) {
	payload.Sig = ""
	return json.Marshal(payload)
}

func (s *Signer) sign(data []byte) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write(data)
	return hex.EncodeToString(mac.Sum(nil))
}

func (s *Signer) verify(data []byte, sig string) bool {
	expected, err := hex.DecodeString(sig)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, s.secret)
	mac.Write(data)
	return hmac.Equal(mac.Sum(nil), expected)
}
