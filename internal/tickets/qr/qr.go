package qr

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"ms-boxoffice/internal/models"

	"github.com/skip2/go-qrcode"
)

var ErrBadSignature = errors.New("qr payload signature mismatch")

// Signer produces and verifies the signed payload embedded in ticket QR
// codes. The payload is a locator, not a credential: whoever scans it still
// has to pass server-side validation against the ticket record.
type Signer struct {
	secret []byte
}

func NewSigner(secret string) *Signer {
	hashed := sha256.Sum256([]byte(secret)) // normalize to 32 bytes
	return &Signer{secret: hashed[:]}
}

// Sign serializes the payload and appends an HMAC-SHA256 tag:
// base64url(json) + "." + base64url(mac).
func (s *Signer) Sign(payload models.QRTicketPayload) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	encoded := base64.URLEncoding.EncodeToString(data)
	return encoded + "." + s.mac(encoded), nil
}

// Verify checks the tag and returns the embedded payload. Callers must
// still re-read the ticket record; the payload only names it.
func (s *Signer) Verify(signed string) (*models.QRTicketPayload, error) {
	encoded, tag, found := strings.Cut(signed, ".")
	if !found {
		return nil, ErrBadSignature
	}
	if !hmac.Equal([]byte(s.mac(encoded)), []byte(tag)) {
		return nil, ErrBadSignature
	}

	data, err := base64.URLEncoding.DecodeString(encoded)
	if err != nil {
		return nil, ErrBadSignature
	}
	var payload models.QRTicketPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("malformed qr payload: %w", err)
	}
	return &payload, nil
}

// EncodePNG renders the signed payload as a QR image.
func (s *Signer) EncodePNG(signed string) ([]byte, error) {
	return qrcode.Encode(signed, qrcode.Medium, 256)
}

func (s *Signer) mac(encoded string) string {
	h := hmac.New(sha256.New, s.secret)
	h.Write([]byte(encoded))
	return base64.URLEncoding.EncodeToString(h.Sum(nil))
}
