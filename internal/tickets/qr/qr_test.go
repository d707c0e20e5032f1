package qr_test

import (
	"strings"
	"testing"

	"ms-boxoffice/internal/models"
	"ms-boxoffice/internal/tickets/qr"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func payload() models.QRTicketPayload {
	return models.QRTicketPayload{
		TicketID:     "tkt-uuid-1",
		TicketNumber: "TKT-1700000000-000000001",
		EventID:      "concert-9",
		CustomerRef:  "dana@example.com",
		Price:        decimal.NewFromFloat(20.00),
		Status:       models.TicketActive,
	}
}

func TestSignVerifyRoundTrip(t *testing.T) {
	signer := qr.NewSigner("secret-a")

	signed, err := signer.Sign(payload())
	require.NoError(t, err)

	got, err := signer.Verify(signed)
	require.NoError(t, err)
	assert.Equal(t, "tkt-uuid-1", got.TicketID)
	assert.Equal(t, "concert-9", got.EventID)
	assert.True(t, got.Price.Equal(decimal.NewFromFloat(20.00)))
}

func TestVerifyRejectsTampering(t *testing.T) {
	signer := qr.NewSigner("secret-a")

	signed, err := signer.Sign(payload())
	require.NoError(t, err)

	// Alter the encoded body but keep the tag. The body is base64 JSON
	// starting with '{', so its first character is never 'A'.
	parts := strings.SplitN(signed, ".", 2)
	tampered := "A" + parts[0][1:] + "." + parts[1]

	_, err = signer.Verify(tampered)
	assert.ErrorIs(t, err, qr.ErrBadSignature)
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	signed, err := qr.NewSigner("secret-a").Sign(payload())
	require.NoError(t, err)

	_, err = qr.NewSigner("secret-b").Verify(signed)
	assert.ErrorIs(t, err, qr.ErrBadSignature)
}

func TestVerifyRejectsGarbage(t *testing.T) {
	signer := qr.NewSigner("secret-a")

	for _, input := range []string{"", "no-dot", "a.b.c"} {
		_, err := signer.Verify(input)
		assert.Error(t, err, "input %q", input)
	}
}

func TestEncodePNG(t *testing.T) {
	signer := qr.NewSigner("secret-a")

	signed, err := signer.Sign(payload())
	require.NoError(t, err)

	png, err := signer.EncodePNG(signed)
	require.NoError(t, err)
	assert.Equal(t, "\x89PNG", string(png[:4]))
}
