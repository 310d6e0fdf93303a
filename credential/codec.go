/*
Package credential mints and verifies gate credentials.

PURPOSE:
  A credential is what the visitor actually carries to the gate: a signed
  token embedding the reservation claims, plus a QR rendering of that
  token for the scanner. Verification is purely cryptographic - the gate
  never trusts the claims without checking the signature first, then
  re-checks the reservation row for liveness.

TOKEN FORMAT:
  HMAC-SHA256 signed JWT. Claims carry reservation id, holder id, slot
  date, slot time and party size. The signing secret is shared between
  the booking service and the gate scanners.

QR FORMAT:
  PNG rendered at 256x256, base64-encoded into a data URL
  ("data:image/png;base64,...") so web and mobile clients can drop it
  straight into an <img> tag.

SEE ALSO:
  - schedule/credential.go: Encoder/Decoder interfaces and payload shape
  - schedule/admission.go: Gate-side verification flow
*/
package credential

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/warp/darshan-engine/schedule"
)

// Codec signs and verifies reservation credentials. It implements both
// schedule.CredentialEncoder and schedule.CredentialDecoder.
type Codec struct {
	secret []byte
	issuer string
}

// NewCodec creates a codec signing with the given shared secret.
func NewCodec(secret []byte, issuer string) (*Codec, error) {
	if len(secret) == 0 {
		return nil, fmt.Errorf("credential secret must not be empty")
	}
	if issuer == "" {
		issuer = "darshan-engine"
	}
	return &Codec{secret: secret, issuer: issuer}, nil
}

type claims struct {
	ReservationID string `json:"rid"`
	HolderID      string `json:"hid"`
	Date          string `json:"date"`
	Time          string `json:"time"`
	Quantity      int    `json:"qty"`
	jwt.RegisteredClaims
}

// Encode signs the payload and renders the token as a QR data URL.
// The token carries no expiry claim: reservation liveness is decided
// against the stored deadline at scan time, not baked into the token.
func (c *Codec) Encode(ctx context.Context, p schedule.CredentialPayload) (schedule.Credential, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		ReservationID: string(p.ReservationID),
		HolderID:      string(p.HolderID),
		Date:          p.Date,
		Time:          string(p.Time),
		Quantity:      p.Quantity,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:   c.issuer,
			IssuedAt: jwt.NewNumericDate(time.Now().UTC()),
		},
	})

	signed, err := token.SignedString(c.secret)
	if err != nil {
		return schedule.Credential{}, fmt.Errorf("sign credential for %s: %w", p.ReservationID, err)
	}

	image, err := renderQR(signed)
	if err != nil {
		return schedule.Credential{}, fmt.Errorf("render credential for %s: %w", p.ReservationID, err)
	}

	return schedule.Credential{Token: signed, Image: image}, nil
}

// Decode verifies the signature and returns the embedded claims. Any
// failure - malformed token, wrong algorithm, bad signature - comes back
// wrapping schedule.ErrBadCredential so the gate can map it uniformly.
func (c *Codec) Decode(tokenString string) (*schedule.CredentialPayload, error) {
	var parsed claims
	_, err := jwt.ParseWithClaims(tokenString, &parsed, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return c.secret, nil
	}, jwt.WithIssuer(c.issuer))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", schedule.ErrBadCredential, err)
	}

	if parsed.ReservationID == "" {
		return nil, fmt.Errorf("%w: missing reservation id", schedule.ErrBadCredential)
	}

	return &schedule.CredentialPayload{
		ReservationID: schedule.ReservationID(parsed.ReservationID),
		HolderID:      schedule.HolderID(parsed.HolderID),
		Date:          parsed.Date,
		Time:          schedule.TimeOfDay(parsed.Time),
		Quantity:      parsed.Quantity,
	}, nil
}

// Compile-time interface checks.
var (
	_ schedule.CredentialEncoder = (*Codec)(nil)
	_ schedule.CredentialDecoder = (*Codec)(nil)
)
