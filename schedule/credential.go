/*
credential.go - Scannable credential contract

PURPOSE:
  Each reservation carries a cryptographically opaque credential the
  holder presents at the gate. The engine treats encoding as an external
  service: it hands over a payload and gets back an opaque, renderable
  blob; at the gate it hands over the scanned token and gets back the
  payload. The concrete codec (signed token + QR image) lives in the
  credential package.

SEE ALSO:
  - credential/codec.go: JWT-signed implementation
  - credential/qr.go: Scannable image rendering
*/
package schedule

import "context"

// CredentialPayload is the data encoded into a scannable credential.
type CredentialPayload struct {
	ReservationID ReservationID `json:"reservation_id"`
	HolderID      HolderID      `json:"holder_id"`
	Date          string        `json:"date"` // YYYY-MM-DD of the admitted slot
	Time          TimeOfDay     `json:"time"`
	Quantity      int           `json:"quantity"`
}

// Credential is the opaque result of encoding: the signed token (the QR
// content, presented back at the gate) and the rendered scannable image
// as a data URL.
type Credential struct {
	Token string
	Image string
}

// CredentialEncoder mints a credential for a reservation payload.
type CredentialEncoder interface {
	Encode(ctx context.Context, p CredentialPayload) (Credential, error)
}

// CredentialDecoder verifies a scanned token and recovers its payload.
// Tokens that fail verification return ErrBadCredential.
type CredentialDecoder interface {
	Decode(token string) (*CredentialPayload, error)
}
