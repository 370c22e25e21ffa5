package core

import "github.com/google/uuid"

// TokenGenerator mints the opaque, globally-unique strings stamped onto
// assigned tickets as QR payloads. The engine only requires uniqueness and
// immutability; rendering the code as an image is the notification
// collaborator's job.
type TokenGenerator interface {
	NewToken() string
}

// UUIDTokens generates random UUID tokens with a fixed prefix so a scanned
// code is recognizable as a ticket token.
type UUIDTokens struct {
	Prefix string
}

func NewUUIDTokens() *UUIDTokens { return &UUIDTokens{Prefix: "FEST-TCK-"} }

func (g *UUIDTokens) NewToken() string {
	return g.Prefix + uuid.NewString()
}

// NewID returns a bare UUID, used for purchase, line-item, ticket, wristband,
// and journal row identifiers.
func NewID() string { return uuid.NewString() }
