package credentials

import "github.com/google/uuid"

// TokenIssuer creates the tokens partners use towards this platform. Tokens are opaque to the partner.
type TokenIssuer interface {
	Issue() string
}

// UuidIssuer issues random v4 uuids, well below the maximum token length.
type UuidIssuer struct{}

func (UuidIssuer) Issue() string {
	return uuid.NewString()
}
