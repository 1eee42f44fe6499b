package domain

import "time"

// SubjectType identifies the kind of authenticated principal. Owners are the
// only subject today; the discriminator is kept in the token payload so the
// claim shape stays stable.
type SubjectType string

const (
	SubjectTypeOwner SubjectType = "OWNER"
)

// Token represents issued authentication token metadata.
type Token struct {
	ID        string
	SubjectID string
	Subject   SubjectType
	ExpiresAt time.Time
	IssuedAt  time.Time
}
