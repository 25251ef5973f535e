package model

// Identity is the authenticated caller attached to a request after the
// bearer token has been verified. AccessToken keeps the raw token so
// that logout can revoke it.
type Identity struct {
	UserID      uint64
	Email       string
	IsSuperuser bool
	AccessToken string
}
