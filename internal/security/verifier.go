package security

// AccessTokenVerifier validates the session credential that selects the
// authenticated list path.
type AccessTokenVerifier interface {
	VerifyAccessToken(token string) (TokenClaims, error)
}
