package token

// Kind discriminates the four signed-token kinds. The kind is embedded in
// the signed payload and checked against the verification context.
type Kind string

const (
	// KindAccess is the short-lived credential for HTTP and realtime requests.
	KindAccess Kind = "access"
	// KindRefresh is the long-lived, store-backed credential used to mint new access tokens.
	KindRefresh Kind = "refresh"
	// KindEmailVerify is the single-purpose credential delivered by email to confirm an address.
	KindEmailVerify Kind = "email_verify"
	// KindForgotPassword is the single-purpose credential for password resets.
	KindForgotPassword Kind = "forgot_password"
)

// Valid reports whether k is one of the four known kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindAccess, KindRefresh, KindEmailVerify, KindForgotPassword:
		return true
	default:
		return false
	}
}

// VerifyStatus is the account-level verification state carried in claims.
// It is distinct from token validity: a token can be cryptographically
// valid while its subject is still unverified or banned.
type VerifyStatus int

const (
	// VerifyUnverified is the state of a freshly registered account.
	VerifyUnverified VerifyStatus = 0
	// VerifyVerified means the account's email has been confirmed.
	VerifyVerified VerifyStatus = 1
	// VerifyBanned means the account is blocked.
	VerifyBanned VerifyStatus = 2
)
