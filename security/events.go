package security

// Event type constants for the security event log. Using constants keeps
// event names consistent across the codebase and greppable in log output.
const (
	// EventLoginSuccess is recorded when a login completes successfully
	EventLoginSuccess = "login_success"

	// EventLoginFailure is recorded when credentials are rejected
	EventLoginFailure = "login_failure"

	// EventAccountLocked is recorded when a lockout threshold blocks an attempt
	EventAccountLocked = "account_locked"

	// EventAccountDisabled is recorded when an inactive account attempts login
	EventAccountDisabled = "account_disabled"

	// EventEmailUnverified is recorded when a login is deferred pending email verification
	EventEmailUnverified = "email_unverified"

	// EventCSRFRejected is recorded when an anti-forgery token is missing, unknown, or replayed
	EventCSRFRejected = "csrf_rejected"

	// EventTokenIssued is recorded when a new token pair is issued
	EventTokenIssued = "token_issued"

	// EventTokenRefreshed is recorded when an access token is refreshed
	EventTokenRefreshed = "token_refreshed"

	// EventTokenRevoked is recorded when a token is revoked on logout
	EventTokenRevoked = "token_revoked"

	// EventRegistration is recorded when a new account is created
	EventRegistration = "registration"

	// EventSuspiciousActivity is recorded when the suspicion heuristics flag a login
	EventSuspiciousActivity = "suspicious_activity"

	// EventRateLimited is recorded when the request throttle rejects an attempt
	EventRateLimited = "rate_limited"
)
