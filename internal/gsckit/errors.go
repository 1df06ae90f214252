package gsckit

import "errors"

var (
	// ErrAccountNotLinked indicates no credential record exists for the user; the
	// user must complete the linking flow before any retrieval can happen.
	ErrAccountNotLinked = errors.New("gsc.credentials.account_not_linked")
	// ErrCredentialRefreshFailed indicates the upstream token endpoint rejected
	// the refresh exchange. The stored record is left untouched.
	ErrCredentialRefreshFailed = errors.New("gsc.credentials.refresh_failed")
	// ErrCredentialUnrecoverable indicates the access token is expired and no
	// refresh token exists; only re-linking can produce valid credentials.
	ErrCredentialUnrecoverable = errors.New("gsc.credentials.unrecoverable")
	// ErrUpstream wraps failures from the Search Console listing and query calls.
	ErrUpstream = errors.New("gsc.upstream")
)
