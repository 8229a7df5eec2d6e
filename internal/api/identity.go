package api

import (
	"errors"
	"net/http"
)

// ErrNoCaller is returned when a request carries no resolvable caller.
var ErrNoCaller = errors.New("api: no caller identity on request")

// Identity resolves the authenticated caller of a request. Authentication
// itself happens upstream (reverse proxy, gateway); this only reads the
// result off the request.
type Identity interface {
	CallerID(r *http.Request) (string, error)
}

// DefaultIdentityHeader is the header [HeaderIdentity] reads when no header
// name is configured.
const DefaultIdentityHeader = "X-User-ID"

// HeaderIdentity resolves the caller from a trusted request header set by the
// authenticating proxy.
type HeaderIdentity struct {
	// Header is the header carrying the user ID. Empty means
	// [DefaultIdentityHeader].
	Header string
}

var _ Identity = HeaderIdentity{}

func (h HeaderIdentity) CallerID(r *http.Request) (string, error) {
	name := h.Header
	if name == "" {
		name = DefaultIdentityHeader
	}
	id := r.Header.Get(name)
	if id == "" {
		return "", ErrNoCaller
	}
	return id, nil
}
