package routing

import (
	"net/http"
	"net/url"
	"strings"
)

// HandoffParam is the query parameter that carries the bearer credential across origins
const HandoffParam = "token"

// HandoffURL builds the one-time navigation URL origin/?token=<bearer>
func HandoffURL(origin, bearer string) string {
	base := strings.TrimSuffix(origin, "/") + "/"
	return base + "?" + url.Values{HandoffParam: {bearer}}.Encode()
}

// HandoffToken returns the bearer credential carried by a request URL, if any
func HandoffToken(r *http.Request) string {
	return strings.TrimSpace(r.URL.Query().Get(HandoffParam))
}

// StripHandoff returns the request-relative URL with the handoff parameter removed.
// Leading slashes and backslashes collapse to one slash so the result can never
// be read as a protocol-relative URL pointing at another host.
func StripHandoff(u *url.URL) string {
	query := u.Query()
	query.Del(HandoffParam)

	path := "/" + strings.TrimLeft(u.EscapedPath(), "/\\")
	if encoded := query.Encode(); encoded != "" {
		return path + "?" + encoded
	}
	return path
}
