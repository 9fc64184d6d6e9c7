package signaling

import (
	"regexp"
	"strings"

	"github.com/sebas/bellbridge/internal/sipmsg"
)

// identityPattern matches the device username in a "sip:user@host" address.
var identityPattern = regexp.MustCompile(`sip:([^@]+)@[^>]+`)

// sipURIPattern matches the bare SIP URI inside an address header, excluding
// any trailing ">" and parameters.
var sipURIPattern = regexp.MustCompile(`sip:[^>]+`)

// deviceIdentity extracts the device name from a To or From header value. The
// identity is trusted as-is once extracted; this is the single place a future
// authentication check would slot in.
func deviceIdentity(header string) (string, error) {
	m := identityPattern.FindStringSubmatch(header)
	if m == nil {
		return "", &sipmsg.ParseError{Line: header, Reason: "no device identity in header"}
	}
	return m[1], nil
}

// sipURI extracts the bare URI from an address header for tag rewriting.
func sipURI(header string) (string, error) {
	uri := sipURIPattern.FindString(header)
	if uri == "" {
		return "", &sipmsg.ParseError{Line: header, Reason: "no SIP URI in header"}
	}
	return uri, nil
}

// addressHost returns the host portion of an address header: everything after
// the "@" up to the closing ">".
func addressHost(header string) string {
	_, rest, ok := strings.Cut(header, "@")
	if !ok {
		return ""
	}
	host, _, _ := strings.Cut(rest, ">")
	return host
}

// viaBranch extracts the branch correlation token from a Via header value.
// The branch is echoed in every reply and in the server-initiated BYE; it is
// never generated here.
func viaBranch(via string) (string, error) {
	for _, part := range strings.Split(via, ";") {
		if name, value, found := strings.Cut(part, "="); found && name == "branch" {
			return value, nil
		}
	}
	return "", &sipmsg.ParseError{Line: via, Reason: "no branch in Via header"}
}
