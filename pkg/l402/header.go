package l402

import (
	"fmt"
	"net/http"
	"strings"
)

const scheme = "L402"

// ParseAuthorizationHeader extracts the credential from an Authorization
// header of the form "L402 <macaroon>:<preimage>". It returns nil when the
// header does not use the L402 scheme or is missing either half; that is a
// "not this scheme" signal, not an error.
func ParseAuthorizationHeader(headerValue string) *Credential {
	rest, ok := strings.CutPrefix(headerValue, scheme+" ")
	if !ok {
		return nil
	}

	mac, preimage, ok := strings.Cut(rest, ":")
	if !ok || mac == "" || preimage == "" {
		return nil
	}

	return &Credential{
		Macaroon: mac,
		Preimage: preimage,
	}
}

// ChallengeHeaders builds the response headers for a 402 Payment Required
// challenge. The WWW-Authenticate value quoting matters for interoperability:
// clients extract the parts with regexes, and neither base64 macaroons nor
// BOLT11 invoices can contain a double quote.
func ChallengeHeaders(challenge *Challenge) http.Header {
	headers := http.Header{}
	headers.Set("WWW-Authenticate", fmt.Sprintf("%s macaroon=%q, invoice=%q", scheme, challenge.Macaroon, challenge.Invoice))
	headers.Set("Content-Type", "application/json")

	return headers
}
