// Package macaroon implements the flat signed bearer token used by the L402
// payment protocol. It is not a full macaroon with caveat chaining; the
// signature is a single HMAC-SHA256 over the identifier, location, and the
// complete caveat list, which is all the protocol needs without third-party
// caveat delegation.
package macaroon

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

type Caveat struct {
	Condition string `json:"condition"`
	Value     string `json:"value"`
}

type Macaroon struct {
	Identifier string   `json:"identifier"`
	Location   string   `json:"location"`
	Signature  string   `json:"signature"`
	Caveats    []Caveat `json:"caveats"`
}

// Caveat conditions minted on every L402 challenge.
const (
	CaveatAction  = "action"
	CaveatAmount  = "amount"
	CaveatExpires = "expires"
)

// Mint creates a macaroon whose signature binds the identifier, location, and
// caveats under the root key. The identifier is the Lightning invoice's
// payment hash in hex.
func Mint(identifier string, location string, rootKey []byte, caveats []Caveat) Macaroon {
	if caveats == nil {
		caveats = []Caveat{}
	}

	return Macaroon{
		Identifier: identifier,
		Location:   location,
		Signature:  sign(identifier, location, rootKey, caveats),
		Caveats:    caveats,
	}
}

// VerifySignature recomputes the macaroon's HMAC under rootKey and compares it
// to the stored signature in constant time.
func (m Macaroon) VerifySignature(rootKey []byte) bool {
	expected, err := hex.DecodeString(sign(m.Identifier, m.Location, rootKey, m.Caveats))
	if err != nil {
		return false
	}

	actual, err := hex.DecodeString(m.Signature)
	if err != nil {
		return false
	}

	return hmac.Equal(expected, actual)
}

// Caveat returns the value of the first caveat with the given condition.
func (m Macaroon) Caveat(condition string) (string, bool) {
	for _, c := range m.Caveats {
		if c.Condition == condition {
			return c.Value, true
		}
	}

	return "", false
}

// Encode serializes the macaroon to a base64 string safe to place inside an
// HTTP header value.
func (m Macaroon) Encode() string {
	data, err := json.Marshal(m)
	if err != nil {
		// Macaroon contains only strings and a flat slice; marshaling
		// cannot fail.
		panic(fmt.Sprintf("macaroon marshal: %v", err))
	}

	return base64.StdEncoding.EncodeToString(data)
}

// Decode is the inverse of Encode. It returns an error rather than panicking
// on malformed input; this boundary receives untrusted client data.
func Decode(encoded string) (Macaroon, error) {
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return Macaroon{}, fmt.Errorf("macaroon is not valid base64: %w", err)
	}

	var m Macaroon
	if err := json.Unmarshal(data, &m); err != nil {
		return Macaroon{}, fmt.Errorf("macaroon is not valid JSON: %w", err)
	}

	if m.Caveats == nil {
		m.Caveats = []Caveat{}
	}

	return m, nil
}

// sign computes the hex HMAC-SHA256 tag over the macaroon fields. The message
// layout (identifier, location, root key, caveat JSON) is the protocol's wire
// format; changing it invalidates all outstanding tokens.
func sign(identifier string, location string, rootKey []byte, caveats []Caveat) string {
	caveatJSON, err := json.Marshal(caveats)
	if err != nil {
		panic(fmt.Sprintf("caveat marshal: %v", err))
	}

	mac := hmac.New(sha256.New, rootKey)
	mac.Write([]byte(identifier))
	mac.Write([]byte(location))
	mac.Write(rootKey)
	mac.Write(caveatJSON)

	return hex.EncodeToString(mac.Sum(nil))
}
