package macaroon

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testRootKey = []byte("unit-test-root-key")

func testCaveats() []Caveat {
	return []Caveat{
		{Condition: CaveatAction, Value: "create_post"},
		{Condition: CaveatAmount, Value: "2010"},
		{Condition: CaveatExpires, Value: "1750000000000"},
	}
}

func TestMintAndVerifySignature(t *testing.T) {
	mac := Mint("abc123", "ganamos-posts", testRootKey, testCaveats())

	assert.Equal(t, "abc123", mac.Identifier)
	assert.Equal(t, "ganamos-posts", mac.Location)
	assert.NotEmpty(t, mac.Signature)
	assert.True(t, mac.VerifySignature(testRootKey))
}

func TestVerifySignatureRejectsWrongKey(t *testing.T) {
	mac := Mint("abc123", "ganamos-posts", testRootKey, testCaveats())

	assert.False(t, mac.VerifySignature([]byte("some-other-key")))
}

func TestVerifySignatureRejectsTampering(t *testing.T) {
	mac := Mint("abc123", "ganamos-posts", testRootKey, testCaveats())

	tamperedCaveat := mac
	tamperedCaveat.Caveats = append([]Caveat{}, mac.Caveats...)
	tamperedCaveat.Caveats[1].Value = "1"
	assert.False(t, tamperedCaveat.VerifySignature(testRootKey))

	tamperedIdentifier := mac
	tamperedIdentifier.Identifier = "def456"
	assert.False(t, tamperedIdentifier.VerifySignature(testRootKey))

	tamperedLocation := mac
	tamperedLocation.Location = "somewhere-else"
	assert.False(t, tamperedLocation.VerifySignature(testRootKey))
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	mac := Mint("abc123", "ganamos-posts", testRootKey, testCaveats())

	decoded, err := Decode(mac.Encode())
	require.NoError(t, err)

	assert.Equal(t, mac.Identifier, decoded.Identifier)
	assert.Equal(t, mac.Location, decoded.Location)
	assert.Equal(t, mac.Signature, decoded.Signature)
	assert.Equal(t, mac.Caveats, decoded.Caveats)
	assert.True(t, decoded.VerifySignature(testRootKey))
}

func TestEncodeDecodeRoundTripNoCaveats(t *testing.T) {
	mac := Mint("abc123", "ganamos-posts", testRootKey, nil)

	decoded, err := Decode(mac.Encode())
	require.NoError(t, err)

	assert.Equal(t, []Caveat{}, decoded.Caveats)
	assert.True(t, decoded.VerifySignature(testRootKey))
}

func TestDecodeRejectsMalformedInput(t *testing.T) {
	cases := map[string]string{
		"not base64":          "!!!not-base64!!!",
		"base64 but not json": "bm90IGpzb24gYXQgYWxs",
		"empty":               "",
		"json wrong shape":    "WyJhcnJheSIsICJub3QiLCAib2JqZWN0Il0=",
	}

	for name, input := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Decode(input)
			assert.Error(t, err)
		})
	}
}

func TestCaveatLookup(t *testing.T) {
	mac := Mint("abc123", "ganamos-posts", testRootKey, testCaveats())

	amount, ok := mac.Caveat(CaveatAmount)
	require.True(t, ok)
	assert.Equal(t, "2010", amount)

	_, ok = mac.Caveat("nonexistent")
	assert.False(t, ok)
}
