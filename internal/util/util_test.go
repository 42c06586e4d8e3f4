package util

import (
	"testing"

	"github.com/mr-tron/base58"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validMint() string {
	b := make([]byte, 32)
	for i := range b {
		b[i] = byte(i + 1)
	}
	return base58.Encode(b)
}

func TestValidateMintAccepts(t *testing.T) {
	require.NoError(t, ValidateMint(validMint()))
}

func TestValidateMintRejectsBadLength(t *testing.T) {
	assert.Error(t, ValidateMint("short"))
}

func TestValidateMintRejectsNonBase58(t *testing.T) {
	bad := "0OIl" + validMint()[4:] // 0, O, I, l are not in the base58 alphabet
	assert.Error(t, ValidateMint(bad[:40]))
}

func TestEncodeDecodeMintRoundTrip(t *testing.T) {
	mint := validMint()
	b, err := DecodeMint(mint)
	require.NoError(t, err)
	assert.Equal(t, mint, EncodeMint(b))
}
