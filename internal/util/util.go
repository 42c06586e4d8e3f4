// Package util collects small pure helpers used across the command
// API boundary and the decoder: wallet/mint format validation and
// base58 mint codec helpers.
//
// Grounded on the teacher's pkg/util grab-bag shape (ValidateStakingRequest,
// Decrypt alongside pure math helpers) — a handful of small, independent
// functions rather than one cohesive type.
package util

import (
	"fmt"

	"github.com/mr-tron/base58"
)

const (
	minMintLen = 32
	maxMintLen = 44
)

// ValidateMint checks that s decodes as base58 and falls within the
// 32-44 character range spec §1 describes for on-chain addresses
// (spec §7 "Invalid command input (bad wallet format, over cap)").
func ValidateMint(s string) error {
	if len(s) < minMintLen || len(s) > maxMintLen {
		return fmt.Errorf("invalid mint length %d: want %d..%d", len(s), minMintLen, maxMintLen)
	}
	if _, err := base58.Decode(s); err != nil {
		return fmt.Errorf("invalid mint %q: not valid base58: %w", s, err)
	}
	return nil
}

// ValidateWallet is an alias of ValidateMint: wallet addresses and mint
// addresses share the same base58, 32-44 character encoding.
func ValidateWallet(s string) error {
	return ValidateMint(s)
}

// DecodeMint returns the raw bytes behind a base58-encoded mint, for
// callers that need byte-equality rather than string-equality (spec
// §3 "Mint ... Equality is byte-equality after decoding").
func DecodeMint(s string) ([]byte, error) {
	return base58.Decode(s)
}

// EncodeMint is the inverse of DecodeMint.
func EncodeMint(b []byte) string {
	return base58.Encode(b)
}
