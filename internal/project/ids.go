package project

import (
	"math/big"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// SuiteID derives the identifier of a suite from its call site. Two suites
// declared at the same place share an id; distinct call sites collide only
// with negligible probability, and the ids are deliberately not unique
// beyond that.
func SuiteID(callSite string) string {
	return hashID(callSite)
}

// hashID is the lower-cased base62 form of the 64-bit xxhash of s. Lower-casing
// folds some distinct hashes together; collisions are handled by the caller
// where they matter.
func hashID(s string) string {
	return strings.ToLower(new(big.Int).SetUint64(xxhash.Sum64String(s)).Text(62))
}
