package container

import "slices"

// knownOffsets are (iv, db) starts observed in real crypt14 backups. They
// are tried in this order before any brute-force search.
var knownOffsets = [...]Candidate{
	NewCandidate(67, 191),
	NewCandidate(67, 190),
	NewCandidate(66, 99),
	NewCandidate(67, 193),
	NewCandidate(67, 194),
	NewCandidate(67, 158),
}

// KnownOffsets returns a copy of the crypt14 offset table in search order.
func KnownOffsets() []Candidate {
	return slices.Clone(knownOffsets[:])
}

// IsKnownOffset reports whether c is already covered by the table.
func IsKnownOffset(c Candidate) bool {
	return slices.Contains(knownOffsets[:], c)
}
