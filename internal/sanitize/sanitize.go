// Package sanitize normalizes identifiers and validates caller-supplied
// document references.
package sanitize

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"
)

const (
	// MaxIdentifierLength is the longest collection name Qdrant and chromem
	// both accept.
	MaxIdentifierLength = 64
	// HashSuffixLength is len("_") plus eight hex digits.
	HashSuffixLength  = 9
	DefaultIdentifier = "default"
)

var invalidRun = regexp.MustCompile(`[^a-z0-9]+`)

// Identifier maps s onto ^[a-z0-9_]{1,64}$. Runs of other characters
// (underscores included) become one underscore; over-long results keep a
// hash of the whole so distinct inputs stay distinct.
//
//	"FilingQA Chunks" -> "filingqa_chunks"
//	"10-K/2024"       -> "10_k_2024"
//	"!!!"             -> "default"
func Identifier(s string) string {
	id := strings.Trim(invalidRun.ReplaceAllString(strings.ToLower(s), "_"), "_")
	switch {
	case id == "":
		return DefaultIdentifier
	case len(id) > MaxIdentifierLength:
		return truncateWithHash(id)
	default:
		return id
	}
}

func truncateWithHash(s string) string {
	sum := sha256.Sum256([]byte(s))
	head := strings.TrimRight(s[:MaxIdentifierLength-HashSuffixLength], "_")
	return head + "_" + hex.EncodeToString(sum[:4])
}

// CollectionName builds a vector store collection name from a configured
// name and an optional suffix.
//
//	CollectionName("FilingQA-Chunks", "") -> "filingqa_chunks"
//	CollectionName("filingqa", "chunks")  -> "filingqa_chunks"
func CollectionName(name, suffix string) string {
	out := Identifier(name)
	if suffix == "" {
		return out
	}
	out += "_" + Identifier(suffix)
	if len(out) > MaxIdentifierLength {
		out = truncateWithHash(out)
	}
	return out
}
