package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// Input-size tiers for key sampling, in runes. Short inputs are keyed on
// their full content; larger inputs are sampled so key generation never
// hashes megabytes of text per call.
const (
	shortInputRunes  = 512
	mediumInputRunes = 8192
	sampleRunes      = 256
)

// Fingerprint derives a collision-resistant cache key from the normalized
// input text, the target identifier, and the category hint.
//
// Sampling strategy by normalized length:
//   - short: full content
//   - medium: head + tail samples plus length
//   - long: four quartile samples plus length and a rune-diversity
//     signature over the sampled material
func Fingerprint(text, target, category string) string {
	norm := normalize(text)
	runes := []rune(norm)

	var sb strings.Builder
	fmt.Fprintf(&sb, "t:%s|c:%s|n:%d|", target, category, len(runes))

	switch {
	case len(runes) <= shortInputRunes:
		sb.WriteString(norm)
	case len(runes) <= mediumInputRunes:
		sb.WriteString(string(runes[:sampleRunes]))
		sb.WriteString("~")
		sb.WriteString(string(runes[len(runes)-sampleRunes:]))
	default:
		samples := quartileSamples(runes)
		for _, s := range samples {
			sb.WriteString(s)
			sb.WriteString("~")
		}
		fmt.Fprintf(&sb, "d:%d", diversity(samples))
	}

	sum := sha256.Sum256([]byte(sb.String()))
	return hex.EncodeToString(sum[:])
}

// normalize trims and collapses whitespace runs so formatting-only
// differences map to the same key.
func normalize(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

// quartileSamples extracts a fixed-size block at each quartile offset.
func quartileSamples(runes []rune) []string {
	n := len(runes)
	offsets := []int{0, n / 4, n / 2, 3 * n / 4}
	samples := make([]string, 0, len(offsets))
	for _, off := range offsets {
		end := off + sampleRunes
		if end > n {
			end = n
		}
		samples = append(samples, string(runes[off:end]))
	}
	return samples
}

// diversity counts distinct runes across the samples, a cheap signature
// that separates long inputs whose sampled blocks happen to collide.
func diversity(samples []string) int {
	seen := make(map[rune]struct{})
	for _, s := range samples {
		for _, r := range s {
			seen[r] = struct{}{}
		}
	}
	return len(seen)
}
