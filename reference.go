package mappack

import (
	"fmt"
	"strings"
)

// ExtractDifficultyID returns the beatmap difficulty identifier referenced by
// a beatmap URL.
//
// Two forms are accepted:
//   - path form, "https://osu.ppy.sh/b/{id}", where the identifier ends at the
//     next "/", "?" or "#";
//   - fragment form, "https://osu.ppy.sh/beatmapsets/{set}#{mode}/{id}", where
//     the identifier is the second "/"-separated part of the fragment.
//
// Anything else fails with ErrMalformedReference.
func ExtractDifficultyID(rawURL string) (string, error) {
	if _, rest, ok := strings.Cut(rawURL, "/b/"); ok {
		id := rest
		if i := strings.IndexAny(rest, "/?#"); i >= 0 {
			id = rest[:i]
		}
		if id == "" {
			return "", fmt.Errorf("%w: %q", ErrMalformedReference, rawURL)
		}
		return id, nil
	}

	_, fragment, ok := strings.Cut(rawURL, "#")
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrMalformedReference, rawURL)
	}
	parts := strings.Split(fragment, "/")
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return "", fmt.Errorf("%w: %q", ErrMalformedReference, rawURL)
	}
	return parts[1], nil
}
