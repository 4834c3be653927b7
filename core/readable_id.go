package core

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
	"unicode"
)

const (
	readableIDAlphabet     = "abcdefghijklmnopqrstuvwxyz0123456789"
	readableIDSuffixLength = 6
	readableIDMaxSlug      = 40
	readableIDMaxAttempts  = 5
)

// Slugify lowercases name and collapses every run of non alphanumerics into
// a single dash.
func Slugify(name string) string {
	var b strings.Builder
	lastDash := true
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		switch {
		case r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)):
			b.WriteRune(r)
			lastDash = false
		case !lastDash:
			b.WriteByte('-')
			lastDash = true
		}
	}
	slug := strings.Trim(b.String(), "-")
	if len(slug) > readableIDMaxSlug {
		slug = strings.Trim(slug[:readableIDMaxSlug], "-")
	}
	return slug
}

// NewReadableID derives a collection readable id as slug plus random suffix.
func NewReadableID(name string) (string, error) {
	slug := Slugify(name)
	if slug == "" {
		slug = "collection"
	}
	suffix, err := randomSuffix(readableIDSuffixLength)
	if err != nil {
		return "", err
	}
	return slug + "-" + suffix, nil
}

func randomSuffix(length int) (string, error) {
	out := make([]byte, length)
	max := big.NewInt(int64(len(readableIDAlphabet)))
	for i := range out {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("core: generate readable id: %w", err)
		}
		out[i] = readableIDAlphabet[n.Int64()]
	}
	return string(out), nil
}

func generateUniqueReadableID(ctx context.Context, collections CollectionStore, name string) (string, error) {
	for attempt := 0; attempt < readableIDMaxAttempts; attempt++ {
		candidate, err := NewReadableID(name)
		if err != nil {
			return "", err
		}
		exists, err := collections.ReadableIDExists(ctx, candidate)
		if err != nil {
			return "", err
		}
		if !exists {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("%w: could not allocate for %q", ErrReadableIDTaken, name)
}
