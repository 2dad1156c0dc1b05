package coupon

import (
	"context"
	"math/rand"
	"strings"

	"github.com/go-faster/errors"
)

// Alphabet is a character set used for generated coupon codes.
type Alphabet string

const (
	// AlphabetFull is the full upper-case alphanumeric set.
	AlphabetFull Alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	// AlphabetDigits is digits only.
	AlphabetDigits Alphabet = "0123456789"
	// AlphabetReadable drops confusable characters (0/O, 1/I/L).
	AlphabetReadable Alphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
)

const (
	minCodeLength  = 4
	maxCodeLength  = 20
	genMaxAttempts = 5
)

// ErrCodeSpaceExhausted is returned when every generation attempt
// collided with an existing code.
var ErrCodeSpaceExhausted = errors.New("could not generate a unique coupon code")

// ExistsFunc reports whether a candidate code is already taken.
type ExistsFunc func(ctx context.Context, code string) (bool, error)

// GenerateSpec describes the shape of codes to generate. Length counts
// the random part only and excludes prefix and suffix.
type GenerateSpec struct {
	Length   int
	Prefix   string
	Suffix   string
	Alphabet Alphabet
}

func (s *GenerateSpec) normalize() error {
	if s.Length == 0 {
		s.Length = 8
	}
	if s.Length < minCodeLength || s.Length > maxCodeLength {
		return errors.Errorf("code length %d out of range [%d, %d]", s.Length, minCodeLength, maxCodeLength)
	}
	if s.Alphabet == "" {
		s.Alphabet = AlphabetFull
	}
	s.Prefix = strings.ToUpper(s.Prefix)
	s.Suffix = strings.ToUpper(s.Suffix)
	return nil
}

// Generator produces coupon codes that are unique against a persisted
// code set. Generation is non-cryptographic; uniqueness comes from the
// exists check, not from the randomness.
type Generator struct {
	exists ExistsFunc
	rand   *rand.Rand
}

// NewGenerator creates a Generator that checks candidates with exists.
func NewGenerator(exists ExistsFunc, src rand.Source) *Generator {
	return &Generator{exists: exists, rand: rand.New(src)}
}

// Generate returns a fresh unique code, retrying on collision a bounded
// number of times before giving up with ErrCodeSpaceExhausted.
func (g *Generator) Generate(ctx context.Context, spec GenerateSpec) (string, error) {
	if err := spec.normalize(); err != nil {
		return "", err
	}
	for attempt := 0; attempt < genMaxAttempts; attempt++ {
		code := spec.Prefix + g.random(spec.Length, spec.Alphabet) + spec.Suffix
		taken, err := g.exists(ctx, code)
		if err != nil {
			return "", errors.Wrap(err, "check code uniqueness")
		}
		if !taken {
			return code, nil
		}
	}
	return "", ErrCodeSpaceExhausted
}

// GenerateBatch returns count distinct fresh codes. Candidates are also
// deduplicated within the batch itself.
func (g *Generator) GenerateBatch(ctx context.Context, spec GenerateSpec, count int) ([]string, error) {
	if err := spec.normalize(); err != nil {
		return nil, err
	}
	seen := make(map[string]struct{}, count)
	out := make([]string, 0, count)
	for len(out) < count {
		var code string
		found := false
		for attempt := 0; attempt < genMaxAttempts; attempt++ {
			code = spec.Prefix + g.random(spec.Length, spec.Alphabet) + spec.Suffix
			if _, dup := seen[code]; dup {
				continue
			}
			taken, err := g.exists(ctx, code)
			if err != nil {
				return nil, errors.Wrap(err, "check code uniqueness")
			}
			if !taken {
				found = true
				break
			}
		}
		if !found {
			return nil, ErrCodeSpaceExhausted
		}
		seen[code] = struct{}{}
		out = append(out, code)
	}
	return out, nil
}

func (g *Generator) random(length int, alphabet Alphabet) string {
	var b strings.Builder
	b.Grow(length)
	for i := 0; i < length; i++ {
		b.WriteByte(alphabet[g.rand.Intn(len(alphabet))])
	}
	return b.String()
}
