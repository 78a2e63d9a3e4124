package opportunities

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

const fallbackSlug = "category"

var (
	nonAlphanumeric = regexp.MustCompile(`[^a-z0-9]+`)
	multipleHyphens = regexp.MustCompile(`-+`)
)

// Slugify derives a URL-safe form of a category name.
// "Arts & Culture" -> "arts-culture". Names without any ASCII letter or digit
// produce an empty string.
func Slugify(name string) string {
	value := norm.NFKD.String(name)
	value = strings.Map(func(r rune) rune {
		if r > unicode.MaxASCII {
			return -1
		}
		return r
	}, value)
	value = strings.ToLower(value)
	value = nonAlphanumeric.ReplaceAllString(value, "-")
	value = multipleHyphens.ReplaceAllString(value, "-")
	return strings.Trim(value, "-")
}

// SlugSet hands out category slugs that are distinct within the set.
type SlugSet map[string]struct{}

// Reserve marks slug as taken. It reports false when slug is empty or already held.
func (s SlugSet) Reserve(slug string) bool {
	if slug == "" {
		return false
	}
	if _, taken := s[slug]; taken {
		return false
	}
	s[slug] = struct{}{}
	return true
}

// Claim reserves and returns the slug for name, suffixing "-2", "-3", ... when
// another category already holds it.
func (s SlugSet) Claim(name string) string {
	base := Slugify(name)
	if base == "" {
		base = fallbackSlug
	}
	candidate := base
	for suffix := 2; !s.Reserve(candidate); suffix++ {
		candidate = base + "-" + strconv.Itoa(suffix)
	}
	return candidate
}
