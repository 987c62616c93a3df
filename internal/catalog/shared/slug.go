// Package shared holds helpers used by every catalog document type.
package shared

import (
	"fmt"
	"regexp"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Suffix lengths for generated slugs.
const (
	SingleSuffixLen = 4
	BulkSuffixLen   = 5
)

var whitespaceRun = regexp.MustCompile(`[\s\p{Z}]+`)

// Slugify lowercases name and replaces each run of whitespace with a hyphen.
// Nothing else is stripped. A new caser is built per call since a
// cases.Caser must not be shared between goroutines.
func Slugify(name string) string {
	return whitespaceRun.ReplaceAllString(cases.Lower(language.Und).String(name), "-")
}

// NewSlug derives a slug from name with a random suffix of n characters.
func NewSlug(name string, n int) (string, error) {
	suffix, err := gonanoid.New(n)
	if err != nil {
		return "", fmt.Errorf("catalog: slug suffix: %w", err)
	}
	return Slugify(name) + "-" + suffix, nil
}

// SlugField is the stored shape of a slug.
type SlugField struct {
	Current string `json:"current"`
}

// Reference links one document to another by ID.
type Reference struct {
	Type string `json:"_type"`
	Ref  string `json:"_ref"`
}

// NewReference builds a reference to document id.
func NewReference(id string) *Reference {
	return &Reference{Type: "reference", Ref: id}
}
