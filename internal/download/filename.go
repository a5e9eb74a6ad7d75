package download

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const fallbackFilename = "storybook.pdf"

// DeliveryFilename derives the attachment name for a purchased book from its
// title: title-cased, stripped of path-hostile characters.
func DeliveryFilename(title string) string {
	title = strings.TrimSpace(title)
	if title == "" {
		return fallbackFilename
	}
	title = cases.Title(language.English).String(strings.ToLower(title))
	var b strings.Builder
	for _, r := range title {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ', r == '-', r == '_':
			b.WriteRune(r)
		}
	}
	name := strings.TrimSpace(b.String())
	if name == "" {
		return fallbackFilename
	}
	return name + ".pdf"
}
