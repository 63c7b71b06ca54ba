package content

import (
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/onexay/contentvs/internal/types"
)

// Letters and symbols NFKD leaves intact but that still carry a latin reading.
var transliterations = map[rune]string{
	'€': "eur",
	'£': "ps",
	'œ': "oe",
	'Œ': "oe",
	'æ': "ae",
	'Æ': "ae",
	'ß': "ss",
	'ø': "o",
	'Ø': "o",
	'đ': "d",
	'Đ': "d",
	'ł': "l",
	'Ł': "l",
	'þ': "th",
	'Þ': "th",
}

// reservedSlugs cannot name a child because the file layout already uses them.
var reservedSlugs = map[string]struct{}{
	"introduction": {},
	"conclusion":   {},
}

// reservedTopSlugs are additionally taken directly under the top container.
// index names the landing page of a publication.
var reservedTopSlugs = map[string]struct{}{
	"manifest": {},
	"images":   {},
	"index":    {},
}

// Slugify reduces a title to lowercase ASCII words joined by dashes. The result
// may be empty when the title carries no letter or digit.
func Slugify(title string, maxLength int) string {
	stripped, _, err := transform.String(transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC), title)
	if err != nil {
		stripped = title
	}

	var b strings.Builder
	pendingDash := false
	for _, r := range stripped {
		if repl, ok := transliterations[r]; ok {
			if pendingDash {
				b.WriteByte('-')
				pendingDash = false
			}
			b.WriteString(repl)
			continue
		}
		r = unicode.ToLower(r)
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			if pendingDash {
				b.WriteByte('-')
				pendingDash = false
			}
			b.WriteRune(r)
			continue
		}
		pendingDash = b.Len() > 0
	}

	slug := b.String()
	if maxLength > 0 && len(slug) > maxLength {
		slug = strings.TrimRight(slug[:maxLength], "-")
	}
	return slug
}

// normalizeTitle applies the default title to blank input and rejects titles
// that slugify to nothing.
func (o Options) normalizeTitle(raw string) (string, string, error) {
	title := strings.TrimSpace(raw)
	if title == "" {
		title = o.DefaultTitle
	}
	slug := Slugify(title, o.MaxSlugLength)
	if slug == "" {
		return "", "", &types.ValidationError{Message: "title " + strconv.Quote(title) + " cannot be turned into a slug"}
	}
	return title, slug, nil
}

// UniqueSlug appends the first free numeric suffix to base.
func UniqueSlug(base string, taken func(string) bool, maxLength int) string {
	if !taken(base) {
		return base
	}
	for i := 1; ; i++ {
		suffix := "-" + strconv.Itoa(i)
		candidate := base
		if maxLength > 0 && len(candidate)+len(suffix) > maxLength {
			candidate = strings.TrimRight(candidate[:maxLength-len(suffix)], "-")
		}
		candidate += suffix
		if !taken(candidate) {
			return candidate
		}
	}
}
