package content

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/onexay/contentvs/internal/types"
)

func TestSlugify(t *testing.T) {
	cases := map[string]string{
		"Foo":                          "foo",
		"Élément de réponse":           "element-de-reponse",
		"  Hello,   World!  ":          "hello-world",
		"€€":                           "eureur",
		"£€":                           "pseur",
		"Cœur & âme":                   "coeur-ame",
		"snake_case_title":             "snake-case-title",
		"-":                            "",
		"_":                            "",
		"-_-":                          "",
		"$":                            "",
		"...":                          "",
		"{}":                           "",
		"Straße":                       "strasse",
		"ﬁnal":                         "final",
		"C'est l'été":                  "c-est-l-ete",
		"2019 : une année":             "2019-une-annee",
	}
	for title, want := range cases {
		assert.Equal(t, want, Slugify(title, 80), "title %q", title)
	}

	long := strings.Repeat("abc-", 40)
	got := Slugify(long, 80)
	assert.LessOrEqual(t, len(got), 80)
	assert.False(t, strings.HasSuffix(got, "-"))
}

func TestNormalizeTitle(t *testing.T) {
	opts := DefaultOptions()

	t.Run("empty title falls back to the default", func(t *testing.T) {
		title, slug, err := opts.normalizeTitle("   ")
		require.NoError(t, err)
		assert.Equal(t, opts.DefaultTitle, title)
		assert.Equal(t, "contenu-sans-titre", slug)
	})

	t.Run("symbol only titles are rejected", func(t *testing.T) {
		for _, title := range []string{"-", "_", "__", "-_-", "$", "@", "&", "{}", "..."} {
			_, _, err := opts.normalizeTitle(title)
			var verr *types.ValidationError
			assert.ErrorAs(t, err, &verr, "title %q", title)
		}
	})

	t.Run("transliterated symbols are accepted", func(t *testing.T) {
		for _, title := range []string{"€€", "£€"} {
			_, slug, err := opts.normalizeTitle(title)
			require.NoError(t, err, "title %q", title)
			assert.NotEmpty(t, slug)
		}
	})
}

func TestUniqueSlug(t *testing.T) {
	taken := map[string]bool{"foo": true, "foo-1": true}
	assert.Equal(t, "foo-2", UniqueSlug("foo", func(s string) bool { return taken[s] }, 80))
	assert.Equal(t, "bar", UniqueSlug("bar", func(s string) bool { return taken[s] }, 80))

	base := strings.Repeat("a", 10)
	got := UniqueSlug(base, func(s string) bool { return s == base }, 10)
	assert.Equal(t, "aaaaaaaa-1", got)
}
