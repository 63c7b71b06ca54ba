package content

import (
	"fmt"
	"strings"

	"github.com/onexay/contentvs/internal/types"
)

// Type is the editorial kind of a publishable content.
type Type string

const (
	TypeTutorial Type = "TUTORIAL"
	TypeArticle  Type = "ARTICLE"
	TypeOpinion  Type = "OPINION"
)

// ParseType validates a content type tag, case insensitive.
func ParseType(raw string) (Type, error) {
	switch t := Type(strings.ToUpper(strings.TrimSpace(raw))); t {
	case TypeTutorial, TypeArticle, TypeOpinion:
		return t, nil
	default:
		return "", &types.ValidationError{Message: fmt.Sprintf("unknown content type %q", raw)}
	}
}

// maxContainerDepth is the deepest level a container may sit at. The top is at
// depth 0, so a tutorial holds parts (1) holding chapters (2).
func (t Type) maxContainerDepth() int {
	if t == TypeTutorial {
		return 2
	}
	return 0
}

// NodeID indexes a node inside its VersionedContent arena.
type NodeID int

// RootID is the top container of every tree.
const RootID NodeID = 0

// Kind distinguishes containers from extracts.
type Kind int

const (
	KindContainer Kind = iota
	KindExtract
)

func (k Kind) String() string {
	if k == KindExtract {
		return "extract"
	}
	return "container"
}

// Options tunes title and slug handling.
type Options struct {
	DefaultTitle  string
	MaxSlugLength int
}

// DefaultOptions mirrors the platform defaults.
func DefaultOptions() Options {
	return Options{DefaultTitle: "Contenu sans titre", MaxSlugLength: 80}
}

func (o Options) withDefaults() Options {
	def := DefaultOptions()
	if strings.TrimSpace(o.DefaultTitle) == "" {
		o.DefaultTitle = def.DefaultTitle
	}
	if o.MaxSlugLength <= 0 {
		o.MaxSlugLength = def.MaxSlugLength
	}
	return o
}

// Meta holds the descriptive fields of the top container.
type Meta struct {
	Description string
	Licence     string
	Type        Type
}
