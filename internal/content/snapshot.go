package content

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"path"
	"strings"

	"github.com/onexay/contentvs/internal/types"
)

const (
	introductionFile = "introduction.md"
	conclusionFile   = "conclusion.md"
	imagesDir        = "images/"
)

// Manifest describes the tree with canonical file paths.
func (vc *VersionedContent) Manifest() *Manifest {
	return &Manifest{
		Version:      ManifestVersion,
		Description:  vc.Description,
		Type:         string(vc.Type),
		Licence:      vc.Licence,
		Images:       vc.Assets(),
		ManifestNode: vc.manifestNode(RootID, ""),
	}
}

func (vc *VersionedContent) manifestNode(id NodeID, dir string) ManifestNode {
	n := vc.nodes[id]
	m := ManifestNode{
		Object:        n.kind.String(),
		Title:         n.title,
		Slug:          n.slug,
		PreviousSlugs: n.previousSlugs,
	}
	if n.kind == KindExtract {
		m.Text = path.Join(dir, n.slug+".md")
		return m
	}
	if id != RootID {
		dir = path.Join(dir, n.slug)
	}
	if n.introduction != "" {
		m.Introduction = path.Join(dir, introductionFile)
	}
	if n.conclusion != "" {
		m.Conclusion = path.Join(dir, conclusionFile)
	}
	for _, child := range n.children {
		m.Children = append(m.Children, vc.manifestNode(child, dir))
	}
	return m
}

// Snapshot serializes the tree into the file set committed to the repository.
// Images are stored base64 encoded under images/.
func (vc *VersionedContent) Snapshot() (types.Snapshot, error) {
	m := vc.Manifest()
	data, err := json.MarshalIndent(m, "", "    ")
	if err != nil {
		return nil, fmt.Errorf("encode manifest: %w", err)
	}
	files := types.Snapshot{ManifestFile: string(data)}
	vc.collectFiles(m.ManifestNode, RootID, files)
	for name, payload := range vc.assets {
		files[imagesDir+name] = base64.StdEncoding.EncodeToString(payload)
	}
	return files, nil
}

func (vc *VersionedContent) collectFiles(m ManifestNode, id NodeID, files types.Snapshot) {
	n := vc.nodes[id]
	if n.kind == KindExtract {
		files[m.Text] = n.text
		return
	}
	if m.Introduction != "" {
		files[m.Introduction] = n.introduction
	}
	if m.Conclusion != "" {
		files[m.Conclusion] = n.conclusion
	}
	for i, child := range n.children {
		vc.collectFiles(m.Children[i], child, files)
	}
}

// Load rebuilds the tree stored in a committed snapshot. Slugs and their
// history are taken from the manifest.
func Load(files types.Snapshot, opts Options) (*VersionedContent, error) {
	raw, ok := files[ManifestFile]
	if !ok {
		return nil, &types.NotFoundError{Resource: "file", Key: ManifestFile}
	}
	m, err := ParseManifest([]byte(raw))
	if err != nil {
		return nil, err
	}
	vc, err := build(m, func(p string) (string, bool) {
		text, ok := files[p]
		return text, ok
	}, opts, false)
	if err != nil {
		return nil, err
	}
	for _, name := range m.Images {
		encoded, ok := files[imagesDir+name]
		if !ok {
			continue
		}
		payload, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			return nil, fmt.Errorf("decode image %s: %w", name, err)
		}
		if err := vc.SetAsset(name, payload); err != nil {
			return nil, err
		}
	}
	return vc, nil
}

// FromManifest builds a fresh tree from a foreign manifest, such as an
// imported archive. Slugs are regenerated from titles and every problem is
// reported at once; nothing is returned unless the whole manifest is valid.
func FromManifest(m *Manifest, read func(path string) (string, bool), opts Options) (*VersionedContent, error) {
	return build(m, read, opts, true)
}

type builder struct {
	vc         *VersionedContent
	read       func(string) (string, bool)
	regenerate bool
	problems   []string
}

func build(m *Manifest, read func(string) (string, bool), opts Options, regenerate bool) (*VersionedContent, error) {
	contentType, err := ParseType(m.Type)
	if err != nil {
		return nil, err
	}
	b := &builder{read: read, regenerate: regenerate}

	vc, err := New(ContainerFields{
		Title:        m.Title,
		Introduction: b.file(m.Introduction),
		Conclusion:   b.file(m.Conclusion),
	}, Meta{Description: m.Description, Licence: m.Licence, Type: contentType}, opts)
	if err != nil {
		b.problems = append(b.problems, err.Error())
		return nil, b.failure()
	}
	b.vc = vc
	if !regenerate {
		b.restoreSlug(RootID, m.Slug, m.PreviousSlugs)
	}
	b.children(RootID, m.Children, m.Title)

	if len(b.problems) > 0 {
		return nil, b.failure()
	}
	return vc, nil
}

func (b *builder) failure() error {
	return &types.ValidationError{Message: "invalid content manifest", Messages: b.problems}
}

func (b *builder) file(p string) string {
	if p == "" {
		return ""
	}
	clean, err := cleanRelativePath(p)
	if err != nil {
		b.problems = append(b.problems, err.Error())
		return ""
	}
	text, ok := b.read(clean)
	if !ok {
		b.problems = append(b.problems, fmt.Sprintf("missing file %s", clean))
		return ""
	}
	return text
}

func (b *builder) children(parent NodeID, nodes []ManifestNode, where string) {
	for _, child := range nodes {
		label := where + " > " + child.Title
		var (
			id  NodeID
			err error
		)
		switch child.Object {
		case "container":
			id, err = b.vc.AddContainer(parent, ContainerFields{
				Title:        child.Title,
				Introduction: b.file(child.Introduction),
				Conclusion:   b.file(child.Conclusion),
			})
		case "extract":
			if len(child.Children) > 0 {
				b.problems = append(b.problems, fmt.Sprintf("%s: an extract cannot have children", label))
				continue
			}
			id, err = b.vc.AddExtract(parent, ExtractFields{Title: child.Title, Text: b.file(child.Text)})
		default:
			b.problems = append(b.problems, fmt.Sprintf("%s: unknown object %q", label, child.Object))
			continue
		}
		if err != nil {
			b.problems = append(b.problems, fmt.Sprintf("%s: %v", label, err))
			continue
		}
		if !b.regenerate {
			b.restoreSlug(id, child.Slug, child.PreviousSlugs)
		}
		if child.Object == "container" {
			b.children(id, child.Children, label)
		}
	}
}

func (b *builder) restoreSlug(id NodeID, slug string, previous []string) {
	n := &b.vc.nodes[id]
	if slug != "" && slug != n.slug {
		if err := b.vc.SetSlug(id, slug); err != nil {
			b.problems = append(b.problems, err.Error())
			return
		}
	}
	n.previousSlugs = append([]string(nil), previous...)
}

func cleanRelativePath(p string) (string, error) {
	p = strings.ReplaceAll(p, `\`, "/")
	clean := path.Clean(strings.TrimPrefix(p, "./"))
	if path.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, "../") {
		return "", fmt.Errorf("file path %q escapes the content", p)
	}
	return clean, nil
}
