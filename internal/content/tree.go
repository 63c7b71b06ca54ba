package content

import (
	"fmt"
	"slices"
	"strings"

	"github.com/onexay/contentvs/internal/types"
)

// VersionedContent is the tree of one content at one commit. Nodes live in an
// arena and reference each other by NodeID; the top container is RootID.
// A VersionedContent is a rebuildable view over a snapshot, never the source
// of truth.
type VersionedContent struct {
	Meta

	opts   Options
	nodes  []node
	assets map[string][]byte
}

type node struct {
	kind          Kind
	title         string
	slug          string
	previousSlugs []string
	introduction  string
	conclusion    string
	text          string
	parent        NodeID
	children      []NodeID
	removed       bool
}

// Node is a read-only view of one tree node.
type Node struct {
	ID            NodeID
	Kind          Kind
	Title         string
	Slug          string
	PreviousSlugs []string
	Parent        NodeID
	Children      []NodeID
	Depth         int
}

// ContainerFields carries the editable fields of a container.
type ContainerFields struct {
	Title        string
	Introduction string
	Conclusion   string
}

// ExtractFields carries the editable fields of an extract.
type ExtractFields struct {
	Title string
	Text  string
}

// New creates a tree holding only its top container.
func New(fields ContainerFields, meta Meta, opts Options) (*VersionedContent, error) {
	opts = opts.withDefaults()
	if meta.Type == "" {
		meta.Type = TypeTutorial
	}
	if _, err := ParseType(string(meta.Type)); err != nil {
		return nil, err
	}
	title, slug, err := opts.normalizeTitle(fields.Title)
	if err != nil {
		return nil, err
	}
	vc := &VersionedContent{
		Meta:   meta,
		opts:   opts,
		assets: make(map[string][]byte),
	}
	vc.nodes = append(vc.nodes, node{
		kind:         KindContainer,
		title:        title,
		slug:         slug,
		introduction: fields.Introduction,
		conclusion:   fields.Conclusion,
		parent:       -1,
	})
	return vc, nil
}

func (vc *VersionedContent) node(id NodeID) (*node, error) {
	if id < 0 || int(id) >= len(vc.nodes) || vc.nodes[id].removed {
		return nil, &types.NotFoundError{Resource: "node", Key: fmt.Sprint(id)}
	}
	return &vc.nodes[id], nil
}

// Node returns a view of the node.
func (vc *VersionedContent) Node(id NodeID) (Node, error) {
	n, err := vc.node(id)
	if err != nil {
		return Node{}, err
	}
	return Node{
		ID:            id,
		Kind:          n.kind,
		Title:         n.title,
		Slug:          n.slug,
		PreviousSlugs: slices.Clone(n.previousSlugs),
		Parent:        n.parent,
		Children:      slices.Clone(n.children),
		Depth:         vc.depth(id),
	}, nil
}

// Title returns the title of the top container.
func (vc *VersionedContent) Title() string {
	return vc.nodes[RootID].title
}

// Slug returns the slug of the top container.
func (vc *VersionedContent) Slug() string {
	return vc.nodes[RootID].slug
}

// Introduction reads a container introduction.
func (vc *VersionedContent) Introduction(id NodeID) (string, error) {
	n, err := vc.container(id)
	if err != nil {
		return "", err
	}
	return n.introduction, nil
}

// Conclusion reads a container conclusion.
func (vc *VersionedContent) Conclusion(id NodeID) (string, error) {
	n, err := vc.container(id)
	if err != nil {
		return "", err
	}
	return n.conclusion, nil
}

// Text reads an extract body.
func (vc *VersionedContent) Text(id NodeID) (string, error) {
	n, err := vc.node(id)
	if err != nil {
		return "", err
	}
	if n.kind != KindExtract {
		return "", &types.ValidationError{Message: "node is not an extract"}
	}
	return n.text, nil
}

func (vc *VersionedContent) container(id NodeID) (*node, error) {
	n, err := vc.node(id)
	if err != nil {
		return nil, err
	}
	if n.kind != KindContainer {
		return nil, &types.ValidationError{Message: "node is not a container"}
	}
	return n, nil
}

func (vc *VersionedContent) depth(id NodeID) int {
	d := 0
	for cur := vc.nodes[id].parent; cur >= 0; cur = vc.nodes[cur].parent {
		d++
	}
	return d
}

// Path returns the slug chain leading to the node, excluding the top container.
func (vc *VersionedContent) Path(id NodeID) ([]string, error) {
	if _, err := vc.node(id); err != nil {
		return nil, err
	}
	var chain []string
	for cur := id; cur != RootID; cur = vc.nodes[cur].parent {
		chain = append(chain, vc.nodes[cur].slug)
	}
	slices.Reverse(chain)
	return chain, nil
}

// Walk visits every live node depth first, parents before children.
func (vc *VersionedContent) Walk(fn func(Node) error) error {
	var visit func(NodeID) error
	visit = func(id NodeID) error {
		view, err := vc.Node(id)
		if err != nil {
			return err
		}
		if err := fn(view); err != nil {
			return err
		}
		for _, child := range vc.nodes[id].children {
			if err := visit(child); err != nil {
				return err
			}
		}
		return nil
	}
	return visit(RootID)
}

// Resolve finds the node reached by a slug chain below the top container. Each
// step matches a current slug first and falls back to slugs the node carried
// before being retitled.
func (vc *VersionedContent) Resolve(slugs ...string) (NodeID, error) {
	cur := RootID
	for i, slug := range slugs {
		next, ok := vc.childBySlug(cur, slug)
		if !ok {
			return 0, &types.NotFoundError{Resource: "node", Key: strings.Join(slugs[:i+1], "/")}
		}
		cur = next
	}
	return cur, nil
}

func (vc *VersionedContent) childBySlug(parent NodeID, slug string) (NodeID, bool) {
	children := vc.nodes[parent].children
	for _, child := range children {
		if vc.nodes[child].slug == slug {
			return child, true
		}
	}
	for _, child := range children {
		if slices.Contains(vc.nodes[child].previousSlugs, slug) {
			return child, true
		}
	}
	return 0, false
}

// AddContainer appends a container under parent.
func (vc *VersionedContent) AddContainer(parent NodeID, fields ContainerFields) (NodeID, error) {
	p, err := vc.container(parent)
	if err != nil {
		return 0, err
	}
	if vc.depth(parent)+1 > vc.Type.maxContainerDepth() {
		return 0, &types.ValidationError{Message: fmt.Sprintf("a %s cannot hold containers at this depth", strings.ToLower(string(vc.Type)))}
	}
	if vc.holds(p, KindExtract) {
		return 0, &types.ValidationError{Message: "a container holding extracts cannot hold containers"}
	}
	return vc.attach(parent, node{
		kind:         KindContainer,
		introduction: fields.Introduction,
		conclusion:   fields.Conclusion,
	}, fields.Title)
}

// AddExtract appends an extract under parent.
func (vc *VersionedContent) AddExtract(parent NodeID, fields ExtractFields) (NodeID, error) {
	p, err := vc.container(parent)
	if err != nil {
		return 0, err
	}
	if vc.holds(p, KindContainer) {
		return 0, &types.ValidationError{Message: "a container holding containers cannot hold extracts"}
	}
	return vc.attach(parent, node{kind: KindExtract, text: fields.Text}, fields.Title)
}

func (vc *VersionedContent) holds(p *node, kind Kind) bool {
	for _, child := range p.children {
		if vc.nodes[child].kind == kind {
			return true
		}
	}
	return false
}

func (vc *VersionedContent) attach(parent NodeID, n node, rawTitle string) (NodeID, error) {
	title, slug, err := vc.opts.normalizeTitle(rawTitle)
	if err != nil {
		return 0, err
	}
	n.title = title
	n.slug = UniqueSlug(slug, vc.slugTaken(parent, -1), vc.opts.MaxSlugLength)
	n.parent = parent
	id := NodeID(len(vc.nodes))
	vc.nodes = append(vc.nodes, n)
	vc.nodes[parent].children = append(vc.nodes[parent].children, id)
	return id, nil
}

// slugTaken reports whether a slug is unavailable under parent, ignoring self.
func (vc *VersionedContent) slugTaken(parent, self NodeID) func(string) bool {
	return func(slug string) bool {
		if _, ok := reservedSlugs[slug]; ok {
			return true
		}
		if parent == RootID {
			if _, ok := reservedTopSlugs[slug]; ok {
				return true
			}
		}
		for _, child := range vc.nodes[parent].children {
			if child != self && vc.nodes[child].slug == slug {
				return true
			}
		}
		return false
	}
}

// UpdateContainer replaces a container's title and bodies. RootID updates the
// top container.
func (vc *VersionedContent) UpdateContainer(id NodeID, fields ContainerFields) error {
	n, err := vc.container(id)
	if err != nil {
		return err
	}
	if err := vc.retitle(id, fields.Title); err != nil {
		return err
	}
	n.introduction = fields.Introduction
	n.conclusion = fields.Conclusion
	return nil
}

// UpdateExtract replaces an extract's title and text.
func (vc *VersionedContent) UpdateExtract(id NodeID, fields ExtractFields) error {
	n, err := vc.node(id)
	if err != nil {
		return err
	}
	if n.kind != KindExtract {
		return &types.ValidationError{Message: "node is not an extract"}
	}
	if err := vc.retitle(id, fields.Title); err != nil {
		return err
	}
	n.text = fields.Text
	return nil
}

func (vc *VersionedContent) retitle(id NodeID, rawTitle string) error {
	title, slug, err := vc.opts.normalizeTitle(rawTitle)
	if err != nil {
		return err
	}
	n := &vc.nodes[id]
	n.title = title
	if n.slug == slug || isSuffixed(n.slug, slug) {
		return nil
	}
	if id != RootID {
		slug = UniqueSlug(slug, vc.slugTaken(n.parent, id), vc.opts.MaxSlugLength)
	}
	vc.renameSlug(id, slug)
	return nil
}

// isSuffixed reports whether slug is base plus a numeric uniqueness suffix.
func isSuffixed(slug, base string) bool {
	rest, ok := strings.CutPrefix(slug, base+"-")
	if !ok || rest == "" {
		return false
	}
	for _, r := range rest {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func (vc *VersionedContent) renameSlug(id NodeID, slug string) {
	n := &vc.nodes[id]
	if n.slug == slug {
		return
	}
	if !slices.Contains(n.previousSlugs, n.slug) {
		n.previousSlugs = append(n.previousSlugs, n.slug)
	}
	n.previousSlugs = slices.DeleteFunc(n.previousSlugs, func(s string) bool { return s == slug })
	n.slug = slug
}

// SetSlug forces a node slug, keeping the old one resolvable. The top slug is
// assigned this way once the platform-wide unique slug is known.
func (vc *VersionedContent) SetSlug(id NodeID, slug string) error {
	if _, err := vc.node(id); err != nil {
		return err
	}
	if slug == "" || Slugify(slug, vc.opts.MaxSlugLength) != slug {
		return &types.ValidationError{Message: fmt.Sprintf("invalid slug %q", slug)}
	}
	if id != RootID && vc.slugTaken(vc.nodes[id].parent, id)(slug) {
		return &types.ConflictError{Resource: "slug", Key: slug}
	}
	vc.renameSlug(id, slug)
	return nil
}

// Delete removes a node and its descendants from the live tree. Siblings keep
// their relative order.
func (vc *VersionedContent) Delete(id NodeID) error {
	if id == RootID {
		return &types.ValidationError{Message: "the top container cannot be deleted"}
	}
	n, err := vc.node(id)
	if err != nil {
		return err
	}
	parent := &vc.nodes[n.parent]
	parent.children = slices.DeleteFunc(parent.children, func(c NodeID) bool { return c == id })

	var drop func(NodeID)
	drop = func(cur NodeID) {
		vc.nodes[cur].removed = true
		for _, child := range vc.nodes[cur].children {
			drop(child)
		}
	}
	drop(id)
	return nil
}

// MoveUp swaps a node with its previous sibling.
func (vc *VersionedContent) MoveUp(id NodeID) error {
	return vc.move(id, -1)
}

// MoveDown swaps a node with its next sibling.
func (vc *VersionedContent) MoveDown(id NodeID) error {
	return vc.move(id, 1)
}

func (vc *VersionedContent) move(id NodeID, delta int) error {
	if id == RootID {
		return &types.ValidationError{Message: "the top container cannot be moved"}
	}
	n, err := vc.node(id)
	if err != nil {
		return err
	}
	siblings := vc.nodes[n.parent].children
	pos := slices.Index(siblings, id)
	target := pos + delta
	if target < 0 || target >= len(siblings) {
		return &types.ValidationError{Message: "node cannot move further"}
	}
	siblings[pos], siblings[target] = siblings[target], siblings[pos]
	return nil
}

// SetAsset stores an image under images/<name>.
func (vc *VersionedContent) SetAsset(name string, data []byte) error {
	clean, err := cleanAssetName(name)
	if err != nil {
		return err
	}
	vc.assets[clean] = slices.Clone(data)
	return nil
}

// Assets returns the image names in lexical order.
func (vc *VersionedContent) Assets() []string {
	names := make([]string, 0, len(vc.assets))
	for name := range vc.assets {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Asset returns one image payload.
func (vc *VersionedContent) Asset(name string) ([]byte, bool) {
	data, ok := vc.assets[name]
	return data, ok
}

func cleanAssetName(name string) (string, error) {
	name = strings.TrimPrefix(strings.TrimSpace(name), "images/")
	if name == "" || strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return "", &types.ValidationError{Message: fmt.Sprintf("invalid image name %q", name)}
	}
	return name, nil
}
