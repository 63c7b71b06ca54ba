package content

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"github.com/onexay/contentvs/internal/types"
)

// ManifestFile is the name of the manifest inside snapshots and archives.
const ManifestFile = "manifest.json"

// ManifestVersion is the schema version written by Snapshot.
const ManifestVersion = "2.1"

var supportedManifestVersions = []string{"2", "2.0", "2.1"}

// Version accepts both numeric and string encodings of the schema version.
type Version string

func (v Version) MarshalJSON() ([]byte, error) {
	if _, err := json.Number(v).Float64(); err == nil {
		return []byte(v), nil
	}
	return json.Marshal(string(v))
}

func (v *Version) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.HasPrefix(data, []byte(`"`)) {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*v = Version(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("version must be a number or a string")
	}
	*v = Version(n.String())
	return nil
}

// ManifestNode describes one container or extract. File fields hold paths
// relative to the snapshot root.
type ManifestNode struct {
	Object        string         `json:"object"`
	Title         string         `json:"title"`
	Slug          string         `json:"slug"`
	Introduction  string         `json:"introduction,omitempty"`
	Conclusion    string         `json:"conclusion,omitempty"`
	Text          string         `json:"text,omitempty"`
	Children      []ManifestNode `json:"children,omitempty"`
	PreviousSlugs []string       `json:"previous_slugs,omitempty"`
}

// Manifest is the top container plus content-level metadata.
type Manifest struct {
	Version     Version  `json:"version"`
	Description string   `json:"description,omitempty"`
	Type        string   `json:"type"`
	Licence     string   `json:"licence,omitempty"`
	Images      []string `json:"images,omitempty"`
	ManifestNode
}

// ParseManifest decodes and checks the schema version and content type.
func ParseManifest(data []byte) (*Manifest, error) {
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, &types.ValidationError{Message: "manifest is not valid JSON", Messages: []string{err.Error()}}
	}
	if m.Version == "" {
		return nil, &types.ValidationError{Message: "manifest has no version"}
	}
	if !slices.Contains(supportedManifestVersions, strings.TrimSpace(string(m.Version))) {
		return nil, &types.ValidationError{Message: fmt.Sprintf("unsupported manifest version %s", m.Version)}
	}
	if m.Object != "" && m.Object != "container" {
		return nil, &types.ValidationError{Message: "manifest root must be a container"}
	}
	if m.Type == "" {
		m.Type = string(TypeTutorial)
	}
	if _, err := ParseType(m.Type); err != nil {
		return nil, err
	}
	return &m, nil
}
