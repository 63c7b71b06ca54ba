// Package archive converts content trees to and from zip archives.
package archive

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"path"
	"regexp"
	"strings"

	"github.com/onexay/contentvs/internal/content"
	"github.com/onexay/contentvs/internal/types"
)

// MaxEntrySize bounds a single decompressed entry.
const MaxEntrySize = 16 << 20

const imagesPrefix = "images/"

// archiveImageRef matches the placeholder URLs that reference entries of the
// companion image archive from body text.
var archiveImageRef = regexp.MustCompile(`archive:([A-Za-z0-9._\-/]+)`)

// Export writes the manifest, every body file and the stored images.
func Export(vc *content.VersionedContent) ([]byte, error) {
	snap, err := vc.Snapshot()
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, p := range snap.Paths() {
		if strings.HasPrefix(p, imagesPrefix) {
			continue
		}
		if err := writeEntry(zw, p, []byte(snap[p])); err != nil {
			return nil, err
		}
	}
	for _, name := range vc.Assets() {
		data, _ := vc.Asset(name)
		if err := writeEntry(zw, imagesPrefix+name, data); err != nil {
			return nil, err
		}
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("close archive: %w", err)
	}
	return buf.Bytes(), nil
}

func writeEntry(zw *zip.Writer, name string, data []byte) error {
	w, err := zw.Create(name)
	if err != nil {
		return fmt.Errorf("create %s: %w", name, err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	return nil
}

// Import parses a content archive and an optional image archive. Everything is
// validated before a tree is returned, so a failure leaves nothing behind.
func Import(data, images []byte, opts content.Options) (*content.VersionedContent, error) {
	files, err := readZip(data)
	if err != nil {
		return nil, err
	}
	raw, ok := files[content.ManifestFile]
	if !ok {
		return nil, &types.ValidationError{Message: "archive has no " + content.ManifestFile}
	}
	m, err := content.ParseManifest(raw)
	if err != nil {
		return nil, err
	}

	assets := make(map[string][]byte)
	for name, payload := range files {
		if rest, ok := strings.CutPrefix(name, imagesPrefix); ok && rest != "" {
			assets[path.Base(rest)] = payload
		}
	}
	if len(images) > 0 {
		extra, err := readZip(images)
		if err != nil {
			return nil, err
		}
		for name, payload := range extra {
			assets[path.Base(name)] = payload
		}
	}

	vc, err := content.FromManifest(m, func(p string) (string, bool) {
		body, ok := files[p]
		if !ok {
			return "", false
		}
		return rewriteImageRefs(string(body)), true
	}, opts)
	if err != nil {
		return nil, err
	}

	for name, payload := range assets {
		if err := vc.SetAsset(name, payload); err != nil {
			return nil, err
		}
	}
	return vc, nil
}

// rewriteImageRefs points archive:<name> placeholders at the committed images/ folder.
func rewriteImageRefs(body string) string {
	return archiveImageRef.ReplaceAllStringFunc(body, func(ref string) string {
		name := strings.TrimPrefix(ref, "archive:")
		return imagesPrefix + path.Base(name)
	})
}

func readZip(data []byte) (map[string][]byte, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, &types.ValidationError{Message: "file is not a valid zip archive", Messages: []string{err.Error()}}
	}
	files := make(map[string][]byte, len(zr.File))
	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		name := path.Clean(strings.ReplaceAll(f.Name, `\`, "/"))
		if path.IsAbs(name) || name == ".." || strings.HasPrefix(name, "../") {
			return nil, &types.ValidationError{Message: fmt.Sprintf("archive entry %q escapes the archive root", f.Name)}
		}
		if f.UncompressedSize64 > MaxEntrySize {
			return nil, &types.ValidationError{Message: fmt.Sprintf("archive entry %q is too large", f.Name)}
		}
		rc, err := f.Open()
		if err != nil {
			return nil, &types.ValidationError{Message: fmt.Sprintf("cannot read archive entry %q", f.Name)}
		}
		payload, err := io.ReadAll(io.LimitReader(rc, MaxEntrySize+1))
		rc.Close()
		if err != nil {
			return nil, &types.ValidationError{Message: fmt.Sprintf("cannot read archive entry %q", f.Name)}
		}
		if len(payload) > MaxEntrySize {
			return nil, &types.ValidationError{Message: fmt.Sprintf("archive entry %q is too large", f.Name)}
		}
		files[name] = payload
	}
	return files, nil
}
