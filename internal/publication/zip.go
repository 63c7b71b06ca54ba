package publication

import (
	"context"
	"os"
	"path/filepath"

	"github.com/onexay/contentvs/internal/archive"
)

// FormatZip is the re-importable source archive.
const FormatZip = "zip"

// ZipRenderer writes the same archive the export operation produces.
type ZipRenderer struct{}

// Render implements Renderer.
func (ZipRenderer) Render(ctx context.Context, in RenderInput, outDir string) (Artifact, error) {
	data, err := archive.Export(in.Content)
	if err != nil {
		return Artifact{}, err
	}
	if err := ctx.Err(); err != nil {
		return Artifact{}, err
	}
	name := in.Slug + ".zip"
	if err := os.WriteFile(filepath.Join(outDir, name), data, 0o644); err != nil {
		return Artifact{}, err
	}
	return Artifact{Format: FormatZip, Path: name, Size: int64(len(data))}, nil
}
