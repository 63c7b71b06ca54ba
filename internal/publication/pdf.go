package publication

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// FormatPDF is the printable extra.
const FormatPDF = "pdf"

// LatexPdfRenderer flattens the tree to markdown and hands it to an external
// converter. Command is an argv template where {in} and {out} are replaced by
// the markdown source and the PDF target.
type LatexPdfRenderer struct {
	Command []string
}

// Render implements Renderer.
func (r LatexPdfRenderer) Render(ctx context.Context, in RenderInput, outDir string) (Artifact, error) {
	if len(r.Command) == 0 {
		return Artifact{}, errors.New("pdf renderer has no command")
	}
	doc, err := FlattenMarkdown(in.Content)
	if err != nil {
		return Artifact{}, err
	}

	work, err := os.MkdirTemp("", "contentvs-pdf-*")
	if err != nil {
		return Artifact{}, err
	}
	defer os.RemoveAll(work)
	if _, err := copyAssets(in.Content, filepath.Join(work, "images")); err != nil {
		return Artifact{}, err
	}
	source := filepath.Join(work, in.Slug+".md")
	if err := os.WriteFile(source, []byte(doc), 0o644); err != nil {
		return Artifact{}, err
	}

	name := in.Slug + ".pdf"
	target, err := filepath.Abs(filepath.Join(outDir, name))
	if err != nil {
		return Artifact{}, err
	}
	argv := make([]string, len(r.Command))
	for i, arg := range r.Command {
		arg = strings.ReplaceAll(arg, "{in}", source)
		argv[i] = strings.ReplaceAll(arg, "{out}", target)
	}

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = work
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return Artifact{}, fmt.Errorf("pdf command failed: %w: %s", err, strings.TrimSpace(stderr.String()))
	}

	info, err := os.Stat(target)
	if err != nil {
		return Artifact{}, fmt.Errorf("pdf command produced no output: %w", err)
	}
	return Artifact{Format: FormatPDF, Path: name, Size: info.Size()}, nil
}
