// Package render converts a finished Markdown report into a styled PDF.
// The transform is deterministic: Markdown becomes HTML via goldmark
// with an embedded stylesheet, then a configurable external engine
// (weasyprint, wkhtmltopdf, ...) produces the PDF.
package render

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"html/template"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	goldmarkhtml "github.com/yuin/goldmark/renderer/html"
)

//go:embed report.css
var assetsFS embed.FS

// Renderer converts Markdown report text into a PDF at outputPath.
type Renderer interface {
	Render(ctx context.Context, markdown, outputPath string) error
}

// PDFRenderer shells out to an external HTML-to-PDF engine. The engine
// must accept `<engine> input.html output.pdf`.
type PDFRenderer struct {
	engine string
	md     goldmark.Markdown
}

// NewPDFRenderer creates a renderer using the given engine binary.
func NewPDFRenderer(engine string) *PDFRenderer {
	return &PDFRenderer{
		engine: engine,
		md: goldmark.New(
			goldmark.WithExtensions(extension.GFM),
			goldmark.WithRendererOptions(goldmarkhtml.WithUnsafe()),
		),
	}
}

var pageTemplate = template.Must(template.New("report").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<style>{{.CSS}}</style>
</head>
<body>
{{.Body}}
</body>
</html>
`))

// Render converts markdown to HTML and invokes the engine to write the
// PDF at outputPath. The intermediate HTML file is removed afterwards.
func (r *PDFRenderer) Render(ctx context.Context, markdown, outputPath string) error {
	if r.engine == "" {
		return fmt.Errorf("no PDF engine configured")
	}

	var body bytes.Buffer
	if err := r.md.Convert([]byte(markdown), &body); err != nil {
		return fmt.Errorf("convert markdown: %w", err)
	}

	css, err := assetsFS.ReadFile("report.css")
	if err != nil {
		return fmt.Errorf("read stylesheet: %w", err)
	}

	var page bytes.Buffer
	err = pageTemplate.Execute(&page, struct {
		CSS  template.CSS
		Body template.HTML
	}{
		CSS:  template.CSS(css),
		Body: template.HTML(body.String()),
	})
	if err != nil {
		return fmt.Errorf("build HTML page: %w", err)
	}

	htmlPath := strings.TrimSuffix(outputPath, filepath.Ext(outputPath)) + ".html"
	if err := os.WriteFile(htmlPath, page.Bytes(), 0644); err != nil {
		return fmt.Errorf("write intermediate HTML: %w", err)
	}
	defer os.Remove(htmlPath)

	cmd := exec.CommandContext(ctx, r.engine, htmlPath, outputPath)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%s: %w: %s", r.engine, err, strings.TrimSpace(stderr.String()))
	}
	return nil
}

// SlugFilename derives a filesystem-safe base name from a topic, with a
// timestamp suffix so repeated runs never collide.
func SlugFilename(topic string, now time.Time) string {
	s := strings.ToLower(strings.TrimSpace(topic))
	if len(s) > 40 {
		s = s[:40]
	}
	s = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			return r
		case r == ' ', r == '-', r == '_':
			return '_'
		}
		return -1
	}, s)
	s = strings.Trim(s, "_")
	if s == "" {
		s = "report"
	}
	return fmt.Sprintf("%s_%s", s, now.UTC().Format("20060102_150405"))
}
