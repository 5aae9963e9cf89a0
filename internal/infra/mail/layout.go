package mail

import (
	"bytes"
	"embed"
	"fmt"
	"html"
	"html/template"
	"regexp"
	"strings"
)

//go:embed templates/campaign.html
var templateFS embed.FS

const (
	UnsubscribePlaceholder   = "{{unsubscribe_url}}"
	TrackingPixelPlaceholder = "{{tracking_pixel}}"
)

// Renderer wraps a personalized body in the campaign layout. The layout
// uses [[ ]] delimiters so the {{...}} tracking placeholders survive
// rendering verbatim.
type Renderer struct {
	tmpl *template.Template
}

func NewRenderer() (*Renderer, error) {
	t, err := template.New("campaign.html").Delims("[[", "]]").ParseFS(templateFS, "templates/campaign.html")
	if err != nil {
		return nil, fmt.Errorf("parsing campaign layout: %w", err)
	}
	return &Renderer{tmpl: t}, nil
}

func (r *Renderer) Render(data LayoutData) (string, error) {
	var buf bytes.Buffer
	if err := r.tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("rendering campaign layout: %w", err)
	}
	return buf.String(), nil
}

// PixelTag returns the invisible 1x1 image used for open tracking.
func PixelTag(pixelURL string) string {
	return fmt.Sprintf(`<img src="%s" width="1" height="1" style="display:none;" alt="" />`, html.EscapeString(pixelURL))
}

// InjectTracking substitutes the reserved placeholders. A document without
// a pixel placeholder gets the pixel appended before </body>.
func InjectTracking(doc, pixelURL, unsubscribeURL string) string {
	pixel := PixelTag(pixelURL)
	hadPixel := strings.Contains(doc, TrackingPixelPlaceholder)

	doc = strings.ReplaceAll(doc, UnsubscribePlaceholder, html.EscapeString(unsubscribeURL))
	doc = strings.ReplaceAll(doc, TrackingPixelPlaceholder, pixel)
	if hadPixel {
		return doc
	}
	if i := strings.LastIndex(strings.ToLower(doc), "</body>"); i >= 0 {
		return doc[:i] + pixel + doc[i:]
	}
	return doc + pixel
}

var hrefPattern = regexp.MustCompile(`(?i)href="(https?://[^"]+)"`)

// RewriteLinks passes every absolute http(s) href through wrap. Links for
// which skip returns true are left untouched.
func RewriteLinks(doc string, wrap func(target string) string, skip func(target string) bool) string {
	return hrefPattern.ReplaceAllStringFunc(doc, func(m string) string {
		sub := hrefPattern.FindStringSubmatch(m)
		target := html.UnescapeString(sub[1])
		if skip != nil && skip(target) {
			return m
		}
		return `href="` + html.EscapeString(wrap(target)) + `"`
	})
}

var (
	blockPattern = regexp.MustCompile(`(?is)<(style|script|head)[^>]*>.*?</(style|script|head)>`)
	breakPattern = regexp.MustCompile(`(?i)<(br|/p|/div|/tr|/h[1-6]|/li)[^>]*>`)
	tagPattern   = regexp.MustCompile(`<[^>]+>`)
	spacePattern = regexp.MustCompile(`[ \t\r\f\v]+`)
	linesPattern = regexp.MustCompile(`\n\s*\n+`)
)

// StripHTML produces the plain-text alternative of an HTML body.
func StripHTML(doc string) string {
	text := blockPattern.ReplaceAllString(doc, "")
	text = breakPattern.ReplaceAllString(text, "\n")
	text = tagPattern.ReplaceAllString(text, " ")
	text = html.UnescapeString(text)
	text = spacePattern.ReplaceAllString(text, " ")

	lines := strings.Split(text, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSpace(l)
	}
	text = strings.Join(lines, "\n")
	text = linesPattern.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}
