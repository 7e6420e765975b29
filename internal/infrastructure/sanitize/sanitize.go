// Package sanitize renders stored entry markup through an HTML allowlist.
package sanitize

import (
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// embedAttrs are the attributes kept on extra allowed elements.
var embedAttrs = []string{"src", "width", "height", "type", "data", "title", "allowfullscreen", "frameborder"}

// Renderer sanitizes markup with the UGC policy plus configured extra elements.
// It implements usecase.Renderer.
type Renderer struct {
	policy   *bluemonday.Policy
	elements []string
}

// NewRenderer builds a Renderer that additionally allows elements.
func NewRenderer(elements []string) *Renderer {
	p := bluemonday.UGCPolicy()
	p.RequireNoFollowOnLinks(true)
	p.AddTargetBlankToFullyQualifiedLinks(true)

	extra := make([]string, 0, len(elements))
	for _, e := range elements {
		e = strings.ToLower(strings.TrimSpace(e))
		if e != "" {
			extra = append(extra, e)
		}
	}
	if len(extra) > 0 {
		p.AllowElements(extra...)
		p.AllowAttrs(embedAttrs...).OnElements(extra...)
	}
	return &Renderer{policy: p, elements: extra}
}

// Render returns html sanitized and trimmed.
func (r *Renderer) Render(html string) string {
	return strings.TrimSpace(r.policy.Sanitize(html))
}

// Elements returns the extra elements this renderer allows.
func (r *Renderer) Elements() []string {
	return append([]string(nil), r.elements...)
}
