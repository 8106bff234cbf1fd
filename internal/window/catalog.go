package window

import (
	"strings"
	"unicode"

	"github.com/bryanchriswhite/wincap/internal/logger"
)

// Catalog answers "which windows are visible right now" on top of a
// Backend. It holds no state between calls.
type Catalog struct {
	backend Backend
}

// NewCatalog creates a catalog over backend
func NewCatalog(backend Backend) *Catalog {
	return &Catalog{backend: backend}
}

// Backend returns the underlying enumeration backend
func (c *Catalog) Backend() Backend {
	return c.backend
}

// Enumerate returns the visible top-level windows. Titles are passed through
// untouched. A backend failure is logged and reported as an empty result.
func (c *Catalog) Enumerate() []Descriptor {
	log := logger.WithComponent("window-catalog")

	if c.backend == nil {
		return []Descriptor{}
	}

	windows, err := c.backend.ListWindows()
	if err != nil {
		log.Warn().Err(err).Str("backend", c.backend.Name()).Msg("Window enumeration failed")
		return []Descriptor{}
	}
	if windows == nil {
		windows = []Descriptor{}
	}

	log.Debug().Int("count", len(windows)).Str("backend", c.backend.Name()).Msg("Enumerated windows")
	return windows
}

// Resolve finds the window to capture for a title/class request. An exact
// match on both fields wins; otherwise the first window whose title matches
// is used. Both comparisons ignore case and trailing whitespace.
func (c *Catalog) Resolve(title, class string) (Descriptor, bool) {
	windows := c.Enumerate()

	for _, w := range windows {
		if Match(w, title, class) {
			return w, true
		}
	}

	for _, w := range windows {
		if sameText(w.Title, title) {
			logger.WithComponent("window-catalog").Debug().
				Str("title", title).
				Str("class", class).
				Str("matched_class", w.Class).
				Msg("No exact title/class match, using title-only match")
			return w, true
		}
	}

	return Descriptor{}, false
}

// Match reports whether d has the given title and class
func Match(d Descriptor, title, class string) bool {
	return sameText(d.Title, title) && sameText(d.Class, class)
}

func sameText(a, b string) bool {
	return strings.EqualFold(trimTrailing(a), trimTrailing(b))
}

func trimTrailing(s string) string {
	return strings.TrimRightFunc(s, unicode.IsSpace)
}
