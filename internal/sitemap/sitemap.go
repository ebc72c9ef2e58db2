// Package sitemap builds the sitemaps.org XML document for the public pages.
package sitemap

import (
	"encoding/xml"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ashureev/kkoala/internal/routes"
)

// Namespace is the sitemaps.org protocol namespace.
const Namespace = "http://www.sitemaps.org/schemas/sitemap/0.9"

const dateLayout = "2006-01-02"

// ChangeFreq is how often a page is expected to change.
type ChangeFreq string

const (
	Daily   ChangeFreq = "daily"
	Weekly  ChangeFreq = "weekly"
	Monthly ChangeFreq = "monthly"
	Yearly  ChangeFreq = "yearly"
)

func (c ChangeFreq) valid() bool {
	switch c {
	case Daily, Weekly, Monthly, Yearly:
		return true
	default:
		return false
	}
}

// Entry describes one public route in the sitemap.
type Entry struct {
	Route      string
	Priority   float64
	ChangeFreq ChangeFreq
}

// Validate checks the priority range and change frequency.
func (e Entry) Validate() error {
	if e.Route == "" {
		return fmt.Errorf("sitemap entry without route")
	}
	if e.Priority < 0 || e.Priority > 1 {
		return fmt.Errorf("sitemap entry %q: priority %v outside [0, 1]", e.Route, e.Priority)
	}
	if !e.ChangeFreq.valid() {
		return fmt.Errorf("sitemap entry %q: unknown change frequency %q", e.Route, e.ChangeFreq)
	}
	return nil
}

// DefaultEntries returns the public pages listed in the sitemap, in order.
func DefaultEntries() []Entry {
	return []Entry{
		{Route: routes.Home, Priority: 1.0, ChangeFreq: Daily},
		{Route: routes.About, Priority: 0.8, ChangeFreq: Monthly},
		{Route: routes.Help, Priority: 0.7, ChangeFreq: Monthly},
		{Route: routes.StudyTimer, Priority: 0.8, ChangeFreq: Monthly},
		{Route: routes.StudyTips, Priority: 0.8, ChangeFreq: Weekly},
		{Route: routes.PrivacyPolicy, Priority: 0.3, ChangeFreq: Yearly},
	}
}

// URLResolver maps a route identifier to an absolute URL.
type URLResolver interface {
	URLFor(route string) (string, error)
}

// Builder renders sitemaps for a fixed list of entries.
type Builder struct {
	entries []Entry
	now     func() time.Time
}

// Option configures a Builder.
type Option func(*Builder)

// WithClock sets the clock used for lastmod.
func WithClock(now func() time.Time) Option {
	return func(b *Builder) { b.now = now }
}

// NewBuilder validates entries and returns a Builder for them.
func NewBuilder(entries []Entry, opts ...Option) (*Builder, error) {
	for _, e := range entries {
		if err := e.Validate(); err != nil {
			return nil, err
		}
	}
	b := &Builder{
		entries: append([]Entry(nil), entries...),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b, nil
}

type urlset struct {
	XMLName xml.Name   `xml:"urlset"`
	Xmlns   string     `xml:"xmlns,attr"`
	URLs    []urlEntry `xml:"url"`
}

type urlEntry struct {
	Loc        string     `xml:"loc"`
	LastMod    string     `xml:"lastmod"`
	ChangeFreq ChangeFreq `xml:"changefreq"`
	Priority   priority   `xml:"priority"`
}

// priority always carries a decimal point: 1 renders as "1.0".
type priority float64

func (p priority) MarshalText() ([]byte, error) {
	s := strconv.FormatFloat(float64(p), 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return []byte(s), nil
}

// Build renders the sitemap, resolving every entry through res.
// An entry whose route cannot be resolved fails the whole build.
func (b *Builder) Build(res URLResolver) ([]byte, error) {
	lastMod := b.now().Format(dateLayout)

	doc := urlset{Xmlns: Namespace, URLs: make([]urlEntry, 0, len(b.entries))}
	for _, e := range b.entries {
		loc, err := res.URLFor(e.Route)
		if err != nil {
			return nil, fmt.Errorf("resolve sitemap route %q: %w", e.Route, err)
		}
		doc.URLs = append(doc.URLs, urlEntry{
			Loc:        loc,
			LastMod:    lastMod,
			ChangeFreq: e.ChangeFreq,
			Priority:   priority(e.Priority),
		})
	}

	body, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal sitemap: %w", err)
	}
	return append([]byte(xml.Header), body...), nil
}
