// Package types provides common type definitions used throughout pagewright.
// This package contains shared types to avoid circular dependencies between packages.
package types

import (
	"net/url"
	"strings"
	"time"
)

// ParsedURL is the unit of work identity for caching and rendering.
type ParsedURL struct {
	// Path is the URL pathname without the site base
	Path string
	// Query holds the parsed search params
	Query url.Values
}

// ParseURL splits a raw page URL into its path and search params.
func ParseURL(raw string) ParsedURL {
	path, query, _ := strings.Cut(raw, "?")
	values, err := url.ParseQuery(query)
	if err != nil {
		values = url.Values{}
	}
	if path == "" {
		path = "/"
	}
	return ParsedURL{Path: path, Query: values}
}

// String reassembles the URL.
func (u ParsedURL) String() string {
	if len(u.Query) == 0 {
		return u.Path
	}
	return u.Path + "?" + u.Query.Encode()
}

// HeadMetadata describes the <head> of a rendered page as seen by the client.
type HeadMetadata struct {
	Title      string              `json:"title,omitempty"`
	Stylesheet []string            `json:"stylesheet,omitempty"`
	Prefetch   []string            `json:"prefetch,omitempty"`
	Preload    map[string][]string `json:"preload,omitempty"`
}

// IsEmpty reports whether the head carries nothing worth describing.
func (h HeadMetadata) IsEmpty() bool {
	return h.Title == "" &&
		len(h.Stylesheet) == 0 &&
		len(h.Prefetch) == 0 &&
		len(h.Preload) == 0
}

// OutputFile is an extra file emitted by a page render.
type OutputFile struct {
	ID       string
	Data     []byte
	MimeType string
}

// RenderedPage is the output of one successful page render. It is immutable
// once returned by the renderer.
type RenderedPage struct {
	// ID is the output filename, e.g. "about.html" or "debug/about.html"
	ID      string
	HTML    string
	Head    HeadMetadata
	Props   map[string]any
	Route   string
	Files   []OutputFile
	Modules *ModuleSet
	Assets  *ModuleSet
}

// FailedPage is a terminal render or route failure.
type FailedPage struct {
	Path   string `json:"path"`
	Reason string `json:"reason"`
}

// BuildResult is what a finished (or aborted) build returns.
type BuildResult struct {
	Pages  []*RenderedPage
	Errors []FailedPage
}

// ProfileEvent reports how long a render step took for a page URL.
type ProfileEvent struct {
	Type     string
	URL      string
	Duration time.Duration
	Message  string
}
