package routes

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// DefaultPath is the page path rendered for the default route.
const DefaultPath = "/404"

// PagePath renders the concrete page path for a route and its params. Param
// values are normalized to NFC so equivalent spellings share one page.
// Optional params that are absent drop their segment.
func PagePath(routePath string, params Params) string {
	if params == nil {
		return routePath
	}

	trailing := strings.HasSuffix(routePath, "/") && routePath != "/"
	segments := strings.Split(strings.Trim(routePath, "/"), "/")
	out := make([]string, 0, len(segments))
	for _, seg := range segments {
		switch {
		case seg == "":
			continue
		case seg == "*":
			if v := params[WildKey]; v != "" {
				out = append(out, strings.Trim(norm.NFC.String(v), "/"))
			}
		case strings.HasPrefix(seg, ":"):
			name := strings.TrimSuffix(strings.TrimPrefix(seg, ":"), "?")
			v, ok := params[name]
			if !ok || v == "" {
				if strings.HasSuffix(seg, "?") {
					continue
				}
			}
			out = append(out, norm.NFC.String(v))
		default:
			out = append(out, seg)
		}
	}

	path := "/" + strings.Join(out, "/")
	if trailing && path != "/" {
		path += "/"
	}
	return path
}

// PageFilename maps a page path to its HTML output file.
//
//	"/"        -> "index.html"
//	"/about"   -> "about.html"
//	"/blog/"   -> "blog/index.html"
func PageFilename(pagePath string) string {
	if i := strings.IndexAny(pagePath, "?#"); i >= 0 {
		pagePath = pagePath[:i]
	}
	p := strings.TrimPrefix(pagePath, "/")
	switch {
	case p == "":
		return "index.html"
	case strings.HasSuffix(p, "/"):
		return p + "index.html"
	case strings.HasSuffix(p, ".html"):
		return p
	default:
		return p + ".html"
	}
}

// PrependBase joins a root-relative uri onto base.
func PrependBase(uri, base string) string {
	if base == "" || base == "/" {
		return uri
	}
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}
	return base + strings.TrimPrefix(uri, "/")
}
