package render

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"strconv"

	"github.com/a-h/templ"
)

// Document returns the layout used for routes declared in a routes file. It
// writes the route title and its raw content into a bare HTML document.
// Routes with a client module get an entry that re-exports it.
func Document() *TemplLayout {
	return &TemplLayout{
		Component: documentComponent,
		Entry:     documentEntry,
	}
}

func documentComponent(req *Request) templ.Component {
	var title, content string
	if req.Route != nil {
		title = req.Route.Meta["title"]
		content = req.Route.Meta["content"]
	}
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		if _, err := io.WriteString(w, `<!DOCTYPE html><html><head><meta charset="utf-8">`); err != nil {
			return err
		}
		if title != "" {
			if _, err := io.WriteString(w, "<title>"+templ.EscapeString(title)+"</title>"); err != nil {
				return err
			}
		}
		if _, err := io.WriteString(w, "</head><body>"); err != nil {
			return err
		}
		if err := templ.Raw(content).Render(ctx, w); err != nil {
			return err
		}
		_, err := io.WriteString(w, "</body></html>")
		return err
	})
}

func documentEntry(req *Request) *ClientEntry {
	if req.Route == nil || req.Route.ModuleID == "" {
		return nil
	}
	code := "import * as route from " + strconv.Quote(req.Base+req.Route.ModuleID) + "\nexport default route\n"
	return &ClientEntry{ID: EntryID(code), Code: code}
}

// EntryID names an entry module by the hash of its code.
func EntryID(code string) string {
	sum := sha256.Sum256([]byte(code))
	return "entry." + hex.EncodeToString(sum[:])[:8] + ".js"
}
