// Package output writes the files of a finished build to a destination.
//
// A build produces one HTML file per page, the client modules and assets
// the pages reference, the extra files layouts emitted and a modules.json
// manifest describing the referenced modules. Destinations only need to
// store named blobs; WritePages fans the files out over a bounded number
// of concurrent writes.
package output

import (
	"bytes"
	"context"
	"fmt"
	"mime"
	"path"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/conneroisu/pagewright/internal/errors"
	"github.com/conneroisu/pagewright/internal/modules"
	"github.com/conneroisu/pagewright/internal/types"
)

// ManifestFile is the name of the module map artifact.
const ManifestFile = "modules.json"

// DefaultConcurrency bounds concurrent writes.
const DefaultConcurrency = 16

// Writer stores build output.
type Writer interface {
	// Prepare readies the destination before any page is rendered.
	Prepare(ctx context.Context) error
	WriteFile(ctx context.Context, file File) error
	// Location describes the destination in logs.
	Location() string
}

// File is one output file. Name is slash separated and relative to the
// destination root.
type File struct {
	Name     string
	Data     []byte
	MimeType string
}

// PageFiles lists the files of pages in a stable order. Modules and assets
// shared by several pages are listed once. The module manifest of mm is
// appended when mm is not nil.
func PageFiles(pages []*types.RenderedPage, mm *modules.ModuleMap) ([]File, error) {
	seen := make(map[string]bool)
	var files []File
	add := func(f File) {
		if seen[f.Name] {
			return
		}
		seen[f.Name] = true
		if f.MimeType == "" {
			f.MimeType = mimeType(f.Name)
		}
		files = append(files, f)
	}

	for _, page := range pages {
		if page.HTML != "" {
			add(File{Name: page.ID, Data: []byte(page.HTML)})
		}
		for _, m := range page.Modules.All() {
			add(File{Name: m.ID, Data: []byte(m.Text)})
		}
		for _, a := range page.Assets.All() {
			add(File{Name: a.ID, Data: []byte(a.Text)})
		}
		for _, f := range page.Files {
			add(File{Name: f.ID, Data: f.Data, MimeType: f.MimeType})
		}
	}
	sort.SliceStable(files, func(i, j int) bool { return files[i].Name < files[j].Name })

	if mm != nil {
		var buf bytes.Buffer
		if err := mm.WriteManifest(&buf); err != nil {
			return nil, errors.NewIOError(errors.ErrCodeWriteFailed, "encoding module manifest", err)
		}
		add(File{Name: ManifestFile, Data: buf.Bytes(), MimeType: "application/json"})
	}
	return files, nil
}

// WritePages writes the files of pages to w with at most concurrency
// writes in flight. The first failure cancels the remaining writes.
func WritePages(ctx context.Context, w Writer, pages []*types.RenderedPage, mm *modules.ModuleMap, concurrency int) ([]File, error) {
	files, err := PageFiles(pages, mm)
	if err != nil {
		return nil, err
	}
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for _, f := range files {
		f := f
		g.Go(func() error {
			if err := w.WriteFile(gctx, f); err != nil {
				return errors.NewIOError(errors.ErrCodeWriteFailed,
					fmt.Sprintf("writing %s to %s", f.Name, w.Location()), err).WithPath(f.Name)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return files, nil
}

func mimeType(name string) string {
	switch ext := path.Ext(name); ext {
	case ".js", ".mjs":
		return "text/javascript; charset=utf-8"
	case ".html":
		return "text/html; charset=utf-8"
	case "":
		return "application/octet-stream"
	default:
		if t := mime.TypeByExtension(ext); t != "" {
			return t
		}
		return "application/octet-stream"
	}
}
