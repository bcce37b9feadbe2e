package build

import (
	"sync"

	"github.com/conneroisu/pagewright/internal/routes"
)

// deferredPage settles once, when the page's outcome is known or the build
// is aborted.
type deferredPage struct {
	done chan struct{}
	once sync.Once
}

func newDeferredPage() *deferredPage {
	return &deferredPage{done: make(chan struct{})}
}

func (d *deferredPage) resolve() {
	d.once.Do(func() { close(d.done) })
}

// pageRoute remembers how a submitted page path was produced.
type pageRoute struct {
	routePath string
	params    routes.Params
}
