package html

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/tdewolff/minify/v2"
	minhtml "github.com/tdewolff/minify/v2/html"

	"github.com/conneroisu/pagewright/internal/errors"
)

// Processor transforms a rendered document.
type Processor func(ctx context.Context, doc string) (string, error)

// Apply runs processors in order. When timeout is positive each processor
// must finish within it.
func Apply(ctx context.Context, doc string, processors []Processor, timeout time.Duration) (string, error) {
	for i, process := range processors {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		out, err := run(ctx, doc, process, timeout)
		if err != nil {
			return "", fmt.Errorf("html processor %d: %w", i, err)
		}
		doc = out
	}
	return doc, nil
}

func run(ctx context.Context, doc string, process Processor, timeout time.Duration) (string, error) {
	if timeout <= 0 {
		return process(ctx, doc)
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		doc string
		err error
	}
	done := make(chan result, 1)
	go func() {
		out, err := process(ctx, doc)
		done <- result{out, err}
	}()

	select {
	case r := <-done:
		return r.doc, r.err
	case <-ctx.Done():
		if ctx.Err() == context.DeadlineExceeded {
			return "", errors.NewRenderError(errors.ErrCodeRenderTimeout,
				fmt.Sprintf("html processing exceeded %s", timeout), ctx.Err())
		}
		return "", ctx.Err()
	}
}

// DebugBase rewrites local links so that navigation stays inside the debug
// view. Links already under debugBase are left alone.
func DebugBase(base, debugBase string) Processor {
	return func(ctx context.Context, doc string) (string, error) {
		d, err := goquery.NewDocumentFromReader(strings.NewReader(doc))
		if err != nil {
			return "", fmt.Errorf("parsing page html: %w", err)
		}

		changed := false
		d.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
			href, _ := s.Attr("href")
			if strings.HasPrefix(href, debugBase) || !strings.HasPrefix(href, base) || strings.HasPrefix(href, "//") {
				return
			}
			s.SetAttr("href", debugBase+strings.TrimPrefix(href, base))
			changed = true
		})
		if !changed {
			return doc, nil
		}
		return render(d)
	}
}

// Minify returns a processor that minifies the document while keeping the
// document tags and special comments.
func Minify() Processor {
	m := minify.New()
	m.Add("text/html", &minhtml.Minifier{
		KeepSpecialComments: true,
		KeepDocumentTags:    true,
		KeepEndTags:         true,
		KeepQuotes:          true,
	})
	return func(ctx context.Context, doc string) (string, error) {
		out, err := m.String("text/html", doc)
		if err != nil {
			return "", fmt.Errorf("minifying html: %w", err)
		}
		return out, nil
	}
}
