package watcher

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/pagewright/internal/build"
	"github.com/conneroisu/pagewright/internal/types"
)

func TestEventTypeString(t *testing.T) {
	testCases := []struct {
		eventType EventType
		expected  string
	}{
		{EventTypeCreated, "created"},
		{EventTypeModified, "modified"},
		{EventTypeDeleted, "deleted"},
		{EventTypeRenamed, "renamed"},
		{EventType(42), "unknown"},
	}

	for _, tc := range testCases {
		t.Run(tc.expected, func(t *testing.T) {
			assert.Equal(t, tc.expected, tc.eventType.String())
		})
	}
}

func TestNewFileWatcher(t *testing.T) {
	watcher, err := NewFileWatcher(t.TempDir(), 100*time.Millisecond, nil)
	require.NoError(t, err)
	defer watcher.Stop()

	assert.NotNil(t, watcher.watcher)
	assert.NotNil(t, watcher.debouncer)
	assert.Empty(t, watcher.filters)
	assert.Empty(t, watcher.handlers)
}

func TestFileWatcherAddPath(t *testing.T) {
	root := t.TempDir()
	watcher, err := NewFileWatcher(root, 100*time.Millisecond, nil)
	require.NoError(t, err)
	defer watcher.Stop()

	require.NoError(t, os.MkdirAll(filepath.Join(root, "pages"), 0o755))

	assert.NoError(t, watcher.AddPath("pages"))
	assert.NoError(t, watcher.AddPath(filepath.Join(root, "pages")))
	assert.Error(t, watcher.AddPath("missing"))
	assert.Error(t, watcher.AddPath(".."))
	assert.Error(t, watcher.AddPath(t.TempDir()))
}

func TestFileWatcherAddRecursiveSkipsIgnored(t *testing.T) {
	root := t.TempDir()
	for _, dir := range []string{"client/lib", "node_modules/pkg", "dist/assets"} {
		require.NoError(t, os.MkdirAll(filepath.Join(root, dir), 0o755))
	}

	watcher, err := NewFileWatcher(root, 100*time.Millisecond, nil)
	require.NoError(t, err)
	defer watcher.Stop()
	watcher.AddFilter(IgnoreFilter("node_modules"))
	watcher.AddFilter(PrefixFilter("dist"))

	require.NoError(t, watcher.AddRecursive("."))

	watched := make(map[string]bool)
	for _, p := range watcher.watcher.WatchList() {
		rel, err := filepath.Rel(root, p)
		require.NoError(t, err)
		watched[filepath.ToSlash(rel)] = true
	}
	assert.True(t, watched["."])
	assert.True(t, watched["client/lib"])
	assert.False(t, watched["node_modules"])
	assert.False(t, watched["node_modules/pkg"])
	assert.False(t, watched["dist/assets"])
}

func TestFileWatcherDeliversBatches(t *testing.T) {
	root := t.TempDir()
	watcher, err := NewFileWatcher(root, 50*time.Millisecond, nil)
	require.NoError(t, err)
	defer watcher.Stop()
	watcher.AddFilter(IgnoreFilter("*.tmp"))

	require.NoError(t, watcher.AddRecursive("."))

	batches := make(chan []ChangeEvent, 10)
	watcher.AddHandler(func(ctx context.Context, events []ChangeEvent) error {
		batches <- events
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, watcher.Start(ctx))
	time.Sleep(50 * time.Millisecond)

	require.NoError(t, os.WriteFile(filepath.Join(root, "routes.yml"), []byte("routes: []"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "scratch.tmp"), []byte("x"), 0o644))

	select {
	case events := <-batches:
		require.NotEmpty(t, events)
		for _, e := range events {
			assert.Equal(t, filepath.Join(root, "routes.yml"), e.Path)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no change batch delivered")
	}
}

func TestIgnoreFilter(t *testing.T) {
	filter := IgnoreFilter(".git", "node_modules", "*.swp")
	testCases := []struct {
		path     string
		expected bool
	}{
		{"routes.yml", true},
		{"client/app.js", true},
		{".git/config", false},
		{"web/node_modules/x.js", false},
		{"client/.app.js.swp", false},
	}

	for _, tc := range testCases {
		t.Run(tc.path, func(t *testing.T) {
			assert.Equal(t, tc.expected, filter(tc.path))
		})
	}
}

func TestPrefixFilter(t *testing.T) {
	filter := PrefixFilter("./dist/")
	assert.True(t, filter("client/app.js"))
	assert.True(t, filter("distribution/a.js"))
	assert.False(t, filter("dist"))
	assert.False(t, filter("dist/index.html"))

	assert.True(t, PrefixFilter(".")("anything"))
}

func TestNoGitFilter(t *testing.T) {
	testCases := []struct {
		path     string
		expected bool
	}{
		{"src/main.go", true},
		{".git/config", false},
		{"src/.git/test.go", false},
		{".git", false},
	}

	for _, tc := range testCases {
		t.Run(tc.path, func(t *testing.T) {
			assert.Equal(t, tc.expected, NoGitFilter(tc.path))
		})
	}
}

func TestDebouncer(t *testing.T) {
	debouncer := newDebouncer(50 * time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go debouncer.start(ctx)

	for i := 0; i < 5; i++ {
		debouncer.events <- ChangeEvent{Type: EventTypeModified, Path: fmt.Sprintf("file%d.js", i%2)}
		time.Sleep(10 * time.Millisecond)
	}

	select {
	case events := <-debouncer.output:
		require.Len(t, events, 2)
		assert.Equal(t, "file0.js", events[0].Path)
		assert.Equal(t, "file1.js", events[1].Path)
	case <-time.After(time.Second):
		t.Fatal("debouncer did not flush")
	}

	select {
	case events := <-debouncer.output:
		t.Fatalf("unexpected second batch %v", events)
	case <-time.After(100 * time.Millisecond):
	}
}

type fakeSite struct {
	mutex   sync.Mutex
	reloads int
	err     error
}

func (s *fakeSite) Reload(ctx context.Context) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.reloads++
	return s.err
}

type fakeBuilder struct {
	builds []build.Options
}

func (b *fakeBuilder) Build(ctx context.Context, opts build.Options) (*types.BuildResult, error) {
	b.builds = append(b.builds, opts)
	return &types.BuildResult{
		Pages:  []*types.RenderedPage{{ID: "index.html"}},
		Errors: []types.FailedPage{{Path: "/broken", Reason: "boom"}},
	}, nil
}

func TestRebuildHandler(t *testing.T) {
	site := &fakeSite{}
	builder := &fakeBuilder{}
	opts := build.Options{MaxWorkers: 2, Write: true}

	handler := RebuildHandler(site, builder, opts, nil)
	err := handler(context.Background(), []ChangeEvent{{Type: EventTypeModified, Path: "routes.yml"}})
	require.NoError(t, err)

	assert.Equal(t, 1, site.reloads)
	require.Len(t, builder.builds, 1)
	assert.Equal(t, 2, builder.builds[0].MaxWorkers)
}

func TestRebuildHandlerReloadFailure(t *testing.T) {
	site := &fakeSite{err: fmt.Errorf("bad routes")}
	builder := &fakeBuilder{}

	handler := RebuildHandler(site, builder, build.Options{}, nil)
	err := handler(context.Background(), []ChangeEvent{{Path: "routes.yml"}})
	require.EqualError(t, err, "bad routes")
	assert.Empty(t, builder.builds)
}
