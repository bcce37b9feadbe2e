package output

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/pagewright/internal/config"
	"github.com/conneroisu/pagewright/internal/errors"
	"github.com/conneroisu/pagewright/internal/modules"
	"github.com/conneroisu/pagewright/internal/types"
)

func testPage(id, html string, mods ...*types.ClientModule) *types.RenderedPage {
	page := &types.RenderedPage{
		ID:      id,
		HTML:    html,
		Modules: types.NewModuleSet(),
		Assets:  types.NewModuleSet(),
	}
	for _, m := range mods {
		if m.IsScript() {
			page.Modules.Add(m)
		} else {
			page.Assets.Add(m)
		}
	}
	return page
}

func testPages() ([]*types.RenderedPage, *modules.ModuleMap) {
	mm := modules.NewModuleMap()
	shared := types.NewReferencedModule("assets/shared.js", "export const x = 1", []string{"x"})
	css := types.NewInlineModule("assets/site.css", "body{}")
	mm.Register(shared)
	mm.Register(css)

	index := testPage("index.html", "<html>index</html>", shared, css)
	about := testPage("about.html", "<html>about</html>", shared,
		types.NewInlineModule("about.html.js", "export default {}"))
	about.Files = []types.OutputFile{{ID: "feed.xml", Data: []byte("<rss/>"), MimeType: "application/rss+xml"}}
	empty := testPage("empty.html", "")
	return []*types.RenderedPage{index, about, empty}, mm
}

func TestPageFiles(t *testing.T) {
	pages, mm := testPages()

	files, err := PageFiles(pages, mm)
	require.NoError(t, err)

	var names []string
	for _, f := range files {
		names = append(names, f.Name)
	}
	assert.Equal(t, []string{
		"about.html",
		"about.html.js",
		"assets/shared.js",
		"assets/site.css",
		"feed.xml",
		"index.html",
		ManifestFile,
	}, names)

	byName := make(map[string]File)
	for _, f := range files {
		byName[f.Name] = f
	}
	assert.Equal(t, "text/html; charset=utf-8", byName["index.html"].MimeType)
	assert.Equal(t, "text/javascript; charset=utf-8", byName["assets/shared.js"].MimeType)
	assert.Equal(t, "application/rss+xml", byName["feed.xml"].MimeType)
	assert.Contains(t, byName["assets/site.css"].MimeType, "text/css")

	var manifest []map[string]any
	require.NoError(t, json.Unmarshal(byName[ManifestFile].Data, &manifest))
	require.Len(t, manifest, 1)
	assert.Equal(t, "assets/shared.js", manifest[0]["id"])
}

func TestPageFilesWithoutManifest(t *testing.T) {
	pages, _ := testPages()
	files, err := PageFiles(pages, nil)
	require.NoError(t, err)
	for _, f := range files {
		assert.NotEqual(t, ManifestFile, f.Name)
	}
}

func TestFSPrepare(t *testing.T) {
	t.Run("creates missing directory", func(t *testing.T) {
		root := t.TempDir()
		dir := filepath.Join(root, "dist")
		w := NewFS(dir, root, nil)

		require.NoError(t, w.Prepare(context.Background()))
		assert.DirExists(t, dir)
	})

	t.Run("empties directory and keeps git", func(t *testing.T) {
		root := t.TempDir()
		dir := filepath.Join(root, "dist")
		require.NoError(t, os.MkdirAll(filepath.Join(dir, ".git"), 0o755))
		require.NoError(t, os.MkdirAll(filepath.Join(dir, "old"), 0o755))
		require.NoError(t, os.WriteFile(filepath.Join(dir, "stale.html"), []byte("x"), 0o644))

		require.NoError(t, NewFS(dir, root, nil).Prepare(context.Background()))

		entries, err := os.ReadDir(dir)
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Equal(t, ".git", entries[0].Name())
	})

	t.Run("leaves directory outside root alone", func(t *testing.T) {
		root := t.TempDir()
		dir := t.TempDir()
		stale := filepath.Join(dir, "stale.html")
		require.NoError(t, os.WriteFile(stale, []byte("x"), 0o644))

		require.NoError(t, NewFS(dir, root, nil).Prepare(context.Background()))
		assert.FileExists(t, stale)
	})

	t.Run("rejects a file", func(t *testing.T) {
		root := t.TempDir()
		file := filepath.Join(root, "dist")
		require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))

		assert.Error(t, NewFS(file, root, nil).Prepare(context.Background()))
	})
}

func TestWritePagesFS(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "dist")
	w := NewFS(dir, root, nil)
	require.NoError(t, w.Prepare(context.Background()))

	pages, mm := testPages()
	files, err := WritePages(context.Background(), w, pages, mm, 2)
	require.NoError(t, err)
	assert.Len(t, files, 7)

	data, err := os.ReadFile(filepath.Join(dir, "assets", "shared.js"))
	require.NoError(t, err)
	assert.Equal(t, "export const x = 1", string(data))
	assert.FileExists(t, filepath.Join(dir, "index.html"))
	assert.FileExists(t, filepath.Join(dir, ManifestFile))
	assert.NoFileExists(t, filepath.Join(dir, "empty.html"))
}

func TestFSWriteFileEscape(t *testing.T) {
	root := t.TempDir()
	w := NewFS(filepath.Join(root, "dist"), root, nil)

	err := w.WriteFile(context.Background(), File{Name: "../evil.js", Data: []byte("x")})
	require.Error(t, err)
	assert.NoFileExists(t, filepath.Join(root, "evil.js"))
}

type fakeS3 struct {
	mu      sync.Mutex
	objects map[string]string
	types   map[string]string
	fail    string
}

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: make(map[string]string), types: make(map[string]string)}
}

func (f *fakeS3) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	key := aws.ToString(in.Key)
	if key == f.fail {
		return nil, fmt.Errorf("access denied")
	}
	body, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[aws.ToString(in.Bucket)+"/"+key] = string(body)
	f.types[key] = aws.ToString(in.ContentType)
	return &s3.PutObjectOutput{}, nil
}

func TestWritePagesS3(t *testing.T) {
	client := newFakeS3()
	w := NewS3(client, "site", "v1")
	assert.Equal(t, "s3://site/v1", w.Location())
	require.NoError(t, w.Prepare(context.Background()))

	pages, mm := testPages()
	_, err := WritePages(context.Background(), w, pages, mm, 0)
	require.NoError(t, err)

	assert.Equal(t, "<html>index</html>", client.objects["site/v1/index.html"])
	assert.Equal(t, "export const x = 1", client.objects["site/v1/assets/shared.js"])
	assert.Equal(t, "application/json", client.types["v1/"+ManifestFile])
}

func TestWritePagesS3Failure(t *testing.T) {
	client := newFakeS3()
	client.fail = "index.html"
	w := NewS3(client, "site", "")

	pages, mm := testPages()
	_, err := WritePages(context.Background(), w, pages, mm, 1)
	require.Error(t, err)

	var perr *errors.Error
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, errors.ErrCodeWriteFailed, perr.Code)
	assert.Equal(t, "index.html", perr.Path)
}

func TestNewS3FromConfig(t *testing.T) {
	w := NewS3FromConfig(config.S3Config{
		Bucket:          "bucket",
		Prefix:          "prefix",
		Region:          "us-east-1",
		Endpoint:        "http://localhost:9000",
		AccessKeyID:     "key",
		SecretAccessKey: "secret",
	})
	assert.Equal(t, "s3://bucket/prefix", w.Location())
	assert.NotNil(t, w.client)
}
