package fileops

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bunnypak/buck2/internal/cellpath"
	"github.com/bunnypak/buck2/internal/console"
)

// fakeIo is an in-memory IoProvider for delegate tests.
type fakeIo struct {
	files map[cellpath.ProjectRelPath]string
	dirs  map[cellpath.ProjectRelPath][]RawDirEntry
	metas map[cellpath.ProjectRelPath]RawPathMetadata[cellpath.ProjectRelPath]
}

func (f *fakeIo) ReadFileIfExists(ctx context.Context, path cellpath.ProjectRelPath) (string, bool, error) {
	content, ok := f.files[path]
	return content, ok, nil
}

func (f *fakeIo) ReadDir(ctx context.Context, path cellpath.ProjectRelPath) ([]RawDirEntry, error) {
	return f.dirs[path], nil
}

func (f *fakeIo) ReadPathMetadataIfExists(ctx context.Context, path cellpath.ProjectRelPath) (RawPathMetadata[cellpath.ProjectRelPath], bool, error) {
	m, ok := f.metas[path]
	return m, ok, nil
}

func testResolver(t *testing.T) *cellpath.CellResolver {
	t.Helper()
	r, err := cellpath.NewCellResolver(map[cellpath.CellName]cellpath.ProjectRelPath{
		"root": "",
		"c":    "c",
	}, "root")
	require.NoError(t, err)
	return r
}

func testIgnores(t *testing.T, patterns map[cellpath.CellName][]string) *CellIgnores {
	t.Helper()
	byCell := make(map[cellpath.CellName]*IgnoreSet)
	for cell, ps := range patterns {
		set, err := NewIgnoreSet(ps)
		require.NoError(t, err)
		byCell[cell] = set
	}
	return NewCellIgnores(byCell)
}

func TestReadDirFiltersIgnoredAndSorts(t *testing.T) {
	io := &fakeIo{dirs: map[cellpath.ProjectRelPath][]RawDirEntry{
		"c/foo": {
			{FileName: "target", FileType: FileTypeDir},
			{FileName: "b.txt", FileType: FileTypeFile},
			{FileName: "a.txt", FileType: FileTypeFile},
		},
	}}
	ops := NewCellAwareFileOps(io, testResolver(t), testIgnores(t, map[cellpath.CellName][]string{
		"c": {"**/target"},
	}))

	got, err := ops.ReadDir(context.Background(), cellpath.New("c", "foo"))
	require.NoError(t, err)

	want := ReadDirOutput{Included: []SimpleDirEntry{
		{FileName: "a.txt", FileType: FileTypeFile},
		{FileName: "b.txt", FileType: FileTypeFile},
	}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("ReadDirOutput mismatch (-want +got):\n%s", diff)
	}
	assert.True(t, got.Equal(want))
}

func TestReadDirDeterministicOutput(t *testing.T) {
	// Same contents presented in a different raw order must produce an
	// identical listing.
	first := &fakeIo{dirs: map[cellpath.ProjectRelPath][]RawDirEntry{
		"d": {{FileName: "x"}, {FileName: "y"}, {FileName: "z"}},
	}}
	second := &fakeIo{dirs: map[cellpath.ProjectRelPath][]RawDirEntry{
		"d": {{FileName: "z"}, {FileName: "x"}, {FileName: "y"}},
	}}
	resolver := testResolver(t)
	ignores := testIgnores(t, nil)

	a, err := NewCellAwareFileOps(first, resolver, ignores).ReadDir(context.Background(), cellpath.New("root", "d"))
	require.NoError(t, err)
	b, err := NewCellAwareFileOps(second, resolver, ignores).ReadDir(context.Background(), cellpath.New("root", "d"))
	require.NoError(t, err)
	assert.True(t, a.Equal(b))
}

func TestReadDirOnIgnoredDirFails(t *testing.T) {
	ops := NewCellAwareFileOps(&fakeIo{}, testResolver(t), testIgnores(t, map[cellpath.CellName][]string{
		"c": {"generated/**", "generated"},
	}))

	_, err := ops.ReadDir(context.Background(), cellpath.New("c", "generated"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrIgnoredDir)
	assert.Contains(t, err.Error(), "c//generated")
}

func TestReadDirSkipsInvalidNamesWithConsoleMessage(t *testing.T) {
	var messages []string
	bus := console.New()
	bus.Subscribe(func(ctx context.Context, event any) {
		if m, ok := event.(console.Message); ok {
			messages = append(messages, m.Text)
		}
	})
	console.Use(bus)
	defer console.Use(nil)

	io := &fakeIo{dirs: map[cellpath.ProjectRelPath][]RawDirEntry{
		"d": {{FileName: "ok.txt"}, {FileName: ".."}},
	}}
	ops := NewCellAwareFileOps(io, testResolver(t), testIgnores(t, nil))

	got, err := ops.ReadDir(context.Background(), cellpath.New("root", "d"))
	require.NoError(t, err)
	require.Len(t, got.Included, 1)
	assert.Equal(t, cellpath.FileName("ok.txt"), got.Included[0].FileName)
	require.Len(t, messages, 1)
	assert.Contains(t, messages[0], `".."`)
}

func TestReadPathMetadataMapsSymlinkPath(t *testing.T) {
	io := &fakeIo{metas: map[cellpath.ProjectRelPath]RawPathMetadata[cellpath.ProjectRelPath]{
		"c/link": SymlinkMetadata(cellpath.ProjectRelPath("c/link"), "/outside/target"),
	}}
	ops := NewCellAwareFileOps(io, testResolver(t), testIgnores(t, nil))

	meta, ok, err := ops.ReadPathMetadataIfExists(context.Background(), cellpath.New("c", "link"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, PathKindSymlink, meta.Kind)
	assert.Equal(t, cellpath.New("c", "link"), meta.At)
	assert.Equal(t, "/outside/target", meta.To)
}

func TestFsIoProvider(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "pkg"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "pkg", "a.txt"), []byte("hello"), 0o644))

	io := NewFsIoProvider(root)
	ctx := context.Background()

	content, ok, err := io.ReadFileIfExists(ctx, "pkg/a.txt")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "hello", content)

	_, ok, err = io.ReadFileIfExists(ctx, "pkg/missing.txt")
	require.NoError(t, err)
	assert.False(t, ok)

	entries, err := io.ReadDir(ctx, "pkg")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "a.txt", entries[0].FileName)
	assert.Equal(t, FileTypeFile, entries[0].FileType)

	meta, ok, err := io.ReadPathMetadataIfExists(ctx, "pkg/a.txt")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, PathKindFile, meta.Kind)
	assert.Equal(t, uint64(5), meta.Size)

	// Same bytes hash to the same digest.
	require.NoError(t, os.WriteFile(filepath.Join(root, "pkg", "a.txt"), []byte("hello"), 0o644))
	again, _, err := io.ReadPathMetadataIfExists(ctx, "pkg/a.txt")
	require.NoError(t, err)
	assert.Equal(t, meta.Digest, again.Digest)

	dirMeta, ok, err := io.ReadPathMetadataIfExists(ctx, "pkg")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, PathKindDir, dirMeta.Kind)
}

func TestFsIoProviderSymlink(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "real.txt"), []byte("x"), 0o644))
	if err := os.Symlink("real.txt", filepath.Join(root, "link")); err != nil {
		t.Skipf("symlinks unsupported: %v", err)
	}

	io := NewFsIoProvider(root)
	meta, ok, err := io.ReadPathMetadataIfExists(context.Background(), "link")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, PathKindSymlink, meta.Kind)
	assert.Equal(t, cellpath.ProjectRelPath("link"), meta.At)
	assert.Equal(t, "real.txt", meta.To)
}
