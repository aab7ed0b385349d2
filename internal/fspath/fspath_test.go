package fspath_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lixdb/lix/internal/fspath"
)

func TestNormalizeFilePath_RejectsBareRootAndTrailingSlash(t *testing.T) {
	_, err := fspath.NormalizeFilePath("/")
	assert.Error(t, err)

	_, err = fspath.NormalizeFilePath("/a/")
	assert.Error(t, err)

	_, err = fspath.NormalizeFilePath("a/b")
	assert.Error(t, err)
}

func TestNormalizeFilePath_AcceptsValidSegments(t *testing.T) {
	out, err := fspath.NormalizeFilePath("/docs/my-file_v2.txt")
	require.NoError(t, err)
	assert.Equal(t, "/docs/my-file_v2.txt", out)
}

func TestNormalizeFilePath_RejectsDotSegments(t *testing.T) {
	_, err := fspath.NormalizeFilePath("/docs/../secret.txt")
	assert.Error(t, err)
}

func TestNormalizeFilePath_RejectsInvalidPercentEncoding(t *testing.T) {
	_, err := fspath.NormalizeFilePath("/docs/bad%zzfile.txt")
	assert.Error(t, err)
}

func TestNormalizeDirectoryPath_RequiresLeadingAndTrailingSlash(t *testing.T) {
	out, err := fspath.NormalizeDirectoryPath("/docs/")
	require.NoError(t, err)
	assert.Equal(t, "/docs/", out)

	_, err = fspath.NormalizeDirectoryPath("/docs")
	assert.Error(t, err)

	_, err = fspath.NormalizeDirectoryPath("/")
	assert.Error(t, err)
}

func TestParseFilePath_SplitsNameAndExtension(t *testing.T) {
	p, err := fspath.ParseFilePath("/docs/notes/readme.md")
	require.NoError(t, err)
	assert.Equal(t, "/docs/notes/", p.DirectoryPath)
	assert.Equal(t, "readme", p.Name)
	assert.Equal(t, "md", p.Extension)
}

func TestAncestorDirectories_ListsEachPrefix(t *testing.T) {
	ancestors := fspath.AncestorDirectories("/a/b/c.txt")
	assert.Equal(t, []string{"/a/b/", "/a/"}, ancestors)
}
