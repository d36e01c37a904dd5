// classifier/pkg/store/source_test.go

package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rgehrsitz/classifier/pkg/logging"
)

func TestFileSourceRead(t *testing.T) {
	path := filepath.Join(t.TempDir(), "categories.properties")
	writeFile(t, path, "alpha=elbows\n")

	src := NewFileSource(path)
	assert.Equal(t, path, src.Name())

	data, err := src.Read(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "alpha=elbows\n", string(data))
}

func TestFileSourceReadMissing(t *testing.T) {
	src := NewFileSource(filepath.Join(t.TempDir(), "missing.properties"))

	data, err := src.Read(context.Background())
	assert.Nil(t, data)
	require.Error(t, err)
	assert.True(t, logging.IsType(err, logging.ErrorTypeSourceUnreadable))
}

func TestFileSourceWatchSignalsWrites(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "categories.properties")
	writeFile(t, path, "alpha=elbows\n")

	feed, err := NewFileSource(path).Watch(context.Background())
	require.NoError(t, err)
	defer feed.Close()

	// unrelated files in the same directory are ignored
	writeFile(t, filepath.Join(dir, "other.txt"), "noise")
	select {
	case <-feed.Changes():
		t.Fatal("change signalled for an unrelated file")
	case <-time.After(100 * time.Millisecond):
	}

	writeFile(t, path, "alpha=elbows\nbeta=knees\n")
	select {
	case <-feed.Changes():
	case <-time.After(5 * time.Second):
		t.Fatal("no change signalled after writing the rule file")
	}
}

func TestFileSourceWatchMissingDirectory(t *testing.T) {
	src := NewFileSource(filepath.Join(t.TempDir(), "absent", "categories.properties"))

	feed, err := src.Watch(context.Background())
	assert.Nil(t, feed)
	assert.Error(t, err)
}

func TestFileFeedCloseIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "categories.properties")
	writeFile(t, path, "")

	feed, err := NewFileSource(path).Watch(context.Background())
	require.NoError(t, err)

	assert.NoError(t, feed.Close())
	assert.NoError(t, feed.Close())
}
