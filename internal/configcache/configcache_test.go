package configcache

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/gridflow/internal/errdefs"
	"github.com/mattjoyce/gridflow/internal/storage"
)

const recoConfig = `import FWCore.ParameterSet.Config as cms
process = cms.Process("RECO")
`

func openTestStore(t *testing.T) (*Store, *storage.DB) {
	t.Helper()

	db, err := storage.OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return New(db), db
}

func TestAddConfigIsContentAddressed(t *testing.T) {
	t.Parallel()

	store, _ := openTestStore(t)
	ctx := context.Background()

	first, err := store.AddConfig(ctx, recoConfig)
	require.NoError(t, err)
	assert.NotEmpty(t, first.ID)
	assert.True(t, strings.HasPrefix(first.Revision, "1-"), first.Revision)

	second, err := store.AddConfig(ctx, recoConfig)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	other, err := store.AddConfig(ctx, recoConfig+"# skim\n")
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, other.ID)
}

func TestAddConfigConcurrent(t *testing.T) {
	t.Parallel()

	store, db := openTestStore(t)
	ctx := context.Background()

	const writers = 8
	refs := make([]DocRef, writers)
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ref, err := store.AddConfig(ctx, recoConfig)
			assert.NoError(t, err)
			refs[i] = ref
		}(i)
	}
	wg.Wait()

	for _, ref := range refs[1:] {
		assert.Equal(t, refs[0], ref)
	}
	var n int
	require.NoError(t, db.SQL().QueryRow("SELECT COUNT(*) FROM config_cache").Scan(&n))
	assert.Equal(t, 1, n)
}

func TestFetch(t *testing.T) {
	t.Parallel()

	store, _ := openTestStore(t)
	ctx := context.Background()

	ref, err := store.AddConfig(ctx, recoConfig)
	require.NoError(t, err)

	doc, err := store.Fetch(ctx, ref.ID)
	require.NoError(t, err)
	assert.Equal(t, ref, doc.DocRef)
	assert.Equal(t, recoConfig, doc.Content)

	_, err = store.Fetch(ctx, "no-such-doc")
	assert.True(t, errors.Is(err, errdefs.ErrNotFound), "%v", err)

	_, err = store.Fetch(ctx, "")
	assert.True(t, errors.Is(err, errdefs.ErrInvalidArgument), "%v", err)
}

func TestAddConfigRejectsEmpty(t *testing.T) {
	t.Parallel()

	store, _ := openTestStore(t)
	_, err := store.AddConfig(context.Background(), "")
	assert.True(t, errors.Is(err, errdefs.ErrInvalidArgument))
}

func TestContentHash(t *testing.T) {
	h := ContentHash("abc")
	assert.Len(t, h, 64)
	assert.Equal(t, h, ContentHash("abc"))
	assert.NotEqual(t, h, ContentHash("abd"))
}
