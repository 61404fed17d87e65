package logdb

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/gridflow/internal/errdefs"
	"github.com/mattjoyce/gridflow/internal/log"
	"github.com/mattjoyce/gridflow/internal/storage"
)

func TestMain(m *testing.M) {
	log.Setup("ERROR")
	os.Exit(m.Run())
}

const userDN = "/DC=ch/DC=cern/OU=Users/CN=alice"

// fakeClock advances one second per call so entries have distinct times.
type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time {
	c.t = c.t.Add(time.Second)
	return c.t
}

func openTestDB(t *testing.T) *storage.DB {
	t.Helper()

	db, err := storage.OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "logdb.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func newTestClient(db *storage.DB, identifier string, clock *fakeClock) *Client {
	c := New(db, identifier, "worker-1")
	c.now = clock.now
	return c
}

func TestIsUser(t *testing.T) {
	assert.True(t, IsUser(userDN))
	assert.True(t, IsUser("/C=UK/O=eScience/CN=bob smith"))
	assert.False(t, IsUser("gridflow-agent"))
	assert.False(t, IsUser(""))
	assert.False(t, IsUser("/no-equals-sign"))
}

func TestUserPostsAccumulate(t *testing.T) {
	t.Parallel()

	db := openTestDB(t)
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	c := newTestClient(db, userDN, clock)
	ctx := context.Background()

	require.NoError(t, c.Post(ctx, "req-1", "first", Comment))
	require.NoError(t, c.Post(ctx, "req-1", "second", Comment))
	require.NoError(t, c.Post(ctx, "req-1", "oops", Error))

	entries, err := c.Get(ctx, "req-1", "")
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "first", entries[0].Message)
	assert.Equal(t, "second", entries[1].Message)
	assert.Equal(t, Error, entries[2].Type)
	assert.Equal(t, "worker-1", entries[0].Thread)
	assert.Equal(t, userDN, entries[0].Identifier)
	assert.True(t, entries[0].Time.Before(entries[1].Time))

	errs, err := c.Get(ctx, "req-1", Error)
	require.NoError(t, err)
	require.Len(t, errs, 1)
	assert.Equal(t, "oops", errs[0].Message)
}

func TestAgentPostReplacesSameType(t *testing.T) {
	t.Parallel()

	db := openTestDB(t)
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	c := newTestClient(db, "gridflow-agent", clock)
	ctx := context.Background()

	require.NoError(t, c.Post(ctx, "req-1", "compiling", Info))
	require.NoError(t, c.Post(ctx, "req-1", "compiled", Info))
	require.NoError(t, c.Post(ctx, "req-1", "slow discovery", Warning))

	entries, err := c.Get(ctx, "req-1", "")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "compiled", entries[0].Message)
	assert.Equal(t, "slow discovery", entries[1].Message)
}

func TestPostDefaults(t *testing.T) {
	t.Parallel()

	db := openTestDB(t)
	c := New(db, "", "")
	ctx := context.Background()

	assert.Equal(t, DefaultIdentifier, c.Identifier())
	assert.Equal(t, DefaultThread, c.Thread())

	require.NoError(t, c.Post(ctx, "", "alive", ""))
	entries, err := c.Get(ctx, DefaultRequest, "")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, Comment, entries[0].Type)

	err = c.Post(ctx, "req", "bad", MessageType("shout"))
	assert.True(t, errors.Is(err, errdefs.ErrInvalidArgument), "%v", err)
}

func TestDeleteAndRequests(t *testing.T) {
	t.Parallel()

	db := openTestDB(t)
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	c := newTestClient(db, userDN, clock)
	ctx := context.Background()

	require.NoError(t, c.Post(ctx, "req-b", "x", Comment))
	require.NoError(t, c.Post(ctx, "req-a", "y", Comment))
	require.NoError(t, c.Post(ctx, "req-a", "z", Warning))

	reqs, err := c.Requests(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"req-a", "req-b"}, reqs)

	n, err := c.Delete(ctx, "req-a", Warning)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	n, err = c.Delete(ctx, "req-a", "")
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	reqs, err = c.Requests(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"req-b"}, reqs)
}

func TestCleanup(t *testing.T) {
	t.Parallel()

	db := openTestDB(t)
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	c := newTestClient(db, userDN, clock)
	ctx := context.Background()

	require.NoError(t, c.Post(ctx, "req", "old", Comment))
	clock.t = clock.t.Add(time.Hour)
	require.NoError(t, c.Post(ctx, "req", "new", Comment))

	n, err := c.Cleanup(ctx, 30*time.Minute)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	entries, err := c.Get(ctx, "req", "")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "new", entries[0].Message)

	_, err = c.Cleanup(ctx, -time.Second)
	assert.True(t, errors.Is(err, errdefs.ErrInvalidArgument))
}

func TestConcurrentAgentPostsKeepOneEntry(t *testing.T) {
	t.Parallel()

	db := openTestDB(t)
	c := New(db, "gridflow-agent", "worker-1")
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs <- c.Post(ctx, "req-1", fmt.Sprintf("step %d", i), Info)
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	entries, err := c.Get(ctx, "req-1", Info)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}
