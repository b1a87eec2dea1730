package repo_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"campustasks/internal/db"
	"campustasks/internal/events"
	"campustasks/internal/migrate"
	"campustasks/internal/repo"
)

func openRepo(t *testing.T) (repo.Repo, events.Writer) {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, migrate.MigrateContext(context.Background(), conn))
	now := func() time.Time { return time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC) }
	return repo.Repo{DB: conn, Now: now}, events.Writer{DB: conn, Now: now}
}

func TestMigrateIsIdempotent(t *testing.T) {
	r, _ := openRepo(t)
	ctx := context.Background()
	v, err := migrate.Version(ctx, r.DB)
	require.NoError(t, err)
	require.Equal(t, 2, v)
	require.NoError(t, migrate.MigrateContext(ctx, r.DB))
	v, err = migrate.Version(ctx, r.DB)
	require.NoError(t, err)
	require.Equal(t, 2, v)
}

func TestVersionOfEmptyDatabase(t *testing.T) {
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	defer conn.Close()
	v, err := migrate.Version(context.Background(), conn)
	require.NoError(t, err)
	require.Zero(t, v)
}

func TestKVRoundTrip(t *testing.T) {
	r, _ := openRepo(t)
	ctx := context.Background()

	_, err := r.Get(ctx, repo.KeyTasks)
	require.True(t, errors.Is(err, repo.ErrNotFound))

	require.NoError(t, r.Set(ctx, repo.KeyTasks, []byte(`[1]`)))
	require.NoError(t, r.Set(ctx, repo.KeyTasks, []byte(`[1,2]`)))
	got, err := r.Get(ctx, repo.KeyTasks)
	require.NoError(t, err)
	require.JSONEq(t, `[1,2]`, string(got))

	keys, err := r.Keys(ctx)
	require.NoError(t, err)
	require.Equal(t, map[string]string{repo.KeyTasks: "2024-03-01T12:00:00Z"}, keys)

	require.NoError(t, r.Delete(ctx, repo.KeyTasks))
	_, err = r.Get(ctx, repo.KeyTasks)
	require.True(t, errors.Is(err, repo.ErrNotFound))
}

func TestLoadJSON(t *testing.T) {
	ctx := context.Background()
	mem := repo.NewMemory()

	var users []string
	ok, err := repo.LoadJSON(ctx, mem, repo.KeyUsers, &users)
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, repo.SaveJSON(ctx, mem, repo.KeyUsers, []string{"a", "b"}))
	ok, err = repo.LoadJSON(ctx, mem, repo.KeyUsers, &users)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []string{"a", "b"}, users)

	require.NoError(t, mem.Set(ctx, repo.KeyUsers, []byte("{not json")))
	_, err = repo.LoadJSON(ctx, mem, repo.KeyUsers, &users)
	require.ErrorContains(t, err, "decode "+repo.KeyUsers)
}

func TestMemoryFailSet(t *testing.T) {
	ctx := context.Background()
	mem := repo.NewMemory()
	require.NoError(t, mem.Set(ctx, "k", []byte("v")))
	mem.FailSet = errors.New("disk full")
	require.EqualError(t, repo.SaveJSON(ctx, mem, "k", "w"), "disk full")
	got, err := mem.Get(ctx, "k")
	require.NoError(t, err)
	require.Equal(t, "v", string(got))
}

func TestEventQueries(t *testing.T) {
	r, w := openRepo(t)
	ctx := context.Background()
	require.NoError(t, w.Append(ctx, events.UserSignup, "user", "u1", "u1", nil))
	require.NoError(t, w.Append(ctx, events.TaskCreated, "task", "10", "u1", events.EventPayload{"title": "Notes"}))
	require.NoError(t, w.Append(ctx, events.TaskAccepted, "task", "10", "u2", nil))

	latest, err := r.LatestEventID(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 3, latest)

	all, err := r.LatestEvents(ctx, repo.EventFilters{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	require.Equal(t, events.TaskAccepted, all[0].Type)
	require.Equal(t, "2024-03-01T12:00:00Z", all[0].TS)

	tasks, err := r.LatestEvents(ctx, repo.EventFilters{EntityKind: "task", ActorID: "u1"})
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	require.JSONEq(t, `{"title":"Notes"}`, tasks[0].Payload)

	page, err := r.LatestEvents(ctx, repo.EventFilters{Cursor: 3, Limit: 1})
	require.NoError(t, err)
	require.Len(t, page, 1)
	require.EqualValues(t, 2, page[0].ID)

	after, err := r.EventsAfter(ctx, 10, 1)
	require.NoError(t, err)
	require.Len(t, after, 2)
	require.EqualValues(t, 2, after[0].ID)
	require.EqualValues(t, 3, after[1].ID)
}

func TestWriterWithoutDBDiscards(t *testing.T) {
	require.NoError(t, events.Writer{}.Append(context.Background(), events.TaskCreated, "task", "1", "u", nil))
}
