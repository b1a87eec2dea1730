package app_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"campustasks/internal/app"
	"campustasks/internal/config"
	"campustasks/internal/domain"
	"campustasks/internal/stats"
	"campustasks/internal/views"
)

func TestOpenUsesWorkspaceConfig(t *testing.T) {
	dir := t.TempDir()
	yml := "policies:\n  complete: lenient\nmarketplace:\n  default_campus: North Campus\n"
	require.NoError(t, os.WriteFile(config.Path(dir), []byte(yml), 0o644))

	a, err := app.Open(context.Background(), app.Options{Workspace: dir, Logger: zaptest.NewLogger(t)})
	require.NoError(t, err)
	defer a.Close()
	require.Equal(t, config.CompleteLenient, a.Config.Policies.Complete)
	require.Equal(t, "North Campus", a.Config.Marketplace.DefaultCampus)
	require.Equal(t, 300, a.Config.Marketplace.BioMaxLength)
	_, err = os.Stat(filepath.Join(dir, ".campustasks", "campustasks.db"))
	require.NoError(t, err)
}

func TestLoadEnvKeepsExistingVariables(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("CAMPUSTASKS_TEST_A=from-file\nCAMPUSTASKS_TEST_B=from-file\n"), 0o644))
	t.Setenv("CAMPUSTASKS_TEST_A", "from-env")
	require.NoError(t, app.LoadEnv(dir))
	require.Equal(t, "from-env", os.Getenv("CAMPUSTASKS_TEST_A"))
	require.Equal(t, "from-file", os.Getenv("CAMPUSTASKS_TEST_B"))
	os.Unsetenv("CAMPUSTASKS_TEST_B")

	require.NoError(t, app.LoadEnv(t.TempDir()))
}

func TestSeedDemo(t *testing.T) {
	ctx := context.Background()
	a, err := app.Open(ctx, app.Options{Workspace: t.TempDir(), Logger: zaptest.NewLogger(t)})
	require.NoError(t, err)
	defer a.Close()
	a.Accounts.HashCost = 4

	res, err := a.SeedDemo(ctx)
	require.NoError(t, err)
	require.Equal(t, app.SeedResult{Users: 6, Tasks: 7}, res)

	again, err := a.SeedDemo(ctx)
	require.NoError(t, err)
	require.Equal(t, app.SeedResult{}, again)

	tasks, err := a.Engine.ListTasks(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(7), tasks[0].ID)
	for _, task := range tasks {
		require.NoError(t, task.CheckInvariants())
	}
	open := views.Marketplace(tasks, "demo-alex", views.MarketFilter{})
	require.Len(t, open, 5)

	users, err := a.Accounts.List(ctx)
	require.NoError(t, err)
	board := stats.Leaderboard(stats.CompletedCounts(tasks, users))
	require.Equal(t, 1, board[0].Completed)
	require.Equal(t, "demo-alex", board[0].UserID)

	u, err := a.Accounts.Login(ctx, "neha.verma@demo.campus", app.DemoPassword)
	require.NoError(t, err)
	require.Equal(t, domain.RoleBoth, u.Role)
}
