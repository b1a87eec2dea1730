package engine_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap/zaptest"

	"campustasks/internal/config"
	"campustasks/internal/db"
	"campustasks/internal/domain"
	"campustasks/internal/engine"
	"campustasks/internal/events"
	"campustasks/internal/migrate"
	"campustasks/internal/repo"
)

type testEnv struct {
	Engine engine.Engine
	Repo   repo.Repo
	Ctx    context.Context
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	return newTestEnvWithConfig(t, config.Default())
}

func newTestEnvWithConfig(t *testing.T, cfg *config.Config) testEnv {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.MigrateContext(context.Background(), conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	r := repo.Repo{DB: conn}
	eng := engine.New(r, events.Writer{DB: conn}, cfg, zaptest.NewLogger(t))
	eng.Now = func() time.Time { return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) }
	return testEnv{Engine: eng, Repo: r, Ctx: context.Background()}
}

func post(t *testing.T, env testEnv, actor, title string, price int64) domain.Task {
	t.Helper()
	task, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{
		Title:       title,
		Description: "details for " + title,
		Category:    domain.CategoryCoding,
		Price:       decimal.NewFromInt(price),
		Deadline:    "Tomorrow",
		ActorID:     actor,
	})
	if err != nil {
		t.Fatalf("create task: %v", err)
	}
	return task
}

func TestCreateTaskDefaults(t *testing.T) {
	env := newTestEnv(t)
	task, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{
		Title:       "  Debug Python assignment ",
		Description: "for loop error",
		Price:       decimal.NewFromInt(150),
		Deadline:    "Today, 11:00 PM",
		Links:       []string{" https://example.com ", ""},
		ActorID:     "u1",
	})
	if err != nil {
		t.Fatalf("create task: %v", err)
	}
	if task.Status != domain.StatusOpen || task.AcceptedBy != nil {
		t.Fatalf("expected open task without acceptor, got %+v", task)
	}
	if task.Category != domain.CategoryCoding {
		t.Fatalf("expected default category, got %q", task.Category)
	}
	if task.Title != "Debug Python assignment" {
		t.Fatalf("title not trimmed: %q", task.Title)
	}
	if task.Attachments == nil || len(task.Attachments) != 0 {
		t.Fatalf("expected empty attachments, got %#v", task.Attachments)
	}
	if len(task.Links) != 1 || task.Links[0] != "https://example.com" {
		t.Fatalf("unexpected links %#v", task.Links)
	}
	if task.ID != env.Engine.Now().UnixMilli() {
		t.Fatalf("expected id from creation time, got %d", task.ID)
	}
	evs, err := env.Repo.LatestEvents(env.Ctx, repo.EventFilters{Type: events.TaskCreated})
	if err != nil || len(evs) != 1 {
		t.Fatalf("expected task.created event, got %v %v", evs, err)
	}
}

func TestCreateTaskValidation(t *testing.T) {
	env := newTestEnv(t)
	cases := []struct {
		name  string
		opts  engine.TaskCreateOptions
		field string
	}{
		{"title", engine.TaskCreateOptions{Title: " ", Description: "d", Deadline: "x", Price: decimal.NewFromInt(1)}, "title"},
		{"description", engine.TaskCreateOptions{Title: "t", Deadline: "x", Price: decimal.NewFromInt(1)}, "description"},
		{"deadline", engine.TaskCreateOptions{Title: "t", Description: "d", Price: decimal.NewFromInt(1)}, "deadline"},
		{"price", engine.TaskCreateOptions{Title: "t", Description: "d", Deadline: "x", Price: decimal.Zero}, "price"},
		{"category", engine.TaskCreateOptions{Title: "t", Description: "d", Deadline: "x", Price: decimal.NewFromInt(1), Category: domain.CategoryAll}, "category"},
	}
	for _, tc := range cases {
		tc.opts.ActorID = "u1"
		_, err := env.Engine.CreateTask(env.Ctx, tc.opts)
		var verr *engine.ValidationError
		if !errors.As(err, &verr) || verr.Field != tc.field {
			t.Fatalf("%s: expected validation error on %s, got %v", tc.name, tc.field, err)
		}
	}
	tasks, err := env.Engine.ListTasks(env.Ctx)
	if err != nil || len(tasks) != 0 {
		t.Fatalf("expected no tasks after failed creates, got %d %v", len(tasks), err)
	}
}

func TestIDsStrictlyIncreaseWithinSameMillisecond(t *testing.T) {
	env := newTestEnv(t)
	a := post(t, env, "u1", "first", 10)
	b := post(t, env, "u1", "second", 10)
	if b.ID <= a.ID {
		t.Fatalf("expected increasing ids, got %d then %d", a.ID, b.ID)
	}
	tasks, _ := env.Engine.ListTasks(env.Ctx)
	if tasks[0].ID != b.ID || tasks[1].ID != a.ID {
		t.Fatalf("expected most recent first, got %d,%d", tasks[0].ID, tasks[1].ID)
	}
}

// A posts, B accepts, B completes.
func TestAcceptThenComplete(t *testing.T) {
	env := newTestEnv(t)
	task := post(t, env, "A", "Explain linked lists", 120)

	got, outcome, err := env.Engine.AcceptTask(env.Ctx, task.ID, "B")
	if err != nil || outcome != engine.OutcomeApplied {
		t.Fatalf("accept: %v %s", err, outcome)
	}
	if got.Status != domain.StatusAccepted || !got.IsAcceptedBy("B") || got.Version != 2 || got.AcceptedAt == nil {
		t.Fatalf("unexpected accepted task %+v", got)
	}

	got, outcome, err = env.Engine.CompleteTask(env.Ctx, task.ID, "B")
	if err != nil || outcome != engine.OutcomeApplied {
		t.Fatalf("complete: %v %s", err, outcome)
	}
	if got.Status != domain.StatusCompleted || !got.IsAcceptedBy("B") || got.CompletedAt == nil {
		t.Fatalf("unexpected completed task %+v", got)
	}
	stored, err := env.Engine.GetTask(env.Ctx, task.ID)
	if err != nil {
		t.Fatalf("get task: %v", err)
	}
	if stored.Status != domain.StatusCompleted || stored.Version != 3 {
		t.Fatalf("persisted task mismatch %+v", stored)
	}
	evs, err := env.Repo.LatestEvents(env.Ctx, repo.EventFilters{EntityKind: "task"})
	if err != nil || len(evs) != 3 {
		t.Fatalf("expected 3 task events, got %d %v", len(evs), err)
	}
	if evs[0].Type != events.TaskCompleted || evs[0].ActorID != "B" {
		t.Fatalf("unexpected latest event %+v", evs[0])
	}
}

func TestSelfAcceptIsNoop(t *testing.T) {
	env := newTestEnv(t)
	task := post(t, env, "A", "mine", 50)
	got, outcome, err := env.Engine.AcceptTask(env.Ctx, task.ID, "A")
	if err != nil || outcome != engine.OutcomeSelfAccept {
		t.Fatalf("expected self_accept, got %s %v", outcome, err)
	}
	if got.Status != domain.StatusOpen || got.AcceptedBy != nil {
		t.Fatalf("task changed: %+v", got)
	}
	stored, _ := env.Engine.GetTask(env.Ctx, task.ID)
	if stored.Version != 1 {
		t.Fatalf("expected no write, version %d", stored.Version)
	}
}

func TestAcceptIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	task := post(t, env, "A", "notes", 80)
	if _, _, err := env.Engine.AcceptTask(env.Ctx, task.ID, "B"); err != nil {
		t.Fatal(err)
	}
	_, outcome, err := env.Engine.AcceptTask(env.Ctx, task.ID, "C")
	if err != nil || outcome != engine.OutcomeAlreadyAccepted {
		t.Fatalf("expected already_accepted, got %s %v", outcome, err)
	}
	_, outcome, _ = env.Engine.AcceptTask(env.Ctx, task.ID, "B")
	if outcome != engine.OutcomeAlreadyAccepted {
		t.Fatalf("repeat accept by acceptor should be ignored, got %s", outcome)
	}
	stored, _ := env.Engine.GetTask(env.Ctx, task.ID)
	if !stored.IsAcceptedBy("B") || stored.Version != 2 {
		t.Fatalf("acceptor overwritten: %+v", stored)
	}
}

func TestUnknownIDs(t *testing.T) {
	env := newTestEnv(t)
	if _, outcome, err := env.Engine.AcceptTask(env.Ctx, 42, "B"); err != nil || outcome != engine.OutcomeNotFound {
		t.Fatalf("accept unknown: %s %v", outcome, err)
	}
	if _, outcome, err := env.Engine.CompleteTask(env.Ctx, 42, "B"); err != nil || outcome != engine.OutcomeNotFound {
		t.Fatalf("complete unknown: %s %v", outcome, err)
	}
	if _, err := env.Engine.GetTask(env.Ctx, 42); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestCompletePolicies(t *testing.T) {
	strict := newTestEnv(t)
	task := post(t, strict, "A", "open task", 90)
	got, outcome, err := strict.Engine.CompleteTask(strict.Ctx, task.ID, "A")
	if err != nil || outcome != engine.OutcomeNotAccepted || got.Status != domain.StatusOpen {
		t.Fatalf("strict complete of open task: %s %v %+v", outcome, err, got)
	}

	cfg := config.Default()
	cfg.Policies.Complete = config.CompleteLenient
	lenient := newTestEnvWithConfig(t, cfg)
	task = post(t, lenient, "A", "open task", 90)
	got, outcome, err = lenient.Engine.CompleteTask(lenient.Ctx, task.ID, "A")
	if err != nil || outcome != engine.OutcomeApplied {
		t.Fatalf("lenient complete: %s %v", outcome, err)
	}
	if got.Status != domain.StatusCompleted || got.AcceptedBy != nil {
		t.Fatalf("lenient complete must keep acceptor untouched: %+v", got)
	}
	_, outcome, _ = lenient.Engine.CompleteTask(lenient.Ctx, task.ID, "A")
	if outcome != engine.OutcomeAlreadyCompleted {
		t.Fatalf("expected already_completed, got %s", outcome)
	}
	_, outcome, _ = lenient.Engine.AcceptTask(lenient.Ctx, task.ID, "B")
	if outcome != engine.OutcomeAlreadyCompleted {
		t.Fatalf("completed task must not be accepted, got %s", outcome)
	}
}

func TestLegacyTasksAreNormalized(t *testing.T) {
	env := newTestEnv(t)
	legacy := `[{"id":2,"title":"Share notes","description":"d","category":"Notes / Study Material","price":80,"deadline":"x","createdBy":"u1","acceptedBy":"u2"},
{"id":1,"title":"Debug","description":"d","category":"Coding / Assignments","price":150,"deadline":"x","createdBy":"u1","acceptedBy":null}]`
	if err := env.Repo.Set(env.Ctx, repo.KeyTasks, []byte(legacy)); err != nil {
		t.Fatal(err)
	}
	tasks, err := env.Engine.ListTasks(env.Ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if tasks[0].Status != domain.StatusAccepted || tasks[1].Status != domain.StatusOpen {
		t.Fatalf("legacy status not derived: %s %s", tasks[0].Status, tasks[1].Status)
	}
	for _, task := range tasks {
		if task.Attachments == nil || task.Links == nil {
			t.Fatalf("legacy lists not defaulted: %+v", task)
		}
	}
	if !tasks[1].Price.Equal(decimal.NewFromInt(150)) {
		t.Fatalf("price decode: %s", tasks[1].Price)
	}
}

func TestStorageFailureKeepsPreviousState(t *testing.T) {
	mem := repo.NewMemory()
	eng := engine.New(mem, events.Writer{}, config.Default(), zaptest.NewLogger(t))
	ctx := context.Background()
	task, err := eng.CreateTask(ctx, engine.TaskCreateOptions{
		Title: "t", Description: "d", Deadline: "x", Price: decimal.NewFromInt(5), ActorID: "A",
	})
	if err != nil {
		t.Fatal(err)
	}
	mem.FailSet = errors.New("disk full")
	if _, _, err := eng.AcceptTask(ctx, task.ID, "B"); err == nil {
		t.Fatalf("expected storage error")
	}
	mem.FailSet = nil
	stored, err := eng.GetTask(ctx, task.ID)
	if err != nil || stored.Status != domain.StatusOpen {
		t.Fatalf("state changed after failed write: %+v %v", stored, err)
	}
}

func TestSeedDemoOnlyIntoEmptyCollection(t *testing.T) {
	env := newTestEnv(t)
	acceptor := "u2"
	demo := []domain.Task{
		{ID: 2, Title: "b", Description: "d", Category: domain.CategoryLabWork, Price: decimal.NewFromInt(100), Deadline: "x", CreatedBy: "u1", AcceptedBy: &acceptor, Status: domain.StatusCompleted},
		{ID: 1, Title: "a", Description: "d", Category: domain.CategoryOther, Price: decimal.NewFromInt(90), Deadline: "x", CreatedBy: "u1"},
	}
	n, err := env.Engine.SeedDemo(env.Ctx, demo)
	if err != nil || n != 2 {
		t.Fatalf("seed: %d %v", n, err)
	}
	n, err = env.Engine.SeedDemo(env.Ctx, demo)
	if err != nil || n != 0 {
		t.Fatalf("second seed should be skipped: %d %v", n, err)
	}
	got, _ := env.Engine.GetTask(env.Ctx, 1)
	if got.Status != domain.StatusOpen || got.Version != 1 {
		t.Fatalf("seeded task not normalized: %+v", got)
	}
}
