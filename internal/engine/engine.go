package engine

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"campustasks/internal/config"
	"campustasks/internal/domain"
	"campustasks/internal/events"
	"campustasks/internal/repo"
)

// Outcome reports what a lenient command did.
type Outcome string

const (
	OutcomeApplied          Outcome = "applied"
	OutcomeNotFound         Outcome = "not_found"
	OutcomeSelfAccept       Outcome = "self_accept"
	OutcomeAlreadyAccepted  Outcome = "already_accepted"
	OutcomeAlreadyCompleted Outcome = "already_completed"
	OutcomeNotAccepted      Outcome = "not_accepted"
)

// Applied reports whether the command changed state.
func (o Outcome) Applied() bool { return o == OutcomeApplied }

// ValidationError carries a message meant for the person filling the form.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

type Engine struct {
	Store  repo.Store
	Events events.Writer
	Config *config.Config
	Logger *zap.Logger
	Now    func() time.Time
	mu     *sync.Mutex
}

func New(store repo.Store, ev events.Writer, cfg *config.Config, logger *zap.Logger) Engine {
	if cfg == nil {
		cfg = config.Default()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return Engine{
		Store:  store,
		Events: ev,
		Config: cfg,
		Logger: logger,
		Now:    time.Now,
		mu:     &sync.Mutex{},
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) lock() func() {
	if e.mu == nil {
		return func() {}
	}
	e.mu.Lock()
	return e.mu.Unlock
}

func (e Engine) log() *zap.Logger {
	if e.Logger == nil {
		return zap.NewNop()
	}
	return e.Logger
}

func (e Engine) completePolicy() string {
	if e.Config == nil || e.Config.Policies.Complete == "" {
		return config.CompleteStrict
	}
	return e.Config.Policies.Complete
}

// TaskCreateOptions are parameters for posting a task.
type TaskCreateOptions struct {
	Title       string
	Description string
	Category    domain.Category
	Price       decimal.Decimal
	Deadline    string
	Attachments []domain.Attachment
	Links       []string
	ActorID     string
}

func (o TaskCreateOptions) validate() error {
	if strings.TrimSpace(o.ActorID) == "" {
		return errors.New("actor is required")
	}
	if strings.TrimSpace(o.Title) == "" {
		return &ValidationError{Field: "title", Message: "Title is required"}
	}
	if strings.TrimSpace(o.Description) == "" {
		return &ValidationError{Field: "description", Message: "Description is required"}
	}
	if strings.TrimSpace(o.Deadline) == "" {
		return &ValidationError{Field: "deadline", Message: "Deadline is required"}
	}
	if !o.Category.Valid() {
		return &ValidationError{Field: "category", Message: fmt.Sprintf("Unknown category %q", o.Category)}
	}
	if !o.Price.IsPositive() {
		return &ValidationError{Field: "price", Message: "Price must be greater than zero"}
	}
	return nil
}

// CreateTask validates opts and prepends a new open task to the collection.
func (e Engine) CreateTask(ctx context.Context, opts TaskCreateOptions) (domain.Task, error) {
	if opts.Category == "" {
		opts.Category = domain.DefaultCategory
	}
	if err := opts.validate(); err != nil {
		return domain.Task{}, err
	}
	defer e.lock()()

	tasks, err := e.loadTasks(ctx)
	if err != nil {
		return domain.Task{}, err
	}
	now := e.now()
	ts := now.UTC().Format(time.RFC3339)
	attachments := make([]domain.Attachment, 0, len(opts.Attachments))
	for _, a := range opts.Attachments {
		if strings.TrimSpace(a.Name) == "" {
			continue
		}
		attachments = append(attachments, a)
	}
	links := make([]string, 0, len(opts.Links))
	for _, l := range opts.Links {
		if l = strings.TrimSpace(l); l != "" {
			links = append(links, l)
		}
	}
	t := domain.Task{
		ID:          nextID(tasks, now),
		Title:       strings.TrimSpace(opts.Title),
		Description: strings.TrimSpace(opts.Description),
		Category:    opts.Category,
		Price:       opts.Price,
		Deadline:    strings.TrimSpace(opts.Deadline),
		Attachments: attachments,
		Links:       links,
		CreatedBy:   opts.ActorID,
		Status:      domain.StatusOpen,
		Version:     1,
		CreatedAt:   ts,
		UpdatedAt:   ts,
	}
	tasks = append([]domain.Task{t}, tasks...)
	if err := repo.SaveJSON(ctx, e.Store, repo.KeyTasks, tasks); err != nil {
		return domain.Task{}, err
	}
	e.appendEvent(ctx, events.TaskCreated, t, opts.ActorID, events.EventPayload{
		"title":    t.Title,
		"category": string(t.Category),
		"price":    t.Price.String(),
	})
	e.log().Info("task created", zap.Int64("task_id", t.ID), zap.String("actor", opts.ActorID))
	return t, nil
}

// AcceptTask assigns an open task to actorID. Unknown ids, self-acceptance and
// already accepted tasks leave the collection unchanged.
func (e Engine) AcceptTask(ctx context.Context, id int64, actorID string) (domain.Task, Outcome, error) {
	if strings.TrimSpace(actorID) == "" {
		return domain.Task{}, "", errors.New("actor is required")
	}
	defer e.lock()()

	tasks, err := e.loadTasks(ctx)
	if err != nil {
		return domain.Task{}, "", err
	}
	idx := indexOf(tasks, id)
	if idx < 0 {
		return e.ignored(domain.Task{ID: id}, OutcomeNotFound, "accept", actorID)
	}
	t := tasks[idx]
	switch {
	case t.CreatedBy == actorID:
		return e.ignored(t, OutcomeSelfAccept, "accept", actorID)
	case t.AcceptedBy != nil:
		return e.ignored(t, OutcomeAlreadyAccepted, "accept", actorID)
	}
	switch t.Status {
	case domain.StatusOpen:
	case domain.StatusAccepted:
		return e.ignored(t, OutcomeAlreadyAccepted, "accept", actorID)
	case domain.StatusCompleted:
		return e.ignored(t, OutcomeAlreadyCompleted, "accept", actorID)
	default:
		return domain.Task{}, "", fmt.Errorf("task %d: unknown status %q", t.ID, t.Status)
	}

	ts := e.now().UTC().Format(time.RFC3339)
	acceptor := actorID
	t.AcceptedBy = &acceptor
	t.Status = domain.StatusAccepted
	t.AcceptedAt = &ts
	t.UpdatedAt = ts
	t.Version++
	if err := t.CheckInvariants(); err != nil {
		return domain.Task{}, "", err
	}
	tasks[idx] = t
	if err := repo.SaveJSON(ctx, e.Store, repo.KeyTasks, tasks); err != nil {
		return domain.Task{}, "", err
	}
	e.appendEvent(ctx, events.TaskAccepted, t, actorID, events.EventPayload{"created_by": t.CreatedBy})
	e.log().Info("task accepted", zap.Int64("task_id", t.ID), zap.String("actor", actorID))
	return t, OutcomeApplied, nil
}

// CompleteTask marks a task completed according to the configured policy.
// The acceptor is never changed.
func (e Engine) CompleteTask(ctx context.Context, id int64, actorID string) (domain.Task, Outcome, error) {
	defer e.lock()()

	tasks, err := e.loadTasks(ctx)
	if err != nil {
		return domain.Task{}, "", err
	}
	idx := indexOf(tasks, id)
	if idx < 0 {
		return e.ignored(domain.Task{ID: id}, OutcomeNotFound, "complete", actorID)
	}
	t := tasks[idx]
	switch t.Status {
	case domain.StatusCompleted:
		return e.ignored(t, OutcomeAlreadyCompleted, "complete", actorID)
	case domain.StatusOpen:
		if e.completePolicy() != config.CompleteLenient {
			return e.ignored(t, OutcomeNotAccepted, "complete", actorID)
		}
	case domain.StatusAccepted:
	default:
		return domain.Task{}, "", fmt.Errorf("task %d: unknown status %q", t.ID, t.Status)
	}

	ts := e.now().UTC().Format(time.RFC3339)
	t.Status = domain.StatusCompleted
	t.CompletedAt = &ts
	t.UpdatedAt = ts
	t.Version++
	tasks[idx] = t
	if err := repo.SaveJSON(ctx, e.Store, repo.KeyTasks, tasks); err != nil {
		return domain.Task{}, "", err
	}
	e.appendEvent(ctx, events.TaskCompleted, t, actorID, events.EventPayload{
		"accepted_by": t.Acceptor(),
		"price":       t.Price.String(),
		"policy":      e.completePolicy(),
	})
	e.log().Info("task completed", zap.Int64("task_id", t.ID), zap.String("actor", actorID))
	return t, OutcomeApplied, nil
}

// GetTask returns the task with id or repo.ErrNotFound.
func (e Engine) GetTask(ctx context.Context, id int64) (domain.Task, error) {
	tasks, err := e.ListTasks(ctx)
	if err != nil {
		return domain.Task{}, err
	}
	if idx := indexOf(tasks, id); idx >= 0 {
		return tasks[idx], nil
	}
	return domain.Task{}, repo.ErrNotFound
}

// ListTasks returns the whole collection, most recent first.
func (e Engine) ListTasks(ctx context.Context) ([]domain.Task, error) {
	defer e.lock()()
	return e.loadTasks(ctx)
}

// SeedDemo stores tasks when the collection is empty and reports how many were written.
func (e Engine) SeedDemo(ctx context.Context, tasks []domain.Task) (int, error) {
	defer e.lock()()
	existing, err := e.loadTasks(ctx)
	if err != nil {
		return 0, err
	}
	if len(existing) > 0 {
		e.log().Info("seed skipped, tasks already present", zap.Int("tasks", len(existing)))
		return 0, nil
	}
	ts := e.now().UTC().Format(time.RFC3339)
	seeded := make([]domain.Task, 0, len(tasks))
	for _, t := range tasks {
		t = normalizeTask(t)
		if t.Version == 0 {
			t.Version = 1
		}
		if t.CreatedAt == "" {
			t.CreatedAt = ts
			t.UpdatedAt = ts
		}
		if err := t.CheckInvariants(); err != nil {
			return 0, err
		}
		seeded = append(seeded, t)
	}
	if err := repo.SaveJSON(ctx, e.Store, repo.KeyTasks, seeded); err != nil {
		return 0, err
	}
	e.log().Info("seeded demo tasks", zap.Int("tasks", len(seeded)))
	return len(seeded), nil
}

func (e Engine) loadTasks(ctx context.Context) ([]domain.Task, error) {
	var tasks []domain.Task
	if _, err := repo.LoadJSON(ctx, e.Store, repo.KeyTasks, &tasks); err != nil {
		return nil, err
	}
	for i := range tasks {
		tasks[i] = normalizeTask(tasks[i])
	}
	if tasks == nil {
		tasks = []domain.Task{}
	}
	return tasks, nil
}

// normalizeTask upgrades records written before attachments, links and status existed.
func normalizeTask(t domain.Task) domain.Task {
	if t.Attachments == nil {
		t.Attachments = []domain.Attachment{}
	}
	if t.Links == nil {
		t.Links = []string{}
	}
	if t.AcceptedBy != nil && *t.AcceptedBy == "" {
		t.AcceptedBy = nil
	}
	if t.Status == "" {
		if t.AcceptedBy != nil {
			t.Status = domain.StatusAccepted
		} else {
			t.Status = domain.StatusOpen
		}
	}
	return t
}

func (e Engine) ignored(t domain.Task, outcome Outcome, command, actorID string) (domain.Task, Outcome, error) {
	e.log().Debug("command ignored",
		zap.String("command", command),
		zap.Int64("task_id", t.ID),
		zap.String("actor", actorID),
		zap.String("outcome", string(outcome)))
	return t, outcome, nil
}

func (e Engine) appendEvent(ctx context.Context, evtType string, t domain.Task, actorID string, payload events.EventPayload) {
	id := strconv.FormatInt(t.ID, 10)
	if err := e.Events.Append(ctx, evtType, "task", id, actorID, payload); err != nil {
		e.log().Warn("append event failed", zap.String("type", evtType), zap.String("task_id", id), zap.Error(err))
	}
}

func indexOf(tasks []domain.Task, id int64) int {
	for i, t := range tasks {
		if t.ID == id {
			return i
		}
	}
	return -1
}

// nextID derives an id from the creation time, bumped past every existing id.
func nextID(tasks []domain.Task, now time.Time) int64 {
	id := now.UnixMilli()
	for _, t := range tasks {
		if t.ID >= id {
			id = t.ID + 1
		}
	}
	return id
}
