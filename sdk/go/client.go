package campustaskssdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal CampusTasks HTTP API client.
type Client struct {
	BaseURL     string
	BasePath    string
	BearerToken string
	// UserID is sent as X-User-Id when no token is set; servers accept it only in dev mode.
	UserID     string
	HTTPClient *http.Client
	Timeout    time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL:  baseURL,
		BasePath: "/v0",
		Timeout:  10 * time.Second,
	}
}

// User is the public profile of an account.
type User struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	Email           string `json:"email"`
	Campus          string `json:"campus"`
	Role            string `json:"role"`
	RoleDescription string `json:"role_description"`
	Bio             string `json:"bio"`
	CreatedAt       string `json:"created_at"`
}

type Attachment struct {
	Name string `json:"name"`
	Type string `json:"type,omitempty"`
}

// Task represents the API task model.
type Task struct {
	ID             int64        `json:"id"`
	Title          string       `json:"title"`
	Description    string       `json:"description"`
	Category       string       `json:"category"`
	Price          float64      `json:"price"`
	PriceBracket   string       `json:"price_bracket"`
	Deadline       string       `json:"deadline"`
	Attachments    []Attachment `json:"attachments"`
	Links          []string     `json:"links"`
	CreatedBy      string       `json:"created_by"`
	CreatedByName  string       `json:"created_by_name,omitempty"`
	AcceptedBy     *string      `json:"accepted_by"`
	AcceptedByName string       `json:"accepted_by_name,omitempty"`
	Status         string       `json:"status"`
	Version        int          `json:"version"`
}

// NewTask is the payload for posting a task. Category defaults server side.
type NewTask struct {
	Title       string       `json:"title"`
	Description string       `json:"description"`
	Category    string       `json:"category,omitempty"`
	Price       float64      `json:"price"`
	Deadline    string       `json:"deadline"`
	Attachments []Attachment `json:"attachments,omitempty"`
	Links       []string     `json:"links,omitempty"`
}

// CommandResult reports the outcome of accept and complete. Task is nil for unknown ids.
type CommandResult struct {
	Outcome string `json:"outcome"`
	Task    *Task  `json:"task,omitempty"`
}

// Applied reports whether the command changed the task.
func (r CommandResult) Applied() bool { return r.Outcome == "applied" }

// MarketFilter narrows ListTasks. Empty fields mean the server default.
type MarketFilter struct {
	Scope    string
	Category string
	Price    string
}

type History struct {
	Posted    []Task `json:"posted"`
	Completed []Task `json:"completed"`
	Timeline  []Task `json:"timeline"`
}

type Stats struct {
	Posted          int     `json:"posted"`
	AcceptedByYou   int     `json:"accepted_by_you"`
	Completed       int     `json:"completed"`
	CompletedByYou  int     `json:"completed_by_you"`
	Earnings        float64 `json:"earnings"`
	Spent           float64 `json:"spent"`
	PendingOutgoing int     `json:"pending_outgoing"`
	PendingIncoming int     `json:"pending_incoming"`
	PendingTotal    int     `json:"pending_total"`
}

type LeaderboardEntry struct {
	Rank      int    `json:"rank"`
	UserID    string `json:"user_id"`
	Name      string `json:"name"`
	Completed int    `json:"completed"`
}

// Event represents a log entry.
type Event struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts"`
	Type       string         `json:"type"`
	EntityID   string         `json:"entity_id"`
	EntityKind string         `json:"entity_kind"`
	ActorID    string         `json:"actor_id"`
	Payload    map[string]any `json:"payload"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Body       string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("api error: status=%d code=%s message=%s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// PaginatedEvents wraps list responses with cursors.
type PaginatedEvents struct {
	Items      []Event `json:"items"`
	NextCursor string  `json:"next_cursor"`
}

type authResponse struct {
	User  User   `json:"user"`
	Token string `json:"token"`
}

// Signup creates an account and stores the returned token on the client.
func (c *Client) Signup(ctx context.Context, name, email, password string) (User, error) {
	var resp authResponse
	body := map[string]any{"name": name, "email": email, "password": password}
	if err := c.do(ctx, http.MethodPost, "auth/signup", body, &resp); err != nil {
		return User{}, err
	}
	c.BearerToken = resp.Token
	return resp.User, nil
}

// Login exchanges credentials for a token and stores it on the client.
func (c *Client) Login(ctx context.Context, email, password string) (User, error) {
	var resp authResponse
	body := map[string]any{"email": email, "password": password}
	if err := c.do(ctx, http.MethodPost, "auth/login", body, &resp); err != nil {
		return User{}, err
	}
	c.BearerToken = resp.Token
	return resp.User, nil
}

// Me returns the authenticated user.
func (c *Client) Me(ctx context.Context) (User, error) {
	var resp User
	err := c.do(ctx, http.MethodGet, "me", nil, &resp)
	return resp, err
}

// UpdateBio replaces the authenticated user's bio.
func (c *Client) UpdateBio(ctx context.Context, bio string) (User, error) {
	var resp User
	err := c.do(ctx, http.MethodPatch, "me/bio", map[string]any{"bio": bio}, &resp)
	return resp, err
}

// ListTasks browses the marketplace.
func (c *Client) ListTasks(ctx context.Context, f MarketFilter) ([]Task, error) {
	q := url.Values{}
	if f.Scope != "" {
		q.Set("scope", f.Scope)
	}
	if f.Category != "" {
		q.Set("category", f.Category)
	}
	if f.Price != "" {
		q.Set("price", f.Price)
	}
	endpoint := "tasks"
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	var resp struct {
		Items []Task `json:"items"`
	}
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp.Items, err
}

// CreateTask posts a task.
func (c *Client) CreateTask(ctx context.Context, t NewTask) (Task, error) {
	var resp Task
	err := c.do(ctx, http.MethodPost, "tasks", t, &resp)
	return resp, err
}

// GetTask fetches a task by id.
func (c *Client) GetTask(ctx context.Context, id int64) (Task, error) {
	var resp Task
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("tasks/%d", id), nil, &resp)
	return resp, err
}

// Accept accepts a task as the authenticated user.
func (c *Client) Accept(ctx context.Context, id int64) (CommandResult, error) {
	var resp CommandResult
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("tasks/%d/accept", id), nil, &resp)
	return resp, err
}

// Complete marks a task completed.
func (c *Client) Complete(ctx context.Context, id int64) (CommandResult, error) {
	var resp CommandResult
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("tasks/%d/complete", id), nil, &resp)
	return resp, err
}

// MyAccepted lists tasks the authenticated user still has to finish.
func (c *Client) MyAccepted(ctx context.Context) ([]Task, error) {
	var resp struct {
		Items []Task `json:"items"`
	}
	err := c.do(ctx, http.MethodGet, "me/accepted", nil, &resp)
	return resp.Items, err
}

// History returns posted and completed tasks of the authenticated user.
func (c *Client) History(ctx context.Context, completedOnly bool) (History, error) {
	endpoint := "me/history"
	if completedOnly {
		endpoint += "?completed_only=true"
	}
	var resp History
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// Stats returns dashboard counters.
func (c *Client) Stats(ctx context.Context) (Stats, error) {
	var resp Stats
	err := c.do(ctx, http.MethodGet, "me/stats", nil, &resp)
	return resp, err
}

// Leaderboard returns the top users by completed tasks.
func (c *Client) Leaderboard(ctx context.Context, limit int) ([]LeaderboardEntry, error) {
	endpoint := "leaderboard"
	if limit > 0 {
		endpoint = fmt.Sprintf("%s?limit=%d", endpoint, limit)
	}
	var resp struct {
		Items []LeaderboardEntry `json:"items"`
	}
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp.Items, err
}

// Events returns recent events.
func (c *Client) Events(ctx context.Context, limit int) ([]Event, error) {
	page, err := c.EventsPage(ctx, limit, "")
	return page.Items, err
}

// EventsPage returns a paginated event listing.
func (c *Client) EventsPage(ctx context.Context, limit int, cursor string) (PaginatedEvents, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", fmt.Sprintf("%d", limit))
	}
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	endpoint := "events"
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	var resp PaginatedEvents
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.UserID != "":
		req.Header.Set("X-User-Id", c.UserID)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(b)}
		var env struct {
			Error struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			} `json:"error"`
		}
		if json.Unmarshal(b, &env) == nil {
			apiErr.Code = env.Error.Code
			apiErr.Message = env.Error.Message
		}
		return apiErr
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	base := strings.TrimRight(c.BaseURL, "/")
	if p := strings.Trim(c.BasePath, "/"); p != "" {
		base += "/" + p
	}
	return base
}
