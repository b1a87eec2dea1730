package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"campustasks/internal/domain"
	"campustasks/internal/engine"
	"campustasks/internal/engine/auth"
	"campustasks/internal/repo"
	"campustasks/internal/stats"
	"campustasks/internal/views"
)

// Config for the HTTP API handler.
type Config struct {
	Engine   engine.Engine
	Accounts auth.Service
	Repo     repo.Repo
	BasePath string
	Auth     AuthConfig
	Logger   *zap.Logger
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"validation_failed"`
	Message string         `json:"message" example:"Invalid email format"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true"`
}

// apiError models the error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

type deps struct {
	engine   engine.Engine
	accounts auth.Service
	repo     repo.Repo
	auth     AuthConfig
	logger   *zap.Logger
}

// New returns an HTTP handler exposing the CampusTasks API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v0"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	if cfg.Engine.Store == nil || cfg.Accounts.Store == nil {
		return nil, errors.New("engine and accounts are required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Auth.Logger == nil {
		cfg.Auth.Logger = logger
	}
	accounts := cfg.Accounts
	accounts.Stateless = true
	d := deps{engine: cfg.Engine, accounts: accounts, repo: cfg.Repo, auth: cfg.Auth, logger: logger}

	huma.DefaultArrayNullable = false
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		if status == http.StatusUnprocessableEntity || strings.Contains(strings.ToLower(msg), "validation") {
			return newAPIError(http.StatusBadRequest, "validation_failed", msg, details)
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	router.Use(middleware.Recoverer)
	router.Use(newLoggingMiddleware(logger.Named("http")))
	router.Use(newAuthMiddleware(basePath, cfg.Auth))
	hcfg := huma.DefaultConfig("CampusTasks API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = "" // custom Swagger UI below
	api := humachi.New(router, hcfg)
	api.OpenAPI().Components.Schemas.Schema(reflect.TypeOf(apiError{}), true, "ApiError")
	group := huma.NewGroup(api, basePath)

	registerDocs(router, basePath)
	registerHealth(group)
	registerAuth(group, d)
	registerMe(group, d)
	registerTasks(group, d)
	registerLeaderboard(group, d)
	registerEvents(group, d)
	registerOpenAPI(router, api, basePath)

	return router, nil
}

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	return &apiError{
		status: status,
		Body: apiErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

func (d deps) handleError(ctx context.Context, err error) huma.StatusError {
	if err == nil {
		return nil
	}
	var ev *engine.ValidationError
	if errors.As(err, &ev) {
		return newAPIError(http.StatusBadRequest, "validation_failed", ev.Message, map[string]any{"field": ev.Field})
	}
	var av *auth.ValidationError
	if errors.As(err, &av) {
		return newAPIError(http.StatusBadRequest, "validation_failed", av.Message, nil)
	}
	if errors.Is(err, repo.ErrNotFound) {
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	}
	d.logger.Error("request failed", zap.String("request_id", requestID(ctx)), zap.Error(err))
	return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": err.Error()})
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusUnauthorized:
		return "unauthorized"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusUnprocessableEntity:
		return "validation_failed"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

func registerDocs(r chi.Router, basePath string) {
	r.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, swaggerHTML(basePath))
	})
}

func registerOpenAPI(r chi.Router, api huma.API, basePath string) {
	var spec []byte
	specPath := path.Join(basePath, "openapi.json")
	r.Get(specPath, func(w http.ResponseWriter, r *http.Request) {
		if spec == nil {
			oas := api.OpenAPI()
			ensureDefaultErrorResponses(oas)
			applyAuthSecurity(oas, basePath)
			spec, _ = json.Marshal(oas)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(spec)
	})
}

func ensureDefaultErrorResponses(oas *huma.OpenAPI) {
	if oas == nil || oas.Paths == nil {
		return
	}
	for _, item := range oas.Paths {
		for _, op := range []*huma.Operation{
			item.Get, item.Put, item.Post, item.Delete, item.Options, item.Head, item.Patch, item.Trace,
		} {
			if op == nil {
				continue
			}
			if op.Responses == nil {
				op.Responses = map[string]*huma.Response{}
			}
			op.Responses["default"] = &huma.Response{
				Description: "Error",
				Content: map[string]*huma.MediaType{
					"application/json": {
						Schema: &huma.Schema{Ref: "#/components/schemas/ApiError"},
					},
				},
			}
		}
	}
}

func applyAuthSecurity(oas *huma.OpenAPI, basePath string) {
	if oas == nil {
		return
	}
	if oas.Components == nil {
		oas.Components = &huma.Components{}
	}
	if oas.Components.SecuritySchemes == nil {
		oas.Components.SecuritySchemes = map[string]*huma.SecurityScheme{}
	}
	oas.Components.SecuritySchemes["bearerAuth"] = &huma.SecurityScheme{
		Type:         "http",
		Scheme:       "bearer",
		BearerFormat: "JWT",
	}
	security := []map[string][]string{{"bearerAuth": {}}}
	oas.Security = security
	public := map[string]bool{
		path.Join(basePath, "health"):      true,
		path.Join(basePath, "auth/signup"): true,
		path.Join(basePath, "auth/login"):  true,
	}
	for route, item := range oas.Paths {
		for _, op := range []*huma.Operation{
			item.Get, item.Put, item.Post, item.Delete, item.Options, item.Head, item.Patch, item.Trace,
		} {
			if op == nil {
				continue
			}
			if public[route] {
				op.Security = []map[string][]string{}
				continue
			}
			op.Security = security
		}
	}
}

func swaggerHTML(basePath string) string {
	specURL := path.Join("/", path.Join(basePath, "openapi.json"))
	return fmt.Sprintf(`<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8"/>
    <meta name="viewport" content="width=device-width, initial-scale=1"/>
    <title>CampusTasks API Docs</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js" crossorigin></script>
    <script>
      window.onload = () => {
        SwaggerUIBundle({
          url: '%s',
          dom_id: '#swagger-ui'
        });
      };
    </script>
    <p style="padding: 1rem; font-family: sans-serif; color: #444;">
      Authenticate with Authorization: Bearer &lt;token&gt; from /auth/login.
    </p>
  </body>
</html>`, specURL)
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "ok"}}, nil
	})
}

func (d deps) authResponse(u domain.User) (*struct {
	Body AuthResponse `json:"body"`
}, error) {
	token, err := issueToken(d.auth.JWTSecret, u, time.Now(), d.auth.ttl())
	if err != nil {
		return nil, newAPIError(http.StatusInternalServerError, "internal_error", err.Error(), nil)
	}
	return &struct {
		Body AuthResponse `json:"body"`
	}{Body: AuthResponse{User: userResponse(u), Token: token}}, nil
}

func registerAuth(api huma.API, d deps) {
	huma.Register(api, huma.Operation{
		OperationID:   "signup",
		Method:        http.MethodPost,
		Path:          "/auth/signup",
		Summary:       "Create an account",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusInternalServerError},
	}, func(ctx context.Context, input *struct {
		Body SignupRequest `json:"body"`
	}) (*struct {
		Body AuthResponse `json:"body"`
	}, error) {
		u, err := d.accounts.Signup(ctx, auth.SignupInput{
			Name:     input.Body.Name,
			Email:    input.Body.Email,
			Password: input.Body.Password,
			Campus:   input.Body.Campus,
			Role:     domain.Role(input.Body.Role),
		})
		if err != nil {
			return nil, d.handleError(ctx, err)
		}
		return d.authResponse(u)
	})

	huma.Register(api, huma.Operation{
		OperationID: "login",
		Method:      http.MethodPost,
		Path:        "/auth/login",
		Summary:     "Exchange credentials for a token",
		Errors:      []int{http.StatusBadRequest, http.StatusInternalServerError},
	}, func(ctx context.Context, input *struct {
		Body LoginRequest `json:"body"`
	}) (*struct {
		Body AuthResponse `json:"body"`
	}, error) {
		u, err := d.accounts.Login(ctx, input.Body.Email, input.Body.Password)
		if err != nil {
			return nil, d.handleError(ctx, err)
		}
		return d.authResponse(u)
	})
}

func registerMe(api huma.API, d deps) {
	huma.Register(api, huma.Operation{
		OperationID: "me",
		Method:      http.MethodGet,
		Path:        "/me",
		Summary:     "Current user profile",
		Errors:      []int{http.StatusUnauthorized, http.StatusNotFound},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body UserResponse `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		u, err := d.accounts.Get(ctx, userID)
		if err != nil {
			return nil, d.handleError(ctx, err)
		}
		return &struct {
			Body UserResponse `json:"body"`
		}{Body: userResponse(u)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-bio",
		Method:      http.MethodPatch,
		Path:        "/me/bio",
		Summary:     "Update profile bio",
		Errors:      []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		Body UpdateBioRequest `json:"body"`
	}) (*struct {
		Body UserResponse `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		u, found, err := d.accounts.UpdateBio(ctx, userID, input.Body.Bio)
		if err != nil {
			return nil, d.handleError(ctx, err)
		}
		if !found {
			return nil, newAPIError(http.StatusNotFound, "not_found", "user not found", map[string]any{"user_id": userID})
		}
		return &struct {
			Body UserResponse `json:"body"`
		}{Body: userResponse(u)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "my-stats",
		Method:      http.MethodGet,
		Path:        "/me/stats",
		Summary:     "Dashboard counters for the current user",
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body StatsResponse `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		tasks, err := d.engine.ListTasks(ctx)
		if err != nil {
			return nil, d.handleError(ctx, err)
		}
		return &struct {
			Body StatsResponse `json:"body"`
		}{Body: statsResponse(stats.ForUser(tasks, userID))}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "my-accepted-tasks",
		Method:      http.MethodGet,
		Path:        "/me/accepted",
		Summary:     "Tasks the current user accepted and has not completed",
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body TaskListResponse `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		tasks, n, err := d.tasksWithNames(ctx)
		if err != nil {
			return nil, d.handleError(ctx, err)
		}
		return &struct {
			Body TaskListResponse `json:"body"`
		}{Body: TaskListResponse{Items: mapTasks(views.MyAccepted(tasks, userID), n)}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "my-history",
		Method:      http.MethodGet,
		Path:        "/me/history",
		Summary:     "Posted and completed tasks of the current user",
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, input *struct {
		CompletedOnly bool `query:"completed_only"`
	}) (*struct {
		Body HistoryResponse `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		tasks, n, err := d.tasksWithNames(ctx)
		if err != nil {
			return nil, d.handleError(ctx, err)
		}
		h := views.BuildHistory(tasks, userID, views.HistoryFilter{CompletedOnly: input.CompletedOnly})
		return &struct {
			Body HistoryResponse `json:"body"`
		}{Body: HistoryResponse{
			Posted:    mapTasks(h.Posted, n),
			Completed: mapTasks(h.Completed, n),
			Timeline:  mapTasks(h.Timeline(), n),
		}}, nil
	})
}

func registerTasks(api huma.API, d deps) {
	huma.Register(api, huma.Operation{
		OperationID: "list-tasks",
		Method:      http.MethodGet,
		Path:        "/tasks",
		Summary:     "Browse the marketplace",
		Errors:      []int{http.StatusBadRequest, http.StatusUnauthorized},
	}, func(ctx context.Context, input *struct {
		Scope    string `query:"scope" doc:"open (default) or posted"`
		Category string `query:"category" doc:"category label or All"`
		Price    string `query:"price" doc:"All, <100, 100-150 or >150"`
	}) (*struct {
		Body TaskListResponse `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		filter, err := parseMarketFilter(input.Scope, input.Category, input.Price)
		if err != nil {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", err.Error(), nil)
		}
		tasks, n, err := d.tasksWithNames(ctx)
		if err != nil {
			return nil, d.handleError(ctx, err)
		}
		return &struct {
			Body TaskListResponse `json:"body"`
		}{Body: TaskListResponse{Items: mapTasks(views.Marketplace(tasks, userID, filter), n)}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-task",
		Method:        http.MethodPost,
		Path:          "/tasks",
		Summary:       "Post a task",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusInternalServerError},
	}, func(ctx context.Context, input *struct {
		Body CreateTaskRequest `json:"body"`
	}) (*struct {
		Body TaskResponse `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		attachments := make([]domain.Attachment, 0, len(input.Body.Attachments))
		for _, a := range input.Body.Attachments {
			attachments = append(attachments, domain.Attachment{Name: a.Name, Type: a.Type})
		}
		t, err := d.engine.CreateTask(ctx, engine.TaskCreateOptions{
			Title:       input.Body.Title,
			Description: input.Body.Description,
			Category:    domain.Category(input.Body.Category),
			Price:       decimal.NewFromFloat(input.Body.Price),
			Deadline:    input.Body.Deadline,
			Attachments: attachments,
			Links:       input.Body.Links,
			ActorID:     userID,
		})
		if err != nil {
			return nil, d.handleError(ctx, err)
		}
		return &struct {
			Body TaskResponse `json:"body"`
		}{Body: taskResponse(t, d.names(ctx))}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-task",
		Method:      http.MethodGet,
		Path:        "/tasks/{id}",
		Summary:     "Get a task",
		Errors:      []int{http.StatusUnauthorized, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID int64 `path:"id"`
	}) (*struct {
		Body TaskResponse `json:"body"`
	}, error) {
		if _, authErr := userIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		t, err := d.engine.GetTask(ctx, input.ID)
		if err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return nil, newAPIError(http.StatusNotFound, "not_found", "task not found", map[string]any{"id": input.ID})
			}
			return nil, d.handleError(ctx, err)
		}
		return &struct {
			Body TaskResponse `json:"body"`
		}{Body: taskResponse(t, d.names(ctx))}, nil
	})

	type command func(context.Context, int64, string) (domain.Task, engine.Outcome, error)
	registerCommand := func(opID, verb, summary string, run command) {
		huma.Register(api, huma.Operation{
			OperationID: opID,
			Method:      http.MethodPost,
			Path:        "/tasks/{id}/" + verb,
			Summary:     summary,
			Description: "Policy violations and unknown ids are reported in outcome and leave the task unchanged.",
			Errors:      []int{http.StatusUnauthorized, http.StatusInternalServerError},
		}, func(ctx context.Context, input *struct {
			ID int64 `path:"id"`
		}) (*struct {
			Body CommandResponse `json:"body"`
		}, error) {
			userID, authErr := userIDFromContext(ctx)
			if authErr != nil {
				return nil, authErr
			}
			t, outcome, err := run(ctx, input.ID, userID)
			if err != nil {
				return nil, d.handleError(ctx, err)
			}
			return &struct {
				Body CommandResponse `json:"body"`
			}{Body: commandResponse(t, outcome, d.names(ctx))}, nil
		})
	}
	registerCommand("accept-task", "accept", "Accept a task", d.engine.AcceptTask)
	registerCommand("complete-task", "complete", "Mark a task completed", d.engine.CompleteTask)
}

func registerLeaderboard(api huma.API, d deps) {
	huma.Register(api, huma.Operation{
		OperationID: "leaderboard",
		Method:      http.MethodGet,
		Path:        "/leaderboard",
		Summary:     "Users ranked by completed tasks",
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, input *struct {
		Limit int `query:"limit" default:"10"`
	}) (*struct {
		Body LeaderboardResponse `json:"body"`
	}, error) {
		if _, authErr := userIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		tasks, err := d.engine.ListTasks(ctx)
		if err != nil {
			return nil, d.handleError(ctx, err)
		}
		users, err := d.accounts.List(ctx)
		if err != nil {
			return nil, d.handleError(ctx, err)
		}
		board := stats.Leaderboard(stats.CompletedCounts(tasks, users))
		if input.Limit > 0 && len(board) > input.Limit {
			board = board[:input.Limit]
		}
		return &struct {
			Body LeaderboardResponse `json:"body"`
		}{Body: leaderboardResponse(board)}, nil
	})
}

func registerEvents(api huma.API, d deps) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/events",
		Summary:     "List recent events",
		Errors:      []int{http.StatusBadRequest, http.StatusUnauthorized},
	}, func(ctx context.Context, input *struct {
		Type       string `query:"type"`
		EntityKind string `query:"entity_kind" enum:"task,user"`
		EntityID   string `query:"entity_id"`
		ActorID    string `query:"actor_id"`
		Limit      int    `query:"limit" default:"50"`
		Cursor     string `query:"cursor"`
	}) (*struct {
		Body paginatedEvents `json:"body"`
	}, error) {
		if _, authErr := userIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		if d.repo.DB == nil {
			return nil, newAPIError(http.StatusNotFound, "not_found", "event log not available", nil)
		}
		limit := normalizeLimit(input.Limit)
		var cursorID int64
		if input.Cursor != "" {
			parsed, err := strconv.ParseInt(input.Cursor, 10, 64)
			if err != nil {
				return nil, newAPIError(http.StatusBadRequest, "bad_request", "invalid cursor", map[string]any{"cursor": input.Cursor})
			}
			cursorID = parsed
		}
		items, err := d.repo.LatestEvents(ctx, repo.EventFilters{
			Type:       input.Type,
			EntityKind: input.EntityKind,
			EntityID:   input.EntityID,
			ActorID:    input.ActorID,
			Limit:      limit + 1,
			Cursor:     cursorID,
		})
		if err != nil {
			return nil, d.handleError(ctx, err)
		}
		resp := paginatedEvents{Items: []EventResponse{}}
		if len(items) > limit {
			resp.NextCursor = strconv.FormatInt(items[limit-1].ID, 10)
			items = items[:limit]
		}
		for _, evt := range items {
			resp.Items = append(resp.Items, eventResponse(evt))
		}
		return &struct {
			Body paginatedEvents `json:"body"`
		}{Body: resp}, nil
	})
}

func parseMarketFilter(scope, category, price string) (views.MarketFilter, error) {
	s, err := views.ParseScope(scope)
	if err != nil {
		return views.MarketFilter{}, err
	}
	c, err := views.ParseCategory(category)
	if err != nil {
		return views.MarketFilter{}, err
	}
	p, err := views.ParsePriceBracket(price)
	if err != nil {
		return views.MarketFilter{}, err
	}
	return views.MarketFilter{Scope: s, Category: c, Price: p}, nil
}

func (d deps) tasksWithNames(ctx context.Context) ([]domain.Task, names, error) {
	tasks, err := d.engine.ListTasks(ctx)
	if err != nil {
		return nil, nil, err
	}
	return tasks, d.names(ctx), nil
}

// names maps user ids to display names. Lookup failures only cost the names.
func (d deps) names(ctx context.Context) names {
	users, err := d.accounts.List(ctx)
	if err != nil {
		d.logger.Warn("resolve user names", zap.Error(err))
		return names{}
	}
	n := make(names, len(users))
	for _, u := range users {
		n[u.ID] = u.Name
	}
	return n
}

func normalizeLimit(in int) int {
	if in <= 0 {
		return 50
	}
	if in > 200 {
		return 200
	}
	return in
}
