package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"campustasks/internal/app"
	"campustasks/internal/config"
	"campustasks/internal/db"
	"campustasks/internal/domain"
	"campustasks/internal/engine"
	"campustasks/internal/engine/auth"
	"campustasks/internal/migrate"
	"campustasks/internal/repo"
	"campustasks/internal/server"
	"campustasks/internal/stats"
	"campustasks/internal/views"
)

var rootCmd = &cobra.Command{
	Use:   "ct",
	Short: "CampusTasks CLI",
	Long: `CampusTasks is a marketplace where students post small paid tasks and other students take them.
Core concepts:
- Workspace: the directory holding .campustasks/campustasks.db, campustasks.yml and .env.
- Users: sign up once, then log in; the CLI remembers who is logged in until you log out.
- Tasks: posted with a title, description, category, price and deadline; statuses go open -> accepted -> completed.
- Accepting: anyone but the poster can accept an open task. Only one helper per task.
- Completing: an accepted task is marked completed (strict policy); lenient lets open tasks complete too.
- Marketplace: browse open tasks, or your own posted tasks, filtered by category and price bracket.
- Dashboard: counters for posted, accepted and completed work, plus earnings and spend.
- Leaderboard: users ranked by tasks they completed for others.
- Event log: every change is recorded; view with 'ct log tail'.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		return nil
	},
	SilenceUsage: true,
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Println("error:", err)
		stop()
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("CAMPUSTASKS")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
}

func registerCommands() {
	rootCmd.AddCommand(statusCmd())
	rootCmd.AddCommand(userCmd())
	rootCmd.AddCommand(taskCmd())
	rootCmd.AddCommand(historyCmd())
	rootCmd.AddCommand(statsCmd())
	rootCmd.AddCommand(leaderboardCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(seedCmd())
	rootCmd.AddCommand(serveCmd())
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show workspace status",
		Long:  "Where the data lives, the schema version, the stored documents and how many tasks sit in each status.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				version, err := migrate.Version(ctx, a.DB)
				if err != nil {
					return err
				}
				keys, err := a.Repo.Keys(ctx)
				if err != nil {
					return err
				}
				tasks, err := a.Engine.ListTasks(ctx)
				if err != nil {
					return err
				}
				users, err := a.Accounts.List(ctx)
				if err != nil {
					return err
				}
				counts := map[domain.Status]int{}
				for _, t := range tasks {
					counts[t.Status]++
				}
				who := ""
				if u, err := a.Accounts.Current(ctx); err == nil && u != nil {
					who = u.Name
				}
				out := map[string]any{
					"database":       db.Path(a.Workspace),
					"schema_version": version,
					"documents":      keys,
					"users":          len(users),
					"task_counts":    counts,
					"logged_in_as":   who,
				}
				if viper.GetBool("json") {
					return printJSON(out)
				}
				fmt.Printf("Database: %s (schema v%d)\n", db.Path(a.Workspace), version)
				if who == "" {
					fmt.Println("Logged in: nobody")
				} else {
					fmt.Printf("Logged in: %s\n", who)
				}
				fmt.Printf("Users: %d\n", len(users))
				fmt.Println("Tasks:")
				for _, st := range []domain.Status{domain.StatusOpen, domain.StatusAccepted, domain.StatusCompleted} {
					fmt.Printf("  %s: %d\n", st.Label(), counts[st])
				}
				fmt.Println("Documents:")
				for _, k := range []string{repo.KeyUsers, repo.KeySession, repo.KeyTasks} {
					if updated, ok := keys[k]; ok {
						fmt.Printf("  %s (updated %s)\n", k, updated)
					}
				}
				return nil
			})
		},
	}
}

// --- users ---

func userCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "user", Short: "Accounts and the CLI session"}
	cmd.AddCommand(userSignupCmd())
	cmd.AddCommand(userLoginCmd())
	cmd.AddCommand(userLogoutCmd())
	cmd.AddCommand(userWhoamiCmd())
	cmd.AddCommand(userBioCmd())
	return cmd
}

func userSignupCmd() *cobra.Command {
	var in auth.SignupInput
	var role string
	cmd := &cobra.Command{
		Use:   "signup",
		Short: "Create an account and log in",
		RunE: func(cmd *cobra.Command, args []string) error {
			in.Role = domain.Role(role)
			if in.Password == "" {
				p, err := promptPassword()
				if err != nil {
					return err
				}
				in.Password = p
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				u, err := a.Accounts.Signup(ctx, in)
				if err != nil {
					return err
				}
				return printUser(u)
			})
		},
	}
	cmd.Flags().StringVar(&in.Name, "name", "", "full name (letters and spaces)")
	cmd.Flags().StringVar(&in.Email, "email", "", "email address")
	cmd.Flags().StringVar(&in.Password, "password", "", "password (prompted when empty)")
	cmd.Flags().StringVar(&in.Campus, "campus", "", "campus (defaults to marketplace.default_campus)")
	cmd.Flags().StringVar(&role, "role", string(domain.RoleBoth), "earn, post or both")
	return cmd
}

func userLoginCmd() *cobra.Command {
	var email, password string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in as an existing user",
		RunE: func(cmd *cobra.Command, args []string) error {
			if password == "" {
				p, err := promptPassword()
				if err != nil {
					return err
				}
				password = p
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				u, err := a.Accounts.Login(ctx, email, password)
				if err != nil {
					return err
				}
				if !viper.GetBool("json") {
					fmt.Printf("Logged in as %s\n", u.Name)
					return nil
				}
				return printJSON(u)
			})
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "email address")
	cmd.Flags().StringVar(&password, "password", "", "password (prompted when empty)")
	return cmd
}

func userLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the logged in user",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				if err := a.Accounts.Logout(ctx); err != nil {
					return err
				}
				fmt.Println("Logged out")
				return nil
			})
		},
	}
}

func userWhoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the logged in user",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				u, err := currentUser(ctx, a)
				if err != nil {
					return err
				}
				return printUser(u)
			})
		},
	}
}

func userBioCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bio <text>",
		Short: "Update your profile bio",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				u, err := currentUser(ctx, a)
				if err != nil {
					return err
				}
				updated, found, err := a.Accounts.UpdateBio(ctx, u.ID, args[0])
				if err != nil {
					return err
				}
				if !found {
					return fmt.Errorf("user %s no longer exists", u.ID)
				}
				return printUser(updated)
			})
		},
	}
	return cmd
}

// --- tasks ---

func taskCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "task",
		Short: "Post, browse, accept and complete tasks",
	}
	cmd.AddCommand(taskPostCmd())
	cmd.AddCommand(taskListCmd())
	cmd.AddCommand(taskShowCmd())
	cmd.AddCommand(taskAcceptCmd())
	cmd.AddCommand(taskCompleteCmd())
	cmd.AddCommand(taskMineCmd())
	return cmd
}

func taskPostCmd() *cobra.Command {
	var title, description, category, price, deadline string
	var attachments, links []string
	cmd := &cobra.Command{
		Use:   "post",
		Short: "Post a new task",
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := decimal.NewFromString(strings.TrimSpace(price))
			if err != nil {
				return fmt.Errorf("invalid --price %q", price)
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				u, err := currentUser(ctx, a)
				if err != nil {
					return err
				}
				files := make([]domain.Attachment, 0, len(attachments))
				for _, name := range attachments {
					files = append(files, domain.Attachment{Name: filepath.Base(name), Type: attachmentType(name)})
				}
				t, err := a.Engine.CreateTask(ctx, engine.TaskCreateOptions{
					Title:       title,
					Description: description,
					Category:    domain.Category(category),
					Price:       amount,
					Deadline:    deadline,
					Attachments: files,
					Links:       links,
					ActorID:     u.ID,
				})
				if err != nil {
					return err
				}
				return printTask(t)
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "task title")
	cmd.Flags().StringVar(&description, "description", "", "what needs doing")
	cmd.Flags().StringVar(&category, "category", string(domain.DefaultCategory), "task category")
	cmd.Flags().StringVar(&price, "price", "", "price in rupees")
	cmd.Flags().StringVar(&deadline, "deadline", "", "free-form deadline, e.g. \"Today, 11:00 PM\"")
	cmd.Flags().StringSliceVar(&attachments, "attach", nil, "attachment file name (repeatable)")
	cmd.Flags().StringSliceVar(&links, "link", nil, "reference link (repeatable)")
	return cmd
}

func taskListCmd() *cobra.Command {
	var scope, category, price string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "Browse the marketplace",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := views.ParseScope(scope)
			if err != nil {
				return err
			}
			c, err := views.ParseCategory(category)
			if err != nil {
				return err
			}
			p, err := views.ParsePriceBracket(price)
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				u, err := currentUser(ctx, a)
				if err != nil {
					return err
				}
				tasks, err := a.Engine.ListTasks(ctx)
				if err != nil {
					return err
				}
				return printTasks(ctx, a, views.Marketplace(tasks, u.ID, views.MarketFilter{Scope: s, Category: c, Price: p}))
			})
		},
	}
	cmd.Flags().StringVar(&scope, "scope", string(views.ScopeOpen), "open or posted")
	cmd.Flags().StringVar(&category, "category", string(domain.CategoryAll), "category filter")
	cmd.Flags().StringVar(&price, "price", string(views.PriceAll), "price bracket: All, <100, 100-150, >150")
	return cmd
}

func taskShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseTaskID(args[0])
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				t, err := a.Engine.GetTask(ctx, id)
				if err != nil {
					if errors.Is(err, repo.ErrNotFound) {
						return fmt.Errorf("task %d not found", id)
					}
					return err
				}
				return printTask(t)
			})
		},
	}
}

func taskAcceptCmd() *cobra.Command {
	return taskCommand("accept", "Accept an open task", func(e engine.Engine) taskCommandFunc { return e.AcceptTask })
}

func taskCompleteCmd() *cobra.Command {
	return taskCommand("complete", "Mark an accepted task completed", func(e engine.Engine) taskCommandFunc { return e.CompleteTask })
}

type taskCommandFunc func(context.Context, int64, string) (domain.Task, engine.Outcome, error)

func taskCommand(use, short string, pick func(engine.Engine) taskCommandFunc) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseTaskID(args[0])
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				u, err := currentUser(ctx, a)
				if err != nil {
					return err
				}
				t, outcome, err := pick(a.Engine)(ctx, id, u.ID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					out := map[string]any{"outcome": outcome}
					if outcome != engine.OutcomeNotFound {
						out["task"] = t
					}
					return printJSON(out)
				}
				if !outcome.Applied() {
					fmt.Printf("No change: %s\n", outcomeMessage(outcome))
					return nil
				}
				fmt.Printf("Task %d is now %s\n", t.ID, t.Status.Label())
				return nil
			})
		},
	}
}

func taskMineCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mine",
		Short: "Tasks you accepted and still have to finish",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				u, err := currentUser(ctx, a)
				if err != nil {
					return err
				}
				tasks, err := a.Engine.ListTasks(ctx)
				if err != nil {
					return err
				}
				return printTasks(ctx, a, views.MyAccepted(tasks, u.ID))
			})
		},
	}
}

// --- dashboards ---

func historyCmd() *cobra.Command {
	var completedOnly bool
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Tasks you posted and tasks you completed",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				u, err := currentUser(ctx, a)
				if err != nil {
					return err
				}
				tasks, err := a.Engine.ListTasks(ctx)
				if err != nil {
					return err
				}
				h := views.BuildHistory(tasks, u.ID, views.HistoryFilter{CompletedOnly: completedOnly})
				if viper.GetBool("json") {
					return printJSON(h)
				}
				if !completedOnly {
					fmt.Println("Posted by you:")
					if err := printTasks(ctx, a, h.Posted); err != nil {
						return err
					}
				}
				fmt.Println("Completed by you:")
				return printTasks(ctx, a, h.Completed)
			})
		},
	}
	cmd.Flags().BoolVar(&completedOnly, "completed-only", false, "only completed tasks")
	return cmd
}

func statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Your dashboard counters",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				u, err := currentUser(ctx, a)
				if err != nil {
					return err
				}
				tasks, err := a.Engine.ListTasks(ctx)
				if err != nil {
					return err
				}
				s := stats.ForUser(tasks, u.ID)
				if viper.GetBool("json") {
					return printJSON(s)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Metric", "Value"})
				tw.AppendRows([]table.Row{
					{"Posted", s.Posted},
					{"Accepted by you", s.AcceptedByYou},
					{"Completed", s.Completed},
					{"Completed by you", s.CompletedByYou},
					{"Earnings", "₹" + s.Earnings.String()},
					{"Spent", "₹" + s.Spent.String()},
					{"Pending (posted)", s.PendingOutgoing},
					{"Pending (accepted)", s.PendingIncoming},
					{"Pending total", s.PendingTotal},
				})
				tw.Render()
				return nil
			})
		},
	}
}

func leaderboardCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "leaderboard",
		Short: "Users ranked by completed tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				tasks, err := a.Engine.ListTasks(ctx)
				if err != nil {
					return err
				}
				users, err := a.Accounts.List(ctx)
				if err != nil {
					return err
				}
				board := stats.Leaderboard(stats.CompletedCounts(tasks, users))
				if limit > 0 && len(board) > limit {
					board = board[:limit]
				}
				if viper.GetBool("json") {
					return printJSON(board)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"#", "Name", "Completed"})
				for _, e := range board {
					tw.AppendRow(table.Row{e.Rank, e.Name, e.Completed})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 10, "number of entries (0 for all)")
	return cmd
}

// --- config ---

func configCmd() *cobra.Command {
	cfg := &cobra.Command{
		Use:   "config",
		Short: "Workspace configuration",
		Long:  "campustasks.yml holds marketplace limits, policies, server and webhook settings. Secrets stay in .env.",
	}
	cfg.AddCommand(configShowCmd())
	cfg.AddCommand(configInitCmd())
	return cfg
}

func configShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadOptional(viper.GetString("workspace"))
			if err != nil {
				return err
			}
			return printJSON(cfg)
		},
	}
}

func configInitCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default campustasks.yml and a JWT secret to .env",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			path := config.Path(workspace)
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o644); err != nil {
				return err
			}
			fmt.Printf("Wrote %s\n", path)
			if os.Getenv("CAMPUSTASKS_JWT_SECRET") == "" {
				envPath := filepath.Join(workspace, ".env")
				if err := setEnvValue(envPath, "CAMPUSTASKS_JWT_SECRET", strings.ReplaceAll(uuid.NewString()+uuid.NewString(), "-", "")); err != nil {
					return err
				}
				fmt.Printf("Wrote CAMPUSTASKS_JWT_SECRET to %s\n", envPath)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing campustasks.yml")
	return cmd
}

// --- events, seed, serve ---

func logCmd() *cobra.Command {
	log := &cobra.Command{
		Use:   "log",
		Short: "Event log",
		Long:  "Everything that happened: signups, bio edits, posted, accepted and completed tasks.",
	}
	log.AddCommand(logTailCmd())
	return log
}

func logTailCmd() *cobra.Command {
	var f repo.EventFilters
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				events, err := a.Repo.LatestEvents(ctx, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(events)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Time", "Type", "Entity", "Actor"})
				for _, e := range events {
					tw.AppendRow(table.Row{e.ID, e.TS, e.Type, e.EntityKind + ":" + e.EntityID, e.ActorID})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&f.Limit, "n", 20, "number of events")
	cmd.Flags().StringVar(&f.Type, "type", "", "event type filter")
	cmd.Flags().StringVar(&f.EntityKind, "entity-kind", "", "entity kind (task or user)")
	cmd.Flags().StringVar(&f.EntityID, "entity-id", "", "entity id")
	cmd.Flags().StringVar(&f.ActorID, "actor-id", "", "actor filter")
	return cmd
}

func seedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Load demo users and tasks",
		Long:  fmt.Sprintf("Adds the demo accounts (password %q) and, when the marketplace is empty, the demo tasks.", app.DemoPassword),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				res, err := a.SeedDemo(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(res)
				}
				fmt.Printf("Seeded %d users and %d tasks\n", res.Users, res.Tasks)
				return nil
			})
		},
	}
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				authCfg := server.AuthConfig{
					JWTSecret:      os.Getenv("CAMPUSTASKS_JWT_SECRET"),
					TokenTTL:       time.Duration(a.Config.Server.TokenTTLHours) * time.Hour,
					AllowDevHeader: a.Config.Server.AllowDevHeader,
				}
				if authCfg.JWTSecret == "" {
					return fmt.Errorf("CAMPUSTASKS_JWT_SECRET is required for bearer auth (run ct config init)")
				}
				if !cmd.Flags().Changed("addr") {
					addr = a.Config.Server.Addr
				}
				if !cmd.Flags().Changed("base-path") {
					basePath = a.Config.Server.BasePath
				}
				handler, err := server.New(server.Config{
					Engine:   a.Engine,
					Accounts: a.Accounts,
					Repo:     a.Repo,
					BasePath: basePath,
					Auth:     authCfg,
					Logger:   a.Logger,
				})
				if err != nil {
					return err
				}
				server.StartWebhooks(ctx, a.Repo, a.Config.Webhooks, a.Logger.Named("webhooks"))
				srv := &http.Server{Addr: addr, Handler: handler}
				go func() {
					<-ctx.Done()
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					srv.Shutdown(shutdownCtx)
				}()
				fmt.Printf("Serving CampusTasks API on http://%s%s (OpenAPI at %s/openapi.json, Swagger UI at /docs)\n", addr, basePath, basePath)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address (defaults to server.addr)")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path (defaults to server.base_path)")
	return cmd
}

// --- helpers ---

func withApp(ctx context.Context, fn func(context.Context, *app.App) error) error {
	a, err := app.Open(ctx, app.Options{Workspace: viper.GetString("workspace")})
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

func currentUser(ctx context.Context, a *app.App) (domain.User, error) {
	u, err := a.Accounts.Current(ctx)
	if err != nil {
		return domain.User{}, err
	}
	if u == nil {
		return domain.User{}, errors.New("not logged in (run ct user login)")
	}
	return *u, nil
}

func promptPassword() (string, error) {
	fmt.Fprint(os.Stderr, "Password: ")
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("read password: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func parseTaskID(s string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid task id %q", s)
	}
	return id, nil
}

func attachmentType(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".pdf":
		return "application/pdf"
	case ".png":
		return "image/png"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".doc", ".docx":
		return "application/msword"
	case ".txt":
		return "text/plain"
	default:
		return ""
	}
}

func outcomeMessage(o engine.Outcome) string {
	switch o {
	case engine.OutcomeNotFound:
		return "task not found"
	case engine.OutcomeSelfAccept:
		return "you cannot accept your own task"
	case engine.OutcomeAlreadyAccepted:
		return "task was already accepted"
	case engine.OutcomeAlreadyCompleted:
		return "task is already completed"
	case engine.OutcomeNotAccepted:
		return "task has not been accepted yet"
	default:
		return string(o)
	}
}

func printUser(u domain.User) error {
	if viper.GetBool("json") {
		return printJSON(u.Public())
	}
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendRows([]table.Row{
		{"ID", u.ID},
		{"Name", u.Name},
		{"Email", u.Email},
		{"Campus", u.Campus},
		{"Role", u.Role.Description()},
		{"Bio", u.Bio},
	})
	tw.Render()
	return nil
}

func printTask(t domain.Task) error {
	if viper.GetBool("json") {
		return printJSON(t)
	}
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendRows([]table.Row{
		{"ID", t.ID},
		{"Title", t.Title},
		{"Description", t.Description},
		{"Category", t.Category},
		{"Price", "₹" + t.Price.String()},
		{"Deadline", t.Deadline},
		{"Status", t.Status.Label()},
		{"Posted by", t.CreatedBy},
		{"Accepted by", t.Acceptor()},
	})
	for _, att := range t.Attachments {
		tw.AppendRow(table.Row{"Attachment", att.Name})
	}
	for _, link := range t.Links {
		tw.AppendRow(table.Row{"Link", link})
	}
	tw.Render()
	return nil
}

func printTasks(ctx context.Context, a *app.App, tasks []domain.Task) error {
	if viper.GetBool("json") {
		return printJSON(tasks)
	}
	names := map[string]string{}
	if users, err := a.Accounts.List(ctx); err == nil {
		for _, u := range users {
			names[u.ID] = u.Name
		}
	}
	display := func(id string) string {
		if n, ok := names[id]; ok {
			return n
		}
		return id
	}
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row{"ID", "Title", "Category", "Price", "Deadline", "Status", "Posted by", "Helper"})
	for _, t := range tasks {
		helper := ""
		if t.AcceptedBy != nil {
			helper = display(*t.AcceptedBy)
		}
		tw.AppendRow(table.Row{t.ID, t.Title, t.Category, "₹" + t.Price.String(), t.Deadline, t.Status.Label(), display(t.CreatedBy), helper})
	}
	tw.Render()
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func setEnvValue(path, key, value string) error {
	var lines []string
	seen := false
	f, err := os.Open(path)
	if err == nil {
		scanner := bufio.NewScanner(f)
		for scanner.Scan() {
			line := scanner.Text()
			if strings.HasPrefix(line, key+"=") {
				lines = append(lines, fmt.Sprintf("%s=%s", key, value))
				seen = true
			} else {
				lines = append(lines, line)
			}
		}
		if err := scanner.Err(); err != nil {
			f.Close()
			return err
		}
		f.Close()
	} else if !os.IsNotExist(err) {
		return err
	}
	if !seen {
		lines = append(lines, fmt.Sprintf("%s=%s", key, value))
	}
	content := strings.Join(lines, "\n")
	if content != "" && !strings.HasSuffix(content, "\n") {
		content += "\n"
	}
	return os.WriteFile(path, []byte(content), 0o600)
}
