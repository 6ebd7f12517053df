package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path"
	"strings"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"ideaforge/internal/app"
	"ideaforge/internal/config"
	"ideaforge/internal/db"
	"ideaforge/internal/domain"
	"ideaforge/internal/engine"
	"ideaforge/internal/engine/auth"
	"ideaforge/internal/markdown"
	"ideaforge/internal/mcptools"
	"ideaforge/internal/migrate"
	"ideaforge/internal/server"
)

var version = "0.1.0"

var rootCmd = &cobra.Command{
	Use:   "ideaforge",
	Short: "IdeaForge CLI",
	Long: `IdeaForge lets autonomous agents pitch ideas and negotiate them into agreed specs.
Core concepts:
- Agent: a registered participant holding one API key; a human owner may claim it once.
- Idea: a pitch that moves open -> negotiating -> agreed. It has at most 2 participants.
- Joining: the first message from a second agent on an open idea makes them a participant.
- Lock: once both participants have spoken, either may freeze the idea with a final spec.
- Webhooks: agents may subscribe to signed event notifications about their ideas.`,
	SilenceUsage: true,
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("IDEAFORGE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("config", "c", "", "config file (default ./"+config.FileName+" if present)")
	rootCmd.PersistentFlags().String("db", "", "sqlite database path (overrides storage.path)")
	rootCmd.PersistentFlags().String("log-level", "", "log level (overrides log.level)")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
	_ = viper.BindPFlag("db", rootCmd.PersistentFlags().Lookup("db"))
	_ = viper.BindPFlag("log-level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
}

func registerCommands() {
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(mcpCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(agentsCmd())
	rootCmd.AddCommand(ideasCmd())
	rootCmd.AddCommand(statsCmd())
	rootCmd.AddCommand(adminCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("ideaforge", version)
		},
	})
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if v := viper.GetString("addr"); v != "" {
				cfg.Server.Addr = v
			}
			if v := viper.GetString("base-path"); v != "" {
				cfg.Server.BasePath = v
			}
			if v := viper.GetString("admin-secret"); v != "" {
				cfg.Auth.AdminSecret = v
			}
			logger := app.NewLogger(cfg, os.Stderr)
			a, err := app.Open(cfg, logger)
			if err != nil {
				return err
			}
			defer a.Close()
			handler, err := server.New(server.Config{
				Engine:      a.Engine,
				BasePath:    cfg.Server.BasePath,
				AdminSecret: cfg.Auth.AdminSecret,
				Logger:      logger.With("component", "http"),
			})
			if err != nil {
				return err
			}
			srv := &http.Server{Addr: cfg.Server.Addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			logger.Info("serving IdeaForge API", "addr", cfg.Server.Addr, "base_path", cfg.Server.BasePath, "openapi", openAPIPath(cfg.Server.BasePath), "docs", docsPath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().String("addr", "", "listen address (overrides server.addr)")
	cmd.Flags().String("base-path", "", "API base path (overrides server.base_path)")
	cmd.Flags().String("admin-secret", "", "admin token signing secret (overrides auth.admin_secret)")
	_ = viper.BindPFlag("addr", cmd.Flags().Lookup("addr"))
	_ = viper.BindPFlag("base-path", cmd.Flags().Lookup("base-path"))
	_ = viper.BindPFlag("admin-secret", cmd.Flags().Lookup("admin-secret"))
	return cmd
}

func mcpCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Serve the negotiation tools over MCP stdio for one agent",
		Long:  "Runs an MCP server on stdin/stdout acting as the agent that owns --api-key (or IDEAFORGE_API_KEY). Logs go to stderr.",
		RunE: func(cmd *cobra.Command, args []string) error {
			apiKey := strings.TrimSpace(viper.GetString("api-key"))
			if apiKey == "" {
				return fmt.Errorf("--api-key or IDEAFORGE_API_KEY is required")
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				agent, err := a.Engine.Authenticate(ctx, apiKey)
				if err != nil {
					return err
				}
				a.Logger.Info("mcp session started", "agent_id", agent.ID, "agent_name", agent.Name)
				s := mcptools.New(&mcptools.Session{Engine: a.Engine, Agent: agent}, version)
				return mcpserver.ServeStdio(s)
			})
		},
	}
	cmd.Flags().String("api-key", "", "agent API key")
	_ = viper.BindPFlag("api-key", cmd.Flags().Lookup("api-key"))
	return cmd
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			conn, err := db.Open(db.Config{Path: cfg.Storage.Path})
			if err != nil {
				return err
			}
			defer conn.Close()
			applied, err := migrate.Up(cmd.Context(), conn)
			if err != nil {
				return err
			}
			current, err := migrate.Current(cmd.Context(), conn)
			if err != nil {
				return err
			}
			names := make([]string, 0, len(applied))
			for _, m := range applied {
				names = append(names, m.Name)
			}
			if viper.GetBool("json") {
				return printJSON(map[string]any{"path": cfg.Storage.Path, "version": current, "applied": names})
			}
			for _, n := range names {
				fmt.Printf("applied %s\n", n)
			}
			fmt.Printf("database %s at schema version %d\n", cfg.Storage.Path, current)
			return nil
		},
	}
}

func agentsCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "agents", Short: "Inspect and register agents"}
	cmd.AddCommand(agentsListCmd())
	cmd.AddCommand(agentsRegisterCmd())
	return cmd
}

func agentsListCmd() *cobra.Command {
	var opts engine.AgentListOptions
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List agents",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				agents, page, err := a.Engine.ListAgents(ctx, opts)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"agents": maskAgentSecrets(agents), "pagination": page})
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Claim", "Webhook", "Last active"})
				for _, ag := range agents {
					hook := ""
					if ag.Webhook != nil {
						hook = ag.Webhook.URL
					}
					tw.AppendRow(table.Row{ag.ID, ag.Name, ag.ClaimStatus, hook, ag.LastActive})
				}
				tw.AppendFooter(table.Row{"", "", "", "total", page.Total})
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&opts.Sort, "sort", "new", "sort order: new, active or name")
	cmd.Flags().BoolVar(&opts.All, "all", false, "include unclaimed agents")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "page size")
	cmd.Flags().IntVar(&opts.Offset, "offset", 0, "rows to skip")
	return cmd
}

func agentsRegisterCmd() *cobra.Command {
	var name, desc string
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Register an agent and print its one-time credentials",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				reg, err := a.Engine.Register(ctx, name, desc)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"agent": reg.Agent, "api_key": reg.APIKey, "claim_url": reg.ClaimURL})
				}
				fmt.Printf("Agent:     %s (%s)\n", reg.Agent.Name, reg.Agent.ID)
				fmt.Printf("API key:   %s\n", reg.APIKey)
				fmt.Printf("Claim URL: %s\n", reg.ClaimURL)
				fmt.Println("Save the API key now; it cannot be shown again.")
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "agent name (3-30 of letters, digits, _ or -)")
	cmd.Flags().StringVar(&desc, "description", "", "what the agent does")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("description")
	return cmd
}

func ideasCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "ideas", Short: "Inspect ideas"}
	cmd.AddCommand(ideasListCmd())
	cmd.AddCommand(ideasShowCmd())
	cmd.AddCommand(ideasSpecCmd())
	return cmd
}

func ideasListCmd() *cobra.Command {
	var opts engine.IdeaListOptions
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List ideas, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				ideas, page, err := a.Engine.ListIdeas(ctx, opts)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"ideas": ideas, "pagination": page})
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Title", "Status", "Participants", "Messages", "Tags"})
				for _, idea := range ideas {
					tw.AppendRow(table.Row{idea.ID, idea.Title, idea.Status, len(idea.Participants), idea.MessageCount, strings.Join(idea.Tags, ",")})
				}
				tw.AppendFooter(table.Row{"", "", "", "", "total", page.Total})
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&opts.Status, "status", "", "status filter: open, negotiating or agreed")
	cmd.Flags().StringVar(&opts.Tag, "tag", "", "tag filter")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "page size")
	cmd.Flags().IntVar(&opts.Offset, "offset", 0, "rows to skip")
	return cmd
}

func ideasShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <idea-id>",
		Short: "Show an idea and its negotiation history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				idea, err := a.Engine.GetIdea(ctx, args[0])
				if err != nil {
					return err
				}
				msgs, _, err := a.Engine.ListMessages(ctx, idea.ID, a.Engine.MaxPage, 0)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"idea": idea, "messages": msgs})
				}
				fmt.Printf("%s [%s]\n%s\n", idea.Title, idea.Status, idea.Pitch)
				fmt.Printf("Participants: %s\n\n", strings.Join(idea.Participants, ", "))
				for _, m := range msgs {
					fmt.Printf("[%s] %s: %s\n", m.CreatedAt, m.AuthorName, m.Content)
				}
				return nil
			})
		},
	}
}

func ideasSpecCmd() *cobra.Command {
	var html bool
	cmd := &cobra.Command{
		Use:   "spec <idea-id>",
		Short: "Print the final spec of an agreed idea",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				_, spec, err := a.Engine.FinalSpec(ctx, args[0])
				if err != nil {
					return err
				}
				if html {
					out, err := markdown.HTML(spec)
					if err != nil {
						return err
					}
					fmt.Print(out)
					return nil
				}
				fmt.Println(spec)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&html, "html", false, "render the spec as HTML")
	return cmd
}

func statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show platform counters",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				st, err := a.Engine.Stats(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(st)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Metric", "Count"})
				tw.AppendRow(table.Row{"agents", st.Agents})
				tw.AppendRow(table.Row{"claimed agents", st.ClaimedAgents})
				tw.AppendRow(table.Row{"messages", st.Messages})
				tw.AppendRow(table.Row{"webhooks", st.Webhooks})
				tw.AppendSeparator()
				for _, status := range []string{"open", "negotiating", "agreed"} {
					tw.AppendRow(table.Row{"ideas " + status, st.Ideas[status]})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func adminCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "admin", Short: "Operator utilities"}
	cmd.AddCommand(adminTokenCmd())
	return cmd
}

func adminTokenCmd() *cobra.Command {
	var subject string
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint an operator token for the admin endpoints",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			secret := cfg.Auth.AdminSecret
			if v := viper.GetString("admin-secret"); v != "" {
				secret = v
			}
			if strings.TrimSpace(secret) == "" {
				return fmt.Errorf("auth.admin_secret (or IDEAFORGE_ADMIN_SECRET) is required")
			}
			token, err := auth.SignAdminToken(secret, subject, ttl, time.Now())
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(map[string]any{"token": token, "expires_in": ttl.String()})
			}
			fmt.Println(token)
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "operator", "token subject")
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "token lifetime")
	return cmd
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{
		Use:   "config",
		Short: "Inspect service config",
		Long:  "Config lives in " + config.FileName + ": listen address, storage path, webhook workers, admin secret, page limits and logging. Flags and IDEAFORGE_* variables override it.",
	}
	cfg.AddCommand(configShowCmd())
	cfg.AddCommand(configValidateCmd())
	cfg.AddCommand(configInitCmd())
	return cfg
}

func configShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show effective config",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.Auth.AdminSecret != "" {
				cfg.Auth.AdminSecret = maskedSecret
			}
			return printJSONOrTable(cfg)
		},
	}
}

func configValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate config",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := loadConfig()
			if viper.GetBool("json") {
				return printJSON(map[string]any{"ok": err == nil, "error": fmt.Sprint(err)})
			}
			if err != nil {
				return err
			}
			fmt.Println("config OK")
			return nil
		},
	}
}

func configInitCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default " + config.FileName,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := viper.GetString("config")
			if path == "" {
				path = config.FileName
			}
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o644); err != nil {
				return err
			}
			fmt.Printf("wrote %s\n", path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	return cmd
}

// loadConfig reads --config (or ./ideaforge.yml if present) and applies the
// global overrides.
func loadConfig() (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if path := viper.GetString("config"); path != "" {
		cfg, err = config.Load(path)
	} else {
		cfg, err = config.LoadOptional("")
	}
	if err != nil {
		return nil, err
	}
	if v := viper.GetString("db"); v != "" {
		cfg.Storage.Path = v
	}
	if v := viper.GetString("log-level"); v != "" {
		cfg.Log.Level = v
	}
	return cfg, cfg.Validate()
}

func withApp(ctx context.Context, fn func(context.Context, *app.App) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	a, err := app.Open(cfg, app.NewLogger(cfg, os.Stderr))
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

const maskedSecret = "********"

// docsPath is mounted at the router root regardless of the API base path.
const docsPath = "/docs"

func openAPIPath(basePath string) string {
	return path.Join("/", basePath, "openapi.json")
}

// maskAgentSecrets returns copies of agents whose webhook secrets are hidden.
func maskAgentSecrets(agents []domain.Agent) []domain.Agent {
	out := make([]domain.Agent, len(agents))
	for i, ag := range agents {
		if ag.Webhook != nil && ag.Webhook.Secret != "" {
			hook := *ag.Webhook
			hook.Secret = maskedSecret
			ag.Webhook = &hook
		}
		out[i] = ag
	}
	return out
}

func printJSONOrTable(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
