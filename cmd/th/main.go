package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"trailhead/internal/app"
	"trailhead/internal/config"
	"trailhead/internal/db"
	"trailhead/internal/engine"
	"trailhead/internal/hta"
	"trailhead/internal/repo"
	"trailhead/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "th",
	Short: "Trailhead CLI",
	Long: `Trailhead walks one long-term goal with you, one reflection at a time.
How it works:
- Goal: 'th goal set' plants your intention; the generation service refines it.
- Context: 'th context add' grows the goal into a small task tree and activates the journey.
- Reflect: 'th reflect' reads how you feel, nudges your capacity and shadow, and serves the next task.
- Complete: 'th task complete' awards XP, builds momentum, and may reshape the remaining tree.
- Paths: structured keeps soft deadlines tight, blended adds slack, open drops them entirely.
- Withering: ignored journeys fade slowly; showing up and finishing tasks brings them back.
- Event log: every turn is recorded, view with 'th log tail'.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		return nil
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("TRAILHEAD")
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
	rootCmd.AddCommand(initCmd())
	rootCmd.AddCommand(goalCmd())
	rootCmd.AddCommand(contextCmd())
	rootCmd.AddCommand(reflectCmd())
	rootCmd.AddCommand(taskCmd())
	rootCmd.AddCommand(treeCmd())
	rootCmd.AddCommand(statusCmd())
	rootCmd.AddCommand(pathCmd())
	rootCmd.AddCommand(horizonCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(apikeyCmd())
	rootCmd.AddCommand(serveCmd())
}

func initCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize a workspace",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			e, conn, err := app.Open(cmd.Context(), workspace)
			if err != nil {
				return err
			}
			defer conn.Close()
			_ = e
			cfgPath := config.Path(workspace)
			if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
				if err := os.WriteFile(cfgPath, []byte(config.GenerateDefault()), 0o644); err != nil {
					return err
				}
				fmt.Printf("Wrote default config to %s\n", cfgPath)
			}
			fmt.Printf("Workspace ready at %s\n", db.Path(workspace))
			return nil
		},
	}
	return cmd
}

func goalCmd() *cobra.Command {
	goal := &cobra.Command{Use: "goal", Short: "Manage the journey goal"}
	goal.AddCommand(&cobra.Command{
		Use:   "set <text>",
		Short: "Plant the goal",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text := strings.Join(args, " ")
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				seed, err := e.SetGoal(ctx, text)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(seed)
				}
				fmt.Printf("Goal planted: %s\n", seed.Name)
				fmt.Println("Next: 'th context add' to grow the first tasks.")
				return nil
			})
		},
	})
	return goal
}

func contextCmd() *cobra.Command {
	ctxCmd := &cobra.Command{Use: "context", Short: "Onboarding context"}
	ctxCmd.AddCommand(&cobra.Command{
		Use:   "add [text]",
		Short: "Add context and activate the journey",
		RunE: func(cmd *cobra.Command, args []string) error {
			note := strings.Join(args, " ")
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				tree, err := e.AddContext(ctx, note)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(tree)
				}
				fmt.Printf("Journey activated with %d steps:\n", len(tree.Flatten())-1)
				printNodeTree(tree.Root, "", true)
				return nil
			})
		},
	})
	return ctxCmd
}

func reflectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reflect <text>",
		Short: "Share a reflection and receive the next step",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text := strings.Join(args, " ")
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				turn, err := e.Reflect(ctx, text)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(turn)
				}
				fmt.Println(turn.Narrative)
				if turn.Task != nil {
					fmt.Printf("\nNext step: %s (%s)\n", turn.Task.Title, turn.Task.Tier)
					fmt.Printf("  id: %s\n", turn.Task.ID)
					if turn.Task.SoftDeadline != "" {
						fmt.Printf("  soft deadline: %s\n", turn.Task.SoftDeadline)
					}
				}
				fmt.Printf("\n%s · %s · capacity %.2f · shadow %.2f\n", turn.Stage, turn.Theme, turn.Capacity, turn.Shadow)
				if turn.Challenge != "" {
					fmt.Printf("Approaching challenge: %s\n", turn.Challenge)
				}
				return nil
			})
		},
	}
	return cmd
}

func taskCmd() *cobra.Command {
	task := &cobra.Command{
		Use:   "task",
		Short: "Work with the task backlog",
	}
	task.AddCommand(taskListCmd())
	task.AddCommand(taskCompleteCmd())
	return task
}

func taskListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the ranked backlog",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				tasks, err := e.Tasks(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(tasks)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Title", "Tier", "Status", "Magnitude", "Deadline"})
				for _, t := range tasks {
					tw.AppendRow(table.Row{t.ID, t.Title, t.Tier, t.Status, fmt.Sprintf("%.1f", t.Magnitude), t.SoftDeadline})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func taskCompleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "complete <id>",
		Short: "Complete a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				res, err := e.CompleteTask(ctx, id)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(res)
				}
				if !res.Found {
					fmt.Printf("No open task with id %s\n", id)
					return nil
				}
				if res.Detail != "" {
					fmt.Println(res.Detail)
					return nil
				}
				fmt.Printf("+%d XP (total %d, stage %s)\n", res.XPAwarded, res.XP, res.Stage)
				if res.Rebalanced {
					fmt.Println("The remaining tree was rebalanced around your progress.")
				}
				if res.Challenge != "" {
					fmt.Printf("Approaching challenge: %s\n", res.Challenge)
				}
				return nil
			})
		},
	}
	return cmd
}

func treeCmd() *cobra.Command {
	tree := &cobra.Command{Use: "tree", Short: "Goal tree"}
	tree.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show the goal tree",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				t, err := e.Tree(ctx)
				if err != nil {
					return err
				}
				if t == nil || t.Root == nil {
					fmt.Println("No goal tree yet; start with 'th goal set'.")
					return nil
				}
				if viper.GetBool("json") {
					return printJSON(t)
				}
				printNodeTree(t.Root, "", true)
				return nil
			})
		},
	})
	return tree
}

func statusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the journey status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				report, err := e.Status(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(report)
				}
				if !report.GoalSet {
					fmt.Println("No journey yet; start with 'th goal set'.")
					return nil
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendRow(table.Row{"Stage", report.Stage})
				tw.AppendRow(table.Row{"Theme", report.Theme})
				tw.AppendRow(table.Row{"XP", report.XP})
				tw.AppendRow(table.Row{"Path", report.Path})
				tw.AppendRow(table.Row{"Capacity", fmt.Sprintf("%.2f", report.Capacity)})
				tw.AppendRow(table.Row{"Shadow", fmt.Sprintf("%.2f", report.Shadow)})
				tw.AppendRow(table.Row{"Magnitude", fmt.Sprintf("%.1f (%s)", report.Magnitude, report.MagnitudeLabel)})
				tw.AppendRow(table.Row{"Withering", fmt.Sprintf("%.2f", report.Withering)})
				tw.AppendRow(table.Row{"Tasks", fmt.Sprintf("%d open / %d done", report.OpenTasks, report.CompletedTasks)})
				if report.EstimatedCompletion != "" {
					tw.AppendRow(table.Row{"Horizon", report.EstimatedCompletion})
				}
				tw.Render()
				if report.NextTask != nil {
					fmt.Printf("Next step: %s (%s)\n", report.NextTask.Title, report.NextTask.Tier)
				}
				if report.Challenge != "" {
					fmt.Printf("Approaching challenge: %s\n", report.Challenge)
				}
				return nil
			})
		},
	}
	return cmd
}

func pathCmd() *cobra.Command {
	p := &cobra.Command{Use: "path", Short: "Journey path"}
	p.AddCommand(&cobra.Command{
		Use:   "set <structured|blended|open>",
		Short: "Switch the journey path",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if err := e.SetPath(ctx, args[0]); err != nil {
					return err
				}
				fmt.Printf("Path set to %s\n", args[0])
				return nil
			})
		},
	})
	return p
}

func horizonCmd() *cobra.Command {
	h := &cobra.Command{Use: "horizon", Short: "Estimated completion date"}
	var date string
	var override bool
	set := &cobra.Command{
		Use:   "set",
		Short: "Set the horizon and spread soft deadlines",
		RunE: func(cmd *cobra.Command, args []string) error {
			when, err := time.Parse(time.RFC3339, date)
			if err != nil {
				when, err = time.Parse("2006-01-02", date)
			}
			if err != nil {
				return fmt.Errorf("--date must be RFC3339 or YYYY-MM-DD")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				n, err := e.SetHorizon(ctx, when, override)
				if err != nil {
					return err
				}
				fmt.Printf("Horizon set to %s; %d deadlines assigned\n", when.Format("2006-01-02"), n)
				return nil
			})
		},
	}
	set.Flags().StringVar(&date, "date", "", "target date")
	set.Flags().BoolVar(&override, "override", false, "reassign existing deadlines")
	_ = set.MarkFlagRequired("date")
	h.AddCommand(set)
	return h
}

func logCmd() *cobra.Command {
	lg := &cobra.Command{
		Use:   "log",
		Short: "Event log",
	}
	lg.AddCommand(logTailCmd())
	return lg
}

func logTailCmd() *cobra.Command {
	var n int
	var evtType, entityKind, entityID string
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				events, err := e.Repo.LatestEvents(ctx, n, repo.EventFilters{
					UserID:     e.Config.User.ID,
					Type:       evtType,
					EntityKind: entityKind,
					EntityID:   entityID,
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(events)
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	cmd.Flags().StringVar(&evtType, "type", "", "event type filter")
	cmd.Flags().StringVar(&entityKind, "entity-kind", "", "entity kind")
	cmd.Flags().StringVar(&entityID, "entity-id", "", "entity id")
	return cmd
}

func apikeyCmd() *cobra.Command {
	ak := &cobra.Command{Use: "apikey", Short: "API keys"}
	var name string
	create := &cobra.Command{
		Use:   "create",
		Short: "Create an API key (plaintext printed once)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				plain, key, err := e.CreateAPIKey(ctx, name)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"id": key.ID, "name": key.Name, "key": plain})
				}
				fmt.Printf("API key created (id %s). Store it now, it is not shown again:\n%s\n", key.ID, plain)
				return nil
			})
		},
	}
	create.Flags().StringVar(&name, "name", "", "key name")
	ak.AddCommand(create)
	return ak
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	var allowLegacy bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			e, conn, err := app.Open(cmd.Context(), workspace)
			if err != nil {
				return err
			}
			defer conn.Close()
			authCfg := server.AuthConfig{
				JWTSecret:             os.Getenv("TRAILHEAD_JWT_SECRET"),
				AllowLegacyUserHeader: allowLegacy,
			}
			if authCfg.JWTSecret == "" && !allowLegacy {
				return fmt.Errorf("TRAILHEAD_JWT_SECRET is required for bearer auth (or pass --allow-legacy-user-header)")
			}
			handler, err := server.New(server.Config{Engine: e, BasePath: basePath, Auth: authCfg})
			if err != nil {
				return err
			}
			server.StartWebhookDispatcher(e)
			srv := &http.Server{Addr: addr, Handler: handler}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			fmt.Printf("Serving Trailhead API on http://%s%s (OpenAPI at /openapi.json, Swagger UI at /docs)\n", addr, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path")
	cmd.Flags().BoolVar(&allowLegacy, "allow-legacy-user-header", false, "accept the X-User-Id header without auth")
	return cmd
}

// --- helpers ---

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	workspace := viper.GetString("workspace")
	e, conn, err := app.Open(ctx, workspace)
	if err != nil {
		return err
	}
	defer conn.Close()
	return fn(ctx, e)
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

func printNodeTree(n *hta.Node, prefix string, last bool) {
	connector := "├── "
	newPrefix := prefix + "│   "
	if last {
		connector = "└── "
		newPrefix = prefix + "    "
	}
	if prefix == "" {
		fmt.Printf("%s [%s]\n", n.Title, n.Status)
		newPrefix = ""
	} else {
		fmt.Printf("%s%s%s [%s]\n", prefix, connector, n.Title, n.Status)
	}
	for i, c := range n.Children {
		printNodeTree(c, newPrefix, i == len(n.Children)-1)
	}
}
