package app

import (
	"context"
	"database/sql"
	"os"
	"strings"

	"trailhead/internal/config"
	"trailhead/internal/db"
	"trailhead/internal/engine"
	"trailhead/internal/gen"
	"trailhead/internal/migrate"
)

// Env vars checked for a generation API key, in order.
var apiKeyEnvVars = []string{"TRAILHEAD_GENAI_API_KEY", "GEMINI_API_KEY", "GOOGLE_API_KEY"}

// Open opens (and migrates) the workspace database and builds an
// engine from the workspace config. The caller owns the connection.
func Open(ctx context.Context, workspace string) (engine.Engine, *sql.DB, error) {
	if _, err := db.EnsureWorkspace(workspace); err != nil {
		return engine.Engine{}, nil, err
	}
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return engine.Engine{}, nil, err
	}
	if err := migrate.Migrate(conn); err != nil {
		conn.Close()
		return engine.Engine{}, nil, err
	}
	cfg, err := config.LoadOptional(workspace)
	if err != nil {
		conn.Close()
		return engine.Engine{}, nil, err
	}
	g, err := BuildGenerator(ctx, cfg)
	if err != nil {
		conn.Close()
		return engine.Engine{}, nil, err
	}
	return engine.New(conn, cfg, g), conn, nil
}

// BuildGenerator returns the GenAI client when an API key is present
// in the environment, else the deterministic offline generator.
func BuildGenerator(ctx context.Context, cfg *config.Config) (gen.Generator, error) {
	for _, name := range apiKeyEnvVars {
		if key := strings.TrimSpace(os.Getenv(name)); key != "" {
			return gen.NewGenAI(ctx, key, cfg.Generation.Model)
		}
	}
	return gen.Static{}, nil
}
