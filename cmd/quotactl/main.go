package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"booth/internal/adapter/repo"
	"booth/internal/infra"
	"booth/internal/quota"
)

func main() {
	var projectFlag string
	flag.StringVar(&projectFlag, "project", "", "project ID to inspect")
	flag.Parse()

	_ = godotenv.Load()

	projectID := strings.TrimSpace(projectFlag)
	if projectID == "" {
		projectID = strings.TrimSpace(os.Getenv("BOOTH_PROJECTID"))
	}
	if projectID == "" {
		exitWithError(errors.New("-project or BOOTH_PROJECTID is required"))
	}

	dbURL := strings.TrimSpace(os.Getenv("BOOTH_DATABASEURL"))
	if dbURL == "" {
		exitWithError(errors.New("BOOTH_DATABASEURL is required"))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		exitWithError(fmt.Errorf("failed to connect database: %w", err))
	}
	defer pool.Close()

	logger := infra.NewLogger("cli").With().Str("cmd", "quotactl").Logger()

	controller := quota.NewController(
		repo.NewProjectRepository(pool),
		repo.NewQuotaRepository(pool),
		repo.NewSessionRepository(pool),
		logger,
	)

	snap, err := controller.Check(ctx, projectID)
	if err != nil {
		exitWithError(err)
	}

	out := map[string]any{
		"project_id":       projectID,
		"allotted":         snap.Allotted,
		"used_since_reset": snap.UsedSinceReset,
		"remaining":        snap.Remaining,
		"exhausted":        snap.Exhausted(),
		"reset_at":         snap.ResetAt.UTC().Format(time.RFC3339),
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		exitWithError(err)
	}
}

func exitWithError(err error) {
	fmt.Fprintln(os.Stderr, "error:", err)
	os.Exit(1)
}
