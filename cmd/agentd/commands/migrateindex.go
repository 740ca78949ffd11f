package commands

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/agentmesh/runtime/internal/agent"
	"github.com/agentmesh/runtime/internal/config"
	"github.com/agentmesh/runtime/internal/logging"
	"github.com/agentmesh/runtime/internal/retrieval"
)

var migrateIndexDataDir string

var migrateIndexCmd = &cobra.Command{
	Use:   "migrate-index",
	Short: "Migrate and refresh every agent's retrieval indexes",
	Long: `migrate-index resolves every agent's Runtime, which as a side effect
migrates a legacy JSON-fallback index into SQLite when the configured
engine is sqlite and refreshes both the memory and knowledge indexes from
their source files.`,
	RunE: runMigrateIndex,
}

func init() {
	migrateIndexCmd.Flags().StringVar(&migrateIndexDataDir, "data-dir", "", "Workspaces root directory (default: $AGENTD_DATA_DIR or ./workspaces)")
}

func runMigrateIndex(cmd *cobra.Command, args []string) error {
	root := config.DefaultWorkspacesRoot()
	if migrateIndexDataDir != "" {
		root = config.WorkspacesRoot(migrateIndexDataDir)
	}

	ctx := context.Background()
	embedClient := retrieval.NewOpenAIEmbeddingClient("", "", embeddingModel)
	registry := agent.NewRegistry(root, embedClient)

	ids, err := registry.List()
	if err != nil {
		return err
	}

	for _, id := range ids {
		if _, err := registry.GetRuntime(ctx, id); err != nil {
			logging.Warn().Str("agent_id", id).Err(err).Msg("agentd: migrate-index failed for agent")
			continue
		}
		logging.Info().Str("agent_id", id).Msg("agentd: index migration complete")
	}
	return nil
}
