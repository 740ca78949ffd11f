package commands

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/agentmesh/runtime/internal/agent"
	"github.com/agentmesh/runtime/internal/config"
	"github.com/agentmesh/runtime/internal/logging"
	"github.com/agentmesh/runtime/internal/orchestrator"
	"github.com/agentmesh/runtime/internal/provider"
	"github.com/agentmesh/runtime/internal/retrieval"
	"github.com/agentmesh/runtime/internal/server"
	"github.com/agentmesh/runtime/pkg/types"
)

var (
	servePort          int
	serveDataDir       string
	serveDisableCORS   bool
	serveDisableSched  bool
	embeddingModel     string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the agentd HTTP server",
	Long: `Start agentd as a server exposing the agents/sessions/chat/files/
config/scheduler HTTP API, with every agent's cron and heartbeat
schedulers running in the background.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 8080, "Port to listen on")
	serveCmd.Flags().StringVar(&serveDataDir, "data-dir", "", "Workspaces root directory (default: $AGENTD_DATA_DIR or ./workspaces)")
	serveCmd.Flags().BoolVar(&serveDisableCORS, "disable-cors", false, "Disable permissive CORS headers")
	serveCmd.Flags().BoolVar(&serveDisableSched, "disable-scheduler-api", false, "Return scheduler_api_disabled for every /api/scheduler/* route")
	serveCmd.Flags().StringVar(&embeddingModel, "embedding-model", "", "OpenAI embedding model id (default: text-embedding-3-small)")
}

func runServe(cmd *cobra.Command, args []string) error {
	root := config.DefaultWorkspacesRoot()
	if serveDataDir != "" {
		root = config.WorkspacesRoot(serveDataDir)
	}

	logging.Info().Str("version", Version).Str("dataDir", string(root)).Msg("starting agentd")

	ctx := context.Background()

	embedClient := retrieval.NewOpenAIEmbeddingClient("", "", embeddingModel)
	registry := agent.NewRegistry(root, embedClient)

	// Seed the default agent's workspace up front so it's listable and
	// schedulable even before its first request.
	if _, err := registry.GetRuntime(ctx, types.DefaultAgentID); err != nil {
		logging.Warn().Err(err).Msg("agentd: failed to seed default agent workspace")
	}

	providers := provider.NewRegistry()
	providers.InitializeFromEnv(ctx)
	if len(providers.List()) == 0 {
		logging.Warn().Msg("agentd: no providers configured; set ANTHROPIC_API_KEY or OPENAI_API_KEY")
	}

	orch := orchestrator.NewOrchestrator(registry, providers)

	serverConfig := server.DefaultConfig()
	serverConfig.Port = servePort
	serverConfig.EnableCORS = !serveDisableCORS
	serverConfig.SchedulerAPIEnabled = !serveDisableSched

	srv := server.New(serverConfig, root, registry, providers, orch)

	go func() {
		logging.Info().Int("port", servePort).Msg("agentd listening")
		if err := srv.Start(ctx); err != nil && err != http.ErrServerClosed {
			logging.Fatal().Err(err).Msg("agentd: server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logging.Info().Msg("agentd: shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logging.Error().Err(err).Msg("agentd: shutdown error")
	}

	logging.Info().Msg("agentd: stopped")
	return nil
}
