package commands

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/agentmesh/runtime/internal/agent"
	"github.com/agentmesh/runtime/internal/config"
)

var listAgentsDataDir string

var listAgentsCmd = &cobra.Command{
	Use:   "list-agents",
	Short: "List agent ids with a workspace under the data directory",
	RunE:  runListAgents,
}

func init() {
	listAgentsCmd.Flags().StringVar(&listAgentsDataDir, "data-dir", "", "Workspaces root directory (default: $AGENTD_DATA_DIR or ./workspaces)")
}

func runListAgents(cmd *cobra.Command, args []string) error {
	root := config.DefaultWorkspacesRoot()
	if listAgentsDataDir != "" {
		root = config.WorkspacesRoot(listAgentsDataDir)
	}

	registry := agent.NewRegistry(root, nil)
	ids, err := registry.List()
	if err != nil {
		return err
	}

	out, err := json.MarshalIndent(ids, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
