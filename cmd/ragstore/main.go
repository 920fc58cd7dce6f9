// Package main implements the ragstore CLI: save text into a vector
// collection, search it, and reset it.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ragstore/internal/config"
	"github.com/fyrsmithlabs/ragstore/internal/embeddings"
)

var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(defaultDependencies()).ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		stop()
		os.Exit(1)
	}
}

// dependencies are the constructors the commands build their app from.
type dependencies struct {
	loadConfig  func(path string) (*config.Config, error)
	newProvider func(cfg embeddings.ProviderConfig, logger *zap.Logger) (embeddings.Provider, error)
}

func defaultDependencies() dependencies {
	return dependencies{
		loadConfig:  config.Load,
		newProvider: embeddings.NewProvider,
	}
}

// globalFlags are the persistent flags shared by every subcommand.
type globalFlags struct {
	configPath string
	collection string
	storeType  string
}

func newRootCmd(deps dependencies) *cobra.Command {
	flags := &globalFlags{}

	root := &cobra.Command{
		Use:   "ragstore",
		Short: "Store and search text in a local or remote vector collection",
		Long: `ragstore saves text into a vector collection and searches it by meaning.

The backend (embedded SQLite, chromem collection or Qdrant) and the embedding
provider come from ~/.config/ragstore/config.yaml, overridable through
environment variables such as STORAGE_TYPE or EMBEDDING_PROVIDER.

Examples:
  ragstore add "The cat purrs" --meta kind=note --meta tag=pet --meta tag=animal
  ragstore search "feline" --limit 5 --threshold 0.5
  ragstore reset --collection scratch`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&flags.configPath, "config", "", "config file (default ~/.config/ragstore/config.yaml)")
	root.PersistentFlags().StringVar(&flags.collection, "collection", "", "collection name, overriding storage.collection_name")
	root.PersistentFlags().StringVar(&flags.storeType, "store", "", "backend type: embedded, collection or qdrant")

	root.AddCommand(
		newAddCmd(deps, flags),
		newSearchCmd(deps, flags),
		newResetCmd(deps, flags),
	)
	return root
}
