package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	version = "1.0.0"

	// Global flags
	configFile   string
	verbose      bool
	debug        bool
	outputFormat string
	dataDir      string
	stateBackend string
	catalogSize  int
	seed         uint64

	// List flags
	query    string
	category string
	view     string
	limit    int

	// Serve flags
	addr string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "apiexplorer",
		Short: "API Explorer - browse and ask about a directory of public APIs",
		Long: `API Explorer - a directory of public APIs with search, favorites and a chat assistant.

The catalog is generated by a completion service at startup, with a local
fallback when the service is unavailable. Favorites, view history and the
chat transcript persist between runs.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List catalog entries",
		Long:  "List catalog entries, optionally filtered by text, category and view.",
		Args:  cobra.NoArgs,
		RunE:  runList,
	}

	categoriesCmd := &cobra.Command{
		Use:   "categories",
		Short: "Show the category index",
		Args:  cobra.NoArgs,
		RunE:  runCategories,
	}

	showCmd := &cobra.Command{
		Use:   "show [id]",
		Short: "Show one entry and record the view",
		Args:  cobra.ExactArgs(1),
		RunE:  runShow,
	}

	favoriteCmd := &cobra.Command{
		Use:   "favorite [id]",
		Short: "Toggle the favorite status of an entry",
		Args:  cobra.ExactArgs(1),
		RunE:  runFavorite,
	}

	favoritesCmd := &cobra.Command{
		Use:   "favorites",
		Short: "List favorited entries",
		Args:  cobra.NoArgs,
		RunE:  runFavorites,
	}

	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "List recently viewed entries",
		Args:  cobra.NoArgs,
		RunE:  runHistory,
	}

	askCmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Ask the assistant which APIs fit a need",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runAsk,
	}

	chatCmd := &cobra.Command{
		Use:   "chat",
		Short: "Show the chat transcript",
		Args:  cobra.NoArgs,
		RunE:  runChat,
	}

	testCmd := &cobra.Command{
		Use:   "test [id]",
		Short: "Run a simulated call against an entry",
		Args:  cobra.ExactArgs(1),
		RunE:  runTest,
	}

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the directory over HTTP",
		Long:  "Serve the directory as a JSON API with a chat WebSocket and Prometheus metrics.",
		Args:  cobra.NoArgs,
		RunE:  runServe,
	}

	configCmd := &cobra.Command{
		Use:   "config [path]",
		Short: "Write the effective configuration to a file",
		Long:  "Write the effective configuration to a YAML or JSON file. The API key is never written.",
		Args:  cobra.ExactArgs(1),
		RunE:  runConfig,
	}

	// Global flags
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Configuration file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Debug mode")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "format", "f", "text", "Output format (text, json, yaml)")
	rootCmd.PersistentFlags().StringVar(&dataDir, "data", "", "Directory holding favorites, history and the transcript")
	rootCmd.PersistentFlags().StringVar(&stateBackend, "store", "", "State backend (bolt, file, gzip, memory)")
	rootCmd.PersistentFlags().IntVar(&catalogSize, "size", 0, "Number of catalog entries")
	rootCmd.PersistentFlags().Uint64Var(&seed, "seed", 0, "Seed for the fallback catalog (0 = random)")

	// List flags
	listCmd.Flags().StringVarP(&query, "query", "q", "", "Text to match against name, description, category and endpoint")
	listCmd.Flags().StringVar(&category, "category", "", "Exact category label")
	listCmd.Flags().StringVar(&view, "view", "all", "View (all, favorites, history)")
	listCmd.Flags().IntVarP(&limit, "limit", "n", 0, "Maximum entries to print (0 = all)")

	// Serve flags
	serveCmd.Flags().StringVar(&addr, "addr", "", "Listen address (default from config)")

	// Add commands
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(categoriesCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(favoriteCmd)
	rootCmd.AddCommand(favoritesCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(askCmd)
	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(testCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(configCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
