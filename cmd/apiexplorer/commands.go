package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/efiadm/api-categorizer-aggr/internal/catalog"
	"github.com/efiadm/api-categorizer-aggr/internal/errors"
	"github.com/efiadm/api-categorizer-aggr/internal/logger"
	"github.com/efiadm/api-categorizer-aggr/internal/output"
	"github.com/efiadm/api-categorizer-aggr/internal/progress"
	"github.com/efiadm/api-categorizer-aggr/internal/router"
	"github.com/efiadm/api-categorizer-aggr/internal/server"
	"github.com/efiadm/api-categorizer-aggr/internal/shutdown"
	"github.com/efiadm/api-categorizer-aggr/internal/transcript"
	"github.com/efiadm/api-categorizer-aggr/pkg/explorer"
)

// session is one CLI invocation's explorer and output writer.
type session struct {
	explorer *explorer.Explorer
	out      output.Writer
	config   *explorer.Config
}

func (s *session) close() {
	s.out.Flush()
	s.explorer.Close()
}

// buildConfig loads the config file, if any, and applies the flags that were
// set on the command line.
func buildConfig(cmd *cobra.Command) (*explorer.Config, error) {
	config := explorer.DefaultConfig()

	if configFile != "" {
		fileConfig, err := explorer.LoadFromFile(configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
		config = fileConfig
	}

	// Command-line takes precedence
	flags := cmd.Flags()
	if flags.Changed("format") {
		config.Output.Format = outputFormat
	}
	if flags.Changed("data") {
		config.State.Dir = dataDir
	}
	if flags.Changed("store") {
		config.State.Backend = stateBackend
	}
	if flags.Changed("size") {
		config.Catalog.Size = catalogSize
	}
	if flags.Changed("seed") {
		config.Catalog.Seed = seed
	}
	if flags.Changed("addr") {
		config.Server.Addr = addr
	}
	config.Verbose = config.Verbose || verbose
	config.Debug = config.Debug || debug

	return config, nil
}

// openSession builds the explorer. With load set it also generates the
// catalog; stream enables event output for the structured formats.
func openSession(ctx context.Context, cmd *cobra.Command, load, stream bool) (*session, error) {
	// A missing .env is fine.
	_ = godotenv.Load()

	config, err := buildConfig(cmd)
	if err != nil {
		return nil, err
	}

	e, err := explorer.New(explorer.WithConfig(config))
	if err != nil {
		return nil, fmt.Errorf("failed to create explorer: %w", err)
	}
	logger.SetGlobal(e.Logger())

	w, err := output.NewWriter(os.Stdout, output.Config{
		Format: config.Output.Format,
		Pretty: config.Output.Pretty,
		Stream: stream,
	})
	if err != nil {
		e.Close()
		return nil, err
	}

	if load {
		res := e.Load(ctx)
		if res.Source == catalog.SourceFallback && isText(config) {
			fmt.Fprintln(os.Stderr, "Using the built-in sample catalog (completion service unavailable).")
		}
	}

	return &session{explorer: e, out: w, config: config}, nil
}

func isText(config *explorer.Config) bool {
	return config.Output.Format == "" || config.Output.Format == output.FormatText
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		select {
		case <-sigChan:
			fmt.Fprintf(os.Stderr, "\nReceived interrupt signal, stopping...\n")
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigChan)
	}()

	return ctx, cancel
}

func warn(err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
	}
}

// =============================================================================
// Catalog commands
// =============================================================================

func runList(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	mode, err := catalog.ParseMode(view)
	if err != nil {
		return err
	}

	s, err := openSession(ctx, cmd, true, false)
	if err != nil {
		return err
	}
	defer s.close()

	apis := s.explorer.Search(catalog.Query{Text: query, Category: category, Mode: mode})
	if limit > 0 && len(apis) > limit {
		apis = apis[:limit]
	}
	return s.out.WriteAPIs(apis)
}

func runCategories(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	s, err := openSession(ctx, cmd, true, false)
	if err != nil {
		return err
	}
	defer s.close()

	return s.out.WriteCategories(s.explorer.Categories())
}

func runShow(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	s, err := openSession(ctx, cmd, true, false)
	if err != nil {
		return err
	}
	defer s.close()

	api, err := s.explorer.Open(args[0])
	if errors.IsNotFound(err) {
		return fmt.Errorf("no API with id %q in this session's catalog", args[0])
	}
	warn(err)

	return s.out.WriteAPI(api)
}

func runTest(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	s, err := openSession(ctx, cmd, true, false)
	if err != nil {
		return err
	}
	defer s.close()

	res, err := s.explorer.TestAPI(ctx, args[0])
	if err != nil {
		return err
	}
	return s.out.WriteTest(res)
}

// =============================================================================
// Ledger commands
// =============================================================================

func runFavorite(cmd *cobra.Command, args []string) error {
	s, err := openSession(context.Background(), cmd, false, true)
	if err != nil {
		return err
	}
	defer s.close()

	on, err := s.explorer.ToggleFavorite(args[0])
	if err != nil && !errors.IsType(err, errors.Storage) {
		return err
	}
	warn(err)

	id := strings.TrimSpace(args[0])
	if isText(s.config) {
		if on {
			fmt.Printf("Added %s to favorites\n", id)
		} else {
			fmt.Printf("Removed %s from favorites\n", id)
		}
		return nil
	}
	return s.out.WriteEvent(output.StreamEvent{
		Type: "favorite",
		Data: map[string]interface{}{"id": id, "favorite": on},
	})
}

func runFavorites(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	s, err := openSession(ctx, cmd, true, false)
	if err != nil {
		return err
	}
	defer s.close()

	return s.out.WriteAPIs(s.explorer.Favorites())
}

func runHistory(cmd *cobra.Command, args []string) error {
	s, err := openSession(context.Background(), cmd, false, false)
	if err != nil {
		return err
	}
	defer s.close()

	return s.out.WriteHistory(s.explorer.History())
}

// =============================================================================
// Chat commands
// =============================================================================

func runAsk(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	s, err := openSession(ctx, cmd, true, true)
	if err != nil {
		return err
	}
	defer s.close()

	var observe router.Observer
	var display *progress.Display
	if isText(s.config) {
		if !s.config.Verbose && !s.config.Debug {
			display = progress.New(os.Stderr)
			display.Start()
			defer display.Stop()
			observe = display.Observe
		}
	} else {
		observe = func(p router.Phase) {
			s.out.WriteEvent(output.StreamEvent{Type: "phase", Data: p})
		}
	}

	ex, err := s.explorer.Ask(ctx, strings.Join(args, " "), observe)
	if display != nil {
		display.Stop()
	}
	if ex == nil {
		if err != nil {
			return err
		}
		return fmt.Errorf("question is empty")
	}
	warn(err)

	return s.out.WriteMessages([]transcript.Message{ex.Question, ex.Answer})
}

func runChat(cmd *cobra.Command, args []string) error {
	s, err := openSession(context.Background(), cmd, false, false)
	if err != nil {
		return err
	}
	defer s.close()

	return s.out.WriteMessages(s.explorer.Transcript())
}

// =============================================================================
// Service commands
// =============================================================================

func runServe(cmd *cobra.Command, args []string) error {
	s, err := openSession(context.Background(), cmd, false, false)
	if err != nil {
		return err
	}
	log := s.explorer.Logger()

	h := shutdown.New(shutdown.Config{Timeout: s.config.Server.ShutdownTimeout})

	res := s.explorer.Load(h.Context())
	log.WithFields(map[string]interface{}{
		"source": res.Source,
		"size":   len(res.APIs),
	}).Info("Catalog ready")

	srv := server.New(s.explorer)

	// Hooks run in reverse: stop serving, then flush and close the store.
	h.Register("explorer", func(context.Context) error {
		s.close()
		return nil
	})
	h.Register("http", srv.Shutdown)

	fmt.Fprintf(os.Stderr, "API Explorer v%s listening on %s\n", version, s.config.Server.Addr)

	var g errgroup.Group

	g.Go(func() error {
		if err := srv.Start(context.Background()); err != nil {
			logger.Errorf("Server stopped: %v", err)
			h.Trigger()
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		return h.Wait(context.Background())
	})

	return g.Wait()
}

func runConfig(cmd *cobra.Command, args []string) error {
	config, err := buildConfig(cmd)
	if err != nil {
		return err
	}
	if err := config.Validate(); err != nil {
		return err
	}
	if err := config.SaveToFile(args[0]); err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "Configuration written to %s\n", args[0])
	return nil
}
