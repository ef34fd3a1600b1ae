package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"roomcraft/internal/capability"
	"roomcraft/internal/config"
	"roomcraft/internal/integrations"
	"roomcraft/internal/logging"
	"roomcraft/internal/orchestrator"
	"roomcraft/internal/perception"
	"roomcraft/internal/scene"
	"roomcraft/internal/server"
	"roomcraft/internal/session"
	"roomcraft/internal/store"
)

const version = "0.3.0"

var (
	// Global flags
	verbose    bool
	configPath string
	workspace  string

	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "roomcraft",
	Short: "roomcraft - agent-driven interactive canvas",
	Long: `roomcraft turns natural language into a living canvas.

An LLM translates each request into typed scene actions: adding and arranging
elements, attaching sandboxed Go behavior snippets, generating images, and
finally saving the finished room. Run 'roomcraft serve' to expose the canvas
over HTTP, or 'roomcraft turn' for a one-shot request.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zcfg := zap.NewProductionConfig()
		if verbose {
			zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zcfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
		logging.CloseAll()
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the canvas over HTTP",
	Long: `Starts the HTTP gateway: turns in, scene state out, plus the event
and drag endpoints the rendering surface calls into.`,
	RunE: runServe,
}

var turnCmd = &cobra.Command{
	Use:   "turn [message]",
	Short: "Run a single orchestration turn and print the result",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runTurn,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the roomcraft version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("roomcraft %s\n", version)
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", ".roomcraft/config.yaml", "config file path")
	rootCmd.PersistentFlags().StringVarP(&workspace, "workspace", "w", ".", "workspace directory")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(turnCmd)
	rootCmd.AddCommand(versionCmd)
}

// runtime is the fully wired stack shared by serve and turn.
type runtime struct {
	cfg     *config.Config
	db      *store.Store
	session *session.Session
	music   *integrations.MusicClient
}

func (r *runtime) close() {
	r.session.Close()
	if r.db != nil {
		_ = r.db.Close()
	}
}

func buildRuntime() (*runtime, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	if err := logging.Initialize(workspace); err != nil {
		logger.Warn("file logging disabled", zap.Error(err))
	}

	db, err := store.NewStore(cfg.Persistence.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	client, err := perception.NewClient(perception.ClientConfig{
		Provider: perception.Provider(cfg.LLM.Provider),
		APIKey:   cfg.LLM.APIKey,
		BaseURL:  cfg.LLM.BaseURL,
		Model:    cfg.LLM.Model,
		Timeout:  cfg.GetLLMTimeout(),
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	var music *integrations.MusicClient
	var musicCtx capability.MusicContext
	if cfg.Integrations.Music.Enabled {
		music = integrations.NewMusicClient(cfg.Integrations.Music.BaseURL, cfg.GetMusicTimeout())
		if err := music.Connect(); err != nil {
			logger.Warn("music service unavailable", zap.Error(err))
		}
		musicCtx = music
	}

	var images integrations.ImageGenerator
	if cfg.Integrations.ImageGen.Enabled {
		images = integrations.NewHTTPImageGenerator(
			cfg.Integrations.ImageGen.BaseURL,
			cfg.Integrations.ImageGen.APIKey,
			cfg.GetImageGenTimeout(),
		)
	}

	sc := scene.NewStore()
	popup := func(msg string) {
		logger.Info("capability popup", zap.String("message", msg))
	}
	executor := capability.NewExecutor(sc, popup, musicCtx)
	executor.SetTimeout(cfg.GetCapabilityTimeout())

	orch, err := orchestrator.New(client, sc, orchestrator.Options{
		Executor:  executor,
		Library:   db,
		Images:    images,
		MaxRounds: cfg.Orchestrator.MaxRounds,
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	sess, err := session.New(session.Config{
		Scene:        sc,
		Orchestrator: orch,
		Executor:     executor,
		Persist:      db,
		SaveDebounce: cfg.GetSaveDebounce(),
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &runtime{cfg: cfg, db: db, session: sess, music: music}, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	rt, err := buildRuntime()
	if err != nil {
		return err
	}
	defer rt.close()

	srv := server.New(rt.session, server.Options{
		Capabilities: rt.db,
		Rooms:        rt.db,
		Version:      version,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	watcher, err := config.NewWatcher(configPath, func(next *config.Config) {
		logger.Info("configuration reloaded", zap.String("path", configPath))
	})
	if err == nil {
		if err := watcher.Start(ctx); err != nil {
			logger.Warn("config watcher failed to start", zap.Error(err))
		} else {
			defer watcher.Stop()
		}
	}

	rt.session.StartIntervals(ctx)
	defer rt.session.StopIntervals()

	addr := rt.cfg.ListenAddr()
	logger.Info("roomcraft serving", zap.String("addr", addr), zap.String("provider", rt.cfg.LLM.Provider))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Listen(addr)
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && ctx.Err() == nil {
		return err
	}
	logger.Info("roomcraft stopped")
	return nil
}

func runTurn(cmd *cobra.Command, args []string) error {
	rt, err := buildRuntime()
	if err != nil {
		return err
	}
	defer rt.close()

	message := strings.Join(args, " ")
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	result, err := rt.session.HandleTurn(ctx, message)
	if err != nil && result == nil {
		return err
	}
	if err != nil {
		logger.Warn("turn truncated", zap.Error(err))
	}

	if result.Response != "" {
		fmt.Println(result.Response)
	}
	if len(result.Actions) > 0 {
		actions, mErr := json.MarshalIndent(result.Actions, "", "  ")
		if mErr == nil {
			fmt.Println(string(actions))
		}
	}
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
