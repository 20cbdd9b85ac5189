// Command oceep is the interactive Gemini chat client. Run without
// arguments to start the chat TUI; subcommands cover config and
// session housekeeping.
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/foxai-labs/oceep/cmd/oceep/chat"
	"github.com/foxai-labs/oceep/internal/config"
	"github.com/foxai-labs/oceep/internal/convo"
	"github.com/foxai-labs/oceep/internal/gemini"
	"github.com/foxai-labs/oceep/internal/logging"
	"github.com/foxai-labs/oceep/internal/pipeline"
	"github.com/foxai-labs/oceep/internal/speech"
	"github.com/foxai-labs/oceep/internal/store"
	"github.com/foxai-labs/oceep/internal/types"
)

const version = "0.3.0"

var (
	// Global flags
	configPath string
	verbose    bool
	incognito  bool

	// Logger for non-TUI subcommands
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "oceep",
	Short: "Oceep - streaming Gemini chat in your terminal",
	Long: `Oceep is an interactive chat client for the Gemini API.

It streams answers live with inline reasoning, runs code, grounds
responses with search citations, and renders structured cards for
weather, stocks, flights and more, all inside a terminal UI.

Run without arguments to start chatting.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// The TUI has its own logging; zap would fight the screen.
		if cmd.Use == "oceep" && cmd.CalledAs() == "oceep" {
			return nil
		}
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
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return runChat()
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("oceep %s\n", version)
	},
}

var configShowCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintf(w, "data dir\t%s\n", cfg.Storage.DataDir)
		fmt.Fprintf(w, "database\t%s\n", cfg.DatabasePath())
		fmt.Fprintf(w, "api keys\t%d configured\n", len(cfg.API.Keys))
		fmt.Fprintf(w, "cloud\t%v\n", cfg.Cloud.URL != "")
		fmt.Fprintf(w, "tier\t%s\n", cfg.Chat.DefaultTier)
		fmt.Fprintf(w, "mood\t%s\n", cfg.Chat.DefaultMood)
		fmt.Fprintf(w, "persona\t%s\n", cfg.Chat.PersonaID)
		fmt.Fprintf(w, "incognito\t%v\n", cfg.Chat.Incognito)
		return w.Flush()
	},
}

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List locally stored sessions",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		local, err := store.NewLocalStore(cfg.DatabasePath())
		if err != nil {
			return fmt.Errorf("failed to open local store: %w", err)
		}
		defer local.Close()

		sessions, err := local.LoadSessions()
		if err != nil {
			return fmt.Errorf("failed to load sessions: %w", err)
		}
		logger.Info("loaded sessions", zap.Int("count", len(sessions)))

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tMESSAGES\tTITLE")
		for _, s := range sessions {
			fmt.Fprintf(w, "%s\t%d\t%s\n", s.ID, len(s.Messages), s.Title)
		}
		return w.Flush()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default: <data dir>/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose logging")
	rootCmd.Flags().BoolVar(&incognito, "incognito", false, "do not persist this run's conversations")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(configShowCmd)
	rootCmd.AddCommand(sessionsCmd)
}

func loadConfig() (*config.Config, error) {
	path := configPath
	if path == "" {
		path = filepath.Join(config.DefaultConfig().Storage.DataDir, "config.yaml")
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

// runChat wires the full pipeline and hands control to the TUI.
func runChat() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	if err := logging.Initialize(cfg.Storage.DataDir, logging.Settings{
		DebugMode:  cfg.Logging.DebugMode || verbose,
		Level:      cfg.Logging.Level,
		Categories: cfg.Logging.Categories,
	}); err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	defer logging.CloseAll()
	logging.Boot("oceep %s starting", version)

	client, err := gemini.NewClient(gemini.Config{
		APIKeys: cfg.API.Keys,
		Timeout: cfg.APITimeout(),
	})
	if err != nil {
		return err
	}

	local, err := store.NewLocalStore(cfg.DatabasePath())
	if err != nil {
		return fmt.Errorf("failed to open local store: %w", err)
	}
	defer local.Close()

	conversations := convo.New()
	orch := pipeline.New(conversations, pipeline.Deps{
		Generator: client,
		Intent:    client,
		Speech:    speech.NewService(client),
		Local:     local,
		Cloud:     store.NewCloudStore(cfg.Cloud.URL, cfg.Cloud.AnonKey),
	}, pipeline.Config{
		Incognito:     incognito || cfg.Chat.Incognito,
		UserID:        cfg.Cloud.UserID,
		UserLabel:     cfg.Chat.Nickname,
		IsRateLimited: gemini.IsRateLimited,
	})

	if err := orch.Bootstrap(context.Background()); err != nil {
		return fmt.Errorf("failed to bootstrap sessions: %w", err)
	}

	// Live-reload logging settings while the TUI runs.
	watchPath := configPath
	if watchPath == "" {
		watchPath = filepath.Join(cfg.Storage.DataDir, "config.yaml")
	}
	if watcher, werr := config.Watch(watchPath, func(next *config.Config) {
		logging.Configure(logging.Settings{
			DebugMode:  next.Logging.DebugMode || verbose,
			Level:      next.Logging.Level,
			Categories: next.Logging.Categories,
		})
	}); werr == nil {
		defer watcher.Close()
	} else {
		logging.Boot("config watch disabled: %v", werr)
	}

	return chat.Run(chat.Options{
		Orchestrator:  orch,
		Conversations: conversations,
		Tier:          types.ModelTier(cfg.Chat.DefaultTier),
		Mood:          types.Mood(cfg.Chat.DefaultMood),
		PersonaID:     cfg.Chat.PersonaID,
		Nickname:      cfg.Chat.Nickname,
	})
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
