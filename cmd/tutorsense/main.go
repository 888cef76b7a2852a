package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/hrygo/tutorsense/ai/batch"
	"github.com/hrygo/tutorsense/ai/cache"
	"github.com/hrygo/tutorsense/ai/core/llm"
	"github.com/hrygo/tutorsense/ai/fallback"
	"github.com/hrygo/tutorsense/ai/memory"
	"github.com/hrygo/tutorsense/ai/metrics"
	"github.com/hrygo/tutorsense/ai/observability/logging"
	"github.com/hrygo/tutorsense/ai/optimizer"
	"github.com/hrygo/tutorsense/ai/session"
	"github.com/hrygo/tutorsense/ai/stats"
	"github.com/hrygo/tutorsense/internal/profile"
	"github.com/hrygo/tutorsense/internal/version"
	"github.com/hrygo/tutorsense/plugin/notify"
	"github.com/hrygo/tutorsense/server"
	"github.com/hrygo/tutorsense/store"
	"github.com/hrygo/tutorsense/store/catalog"
	"github.com/hrygo/tutorsense/store/db"
)

var rootCmd = &cobra.Command{
	Use:   "tutorsense",
	Short: `An AI tutoring companion for children. Adaptive sessions, guardian alerts, and cost-aware LLM routing.`,
	PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
		// Systemd services carry their environment from the unit file.
		if !isRunningAsSystemdService() {
			_ = godotenv.Load() //nolint:errcheck // a missing .env file is fine
		}
		return nil
	},
	RunE: func(_ *cobra.Command, _ []string) error {
		instanceProfile := &profile.Profile{
			Mode:    viper.GetString("mode"),
			Addr:    viper.GetString("addr"),
			Port:    viper.GetInt("port"),
			Data:    viper.GetString("data"),
			Driver:  viper.GetString("driver"),
			DSN:     viper.GetString("dsn"),
			Version: version.GetCurrentVersion(viper.GetString("mode")),
		}
		instanceProfile.FromEnv()
		if err := instanceProfile.Validate(); err != nil {
			return errors.Wrap(err, "invalid profile")
		}
		return run(instanceProfile)
	},
}

func run(instanceProfile *profile.Profile) error {
	logging.Setup(instanceProfile.Mode)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	dbDriver, err := db.NewDBDriver(instanceProfile)
	if err != nil {
		return errors.Wrap(err, "create db driver")
	}
	storeInstance := store.New(dbDriver, instanceProfile)
	if err := storeInstance.Migrate(ctx); err != nil {
		return errors.Wrap(err, "migrate database")
	}
	defer func() {
		if cerr := storeInstance.Close(); cerr != nil {
			slog.Error("failed to close store", "error", cerr)
		}
	}()

	cat, err := loadCatalog(instanceProfile)
	if err != nil {
		return errors.Wrap(err, "load content catalogue")
	}

	if !instanceProfile.IsAIEnabled() {
		return errors.New("no LLM API key configured, set TUTORSENSE_LLM_API_KEY (or use the ollama provider)")
	}
	provider, err := llm.NewService(&llm.Config{
		Provider: instanceProfile.LLMProvider,
		APIKey:   instanceProfile.LLMAPIKey,
		BaseURL:  instanceProfile.LLMBaseURL,
		Timeout:  instanceProfile.LLMTimeout,
		RPS:      instanceProfile.ProviderRPS,
		Models: map[llm.Tier]string{
			llm.TierQuality: instanceProfile.LLMModelQuality,
			llm.TierBalance: instanceProfile.LLMModelBalance,
			llm.TierEconomy: instanceProfile.LLMModelEconomy,
		},
	})
	if err != nil {
		return errors.Wrap(err, "create llm service")
	}
	go provider.Warmup(ctx)

	exporter := metrics.NewPrometheusExporter(metrics.DefaultConfig())
	persister := stats.NewPersister(storeInstance, 0, slog.Default())
	defer persister.Stop()

	responseCache := cache.NewResponseCache(cache.ResponseCacheConfig{
		Capacity:            instanceProfile.CacheCapacity,
		SimilarityThreshold: instanceProfile.CacheSimilarity,
	})

	orch := session.NewOrchestrator(session.Config{
		BreakAfter:     time.Duration(instanceProfile.SessionBreakMins) * time.Minute,
		BreakAfterMsgs: instanceProfile.SessionBreakMsgs,
	}, session.Deps{
		Consolidator: memory.NewConsolidator(storeInstance.MemoryStore(), instanceProfile.ShortTermEntries),
		Optimizer:    optimizer.New(optimizer.WithWindow(instanceProfile.CompressionWindow)),
		Tracker: optimizer.NewTracker(optimizer.TrackerConfig{
			DailyBudgetUSD: instanceProfile.DailyBudgetUSD,
			CostAlertUSD:   instanceProfile.CostAlertUSD,
			Sink:           persister.UsageSink(),
		}),
		Cache:    responseCache,
		Provider: provider,
		Failures: fallback.NewHandler(fallback.NewBank(cat, time.Now().UnixNano())),
		Notifier: guardianNotifier(instanceProfile),
		Archiver: persister,
		Exporter: exporter,
		Catalog:  cat,
		Logger:   slog.Default(),
	})

	batcher := batch.NewScheduler(batch.Config{}, provider, responseCache, cat, nil, slog.Default())
	batcher.Start(ctx)
	defer batcher.Stop()

	cleanupJob := session.NewCleanupJob(orch, time.Duration(instanceProfile.SessionIdleHours)*time.Hour, 0)
	cleanupJob.Start(ctx)
	defer cleanupJob.Stop()

	s, err := server.NewServer(ctx, instanceProfile, storeInstance, orch, batcher, exporter)
	if err != nil {
		return errors.Wrap(err, "create server")
	}

	c := make(chan os.Signal, 1)
	// SIGTERM is the graceful shutdown signal used by most process managers.
	signal.Notify(c, terminationSignals...)
	go func() {
		<-c
		cancel()
	}()

	printGreetings(instanceProfile)
	return s.Start(ctx)
}

// loadCatalog merges the fallback content catalogue with an optional separate
// curriculum topic file. Both default to the built-in catalogue when unset.
func loadCatalog(p *profile.Profile) (*catalog.Catalog, error) {
	cat, err := catalog.Load(p.FallbackContent)
	if err != nil {
		return nil, err
	}
	if p.CurriculumTopics == "" {
		return cat, nil
	}

	data, err := os.ReadFile(p.CurriculumTopics)
	if err != nil {
		return nil, errors.Wrapf(err, "read curriculum topics %s", p.CurriculumTopics)
	}
	var topics map[string][]string
	if err := json.Unmarshal(data, &topics); err != nil {
		return nil, errors.Wrapf(err, "parse curriculum topics %s", p.CurriculumTopics)
	}
	cat.Topics = topics
	return cat, nil
}

// guardianNotifier builds the notification dispatcher from the configured
// channels. Returns nil when no channel is configured.
func guardianNotifier(p *profile.Profile) session.GuardianNotifier {
	var channels []notify.Channel
	if p.GuardianWebhookURL != "" {
		channels = append(channels, notify.NewWebhookChannel(p.GuardianWebhookURL))
	}
	if p.TelegramBotToken != "" && p.TelegramGuardianChat != 0 {
		tg, err := notify.NewTelegramChannel(p.TelegramBotToken, p.TelegramGuardianChat)
		if err != nil {
			slog.Warn("failed to create telegram channel", "error", err)
		} else {
			channels = append(channels, tg)
		}
	}
	if len(channels) == 0 {
		return nil
	}
	return notify.NewDispatcher(slog.Default(), channels...)
}

func init() {
	viper.SetDefault("mode", "dev")
	viper.SetDefault("driver", "sqlite")
	viper.SetDefault("port", 28084)

	rootCmd.PersistentFlags().String("mode", "dev", `mode of server, can be "prod" or "dev" or "demo"`)
	rootCmd.PersistentFlags().String("addr", "", "address of server")
	rootCmd.PersistentFlags().Int("port", 28084, "port of server")
	rootCmd.PersistentFlags().String("data", "", "data directory")
	rootCmd.PersistentFlags().String("driver", "sqlite", "database driver (sqlite, postgres)")
	rootCmd.PersistentFlags().String("dsn", "", "database source name(aka. DSN)")

	for _, flag := range []string{"mode", "addr", "port", "data", "driver", "dsn"} {
		if err := viper.BindPFlag(flag, rootCmd.PersistentFlags().Lookup(flag)); err != nil {
			panic(err)
		}
	}

	viper.SetEnvPrefix("tutorsense")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
}

func printGreetings(p *profile.Profile) {
	fmt.Printf("TutorSense %s started successfully!\n", p.Version)

	if p.IsDev() {
		fmt.Fprint(os.Stderr, "Development mode is enabled\n")
		if p.DSN != "" {
			fmt.Fprintf(os.Stderr, "Database: %s\n", p.DSN)
		}
	}

	fmt.Printf("Data directory: %s\n", p.Data)
	fmt.Printf("Database driver: %s\n", p.Driver)
	fmt.Printf("Mode: %s\n", p.Mode)

	if len(p.Addr) == 0 {
		fmt.Printf("Server running on port %d\n", p.Port)
	} else {
		fmt.Printf("Server running on %s:%d\n", p.Addr, p.Port)
	}
	fmt.Println()
}

// isRunningAsSystemdService detects if the process is running under systemd.
func isRunningAsSystemdService() bool {
	return os.Getenv("INVOCATION_ID") != "" || os.Getenv("WATCHDOG_USEC") != ""
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
