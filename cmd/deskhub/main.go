// Command deskhub is the cross-service workflow orchestrator and cache
// reconciler CLI.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	calendarapi "google.golang.org/api/calendar/v3"

	"github.com/deskhub-io/deskhub/internal/adapters/driven/config/file"
	"github.com/deskhub-io/deskhub/internal/adapters/driven/storage/sqlite"
	"github.com/deskhub-io/deskhub/internal/adapters/driving/cli"
	"github.com/deskhub-io/deskhub/internal/adapters/driving/webhook"
	"github.com/deskhub-io/deskhub/internal/connectors/discord"
	"github.com/deskhub-io/deskhub/internal/connectors/google"
	gcal "github.com/deskhub-io/deskhub/internal/connectors/google/calendar"
	"github.com/deskhub-io/deskhub/internal/connectors/notion"
	"github.com/deskhub-io/deskhub/internal/core/domain"
	"github.com/deskhub-io/deskhub/internal/core/ports/driven"
	"github.com/deskhub-io/deskhub/internal/core/services"
	"github.com/deskhub-io/deskhub/internal/logger"
	"github.com/deskhub-io/deskhub/internal/ratelimit"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	configStore, err := file.NewConfigStore("")
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}
	cfg := configStore.Config()
	if cfg.Verbose {
		logger.SetVerbose(true)
	}

	store, err := sqlite.NewStore(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer store.Close()

	client := ratelimit.NewClient()
	registerBudgets(client, cfg)

	// Config changes retune the budgets without a restart.
	watcher := file.NewWatcher(configStore, func(c file.Config) {
		registerRates(client, c)
	})
	if err := watcher.Start(); err != nil {
		logger.Warn("config watcher unavailable: %v", err)
	} else {
		defer watcher.Stop() //nolint:errcheck
	}

	docs := notion.New(cfg.Notion.Token, notion.Databases{
		TaskDatabaseID:     cfg.Notion.TaskDatabaseID,
		MeetingDatabaseID:  cfg.Notion.MeetingDatabaseID,
		DocumentDatabaseID: cfg.Notion.DocumentDatabaseID,
	})
	chat := discord.New(discord.Options{
		BotToken: cfg.Discord.BotToken,
		GuildID:  cfg.Discord.GuildID,
	})

	reconciler := services.NewReconciler(
		store.PageStore(), store.ThreadStore(), store.CursorStore(),
		[]driven.RecordSource{docs}, chat, client, cfg.Discord.DefaultChannelID)
	query := services.NewQueryService(store.PageStore())

	serviceSet := cli.Services{
		Reconciler: reconciler,
		Query:      query,
	}

	// The orchestrator needs calendar access; without credentials the
	// workflow commands stay unconfigured while sync and search work.
	if calSrv, err := buildCalendar(context.Background(), cfg.Calendar); err != nil {
		logger.Warn("calendar service unavailable: %v", err)
	} else {
		cal := gcal.New(calSrv, cfg.Calendar.CalendarID)
		serviceSet.Orchestrator = services.NewOrchestrator(
			docs, cal, chat, file.NewAddressBook(cfg.AddressBook),
			store.WorkflowStore(), reconciler, client, cfg.Discord.DefaultChannelID)
	}
	cli.SetServices(serviceSet)

	scheduler := services.NewScheduler(schedulerConfig(cfg.Sync),
		store.SchedulerStore(), reconciler, store.WorkflowStore())
	serveCfg := &cli.ServeConfig{
		WebhookAddr:    cfg.Webhook.Addr,
		WebhookHandler: webhook.NewServer(reconciler, cfg.Webhook.SharedSecret),
	}
	if cfg.Sync.Enabled {
		serveCfg.Scheduler = scheduler
	}
	cli.SetServeConfig(serveCfg)

	return cli.Execute()
}

func buildCalendar(ctx context.Context, cfg file.CalendarConfig) (*calendarapi.Service, error) {
	if cfg.CredentialsFile == "" {
		return nil, fmt.Errorf("calendar credentials_file not configured")
	}
	return google.NewCalendarServiceFromCredentials(ctx, cfg.CredentialsFile)
}

func registerBudgets(client *ratelimit.Client, cfg file.Config) {
	client.Register(driven.ServiceNotion, ratelimit.Config{
		RequestsPerSecond: cfg.Notion.Rate.RequestsPerSecond,
		Burst:             cfg.Notion.Rate.Burst,
	})
	client.Register(driven.ServiceCalendar, ratelimit.Config{
		RequestsPerSecond: cfg.Calendar.Rate.RequestsPerSecond,
		Burst:             cfg.Calendar.Rate.Burst,
	})
	client.Register(driven.ServiceDiscord, ratelimit.Config{
		RequestsPerSecond: cfg.Discord.Rate.RequestsPerSecond,
		Burst:             cfg.Discord.Rate.Burst,
	})
}

func registerRates(client *ratelimit.Client, cfg file.Config) {
	client.SetRate(driven.ServiceNotion, cfg.Notion.Rate.RequestsPerSecond, cfg.Notion.Rate.Burst)
	client.SetRate(driven.ServiceCalendar, cfg.Calendar.Rate.RequestsPerSecond, cfg.Calendar.Rate.Burst)
	client.SetRate(driven.ServiceDiscord, cfg.Discord.Rate.RequestsPerSecond, cfg.Discord.Rate.Burst)
}

func schedulerConfig(cfg file.SyncConfig) domain.SchedulerConfig {
	reconcileInterval := time.Duration(cfg.ReconcileIntervalSeconds) * time.Second
	if reconcileInterval <= 0 {
		reconcileInterval = 180 * time.Second
	}
	pruneInterval := time.Duration(cfg.PruneIntervalSeconds) * time.Second
	if pruneInterval <= 0 {
		pruneInterval = time.Hour
	}
	return domain.SchedulerConfig{
		Enabled: cfg.Enabled,
		TaskConfigs: map[string]domain.TaskConfig{
			domain.TaskIDReconcileFull: {Enabled: true, Interval: reconcileInterval},
			domain.TaskIDWorkflowPrune: {Enabled: true, Interval: pruneInterval},
		},
	}
}
