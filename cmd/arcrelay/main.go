// Command arcrelay is the entrypoint for the single-process chat-to-CLI
// orchestrator daemon, grounded on cmd/ricochet/main.go's subcommand
// dispatch (install / help / default-run) reworked onto spf13/cobra, the
// CLI framework this module also carries.
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/arcrelay/bridge/internal/cleanup"
	"github.com/arcrelay/bridge/internal/config"
	"github.com/arcrelay/bridge/internal/cron"
	"github.com/arcrelay/bridge/internal/discordchat"
	"github.com/arcrelay/bridge/internal/ingress"
	"github.com/arcrelay/bridge/internal/lockfile"
	"github.com/arcrelay/bridge/internal/mcpsurface"
	"github.com/arcrelay/bridge/internal/observe"
	"github.com/arcrelay/bridge/internal/orchestrator"
	"github.com/arcrelay/bridge/internal/provider"
	"github.com/arcrelay/bridge/internal/queue"
	"github.com/arcrelay/bridge/internal/relay"
	"github.com/arcrelay/bridge/internal/session"
	"github.com/arcrelay/bridge/internal/store"
	"github.com/arcrelay/bridge/internal/telegram"
	"github.com/arcrelay/bridge/internal/webhook"
	"github.com/arcrelay/bridge/internal/workspace"
)

// version is overridden at build time via -ldflags, following the established
// build tooling convention; unset it simply reads "dev".
var version = "dev"

func main() {
	root := &cobra.Command{
		Use:   "arcrelay",
		Short: "Bridge a chat transport to long-running AI-coding-agent CLIs",
	}
	root.RunE = func(cmd *cobra.Command, args []string) error {
		return runDaemon(false)
	}
	root.AddCommand(runCmd(), installCmd(), versionCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the arcrelay version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("arcrelay " + version)
		},
	}
}

func installCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "install",
		Short: "Initialize the workspace layout and write a default config",
		RunE: func(cmd *cobra.Command, args []string) error {
			paths, err := workspace.New("")
			if err != nil {
				return err
			}
			eng := &workspace.Engine{Paths: paths}
			if err := eng.Init(); err != nil {
				return fmt.Errorf("initialize workspace: %w", err)
			}
			if _, err := config.Load(paths.ConfigFile); err != nil {
				return fmt.Errorf("write default config: %w", err)
			}
			fmt.Printf("Workspace initialized at %s\n", paths.Root)
			fmt.Printf("Config written to %s — set ARCRELAY_TELEGRAM_TOKEN before running `arcrelay run`.\n", paths.ConfigFile)
			return nil
		},
	}
}

func runCmd() *cobra.Command {
	var mcpMode bool
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the orchestrator daemon (default command)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemon(mcpMode)
		},
	}
	cmd.Flags().BoolVar(&mcpMode, "mcp", false, "also serve the read-only MCP status surface over stdio")
	return cmd
}

func runDaemon(mcpMode bool) error {
	paths, err := workspace.New("")
	if err != nil {
		return fmt.Errorf("resolve paths: %w", err)
	}
	eng := &workspace.Engine{Paths: paths}
	if err := eng.Init(); err != nil {
		return fmt.Errorf("initialize workspace: %w", err)
	}

	cfg, err := config.Load(paths.ConfigFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	lock := lockfile.New(paths.PIDFile)
	if err := lock.Acquire(10, 500*time.Millisecond); err != nil {
		return fmt.Errorf("acquire pid lock: %w", err)
	}
	defer lock.Release()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("arcrelay: shutting down...")
		cancel()
	}()

	sessions := session.NewManager(paths.SessionsFile)
	if err := sessions.Load(); err != nil {
		return fmt.Errorf("load sessions: %w", err)
	}

	registry := provider.NewRegistry()
	runner := provider.NewSubprocessRunner(registry)
	clis := map[provider.Name]provider.CLI{
		provider.NameC: provider.NewClaudeCLI(),
		provider.NameO: provider.NewCodexCLI(paths.AgentOHome),
	}

	orchCfg := buildOrchestratorConfig(*cfg)
	orch := orchestrator.New(orchCfg, paths, runner, registry, sessions, clis)

	qmgr := queue.NewManager()

	ingressCfg := ingress.Config{
		Allowlist:     allowlistSet(cfg.AllowedUserIDs),
		StopCommand:   cfg.StopCommand,
		AbortKeywords: cfg.AbortKeywords,
		DedupeTTL:     time.Duration(cfg.DedupeTTLSecs) * time.Second,
	}

	tgBot, err := telegram.New(cfg.TelegramToken)
	if err != nil {
		return fmt.Errorf("create telegram transport: %w", err)
	}
	pipeline := ingress.New(ingressCfg, qmgr, orch, tgBot)
	tgBot.SetPipeline(pipeline)

	var discordBot *discordchat.Bot
	if cfg.DiscordToken != "" {
		discordBot, err = discordchat.New(cfg.DiscordToken)
		if err != nil {
			log.Printf("arcrelay: discord transport disabled: %v", err)
		} else {
			discordPipeline := ingress.New(ingressCfg, qmgr, orch, discordBot)
			discordBot.SetPipeline(discordPipeline)
		}
	}

	loc := cron.ResolveTimezone("", cfg.Timezone)

	cronStore := store.New(paths.CronFile, cron.Document{})
	depQueue := cron.NewDependencyQueue()
	cronGlobal := cron.GlobalConfig{
		Timezone:       cfg.Timezone,
		QuietHourStart: cfg.QuietHourStart,
		QuietHourEnd:   cfg.QuietHourEnd,
		CLITimeout:     cfg.CLITimeoutSeconds,
		WorkspaceRoot:  paths.Root,
		KnownModels:    cfg.KnownModels,
	}
	scheduler := cron.NewScheduler(cronStore, cronGlobal, depQueue, clis, runner)
	if err := scheduler.Start(); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}
	defer scheduler.Stop()

	webhookStore := store.New(paths.WebhooksFile, webhook.Document{})
	if err := webhookStore.Load(); err != nil {
		return fmt.Errorf("load webhooks: %w", err)
	}
	deliver := wakeDeliver(qmgr, orch, tgBot)
	webhookSrv := &webhook.Server{
		Store:        webhookStore,
		RateLimiter:  webhook.NewRateLimiter(cfg.RateLimitPerMin),
		GlobalToken:  cfg.WebhookGlobalAuth,
		Global:       cronGlobal,
		DepQueue:     depQueue,
		CLIs:         clis,
		Runner:       runner,
		AllowedChats: allowlistKeys(cfg.AllowedUserIDs),
		Deliver:      deliver,
	}

	sweeper := cleanup.New([]cleanup.Target{
		{Dir: paths.TelegramFilesDir, RetentionDays: cfg.CleanupRetentionDays["telegram_files"]},
		{Dir: paths.OutputToUserDir, RetentionDays: cfg.CleanupRetentionDays["output_to_user"]},
	}, loc, cfg.CleanupCheckHour)

	var mcpSrv *mcpsurface.Server
	if mcpMode {
		mcpSrv = mcpsurface.New(sessions, cronStore)
	}

	sup := observe.New()
	tasks := []observe.Task{
		{Name: "telegram", Run: func(ctx context.Context) error { tgBot.Start(ctx); return nil }},
		{Name: "webhook", Run: func(ctx context.Context) error { return runHTTP(ctx, cfg.WebhookBindAddr, webhookSrv) }},
		{Name: "cleanup", Run: func(ctx context.Context) error { runSweeper(ctx, sweeper); return nil }},
		{Name: "heartbeat", Run: func(ctx context.Context) error { runHeartbeat(ctx, orch, sessions, tgBot); return nil }},
	}
	if discordBot != nil {
		tasks = append(tasks, observe.Task{Name: "discord", Run: func(ctx context.Context) error {
			if err := discordBot.Start(); err != nil {
				return err
			}
			<-ctx.Done()
			return discordBot.Stop()
		}})
	}
	if cfg.RelayEnabled && cfg.RelayAddr != "" {
		client := relay.NewClient(cfg.RelayAddr, hostnameOrDefault())
		tasks = append(tasks, observe.Task{Name: "relay", Run: func(ctx context.Context) error {
			if err := client.Start(ctx); err != nil {
				return err
			}
			defer client.Close()
			client.Heartbeat(ctx, 30*time.Second)
			return nil
		}})
	}
	if mcpSrv != nil {
		tasks = append(tasks, observe.Task{Name: "mcp", Run: func(ctx context.Context) error { return mcpSrv.Run(ctx) }})
	}

	go scheduler.Watch(ctx.Done())

	return sup.Run(ctx, tasks)
}

func buildOrchestratorConfig(cfg config.Config) orchestrator.Config {
	equiv := make(map[provider.Name]provider.Name, len(cfg.Equivalence))
	for k, v := range cfg.Equivalence {
		equiv[provider.Name(k)] = provider.Name(v)
	}
	return orchestrator.Config{
		DefaultProvider:       provider.Name(cfg.DefaultProvider),
		DefaultModel:          cfg.DefaultModel,
		KnownModels:           cfg.KnownModels,
		Equivalence:           equiv,
		HeartbeatPrompt:       cfg.HeartbeatPrompt,
		HeartbeatAckToken:     cfg.HeartbeatAckToken,
		HeartbeatCooldown:     time.Duration(cfg.HeartbeatCooldownSecs) * time.Second,
		SessionAgeThreshold:   time.Duration(cfg.SessionAgeThresholdHours) * time.Hour,
		MemoryHookEvery:       cfg.MemoryHookEvery,
		DefaultPermissionMode: cfg.DefaultPermissionMode,
		DefaultMaxTurns:       cfg.DefaultMaxTurns,
		DefaultMaxBudget:      cfg.DefaultMaxBudget,
		DefaultTimeout:        cfg.CLITimeoutSeconds,
	}
}

func allowlistSet(ids []int64) map[string]bool {
	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		set[fmt.Sprintf("%d", id)] = true
	}
	return set
}

func allowlistKeys(ids []int64) []string {
	keys := make([]string, 0, len(ids))
	for _, id := range ids {
		keys = append(keys, fmt.Sprintf("%d", id))
	}
	return keys
}

// wakeDeliver implements the injected "deliver as if user typed" hook: it
// acquires the same per-chat lock the normal pipeline uses, then feeds the
// rendered wake text into the orchestrator exactly as a user message would
// be, delivering whatever Reply the agent produces.
func wakeDeliver(qmgr *queue.Manager, orch *orchestrator.Orchestrator, transport ingress.Transport) webhook.WakeDeliverFunc {
	return func(ctx context.Context, chatKey, text string) error {
		entryID := uuid.NewString()
		acquired, entry := qmgr.Acquire(chatKey, "webhook", entryID)
		if !acquired {
			<-entry.Done()
			if entry.Cancelled {
				return nil
			}
		}
		defer qmgr.Release(chatKey)
		reply, err := orch.HandleMessage(ctx, chatKey, text)
		if err != nil {
			return err
		}
		return transport.DeliverReply(ctx, ingress.Update{ChatKey: chatKey}, reply)
	}
}

func runHTTP(ctx context.Context, addr string, srv *webhook.Server) error {
	httpServer := &http.Server{Addr: addr, Handler: srv.Handler()}
	go func() {
		<-ctx.Done()
		_ = httpServer.Close()
	}()
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func runSweeper(ctx context.Context, sweeper *cleanup.Sweeper) {
	stop := make(chan struct{})
	go func() {
		<-ctx.Done()
		close(stop)
	}()
	sweeper.Run(stop)
}

// runHeartbeat wakes once a minute and, for each known chat key, lets the
// orchestrator decide whether a heartbeat ping is due (HandleHeartbeat
// applies the cooldown); a due ping's text is sent straight to the
// transport.
func runHeartbeat(ctx context.Context, orch *orchestrator.Orchestrator, sessions *session.Manager, transport ingress.Transport) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, chatKey := range sessions.ChatKeys() {
				text, shouldDeliver, err := orch.HandleHeartbeat(ctx, chatKey)
				if err != nil {
					log.Printf("arcrelay: heartbeat chat=%s: %v", chatKey, err)
					continue
				}
				if !shouldDeliver {
					continue
				}
				if err := transport.DeliverReply(ctx, ingress.Update{ChatKey: chatKey}, orchestrator.Reply{Text: text}); err != nil {
					log.Printf("arcrelay: heartbeat delivery chat=%s: %v", chatKey, err)
				}
			}
		}
	}
}

func hostnameOrDefault() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		return "arcrelay-local"
	}
	return host
}
