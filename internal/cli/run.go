package cli

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"moltbot/internal/activity"
	"moltbot/internal/agent"
	"moltbot/internal/config"
	"moltbot/internal/dashboard"
	"moltbot/internal/engine"
	"moltbot/internal/memory"
	"moltbot/internal/moltbook"
	"moltbot/internal/persona"
	"moltbot/internal/providers"
	"moltbot/internal/ratelimit"
	"moltbot/internal/suggestions"
	"moltbot/internal/tools"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the autonomous loop and the dashboard",
	RunE:  runAgent,
}

func init() {
	runCmd.Flags().String("provider", "", "LLM provider (openai, anthropic, openrouter, lmstudio)")
	_ = viper.BindPFlag("llm.provider", runCmd.Flags().Lookup("provider"))
	runCmd.Flags().String("model", "", "model name override")
	_ = viper.BindPFlag("llm.model", runCmd.Flags().Lookup("model"))
	runCmd.Flags().String("data-dir", "", "state directory (rate limits, suggestions, activity, index)")
	_ = viper.BindPFlag("data.dir", runCmd.Flags().Lookup("data-dir"))
	runCmd.Flags().String("dashboard-addr", "", "dashboard listen address")
	_ = viper.BindPFlag("dashboard.addr", runCmd.Flags().Lookup("dashboard-addr"))
	runCmd.Flags().Bool("dashboard", true, "serve the web dashboard")
	_ = viper.BindPFlag("dashboard.enabled", runCmd.Flags().Lookup("dashboard"))

	rootCmd.AddCommand(runCmd)
}

// suggestionsChanged surfaces external edits of the suggestions file in the
// activity stream so the dashboard shows them alongside the agent's own events.
func suggestionsChanged(alog *activity.Log, store *suggestions.Store) func() {
	return func() {
		pending := len(store.Pending())
		log.Info().Int("pending", pending).Msg("suggestions file changed on disk")
		alog.Record("suggestions_changed", map[string]any{"pending": pending})
	}
}

func runAgent(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(cfg.Data.Dir, 0o755); err != nil {
		return err
	}

	client := moltbook.NewClient(cfg.Moltbook.APIKey, cfg.Moltbook.BaseURL)

	llm, model, err := providers.NewLLMClient(providers.Settings{
		Provider: cfg.LLM.Provider,
		APIKey:   cfg.LLM.APIKey,
		Model:    cfg.LLM.Model,
		BaseURL:  cfg.LLM.BaseURL,
	})
	if err != nil {
		return err
	}
	log.Info().Str("provider", cfg.LLM.Provider).Str("model", model).Msg("decision model ready")

	p := persona.Default()
	if cfg.Persona.Name != "" {
		p.Name = cfg.Persona.Name
	}
	if cfg.Persona.Voice != "" {
		p.Voice = cfg.Persona.Voice
	}
	if len(cfg.Persona.Style) > 0 {
		p.Style = cfg.Persona.Style
	}

	var logOpts []activity.Option
	archive, err := activity.NewArchive(cfg.ActivityDBPath())
	if err != nil {
		log.Warn().Err(err).Msg("activity archive unavailable, history endpoint disabled")
		archive = nil
	} else {
		defer archive.Close()
		logOpts = append(logOpts, activity.WithArchive(archive))
	}
	alog := activity.NewLog(logOpts...)

	tracker := ratelimit.NewTracker(cfg.RateLimitPath())

	store, err := suggestions.NewStore(cfg.SuggestionsPath())
	if err != nil {
		return err
	}
	watcher, err := suggestions.Watch(store.Path(), suggestionsChanged(alog, store))
	if err != nil {
		log.Warn().Err(err).Msg("suggestions watcher unavailable")
	} else {
		defer watcher.Stop()
	}

	idx, err := memory.NewIndex(cfg.MemoryIndexPath())
	if err != nil {
		return err
	}
	defer idx.Close()

	eng := engine.New(llm, model, p.SystemPrompt(), engine.WithThoughtCallback(func(chunk string) {
		alog.Record("thought_chunk", map[string]any{"chunk": chunk})
	}))

	exec := tools.NewExecutor(tools.Deps{
		Client:   client,
		Limiter:  tracker,
		Activity: alog,
		Memory:   idx,
	})

	cycleInterval, _ := cfg.CycleInterval()
	errorPause, _ := cfg.ErrorPause()
	runner := agent.NewRunner(agent.Deps{
		Client:      client,
		Decider:     eng,
		Executor:    exec,
		Tracker:     tracker,
		Activity:    alog,
		Suggestions: store,
		Memory:      idx,
		Persona:     p,
	}, agent.Config{
		MaxIterations: cfg.Agent.MaxIterations,
		CycleInterval: cycleInterval,
		ErrorPause:    errorPause,
	})

	if cfg.Dashboard.Enabled {
		srv := dashboard.New(dashboard.Config{Addr: cfg.Dashboard.Addr}, dashboard.Deps{
			Stats:       runner,
			Tracker:     tracker,
			Activity:    alog,
			Archive:     archive,
			Suggestions: store,
		})
		go func() {
			if err := srv.Start(); err != nil {
				log.Error().Err(err).Msg("dashboard server stopped")
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Stop(shutdownCtx); err != nil {
				log.Warn().Err(err).Msg("dashboard shutdown")
			}
		}()
	}

	err = runner.Run(ctx)
	if errors.Is(err, context.Canceled) {
		log.Info().Msg("shutting down")
		return nil
	}
	return err
}
