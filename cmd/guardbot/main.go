package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	api "github.com/OvyFlash/telegram-bot-api"
	log "github.com/sirupsen/logrus"

	"github.com/iamwavecut/guardbot/internal/adapters/llm"
	"github.com/iamwavecut/guardbot/internal/adapters/llm/gemini"
	"github.com/iamwavecut/guardbot/internal/adapters/llm/local"
	"github.com/iamwavecut/guardbot/internal/adapters/llm/openai"
	"github.com/iamwavecut/guardbot/internal/bot"
	"github.com/iamwavecut/guardbot/internal/config"
	"github.com/iamwavecut/guardbot/internal/db/sqlite"
	"github.com/iamwavecut/guardbot/internal/engine"
	"github.com/iamwavecut/guardbot/internal/flood"
	"github.com/iamwavecut/guardbot/internal/infra"
	"github.com/iamwavecut/guardbot/internal/lifecycle"
	"github.com/iamwavecut/guardbot/internal/observability"
	"github.com/iamwavecut/guardbot/internal/score"
)

func main() {
	cfg := config.Get()
	log.SetFormatter(&config.GbFormatter{})
	log.SetOutput(os.Stdout)
	log.SetLevel(log.Level(cfg.LogLevel))

	infra.GoRecoverable(3, "main", func() {
		ctx, cancelFunc := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer cancelFunc()

		if err := observability.Init(ctx, cfg.MetricsAddr); err != nil {
			log.WithError(err).Fatalln("cant initialize observability")
		}

		botAPI, err := api.NewBotAPI(cfg.TelegramAPIToken)
		if err != nil {
			log.WithError(err).Errorln("cant initialize bot api")
			time.Sleep(1 * time.Second)
			log.Fatalln("exiting")
		}
		if log.Level(cfg.LogLevel) == log.TraceLevel {
			botAPI.Debug = true
		}
		defer botAPI.StopReceivingUpdates()

		rules, err := score.LoadRules(filepath.Join(infra.GetWorkDir(), cfg.RulesPath))
		if err != nil {
			log.WithError(err).Fatalln("cant load moderation rules")
		}

		dbClient, err := sqlite.NewSQLiteClient(ctx, infra.GetWorkDir(), "bot.db")
		if err != nil {
			log.WithError(err).Fatalln("cant initialize db client")
		}
		defer func() {
			if err := dbClient.Close(); err != nil {
				log.WithError(err).Errorln("cant close db client")
			}
		}()

		transport := bot.NewTelegramTransport(botAPI)
		guard := flood.NewGuard(cfg.Flood)
		scorer := score.NewScorer(rules, newClassifier(cfg), cfg.LLM, cfg.Moderation)
		moderationEngine := engine.New(dbClient, transport, guard, scorer, cfg.Moderation)
		reconciler := engine.NewReconciler(moderationEngine, cfg.Moderation.ReconcileInterval)

		service := bot.NewService(botAPI, dbClient, moderationEngine)
		updateProcessor := bot.NewUpdateProcessor(service, transport, cfg)

		runtime := lifecycle.NewRuntime(updateProcessor, reconciler)
		if err := runtime.Start(ctx); err != nil {
			log.WithError(err).Fatalln("cant start runtime")
		}
		defer func() {
			stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer stopCancel()
			if err := runtime.Stop(stopCtx); err != nil {
				log.WithError(err).Errorln("cant stop runtime")
			}
		}()

		updateConfig := api.NewUpdate(0)
		updateConfig.Timeout = 60
		updateChan := botAPI.GetUpdatesChan(updateConfig)

		for {
			select {
			case update, ok := <-updateChan:
				if !ok {
					log.Errorln("updates channel closed")
					return
				}
				if err := updateProcessor.Process(ctx, &update); err != nil {
					log.WithError(err).Errorln("cant process update")
				}
			case <-ctx.Done():
				log.Infoln("shutting down")
				return
			}
		}
	})
}

// newClassifier wires the configured semantic backend; nil disables
// semantic scoring and the scorer falls through to heuristics only.
func newClassifier(cfg config.Config) llm.Classifier {
	entry := log.WithField("object", "Classifier")
	switch cfg.LLM.Type {
	case "openai":
		if cfg.LLM.APIKey == "" {
			entry.Warnln("no api key set, semantic scoring disabled")
			return nil
		}
		return openai.NewOpenAI(cfg.LLM.APIKey, cfg.LLM.Model, cfg.LLM.BaseURL, entry)
	case "gemini":
		if cfg.LLM.APIKey == "" {
			entry.Warnln("no api key set, semantic scoring disabled")
			return nil
		}
		return gemini.NewGemini(cfg.LLM.APIKey, cfg.LLM.Model, entry)
	case "local":
		classifier, err := local.NewLocal(infra.GetWorkDir("models"), local.DefaultModel, entry)
		if err != nil {
			entry.WithError(err).Errorln("cant load local model, semantic scoring disabled")
			return nil
		}
		return classifier
	default:
		entry.WithField("type", cfg.LLM.Type).Warnln("unknown classifier type, semantic scoring disabled")
		return nil
	}
}
