package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/m2tx/chat_relay/internal/agent"
	"github.com/m2tx/chat_relay/internal/completion"
	"github.com/m2tx/chat_relay/internal/config"
	"github.com/m2tx/chat_relay/internal/repository"
	"github.com/m2tx/chat_relay/internal/server"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	v := viper.New()
	config.SetDefaults(v)

	var cfgFile string

	cmd := &cobra.Command{
		Use:   "chat-relay",
		Short: "Stream chat completions to the browser over server-sent events",
		Long: `chat-relay serves a small chat page and relays each message, together with the
conversation so far, to an OpenAI-compatible (or Gemini) completion endpoint.
The reply is streamed back as server-sent events and kept in memory per conversation.

Configuration comes from flags, an optional config file, the environment and a .env file.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			config.LoadDotEnv()

			if err := config.ReadFile(v, cfgFile); err != nil {
				return err
			}

			cfg, err := config.Load(v)
			if err != nil {
				return err
			}

			return run(cmd.Context(), cfg)
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (toml, yaml or json)")
	cmd.Flags().Int("port", 8080, "HTTP listen port")
	_ = v.BindPFlag("http_port", cmd.Flags().Lookup("port"))

	return cmd
}

func run(ctx context.Context, cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	completer, err := completion.New(ctx, cfg.Provider, cfg.CompletionOptions())
	if err != nil {
		return err
	}

	conversations := repository.NewMemoryConversationRepository()

	var a *agent.Agent
	if cfg.MongoURI != "" {
		mongoClient, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
		if err != nil {
			return fmt.Errorf("mongodb connect: %w", err)
		}
		defer func() {
			disconnectCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := mongoClient.Disconnect(disconnectCtx); err != nil {
				log.Printf("mongodb disconnect: %v", err)
			}
		}()

		archive := repository.NewMongoTranscriptArchive(mongoClient.Database(cfg.MongoDB), "transcripts")
		if err := archive.EnsureIndexes(ctx); err != nil {
			log.Printf("warning: %v", err)
		}

		a = agent.NewWithArchive(completer, cfg.Model, conversations, archive)
		log.Printf("archiving transcripts to mongodb database %q", cfg.MongoDB)
	} else {
		a = agent.New(completer, cfg.Model, conversations)
	}

	log.Printf("provider=%s model=%s max_tokens=%d", cfg.Provider, cfg.Model, cfg.MaxTokens)

	srv := server.New(cfg.Addr(), a, server.Options{
		Provider:  cfg.Provider,
		RateLimit: cfg.RateLimit,
		RateBurst: cfg.RateBurst,
	})

	return srv.ListenAndServe(ctx)
}
