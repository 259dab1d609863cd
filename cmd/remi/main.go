package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/adk"
	"github.com/cloudwego/eino/schema"

	"github.com/tbxark/remi/chat"
	"github.com/tbxark/remi/config"
	"github.com/tbxark/remi/intent"
	"github.com/tbxark/remi/llm"
	"github.com/tbxark/remi/search"
	"github.com/tbxark/remi/server"
	"github.com/tbxark/remi/store"
	"github.com/tbxark/remi/tracker"
	"github.com/tbxark/remi/types"
)

func main() {
	conf := flag.String("config", "", "path to config file")
	chatUser := flag.String("chat", "", "chat on the terminal as this user instead of serving the webhook")
	flag.Parse()
	cfg, err := config.Load(*conf)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := startApp(ctx, cfg, *chatUser); err != nil {
		log.Fatalf("start app: %v", err)
	}
}

func newLogger(cfg *config.Config) *slog.Logger {
	level, _ := config.ParseLevel(cfg.LogLevel)
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return logger
}

func startApp(ctx context.Context, cfg *config.Config, chatUser string) error {
	logger := newLogger(cfg)

	temperature := cfg.LLM.Temperature
	cm, err := openai.NewChatModel(ctx, &openai.ChatModelConfig{
		APIKey:      cfg.LLM.APIKey,
		Model:       cfg.LLM.Model,
		BaseURL:     cfg.LLM.BaseURL,
		Temperature: &temperature,
		Timeout:     cfg.LLM.Timeout(),
	})
	if err != nil {
		return fmt.Errorf("init chat model: %w", err)
	}
	collab, err := newCollaborator(cm, cfg, logger)
	if err != nil {
		return err
	}
	toolRecognizer, err := intent.NewToolBasedRecognizer(cm)
	if err != nil {
		return fmt.Errorf("init recognizer: %w", err)
	}

	backend, err := store.OpenBackend(ctx, cfg.Store, logger)
	if err != nil {
		return err
	}
	defer func() {
		if cErr := backend.Close(); cErr != nil {
			logger.Warn("Failed to close store", "error", cErr)
		}
	}()
	sessions := store.Open[types.Session](backend, store.SessionNamespace)
	invitations := store.Open[types.Invitation](backend, "invitation")
	logger.Info("Sessions stored", "driver", backend.Driver(), "ttl", cfg.Store.TTL())
	history := llm.NewHistoryStore(
		store.Open[[]*schema.Message](backend, "history"),
		llm.KeepSystemLastNTrimmer{N: cfg.LLM.HistoryDepth},
	)

	searcher := search.NewYelpClient(cfg.Yelp.APIKey,
		search.WithBaseURL(cfg.Yelp.BaseURL),
		search.WithLimit(cfg.Yelp.Limit),
		search.WithTimeout(cfg.Yelp.Timeout()),
		search.WithMaxTries(cfg.Yelp.MaxTries),
		search.WithRateLimit(cfg.Yelp.RateLimit, cfg.Yelp.RateBurst),
		search.WithLogger(logger),
	)
	deliverer := chat.NewRocketChat(cfg.RocketChat.URL, cfg.RocketChat.Token, cfg.RocketChat.UserID,
		chat.WithTimeout(cfg.RocketChat.Timeout()),
		chat.WithLogger(logger),
	)

	t := tracker.New(collab, searcher, deliverer,
		tracker.WithRecognizer(intent.NewFailbackRecognizer(intent.NewLocalRecognizer(), toolRecognizer)),
		tracker.WithHistory(history),
		tracker.WithInvitations(invitations),
		tracker.WithTimeZone(cfg.TimeZone),
		tracker.WithLogger(logger),
	)
	svc := tracker.NewService(sessions, t)

	if chatUser != "" {
		return runChat(ctx, svc, chatUser)
	}
	return server.Serve(ctx, cfg.Listen, server.NewRouter(svc, logger), 10*time.Second, logger)
}

func newCollaborator(cm *openai.ChatModel, cfg *config.Config, logger *slog.Logger) (llm.Collaborator, error) {
	opts := []llm.Option{llm.WithTemperature(cfg.LLM.Temperature), llm.WithLogger(logger)}
	marker := llm.NewMarkerCollaborator(cm, opts...)
	if cfg.LLM.Collaborator == config.CollaboratorMarker {
		return marker, nil
	}
	tool, err := llm.NewToolBasedCollaborator(cm, opts...)
	if err != nil {
		return nil, fmt.Errorf("init collaborator: %w", err)
	}
	if cfg.LLM.Collaborator == config.CollaboratorTool {
		return tool, nil
	}
	return llm.NewFailbackCollaborator(logger, tool, marker), nil
}

func runChat(ctx context.Context, svc *tracker.Service, user string) error {
	runner := adk.NewRunner(ctx, adk.RunnerConfig{
		Agent: tracker.NewAgent("REMI", "Finds and books restaurants through conversation", user, svc),
	})
	reader := bufio.NewReader(os.Stdin)
	fmt.Println("REMI is ready. Tell it what you're hungry for (Ctrl-D to quit).")
	for {
		fmt.Printf("%s: ", user)
		input, rErr := reader.ReadString('\n')
		if rErr != nil {
			fmt.Println()
			return nil
		}
		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		iter := runner.Run(ctx, []*schema.Message{schema.UserMessage(input)})
		for {
			event, ok := iter.Next()
			if !ok {
				break
			}
			if event.Err != nil {
				return event.Err
			}
			msg, mErr := event.Output.MessageOutput.GetMessage()
			if mErr != nil {
				return mErr
			}
			fmt.Printf("\nREMI: %v\n======\n", msg.Content)
		}
	}
}
