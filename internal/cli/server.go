package cli

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"math-problem-service/internal/app"
	"math-problem-service/internal/config"
	infraredis "math-problem-service/internal/infra/redis"
	"math-problem-service/internal/llm"
	"math-problem-service/internal/problem"
	transport "math-problem-service/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the math problem server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	ctx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()

	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	provider, err := llm.NewProvider(ctx, cfg.LLM, config.TTLDuration(cfg.LLM.Timeout, llm.DefaultTimeout), log.Default())
	if err != nil {
		return err
	}

	feed := app.NewScoreFeed()
	var sessions app.SessionRepository = store
	var relay *infraredis.ScoreRelay
	if cfg.Redis.Addr != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()

		sessions = infraredis.NewSessionCache(redisClient, store, config.TTLDuration(cfg.Redis.TTL, 10*time.Minute))
		relay = infraredis.NewScoreRelay(redisClient, feed)
		go func() {
			if err := relay.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Printf("score relay stopped: %v", err)
			}
		}()
	}

	service := app.NewProblemService(sessions, problem.NewGenerator(provider), feed)
	if relay != nil {
		service.WithPublisher(relay)
	}

	server := &http.Server{
		Addr:        ":" + finalPort,
		Handler:     transport.Routes(service),
		ReadTimeout: 15 * time.Second,
		// Two provider calls can sit inside one submit request.
		WriteTimeout: 2*config.TTLDuration(cfg.LLM.Timeout, llm.DefaultTimeout) + 15*time.Second,
	}

	go func() {
		log.Printf("starting math problem service on :%s (store=%s llm=%s)", finalPort, cfg.StoreDriver(), provider.ModelID())
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("failed to start server: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Println("shutting down server...")
	case <-ctx.Done():
		log.Println("context canceled, shutting down server...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
