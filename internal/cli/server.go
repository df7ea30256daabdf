package cli

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"liveclass-service/internal/app"
	"liveclass-service/internal/config"
	"liveclass-service/internal/domain"
	"liveclass-service/internal/infra/grader"
	"liveclass-service/internal/infra/memory"
	pginfra "liveclass-service/internal/infra/postgres"
	rabbitinfra "liveclass-service/internal/infra/rabbit"
	redisinfra "liveclass-service/internal/infra/redis"
	transport "liveclass-service/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port, quizRound, codeRound *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the live lesson room server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port, *quizRound, *codeRound)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag, quizRoundFlag, codeRoundFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg); err != nil {
			return err
		}
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	}
	redisTTL := config.TTLDuration(cfg.Redis.TTL, 10*time.Minute)

	var pool *pgxpool.Pool
	if cfg.Postgres.URL != "" {
		pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer pool.Close()
	}

	staticLoader := memory.NewStaticContentLoader(sampleQuizzes(), sampleChallenges())
	var loader memory.ContentLoader = staticLoader
	if pool != nil {
		loader = pginfra.NewContentLoader(pool)
	}

	contentTTL := config.TTLDuration(cfg.Content.TTL, 10*time.Minute)
	var contentRepo app.ContentRepository
	if redisClient != nil {
		contentRepo = redisinfra.NewContentRepository(redisClient, loader, contentTTL)
	} else {
		contentRepo = memory.NewContentRepository(loader, contentTTL)
	}

	var rooms app.RoomStore
	var bus app.Broadcaster
	if redisClient != nil {
		rooms = redisinfra.NewRoomStore(redisClient, redisTTL)
		bus = redisinfra.NewBroadcaster(redisClient)
	} else {
		rooms = memory.NewRoomStore()
		bus = memory.NewBroadcaster()
	}

	var membership app.MembershipRepository = memory.AllowAllMembership{}
	var messages app.MessageStore = memory.NewMessageStore()
	if pool != nil {
		membership = pginfra.NewMembershipRepository(pool)
		messages = pginfra.NewMessageStore(pool)
	}

	var oracle app.GradingOracle = memory.NewGradingOracle(loader)
	if cfg.Grader.URL != "" {
		oracle = grader.NewHTTPOracle(cfg.Grader.URL, config.TTLDuration(cfg.Grader.Timeout, 10*time.Second))
	}

	var progression app.ProgressionSink = memory.NewProgressionSink()
	if cfg.Rabbit.URL != "" {
		conn, err := amqp.Dial(cfg.Rabbit.URL)
		if err != nil {
			return err
		}
		defer conn.Close()
		publisher, err := rabbitinfra.NewProgressionPublisher(conn)
		if err != nil {
			return err
		}
		defer publisher.Close()
		progression = publisher
	}

	engine := app.NewGameEngine(rooms, contentRepo, bus, oracle, progression, gameConfig(cfg, quizRoundFlag, codeRoundFlag))
	service := app.NewRoomService(rooms, membership, messages, bus, progression, engine)
	wsHandler := transport.NewWSHandler(service, engine, cfg.Auth.Secret)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("/ws", wsHandler.ServeWS)

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Printf("starting liveclass service on :%s", finalPort)
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

// gameConfig resolves the game tuning: YAML config first, then the
// round-duration flags on top.
func gameConfig(cfg config.Config, quizRoundFlag, codeRoundFlag string) app.GameConfig {
	gc := app.GameConfig{
		QuizRoundDuration: config.TTLDuration(cfg.Game.QuizRoundDuration, 30*time.Second),
		CodeRoundDuration: config.TTLDuration(cfg.Game.CodeRoundDuration, 10*time.Minute),
		SettleDelay:       config.TTLDuration(cfg.Game.SettleDelay, 3*time.Second),
		GetReadyDelay:     config.TTLDuration(cfg.Game.GetReadyDelay, 2*time.Second),
		AutoCloseGrace:    config.TTLDuration(cfg.Game.AutoCloseGrace, 3*time.Second),
		BasePoints:        cfg.Game.BasePoints,
		DecayStep:         cfg.Game.DecayStep,
		FloorPoint:        cfg.Game.FloorPoint,
		TopN:              cfg.Game.TopN,
		BonusXP:           cfg.Game.BonusXP,
	}
	if quizRoundFlag != "" {
		gc.QuizRoundDuration = config.TTLDuration(quizRoundFlag, gc.QuizRoundDuration)
	}
	if codeRoundFlag != "" {
		gc.CodeRoundDuration = config.TTLDuration(codeRoundFlag, gc.CodeRoundDuration)
	}
	return gc
}

// sampleQuizzes provides minimal demo content; production deployments load
// from Postgres instead.
func sampleQuizzes() map[string]domain.Quiz {
	return map[string]domain.Quiz{
		"quiz-1": {
			ID:    "quiz-1",
			Title: "Warm-up",
			Questions: []domain.Question{
				{
					ID:     "q1",
					Prompt: "What is 2 + 2?",
					Options: []domain.Option{
						{ID: "o1", Text: "3", Correct: false},
						{ID: "o2", Text: "4", Correct: true},
						{ID: "o3", Text: "5", Correct: false},
					},
				},
			},
		},
	}
}

func sampleChallenges() map[string]domain.Challenge {
	return map[string]domain.Challenge{
		"challenge-1": {
			ID:                "challenge-1",
			Title:             "Echo",
			Description:       "Write a function that returns its argument.",
			TemplateCode:      "def echo(x):\n    pass\n",
			ReferenceSolution: "def echo(x):\n    return x\n",
		},
	}
}
