package cli

import (
	"context"
	"log"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"quizhost-service/internal/app"
	"quizhost-service/internal/config"
	"quizhost-service/internal/domain"
	"quizhost-service/internal/infra/memory"
	pgstore "quizhost-service/internal/infra/postgres"
	redisstore "quizhost-service/internal/infra/redis"
	transport "quizhost-service/internal/transport/http"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the quiz host server",
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

	var pool *pgxpool.Pool
	if cfg.Postgres.URL != "" {
		pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer pool.Close()
	}

	identities := memory.NewIdentityStore()
	demoToken := identities.Issue(1)
	log.Printf("demo admin token for user 1: %s", demoToken)

	var loader memory.QuizLoader = memory.NewStaticQuizLoader(sampleQuizzes())
	if pool != nil {
		loader = pgstore.NewQuizLoader(pool)
	}

	quizTTL := config.Duration(cfg.Quiz.CacheTTL, 10*time.Minute)
	var quizzes app.QuizRepository
	if redisClient != nil {
		quizzes = redisstore.NewQuizRepository(redisClient, loader, quizTTL)
	} else {
		quizzes = memory.NewQuizRepository(loader, quizTTL)
	}

	livenessTTL := config.Duration(cfg.Sessions.LivenessTTL, time.Hour)
	var sessions app.SessionRepository
	if redisClient != nil {
		sessions = redisstore.NewSessionStore(redisClient, livenessTTL)
	} else {
		sessions = memory.NewSessionStore()
	}

	var archive app.ArchiveStore = memory.NewArchiveStore()
	if pool != nil {
		archive = pgstore.NewArchiveStore(pool)
	} else if redisClient != nil {
		archive = redisstore.NewArchiveStore(redisClient)
	}

	service := app.NewSessionService(sessions, archive, quizzes, identities, app.NewTimerScheduler())

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("/play", transport.NewWSHandler(service).ServePlay)
	transport.NewAdminHandler(service).Register(mux)

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Printf("starting quiz host on :%s", finalPort)
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

// sampleQuizzes seeds a demo quiz owned by user 1; swap the loader for the
// postgres-backed one in production.
func sampleQuizzes() map[int]domain.QuizRecord {
	rnd := rand.New(rand.NewSource(time.Now().UnixNano()))
	q1, err := domain.NewQuestion(rnd, 1, domain.QuestionBody{
		Prompt:   "What is 2 + 2?",
		Duration: 30,
		Points:   4,
		Answers: []domain.AnswerBody{
			{Text: "3"},
			{Text: "4", Correct: true},
			{Text: "5"},
		},
	}, 30)
	if err != nil {
		panic(err)
	}
	q2, err := domain.NewQuestion(rnd, 2, domain.QuestionBody{
		Prompt:   "Which planet is largest?",
		Duration: 20,
		Points:   6,
		Answers: []domain.AnswerBody{
			{Text: "Earth"},
			{Text: "Jupiter", Correct: true},
			{Text: "Mars"},
			{Text: "Venus"},
		},
	}, 50)
	if err != nil {
		panic(err)
	}
	return map[int]domain.QuizRecord{
		1: {
			ID:           1,
			OwnerID:      1,
			Name:         "Demo quiz",
			Description:  "Seed data for local runs",
			NumQuestions: 2,
			Duration:     50,
			Questions:    []domain.Question{q1, q2},
		},
	}
}
