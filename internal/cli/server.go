package cli

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/julienschmidt/httprouter"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"trivia-match-service/internal/app"
	"trivia-match-service/internal/config"
	"trivia-match-service/internal/domain"
	"trivia-match-service/internal/infra/memory"
	pgloader "trivia-match-service/internal/infra/postgres"
	redisinfra "trivia-match-service/internal/infra/redis"
	"trivia-match-service/internal/realtime"
	transport "trivia-match-service/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the trivia match server",
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

	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})
	if lvl, err := logrus.ParseLevel(cfg.Log.Level); err == nil {
		log.SetLevel(lvl)
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
	sessionTTL := config.TTLDuration(cfg.Session.TTL, 30*time.Minute)
	catalogTTL := config.TTLDuration(cfg.Catalog.TTL, 10*time.Minute)
	connTTL := config.TTLDuration(cfg.Connections.TTL, 2*time.Hour)

	var pool *pgxpool.Pool
	if cfg.Postgres.URL != "" {
		pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer pool.Close()
	}

	var loader memory.QuestionLoader = memory.NewStaticQuestionLoader(sampleQuestions())
	if pool != nil {
		loader = pgloader.NewQuestionLoader(pool)
	}

	var catalog app.QuestionCatalog
	if redisClient != nil {
		catalog = redisinfra.NewQuestionCatalog(redisClient, loader, catalogTTL)
	} else {
		catalog = memory.NewQuestionCatalog(loader, catalogTTL)
	}

	var store app.SessionStore
	var rooms app.RoomDirectory
	if redisClient != nil {
		store = redisinfra.NewSessionStore(redisClient, sessionTTL)
		rooms = redisinfra.NewRoomDirectory(redisClient, sessionTTL)
	} else {
		store = memory.NewSessionStore()
		rooms = memory.NewRoomDirectory(sampleRoom())
	}

	registry := realtime.NewRegistry(connTTL)
	broadcaster := realtime.NewBroadcaster(registry, log)
	service := app.NewGameService(store, catalog, rooms, broadcaster, log)

	wsHandler := transport.NewWSHandler(service, registry, rooms, log)
	apiHandler := transport.NewAPIHandler(service, log)

	router := httprouter.New()
	apiHandler.Register(router)
	router.HandlerFunc(http.MethodGet, "/ws", wsHandler.ServeWS)
	router.HandlerFunc(http.MethodGet, "/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      transport.LogMiddleware(log)(router),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.WithField("port", finalPort).Info("starting trivia match service")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Error("failed to start server")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Info("shutting down server...")
	case <-ctx.Done():
		log.Info("context canceled, shutting down server...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// sampleRoom seeds a joinable room for redis-less development runs.
func sampleRoom() domain.Room {
	return domain.Room{
		RoomID: "room-1",
		HostID: "u1",
		Status: domain.RoomWaiting,
		Config: domain.RoomConfig{}.Normalized(),
		Players: []domain.Player{
			{UserID: "u1", Name: "Ana", Connected: true},
			{UserID: "u2", Name: "Bruno", Connected: true},
			{UserID: "u3", Name: "Carla", Connected: true},
		},
	}
}

// sampleQuestions provides a minimal question pool; swap the loader with
// the Postgres-backed one in production.
func sampleQuestions() []domain.Question {
	base := []struct {
		id   string
		text string
		opts [4]string
	}{
		{"q1", "Which season do you enjoy the most?", [4]string{"Spring", "Summer", "Autumn", "Winter"}},
		{"q2", "Pick a weekend plan.", [4]string{"Hiking", "Movies", "Cooking", "Gaming"}},
		{"q3", "Which superpower would you choose?", [4]string{"Flight", "Invisibility", "Telepathy", "Time travel"}},
		{"q4", "What do you drink in the morning?", [4]string{"Coffee", "Tea", "Juice", "Water"}},
		{"q5", "Favorite kind of music?", [4]string{"Rock", "Pop", "Jazz", "Electronic"}},
		{"q6", "Where would you rather live?", [4]string{"Beach", "Mountains", "Big city", "Countryside"}},
		{"q7", "Pick a pet.", [4]string{"Dog", "Cat", "Bird", "Fish"}},
		{"q8", "How do you handle conflict?", [4]string{"Talk it out", "Avoid it", "Compromise", "Stand firm"}},
		{"q9", "Choose a dessert.", [4]string{"Ice cream", "Cake", "Fruit", "Chocolate"}},
		{"q10", "Ideal vacation length?", [4]string{"A weekend", "One week", "Two weeks", "A month"}},
	}
	questions := make([]domain.Question, 0, len(base))
	for _, b := range base {
		questions = append(questions, domain.Question{
			ID:      b.id,
			Text:    b.text,
			Options: []string{b.opts[0], b.opts[1], b.opts[2], b.opts[3]},
			Topic:   domain.DefaultTopic,
			Active:  true,
		})
	}
	return questions
}
