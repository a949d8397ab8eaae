package main

import (
	"net/http"
	"os"
	"time"

	"github.com/rs/zerolog"

	"studybuddy/internal/api"
	"studybuddy/internal/assistant"
	"studybuddy/internal/config"
	"studybuddy/internal/db"
	"studybuddy/internal/session"
)

func main() {
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	cfg := config.Load()
	if cfg.OpenAIKey == "" {
		log.Warn().Msg("OPENAI_API_KEY is not set, provider calls will fail")
	}

	conn, err := db.Open(cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("open database")
	}
	defer conn.Close()

	provider := assistant.NewClient(cfg.OpenAIKey, cfg.OpenAIEndpoint, cfg.OpenAIModel, cfg.RunTimeout, log)
	sessions := session.NewManager(log)
	activity := db.NewActivityLog(conn)

	server := api.NewServer(sessions, provider, activity, log)
	mux := http.NewServeMux()

	staticFS := http.FileServer(http.Dir("./internal/web"))
	mux.Handle("/assets/", http.StripPrefix("/assets/", staticFS))
	mux.HandleFunc("/", serveFile("./internal/web/index.html"))

	mux.Handle("/api", server.Handler())
	mux.Handle("/api/", server.Handler())

	log.Info().Str("addr", cfg.ListenAddr).Msg("listening")

	srv := &http.Server{
		Addr:        cfg.ListenAddr,
		Handler:     mux,
		ReadTimeout: 15 * time.Second,
		// Chat and quiz turns block on the provider run loop.
		WriteTimeout: cfg.RunTimeout + 30*time.Second,
	}

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal().Err(err).Msg("server failed")
	}
}

func serveFile(path string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			w.Header().Set("Allow", "GET, HEAD")
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		http.ServeFile(w, r, path)
	}
}
