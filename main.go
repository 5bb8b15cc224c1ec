package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"murmur/internal/chats"
	"murmur/internal/config"
	"murmur/internal/db"
	"murmur/internal/gateway"
	"murmur/internal/pagecontext"
	"murmur/internal/session"
	"murmur/internal/speech"
	"murmur/internal/speech/engines"
	"murmur/internal/ui"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	envFile := flag.String("env", "", "path to a .env file")
	flag.Parse()

	env, err := config.LoadEnv(*envFile)
	if err != nil {
		return err
	}

	dbPath := env.DBPath
	if dbPath == "" {
		if dbPath, err = db.DefaultPath(); err != nil {
			return fmt.Errorf("resolving database path: %w", err)
		}
	}

	logPath := env.LogPath(dbPath)
	if err := os.MkdirAll(filepath.Dir(logPath), 0o700); err != nil {
		return err
	}
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return fmt.Errorf("opening log file: %w", err)
	}
	defer logFile.Close()
	slog.SetDefault(slog.New(slog.NewTextHandler(logFile, &slog.HandlerOptions{Level: env.SlogLevel()})))

	conn, err := db.OpenOrRecover(dbPath)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer conn.Close()

	store := config.NewStore(conn)
	store.SeedAPIKey(env.APIKey)

	gw, err := gateway.New(env.Provider, env.BaseURL, env.HTTPTimeout, store)
	if err != nil {
		return err
	}

	document, err := pagecontext.Load(env.ContextFile)
	if err != nil {
		slog.Warn("context document unavailable", "path", env.ContextFile, "error", err)
	}

	var synth speech.Synthesizer
	if s, err := engines.NewCommandSynthesizer(env.TTSCommand); err != nil {
		slog.Warn("speech output disabled", "error", err)
	} else {
		synth = s
	}
	rec := engines.NewCommandRecognizer(env.STTCommand)

	out := speech.NewOutput(synth, store)
	in := speech.NewInput(rec, engines.NewTerminalEnvironment(rec))
	confirmer := ui.NewConfirmer()

	orch := session.New(session.Deps{
		Chats:    chats.NewRepository(conn),
		Settings: store,
		Gateway:  gw,
		Output:   out,
		Input:    in,
		Confirm:  confirmer,
		Document: document,
	})

	p := ui.NewProgram(orch)
	out.SetDispatch(p.Send)
	in.SetDispatch(p.Send)
	confirmer.Attach(p.Send)

	slog.Info("murmur starting", "db", dbPath, "provider", env.Provider)
	_, err = p.Run()
	out.Stop()
	in.Stop()
	return err
}
