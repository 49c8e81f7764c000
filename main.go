// sciquery - A concurrent science question-answering server and client.
//
// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jeranaias/sciquery/internal/admission"
	"github.com/jeranaias/sciquery/internal/cli"
	"github.com/jeranaias/sciquery/internal/config"
	"github.com/jeranaias/sciquery/internal/llm"
	"github.com/jeranaias/sciquery/internal/rag"
	"github.com/jeranaias/sciquery/internal/rerank"
	"github.com/jeranaias/sciquery/internal/retrieval"
	"github.com/jeranaias/sciquery/internal/search"
	"github.com/jeranaias/sciquery/internal/server"
	"github.com/jeranaias/sciquery/internal/session"
	"github.com/jeranaias/sciquery/internal/storage"
)

// Version information (set at build time)
var (
	Version   = "1.0.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

func main() {
	cmd := ""
	args := os.Args[1:]
	if len(args) > 0 {
		cmd = args[0]
		args = args[1:]
	}

	var err error
	switch cmd {
	case "serve":
		err = runServe(args)
	case "ask":
		err = runAsk(args)
	case "chat":
		err = runChat(args)
	case "history":
		err = runHistory(args)
	case "config":
		err = runConfig(args)
	case "version", "--version", "-v":
		fmt.Printf("sciquery %s (commit %s, built %s)\n", Version, GitCommit, BuildDate)
	case "", "help", "--help", "-h":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command %q\n\n", cmd)
		printUsage()
		os.Exit(2)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Print(`sciquery - science question answering over a curated corpus

Usage:
  sciquery serve [--port N] [--config FILE]   Run the API server
  sciquery ask [--sync] [--plain] QUESTION    Ask one question
  sciquery chat                               Interactive question REPL
  sciquery history [--limit N] [USER]         Show past queries
  sciquery config show|get|set|path [ARGS]    Inspect or edit configuration
  sciquery version                            Print version information

Environment:
  SCIQUERY_* variables override file configuration, for example
  SCIQUERY_PORT, SCIQUERY_CEREBRAS_KEY, SCIQUERY_SERVER_URL.
`)
}

// loadConfig reads the config file, or a specific path when given.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFromPath(path)
	}
	return config.Load()
}

// =============================================================================
// SERVE
// =============================================================================

func runServe(args []string) error {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	port := fs.Int("port", 0, "listen port (overrides config)")
	configPath := fs.String("config", "", "config file path")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if *port != 0 {
		cfg.Server.Port = *port
	}

	providers := llm.BuildProviders(cfg.ProviderKeys())
	if len(providers) == 0 {
		return errors.New("no LLM providers configured; set at least one API key (for example SCIQUERY_CEREBRAS_KEY)")
	}

	router := llm.NewRouter(providers...).
		WithCooldown(time.Duration(cfg.Providers.CooldownMinutes) * time.Minute)
	completer := llm.NewCompleter(router)

	embedder := retrieval.NewEmbeddingsClient(cfg.Retrieval.OpenAIKey).
		WithModel(cfg.Retrieval.EmbeddingModel)
	retriever := retrieval.NewClient(cfg.Retrieval.SupabaseURL, cfg.Retrieval.SupabaseKey, embedder)
	reranker := rerank.NewClient(cfg.Rerank.CohereKey).WithModel(cfg.Rerank.Model)

	usagePath, err := cfg.UsagePath()
	if err != nil {
		return fmt.Errorf("resolving usage path: %w", err)
	}
	usage := search.NewUsageStore(usagePath)
	if err := usage.Watch(); err != nil {
		log.Printf("USAGE_WATCH_FAILED | path=%s error=%v", usagePath, err)
	}
	defer usage.Close()

	searcher := search.NewManager(search.Keys{
		Tavily: cfg.Search.TavilyKey,
		Serp:   cfg.Search.SerpKey,
		Serper: cfg.Search.SerperKey,
	}, usage)

	pipeline := rag.NewPipeline(completer, retriever, searcher, reranker).
		WithQueryRewriting(cfg.Providers.QueryRewriting)

	ac := admission.NewController(cfg.Server.MaxConcurrent)

	var store *storage.Store
	if cfg.Storage.Enabled {
		dbPath, err := cfg.DBPath()
		if err != nil {
			return fmt.Errorf("resolving database path: %w", err)
		}
		store, err = storage.NewStore(dbPath)
		if err != nil {
			return fmt.Errorf("opening query store: %w", err)
		}
		defer store.Close()
	}

	var coordinator *session.Coordinator
	var history server.History
	if store != nil {
		coordinator = session.NewCoordinator(ac, pipeline, store)
		history = store
	} else {
		coordinator = session.NewCoordinator(ac, pipeline, nil)
	}

	srv := server.NewServer(cfg.Server.Port, coordinator, ac, history)
	if cfg.Server.BearerToken != "" {
		auth := server.DefaultAuthConfig()
		auth.Enabled = true
		auth.BearerToken = cfg.Server.BearerToken
		srv.WithAuth(auth)
	}
	if len(cfg.Server.AllowedOrigins) > 0 {
		cors := server.DefaultCORSConfig()
		cors.AllowedOrigins = cfg.Server.AllowedOrigins
		srv.WithCORS(cors)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	log.Printf("SERVER_SHUTDOWN | signal=interrupt")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// =============================================================================
// CLIENT COMMANDS
// =============================================================================

func runAsk(args []string) error {
	fs := flag.NewFlagSet("ask", flag.ExitOnError)
	sync := fs.Bool("sync", false, "use the non-streaming endpoint")
	plain := fs.Bool("plain", false, "skip markdown rendering")
	configPath := fs.String("config", "", "config file path")
	if err := fs.Parse(args); err != nil {
		return err
	}

	question := strings.TrimSpace(strings.Join(fs.Args(), " "))
	if question == "" {
		return errors.New("usage: sciquery ask QUESTION")
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	return cli.RunAsk(cfg, question, cli.AskOptions{Sync: *sync, Plain: *plain})
}

func runChat(args []string) error {
	fs := flag.NewFlagSet("chat", flag.ExitOnError)
	configPath := fs.String("config", "", "config file path")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	return cli.RunChat(cfg)
}

func runHistory(args []string) error {
	fs := flag.NewFlagSet("history", flag.ExitOnError)
	limit := fs.Int("limit", 20, "maximum entries to show, 0 for all")
	configPath := fs.String("config", "", "config file path")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	// An optional positional argument overrides the configured user.
	if rest := fs.Args(); len(rest) > 0 {
		cfg.Client.UserID = rest[0]
	}
	return cli.RunHistory(cfg, *limit)
}

// =============================================================================
// CONFIG
// =============================================================================

func runConfig(args []string) error {
	sub := ""
	if len(args) > 0 {
		sub = args[0]
		args = args[1:]
	}

	switch sub {
	case "", "show":
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		fmt.Print(cfg.String())
		return nil

	case "get":
		if len(args) != 1 {
			return errors.New("usage: sciquery config get KEY")
		}
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		value, err := cfg.Get(args[0])
		if err != nil {
			return err
		}
		fmt.Println(value)
		return nil

	case "set":
		if len(args) != 2 {
			return errors.New("usage: sciquery config set KEY VALUE")
		}
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		if err := cfg.Set(args[0], args[1]); err != nil {
			return err
		}
		if err := cfg.Validate(); err != nil {
			return err
		}
		path, err := config.ConfigPathTOML()
		if err != nil {
			return err
		}
		if err := config.SaveTOML(cfg, path); err != nil {
			return err
		}
		fmt.Printf("Set %s in %s\n", args[0], path)
		return nil

	case "path":
		path, err := config.ConfigPathTOML()
		if err != nil {
			return err
		}
		fmt.Println(path)
		return nil

	default:
		return fmt.Errorf("unknown config subcommand %q (want show, get, set, or path)", sub)
	}
}
