// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Command afkd is the supervisor daemon: it owns the session table, the
// event bus, and every control plane surface (the HTTP/SSE API always,
// plus the Telegram chat control plane when a bot token and group id are
// configured, in which case it also owns session channels). Grounded on the
// teacher's cmd/trellis, trimmed of the interactive "init" wizard and
// the terminal/service/workflow machinery this repo doesn't carry.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/Donghh0221/afk/internal/afklog"
	"github.com/Donghh0221/afk/internal/agent"
	"github.com/Donghh0221/afk/internal/capability"
	"github.com/Donghh0221/afk/internal/config"
	"github.com/Donghh0221/afk/internal/controlplane"
	"github.com/Donghh0221/afk/internal/events"
	"github.com/Donghh0221/afk/internal/facade"
	"github.com/Donghh0221/afk/internal/pidtracker"
	"github.com/Donghh0221/afk/internal/session"
	"github.com/Donghh0221/afk/internal/store"
	"github.com/Donghh0221/afk/internal/workspace"
)

var version = "0.1"

var log = afklog.New("afkd")

func main() {
	var (
		configPath  string
		showVersion bool
	)
	flag.StringVar(&configPath, "config", "", "Path to afk.hjson (default: auto-detect)")
	flag.StringVar(&configPath, "c", "", "Path to afk.hjson (short)")
	flag.BoolVar(&showVersion, "version", false, "Show version")
	flag.Parse()

	if showVersion {
		fmt.Printf("afkd %s\n", version)
		return
	}

	loader := config.NewLoader()
	if configPath == "" {
		if found, err := loader.FindConfig(); err == nil {
			configPath = found
		}
	}

	cfg, err := loader.LoadWithDefaults(context.Background(), configPath)
	if err != nil {
		log.Errorf("load config: %v", err)
		os.Exit(1)
	}

	if err := run(cfg, loader, configPath); err != nil {
		log.Errorf("fatal: %v", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, loader *config.Loader, configPath string) error {
	if err := os.MkdirAll(cfg.StateDir, 0o755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}
	if err := os.MkdirAll(cfg.LogDir, 0o755); err != nil {
		return fmt.Errorf("create log dir: %w", err)
	}

	tracker := pidtracker.New(filepath.Join(cfg.StateDir, "pids"))
	tracker.CleanupStalePIDs()

	bus := events.NewBus(events.BusConfig{})
	ws := workspace.NewManager(workspace.NewRealGitExecutor())

	registry := agent.NewRegistry()
	registry.Register("claude", func() agent.Port {
		return agent.NewStreamingAdapter(agent.StreamingConfig{
			Command:    "claude",
			BaseArgs:   []string{"--output-format", "stream-json", "--input-format", "stream-json"},
			ResumeFlag: "--resume",
			UsePTY:     true,
		}, tracker)
	})
	registry.Register("codex", func() agent.Port {
		return agent.NewFireAndCompleteAdapter(agent.FireAndCompleteConfig{
			Command:        "codex",
			BaseArgs:       []string{"exec", "--json"},
			ResumeLastFlag: "resume --last",
			ResumeFlag:     "resume",
		})
	})

	projects, err := store.NewProjectStore(filepath.Join(cfg.StateDir, "projects.json"))
	if err != nil {
		return fmt.Errorf("load project store: %w", err)
	}
	messages := store.NewMessageStore(filepath.Join(cfg.StateDir, "messages"))

	var telegramCP *controlplane.TelegramControlPlane
	var cp session.ControlPlane
	if cfg.BotToken != "" && cfg.GroupID != "" {
		telegramCP = controlplane.NewTelegramControlPlane(cfg.BotToken, cfg.GroupID, nil)
		cp = telegramCP
	} else {
		cp = controlplane.NewHTTPControlPlane(cfg.PublicBaseURL)
	}

	var scaffolder *capability.TemplateStore
	if _, err := os.Stat(cfg.TemplateDir); err == nil {
		scaffolder = capability.NewTemplateStore(cfg.TemplateDir)
	}

	sessions := session.NewManager(session.Config{
		StateDir:         cfg.StateDir,
		LogDir:           cfg.LogDir,
		WorktreeBaseDir:  cfg.WorktreeBaseDir,
		DefaultBranch:    cfg.DefaultBranch,
		AutoApproveTools: cfg.AutoApproveTools,
	}, bus, ws, registry, cp, scaffolder)

	recoverCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := sessions.RecoverSessions(recoverCtx, projects); err != nil {
		log.Warnf("recover sessions: %v", err)
	}
	sessions.CleanupOrphanWorktrees(recoverCtx, projects)
	cancel()

	var cfgWatcher *config.Watcher
	if configPath != "" {
		var err error
		cfgWatcher, err = config.NewWatcher(loader, configPath, func(reloaded *config.Config) {
			sessions.SetAutoApprove(reloaded.AutoApproveTools)
		})
		if err != nil {
			log.Warnf("watch config file: %v", err)
		} else {
			watchCtx, watchCancel := context.WithCancel(context.Background())
			defer watchCancel()
			cfgWatcher.Start(watchCtx)
		}
	}

	var stt *capability.STT
	if cfg.OpenAIAPIKey != "" {
		stt = capability.NewSTT("https://api.openai.com/v1/audio/transcriptions", cfg.OpenAIAPIKey, "whisper-1")
	}

	var tunnel *capability.Tunnel
	if cfg.PublicBaseURL != "" {
		tunnel = capability.NewTunnel(capability.TunnelConfig{
			Listen:     ":8443",
			PublicHost: cfg.PublicBaseURL,
		})
		if err := tunnel.Start(context.Background()); err != nil {
			log.Warnf("start tunnel listener: %v", err)
			tunnel = nil
		}
	}

	commitMsg := capability.NewCommitMessageGenerator(workspace.NewRealGitExecutor())

	f := facade.New(facade.Config{BasePath: cfg.BasePath}, sessions, projects, messages, scaffolder, stt, tunnel, commitMsg, workspace.NewRealGitExecutor())

	if telegramCP != nil {
		telegramCP.SetFacade(f)
		if err := telegramCP.Start(context.Background()); err != nil {
			log.Warnf("start telegram control plane: %v", err)
		}
	}

	router := controlplane.NewRouter(controlplane.Dependencies{
		Facade:   f,
		Bus:      bus,
		LogLines: afklog.Tail,
	})

	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler: router,
	}

	go func() {
		log.Printf("listening on %s", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Errorf("http server: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Printf("received signal %v, shutting down", sig)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Warnf("http server shutdown: %v", err)
	}
	if tunnel != nil {
		if err := tunnel.Shutdown(shutdownCtx); err != nil {
			log.Warnf("tunnel shutdown: %v", err)
		}
	}
	if telegramCP != nil {
		if err := telegramCP.Stop(shutdownCtx); err != nil {
			log.Warnf("telegram control plane shutdown: %v", err)
		}
	}
	if cfgWatcher != nil {
		if err := cfgWatcher.Stop(); err != nil {
			log.Warnf("config watcher shutdown: %v", err)
		}
	}
	sessions.SuspendAllSessions(shutdownCtx)
	tracker.Shutdown()

	return nil
}
