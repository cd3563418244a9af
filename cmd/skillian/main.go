// Command skillian runs the skill-based diagnostic assistant: it loads
// skills from a directory, serves an interactive chat loop against the
// configured model provider, and hot-reloads skills while running.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/skillian-ai/skillian/internal/builtins"
	"github.com/skillian-ai/skillian/internal/config"
	"github.com/skillian-ai/skillian/internal/connectors"
	"github.com/skillian-ai/skillian/internal/models"
	"github.com/skillian-ai/skillian/internal/orchestrator"
	"github.com/skillian-ai/skillian/internal/skills"
)

var version = "0.1.0"

func main() {
	os.Exit(run())
}

func run() int {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	configPath := flag.String("config", "skillian.json", "path to config file")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("skillian %s\n", version)
		return 0
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		return 1
	}

	logger := newLogger(cfg.Server.LogLevel)

	args := flag.Args()
	if len(args) > 0 && args[0] == "skills" {
		return runSkillsCommand(cfg, logger, args[1:])
	}

	return runChat(cfg, logger)
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

// buildLoader wires connectors and the builtin locator table into a loader.
func buildLoader(cfg *config.Config, logger *slog.Logger) (*skills.Loader, func(), error) {
	conns, err := connectors.Build(cfg.Connectors, logger)
	if err != nil {
		return nil, nil, err
	}
	closeAll := func() {
		for _, c := range conns {
			_ = c.Close()
		}
	}

	table := make(map[string]skills.Connector, len(conns))
	for name, c := range conns {
		table[name] = c
	}

	loader := skills.NewLoader(cfg.Skills.Dir, table, builtins.Table(), logger)
	return loader, closeAll, nil
}

func runChat(cfg *config.Config, logger *slog.Logger) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	loader, closeConns, err := buildLoader(cfg, logger)
	if err != nil {
		logger.Error("connector setup failed", "error", err)
		return 1
	}
	defer closeConns()

	registry := skills.NewRegistry(logger)
	loaded, diags := loader.LoadAll()
	for _, d := range diags {
		logger.Warn("skill skipped", "error", d)
	}
	for _, skill := range loaded {
		if err := registry.Register(skill); err != nil {
			logger.Warn("skill rejected", "skill", skill.Manifest.Name, "error", err)
		}
	}
	logger.Info("registry ready", "skills", registry.SkillCount(), "tools", registry.ToolCount())

	if cfg.Skills.ReloadSchedule != "" {
		watcher, err := skills.NewWatcher(loader, registry, cfg.Skills.ReloadSchedule, logger)
		if err != nil {
			logger.Error("watcher setup failed", "error", err)
			return 1
		}
		watcher.Start()
		defer watcher.Stop()
	}

	router := models.NewRouter(cfg.Agent.Fallback, logger)
	for _, pc := range cfg.Providers {
		provider, err := models.NewProviderFromConfig(pc)
		if err != nil {
			logger.Error("provider setup failed", "provider", pc.Name, "error", err)
			return 1
		}
		router.RegisterProvider(provider)
	}

	loop := orchestrator.NewLoop(registry, router, cfg.Agent, logger)

	fmt.Printf("skillian %s — %d skills, %d tools. Type a question, or \"exit\".\n",
		version, registry.SkillCount(), registry.ToolCount())

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "exit" || line == "quit" {
			break
		}

		result, err := loop.Run(ctx, line)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			if result != nil && result.Status == orchestrator.StatusExhausted {
				fmt.Println("(stopped after the iteration cap; partial tool results were kept in context)")
			}
			continue
		}
		fmt.Println(result.Answer)
		if n := len(result.Invocations); n > 0 {
			logger.Debug("turn complete", "tool_calls", n, "iterations", result.Iterations)
		}
	}

	return 0
}

func runSkillsCommand(cfg *config.Config, logger *slog.Logger, args []string) int {
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "usage: skillian skills <list|validate NAME>")
		return 2
	}

	loader, closeConns, err := buildLoader(cfg, logger)
	if err != nil {
		logger.Error("connector setup failed", "error", err)
		return 1
	}
	defer closeConns()

	switch args[0] {
	case "list":
		names, err := loader.Discover()
		if err != nil {
			fmt.Fprintf(os.Stderr, "discover: %v\n", err)
			return 1
		}
		for _, name := range names {
			skill, err := loader.LoadMetadata(name)
			if err != nil {
				fmt.Printf("%-20s (unreadable: %v)\n", name, err)
				continue
			}
			fmt.Printf("%-20s v%-8s %s\n", skill.Manifest.Name, skill.Manifest.Version, skill.Manifest.Description)
		}
		return 0

	case "validate":
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, "usage: skillian skills validate NAME")
			return 2
		}
		skill, err := loader.Load(args[1])
		if err != nil {
			fmt.Fprintf(os.Stderr, "invalid: %v\n", err)
			return 1
		}
		fmt.Printf("%s v%s: %d tools (%s)\n",
			skill.Manifest.Name, skill.Manifest.Version,
			len(skill.Tools), strings.Join(skill.ToolNames(), ", "))
		return 0

	default:
		fmt.Fprintf(os.Stderr, "unknown skills subcommand %q\n", args[0])
		return 2
	}
}
