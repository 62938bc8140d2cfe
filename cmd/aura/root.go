package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"aura/internal/assistant"
	"aura/internal/config"
	"aura/internal/types"
)

var (
	flagWorkspace string
	flagConfig    string
)

var rootCmd = &cobra.Command{
	Use:   "aura",
	Short: "aura is a local-first autonomous personal assistant",
	Long: `aura runs a cognitive pipeline over local or remote models: reflexes for
instant answers, a layered consciousness stack for deliberation, hierarchical
memory that consolidates while idle, and an evolution engine that proposes
changes to its own behavior.`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runREPL()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&flagWorkspace, "workspace", "w", "", "workspace directory (default: current directory)")
	rootCmd.PersistentFlags().StringVarP(&flagConfig, "config", "c", "", "config file (default: <workspace>/.aura/config.yaml)")
	rootCmd.AddCommand(askCmd, replCmd, serveCmd, statusCmd, configCmd, versionCmd)
}

func loadConfig() (*config.Config, error) {
	ws := flagWorkspace
	if ws == "" {
		ws, _ = os.Getwd()
	}
	path := flagConfig
	if path == "" {
		path = ws + "/.aura/config.yaml"
	}
	return config.Load(path, ws)
}

func buildAssistant() (*assistant.Assistant, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return assistant.New(cfg)
}

var askCmd = &cobra.Command{
	Use:   "ask [text...]",
	Short: "Ask one question and exit",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := buildAssistant()
		if err != nil {
			return err
		}
		defer a.Close()
		a.Start()

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		reply, err := a.Ask(ctx, strings.Join(args, " "), printEvent)
		if err != nil {
			return err
		}
		fmt.Println(reply)
		return nil
	},
}

var replCmd = &cobra.Command{
	Use:   "repl",
	Short: "Interactive session",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runREPL()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print a system overview and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := buildAssistant()
		if err != nil {
			return err
		}
		defer a.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		fmt.Println(a.Controller.Handle(ctx, &types.Request{
			ID: "status", Source: "cli", Text: "/status",
		}))
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig()
		if err != nil {
			fmt.Println("aura (unknown version)")
			return
		}
		fmt.Printf("%s %s\n", cfg.Name, cfg.Version)
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		// Secrets never reach stdout.
		if cfg.LLM.APIKey != "" {
			cfg.LLM.APIKey = "***"
		}
		if cfg.Embedding.GenAIAPIKey != "" {
			cfg.Embedding.GenAIAPIKey = "***"
		}
		out, err := yaml.Marshal(cfg)
		if err != nil {
			return err
		}
		fmt.Print(string(out))
		return nil
	},
}

func runREPL() error {
	a, err := buildAssistant()
	if err != nil {
		return err
	}
	defer a.Close()
	a.Start()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	fmt.Printf("%s %s. Type /help for commands, exit to quit.\n", a.Config.Name, a.Config.Version)
	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			fmt.Println()
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "exit" || line == "quit" {
			fmt.Println("Goodbye.")
			return nil
		}

		reply, err := a.Ask(ctx, line, printEvent)
		if err != nil {
			if ctx.Err() != nil {
				fmt.Println("\nInterrupted.")
				return nil
			}
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			continue
		}
		fmt.Println(reply)
	}
}

// printEvent surfaces progress events as dim side-channel lines.
func printEvent(eventType string, payload interface{}) {
	switch eventType {
	case "thought", "status", "model", "budget":
		fmt.Fprintf(os.Stderr, "  [%s] %v\n", eventType, payload)
	}
}
