// ABOUTME: Entry point for linkclaw-bridge
// ABOUTME: Connects an agent to the platform's socket and tool endpoints, with a local message ledger

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"

	"github.com/x6nux/linkclaw-sub000/internal/config"
	"github.com/x6nux/linkclaw-sub000/internal/conversation"
	"github.com/x6nux/linkclaw-sub000/internal/duplex"
	"github.com/x6nux/linkclaw-sub000/internal/integration"
	"github.com/x6nux/linkclaw-sub000/internal/store"
)

// Version is set at build time.
var version = "dev"

const banner = `
 _ _       _        _                 _          _     _
| (_)_ __ | | _____| | __ ___      __ | |__  _ __(_) __| | __ _  ___
| | | '_ \| |/ / __| |/ _' \ \ /\ / / | '_ \| '__| |/ _' |/ _' |/ _ \
| | | | | |   < (__| | (_| |\ V  V /  | |_) | |  | | (_| | (_| |  __/
|_|_|_| |_|_|\_\___|_|\__,_| \_/\_/   |_.__/|_|  |_|\__,_|\__, |\___|
                                                          |___/
`

const (
	connectTimeout = 15 * time.Second
	defaultHistory = 50
)

func usage(w io.Writer) {
	fmt.Fprintln(w, "Usage: linkclaw-bridge <command> [args]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  run                      Connect and stream messages until interrupted")
	fmt.Fprintln(w, "  tools                    List the platform's tools")
	fmt.Fprintln(w, "  call <tool> [json-args]  Invoke one tool and print its result")
	fmt.Fprintln(w, "  send <chat> <text>       Send a message to #channel or @agent")
	fmt.Fprintln(w, "  history [chat]           Show stored chats, or the messages of one chat")
	fmt.Fprintln(w, "  calls                    Show recent tool calls")
	fmt.Fprintln(w, "  init                     Create a new config file interactively")
	fmt.Fprintln(w, "  version                  Print the version")
}

func main() {
	if len(os.Args) < 2 {
		usage(os.Stderr)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	args := os.Args[2:]
	var err error
	switch os.Args[1] {
	case "run":
		err = runBridge(ctx)
	case "tools":
		err = runTools(ctx)
	case "call":
		err = runCall(ctx, args)
	case "send":
		err = runSend(ctx, args)
	case "history":
		err = runHistory(ctx, args)
	case "calls":
		err = runCalls(ctx)
	case "init":
		err = runInit(os.Stdin, os.Stdout)
	case "version":
		fmt.Println(version)
	case "help", "-h", "--help":
		usage(os.Stdout)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		usage(os.Stderr)
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, string, error) {
	path := config.DefaultPath()
	cfg, err := config.Load(path)
	if err != nil {
		return nil, path, fmt.Errorf("loading config from %s: %w", path, err)
	}
	slog.SetDefault(setupLogger(cfg.Logging))
	return cfg, path, nil
}

// openStore returns nil when no database is configured.
func openStore(cfg *config.Config) (store.MessageStore, error) {
	if cfg.Database.Path == "" {
		return nil, nil
	}
	s, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("opening ledger: %w", err)
	}
	return s, nil
}

func runBridge(ctx context.Context) error {
	cyan := color.New(color.FgCyan)
	cyan.Print(banner)
	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	cfg, configPath, err := loadConfig()
	if err != nil {
		return err
	}
	logger := slog.Default()

	ledgerStore, err := openStore(cfg)
	if err != nil {
		return err
	}
	if ledgerStore != nil {
		defer ledgerStore.Close()
	}

	integ, err := integration.New(cfg, newLedger(ledgerStore, os.Stdout, logger), logger)
	if err != nil {
		return fmt.Errorf("creating integration: %w", err)
	}

	green := color.New(color.FgGreen)
	green.Print("    ▶ ")
	fmt.Printf("Config:    %s\n", configPath)
	green.Print("    ▶ ")
	fmt.Printf("Socket:    %s\n", cfg.Platform.WSURL)
	green.Print("    ▶ ")
	fmt.Printf("Tools:     %s\n", cfg.Platform.MCPURL)
	green.Print("    ▶ ")
	fmt.Printf("Agent:     %s\n", integ.Self().AgentID)
	if ledgerStore != nil {
		green.Print("    ▶ ")
		fmt.Printf("Ledger:    %s\n", cfg.Database.Path)
	}
	fmt.Println()

	logger.Info("starting linkclaw-bridge",
		"config", configPath,
		"ws_url", cfg.Platform.WSURL,
		"mcp_url", cfg.Platform.MCPURL,
	)

	return integ.Run(ctx)
}

func runTools(ctx context.Context) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	integ, err := integration.New(cfg, nil, slog.Default())
	if err != nil {
		return fmt.Errorf("creating integration: %w", err)
	}
	defer integ.Stop()

	if err := integ.StartTools(ctx); err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tDESCRIPTION")
	for _, t := range integ.Tools().List() {
		fmt.Fprintf(w, "%s\t%s\n", t.Name, firstLine(t.Description))
	}
	return w.Flush()
}

func runCall(ctx context.Context, args []string) error {
	if len(args) < 1 || len(args) > 2 {
		return errors.New("usage: linkclaw-bridge call <tool> [json-args]")
	}
	name := args[0]
	rawArgs := json.RawMessage("{}")
	if len(args) == 2 {
		rawArgs = json.RawMessage(args[1])
	}

	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	logger := slog.Default()

	ledgerStore, err := openStore(cfg)
	if err != nil {
		return err
	}
	if ledgerStore != nil {
		defer ledgerStore.Close()
	}

	integ, err := integration.New(cfg, nil, logger)
	if err != nil {
		return fmt.Errorf("creating integration: %w", err)
	}
	defer integ.Stop()

	if err := integ.StartTools(ctx); err != nil {
		return err
	}

	start := time.Now()
	res := integ.Tools().Call(ctx, name, rawArgs)
	elapsed := time.Since(start)

	if ledgerStore != nil {
		call := &store.ToolCall{
			Tool:      name,
			Arguments: string(rawArgs),
			Result:    res.Text,
			IsError:   res.IsError,
			Duration:  elapsed,
			CreatedAt: start,
		}
		if err := ledgerStore.SaveToolCall(ctx, call); err != nil {
			logger.Warn("failed to record tool call", "tool", name, "error", err)
		}
	}

	if res.IsError {
		if res.Retryable {
			color.Yellow("(retryable)")
		}
		return errors.New(res.Text)
	}
	fmt.Println(res.Text)
	return nil
}

func runSend(ctx context.Context, args []string) error {
	if len(args) < 2 {
		return errors.New("usage: linkclaw-bridge send <chat> <text>")
	}
	chat, err := conversation.ParseKey(args[0])
	if err != nil {
		return err
	}
	text := strings.Join(args[1:], " ")

	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	logger := slog.Default()

	ledgerStore, err := openStore(cfg)
	if err != nil {
		return err
	}
	if ledgerStore != nil {
		defer ledgerStore.Close()
	}

	integ, err := integration.New(cfg, newLedger(ledgerStore, io.Discard, logger), logger)
	if err != nil {
		return fmt.Errorf("creating integration: %w", err)
	}
	defer integ.Stop()

	integ.Bridge().Start(ctx)
	integ.Channel().Connect(ctx)

	if err := waitConnected(ctx, integ.Channel(), connectTimeout); err != nil {
		return err
	}

	msg, ok := integ.Send(chat, text)
	if !ok {
		return errors.New("socket closed before the message was written")
	}
	color.Green("sent %s to %s", msg.ID, chat)
	return nil
}

func waitConnected(ctx context.Context, ch *duplex.Channel, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for {
		if ch.State() == duplex.StateConnected {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("waiting for socket: %w (state %s)", ctx.Err(), ch.State())
		case <-ticker.C:
		}
	}
}

func runHistory(ctx context.Context, args []string) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.Database.Path == "" {
		return errors.New("database.path is not configured")
	}
	s, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("opening ledger: %w", err)
	}
	defer s.Close()

	if len(args) == 0 {
		return printChats(ctx, os.Stdout, s)
	}

	chat, err := conversation.ParseKey(args[0])
	if err != nil {
		return err
	}
	return printHistory(ctx, os.Stdout, s, chat, defaultHistory)
}

func printChats(ctx context.Context, w io.Writer, s store.MessageStore) error {
	chats, err := s.ListChats(ctx)
	if err != nil {
		return err
	}
	if len(chats) == 0 {
		fmt.Fprintln(w, "No stored chats.")
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "CHAT\tMESSAGES\tLAST ACTIVITY")
	for _, c := range chats {
		fmt.Fprintf(tw, "%s\t%d\t%s\n", c.Chat, c.MessageCount, c.LastActivity.Local().Format(time.DateTime))
	}
	return tw.Flush()
}

func printHistory(ctx context.Context, w io.Writer, s store.MessageStore, chat conversation.ChatID, limit int) error {
	messages, err := s.ListMessages(ctx, chat, limit)
	if err != nil {
		return err
	}
	for _, m := range messages {
		label := m.SenderLabel
		if label == "" {
			label = m.SenderID
		}
		line := fmt.Sprintf("%s %s %s", m.Timestamp.Local().Format(time.DateTime), label+":", m.Content)
		if m.Origin == conversation.Optimistic {
			line += " (unconfirmed)"
		}
		fmt.Fprintln(w, line)
	}
	return nil
}

func runCalls(ctx context.Context) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.Database.Path == "" {
		return errors.New("database.path is not configured")
	}
	s, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("opening ledger: %w", err)
	}
	defer s.Close()

	calls, err := s.ListToolCalls(ctx, 20)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "WHEN\tTOOL\tDURATION\tSTATUS")
	for _, c := range calls {
		status := "ok"
		if c.IsError {
			status = "error"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", c.CreatedAt.Local().Format(time.DateTime), c.Tool, c.Duration, status)
	}
	return tw.Flush()
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(s, "\n")
	return line
}
