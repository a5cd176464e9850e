// ABOUTME: Interactive config file generator for the init command
// ABOUTME: Prompts for platform endpoints, credentials, ledger path and logging, then writes YAML

package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/x6nux/linkclaw-sub000/internal/config"
)

// getDataPath returns the path to the linkclaw data directory.
// Priority: XDG_DATA_HOME/linkclaw > ~/.local/share/linkclaw
func getDataPath() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "data" // fallback
		}
		dataDir = filepath.Join(homeDir, ".local", "share")
	}

	return filepath.Join(dataDir, "linkclaw")
}

// initAnswers holds everything runInit asks for.
type initAnswers struct {
	WSURL     string
	APIURL    string
	MCPURL    string
	TokenEnv  string
	SelfName  string
	DBPath    string
	LogLevel  string
	LogFormat string
}

func runInit(in io.Reader, out io.Writer) error {
	reader := bufio.NewReader(in)

	fmt.Fprintln(out, "linkclaw-bridge configuration setup")
	fmt.Fprintln(out, "===================================")
	fmt.Fprintln(out)

	outputFile := prompt(reader, out, "Config file path", config.DefaultPath())

	if _, err := os.Stat(outputFile); err == nil {
		overwrite := prompt(reader, out, "File exists. Overwrite?", "no")
		if !isYes(overwrite) {
			fmt.Fprintln(out, "Aborted.")
			return nil
		}
	}

	var a initAnswers
	fmt.Fprintln(out, "\n--- Platform ---")
	a.WSURL = prompt(reader, out, "Websocket URL", "wss://linkclaw.example/api/v1/ws")
	a.APIURL = prompt(reader, out, "REST API URL ('none' to skip name lookups)", "https://linkclaw.example")
	if strings.EqualFold(a.APIURL, "none") {
		a.APIURL = ""
	}
	a.MCPURL = prompt(reader, out, "Tool endpoint URL", "https://linkclaw.example/mcp")
	a.TokenEnv = prompt(reader, out, "Environment variable holding the agent token", "LINKCLAW_TOKEN")
	a.SelfName = prompt(reader, out, "Display name for your own messages", "")

	fmt.Fprintln(out, "\n--- Ledger ---")
	a.DBPath = prompt(reader, out, "SQLite database path ('none' to disable)", filepath.Join(getDataPath(), "bridge.db"))
	if strings.EqualFold(a.DBPath, "none") {
		a.DBPath = ""
	}

	fmt.Fprintln(out, "\n--- Logging ---")
	a.LogLevel = prompt(reader, out, "Log level (debug/info/warn/error)", "info")
	a.LogFormat = prompt(reader, out, "Log format (text/json)", "text")

	if err := os.MkdirAll(filepath.Dir(outputFile), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := os.WriteFile(outputFile, []byte(renderConfig(a)), 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	if a.DBPath != "" {
		if err := os.MkdirAll(filepath.Dir(a.DBPath), 0755); err != nil {
			return fmt.Errorf("creating data directory: %w", err)
		}
	}

	fmt.Fprintf(out, "\nConfig written to %s\n", outputFile)
	fmt.Fprintf(out, "Export %s before starting:\n", a.TokenEnv)
	fmt.Fprintln(out, "  linkclaw-bridge run")
	return nil
}

func renderConfig(a initAnswers) string {
	var cfg strings.Builder
	cfg.WriteString("# linkclaw-bridge configuration\n")
	cfg.WriteString("# Generated by linkclaw-bridge init\n\n")

	cfg.WriteString("platform:\n")
	cfg.WriteString(fmt.Sprintf("  ws_url: %q\n", a.WSURL))
	if a.APIURL != "" {
		cfg.WriteString(fmt.Sprintf("  api_url: %q\n", a.APIURL))
	}
	cfg.WriteString(fmt.Sprintf("  mcp_url: %q\n", a.MCPURL))
	cfg.WriteString(fmt.Sprintf("  token: \"${%s}\"\n", a.TokenEnv))
	if a.SelfName != "" {
		cfg.WriteString(fmt.Sprintf("  self_name: %q\n", a.SelfName))
	}
	cfg.WriteString("\n")

	cfg.WriteString("duplex:\n")
	cfg.WriteString("  heartbeat_interval: \"30s\"\n")
	cfg.WriteString("  reconnect_base: \"1s\"\n")
	cfg.WriteString("  reconnect_max: \"30s\"\n")
	cfg.WriteString("\n")

	cfg.WriteString("rpc:\n")
	cfg.WriteString("  request_timeout: \"30s\"\n")
	cfg.WriteString("\n")

	if a.DBPath != "" {
		cfg.WriteString("database:\n")
		cfg.WriteString(fmt.Sprintf("  path: %q\n", a.DBPath))
		cfg.WriteString("\n")
	}

	cfg.WriteString("logging:\n")
	cfg.WriteString(fmt.Sprintf("  level: %q\n", a.LogLevel))
	cfg.WriteString(fmt.Sprintf("  format: %q\n", a.LogFormat))
	return cfg.String()
}

func prompt(reader *bufio.Reader, out io.Writer, question, defaultVal string) string {
	if defaultVal != "" {
		fmt.Fprintf(out, "%s [%s]: ", question, defaultVal)
	} else {
		fmt.Fprintf(out, "%s: ", question)
	}

	input, err := reader.ReadString('\n')
	if err != nil && input == "" {
		// On EOF or error, return default
		fmt.Fprintln(out)
		return defaultVal
	}
	input = strings.TrimSpace(input)

	if input == "" {
		return defaultVal
	}
	return input
}

func isYes(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	return s == "yes" || s == "y"
}
