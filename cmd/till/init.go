// ABOUTME: till init: interactive setup that writes a config file and creates the data directory
// ABOUTME: --yes accepts every default so the command can run unattended

package main

import (
	"bufio"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/2389/till/internal/config"
)

type initOptions struct {
	Force bool
	Yes   bool
}

func newInitCommand(root *rootOptions) *cobra.Command {
	opts := &initOptions{}

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a till config file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInit(cmd.InOrStdin(), cmd.OutOrStdout(), root, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.Force, "force", false, "overwrite an existing config file")
	cmd.Flags().BoolVarP(&opts.Yes, "yes", "y", false, "accept all defaults without prompting")

	return cmd
}

// prompter asks questions on out and reads answers from in.
// With auto set it answers every question with its default.
type prompter struct {
	reader *bufio.Reader
	out    io.Writer
	auto   bool
}

func (p *prompter) ask(question, defaultVal string) string {
	if p.auto {
		return defaultVal
	}
	if defaultVal != "" {
		fmt.Fprintf(p.out, "%s [%s]: ", question, defaultVal)
	} else {
		fmt.Fprintf(p.out, "%s: ", question)
	}

	input, err := p.reader.ReadString('\n')
	if err != nil && input == "" {
		// On EOF or error, return default
		fmt.Fprintln(p.out)
		return defaultVal
	}
	input = strings.TrimSpace(input)

	if input == "" {
		return defaultVal
	}
	return input
}

func (p *prompter) confirm(question string, defaultYes bool) bool {
	def := "no"
	if defaultYes {
		def = "yes"
	}
	answer := strings.ToLower(p.ask(question, def))
	return answer == "yes" || answer == "y"
}

func runInit(in io.Reader, out io.Writer, root *rootOptions, opts *initOptions) error {
	p := &prompter{reader: bufio.NewReader(in), out: out, auto: opts.Yes}

	fmt.Fprintln(out, "till configuration setup")
	fmt.Fprintln(out, "========================")
	fmt.Fprintln(out)

	cfg := config.Default()

	outputFile := p.ask("Config file path", root.configPath())
	if strings.EqualFold(filepath.Ext(outputFile), ".toml") {
		return fmt.Errorf("init writes YAML; choose a .yaml path instead of %s", outputFile)
	}

	if _, err := os.Stat(outputFile); err == nil && !opts.Force {
		if opts.Yes || !p.confirm("File exists. Overwrite?", false) {
			fmt.Fprintln(out, "Aborted.")
			return nil
		}
	}

	fmt.Fprintln(out, "\n--- Store ---")
	cfg.Store.Dir = p.ask("Data directory", cfg.Store.Dir)
	cfg.Store.Backend = p.ask("Backend (json/sqlite)", cfg.Store.Backend)
	defaultFile := cfg.Store.File
	if cfg.Store.Backend == config.BackendSQLite {
		defaultFile = "db.sqlite"
	}
	cfg.Store.File = p.ask("Store file name", defaultFile)

	fmt.Fprintln(out, "\n--- Server ---")
	cfg.Server.HTTPAddr = p.ask("HTTP address", cfg.Server.HTTPAddr)

	fmt.Fprintln(out, "\n--- Auth ---")
	if p.confirm("Require bearer tokens?", false) {
		secret, err := generateSecret()
		if err != nil {
			return err
		}
		cfg.Auth.JWTSecret = secret
	}

	fmt.Fprintln(out, "\n--- Change log ---")
	cfg.Changes.RetentionRaw = p.ask("Retention (e.g. 720h, empty keeps everything)", "")
	if cfg.Changes.RetentionRaw != "" {
		cfg.Changes.PruneIntervalRaw = p.ask("Prune interval", cfg.Changes.PruneIntervalRaw)
	}

	fmt.Fprintln(out, "\n--- Logging ---")
	cfg.Logging.Level = p.ask("Log level (debug/info/warn/error)", cfg.Logging.Level)
	cfg.Logging.Format = p.ask("Log format (text/json)", cfg.Logging.Format)

	// Stage and reload so a bad answer never replaces a working config.
	staged := filepath.Join(filepath.Dir(outputFile), ".init-"+filepath.Base(outputFile))
	if err := cfg.Save(staged); err != nil {
		return err
	}
	loaded, err := config.Load(staged)
	if err != nil {
		_ = os.Remove(staged)
		return fmt.Errorf("generated config is invalid: %w", err)
	}
	if err := os.Rename(staged, outputFile); err != nil {
		_ = os.Remove(staged)
		return fmt.Errorf("writing config file: %w", err)
	}

	if err := os.MkdirAll(loaded.Store.Dir, 0755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}

	green := color.New(color.FgGreen)
	fmt.Fprintln(out)
	green.Fprint(out, "✓ ")
	fmt.Fprintf(out, "Config written to %s\n", outputFile)
	green.Fprint(out, "✓ ")
	fmt.Fprintf(out, "Data directory: %s\n", loaded.Store.Dir)
	fmt.Fprintln(out, "\nTo start the server:")
	fmt.Fprintln(out, "  till serve")

	return nil
}

// generateSecret returns a random token-signing secret.
func generateSecret() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating secret: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
