// Command journalctl is the author and admin tool for a journal server.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/blackmichael/journal/internal/client"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return newRootCmd().ExecuteContext(ctx)
}

// options are the flags shared by every command.
type options struct {
	server  string
	key     string
	verbose bool
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:   "journalctl",
		Short: "Post to and read from a journal server",
		Long: `journalctl talks to a journal server over its HTTP API.

The key is taken from --key, then JOURNAL_KEY, and is otherwise prompted
for. The editor key is needed to post and upload; the viewer key is enough
to read.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&opts.server, "server", envOrDefault("JOURNAL_SERVER", "http://localhost:3000"), "journal server URL")
	root.PersistentFlags().StringVar(&opts.key, "key", "", "access key (default $JOURNAL_KEY or prompt)")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "log requests and reconnects")

	root.AddCommand(
		newPostCmd(opts),
		newUploadCmd(opts),
		newPageCmd(opts),
		newTailCmd(opts),
		newExportCmd(opts),
		newImportCmd(opts),
	)
	return root
}

// connect logs in and returns a ready client.
func (o *options) connect(cmd *cobra.Command) (*client.Client, error) {
	key, err := o.resolveKey(cmd)
	if err != nil {
		return nil, err
	}

	c, err := client.NewClient(o.server)
	if err != nil {
		return nil, err
	}

	role, err := c.Login(cmd.Context(), key, false)
	if err != nil {
		c.Close()
		return nil, err
	}
	o.logger(cmd).Debug("logged in", "server", o.server, "role", string(role))
	return c, nil
}

func (o *options) resolveKey(cmd *cobra.Command) (string, error) {
	if o.key != "" {
		return o.key, nil
	}
	if k := os.Getenv("JOURNAL_KEY"); k != "" {
		return k, nil
	}

	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", fmt.Errorf("no key: pass --key or set JOURNAL_KEY")
	}
	fmt.Fprint(cmd.ErrOrStderr(), "Key: ")
	b, err := term.ReadPassword(fd)
	fmt.Fprintln(cmd.ErrOrStderr())
	if err != nil {
		return "", fmt.Errorf("read key: %w", err)
	}
	key := strings.TrimSpace(string(b))
	if key == "" {
		return "", fmt.Errorf("no key entered")
	}
	return key, nil
}

func (o *options) logger(cmd *cobra.Command) *slog.Logger {
	if !o.verbose {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
