package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/blackmichael/journal/internal/archive"
	"github.com/blackmichael/journal/internal/client"
	"github.com/blackmichael/journal/internal/config"
	"github.com/blackmichael/journal/internal/docstore"
	"github.com/blackmichael/journal/internal/domain"
	"github.com/blackmichael/journal/internal/sqlite"
)

const postsDocumentKey = "posts"

func newExportCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "export <file>",
		Short: "Download every post into a compressed archive (\"-\" for stdout)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.connect(cmd)
			if err != nil {
				return err
			}
			defer c.Close()

			posts, err := c.AllPosts(cmd.Context())
			if err != nil {
				return err
			}

			var w io.Writer = cmd.OutOrStdout()
			var size func() int64
			if args[0] != "-" {
				f, err := os.Create(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				w = f
				size = func() int64 {
					info, err := f.Stat()
					if err != nil {
						return 0
					}
					return info.Size()
				}
			}

			n, err := archive.Export(w, posts)
			if err != nil {
				return err
			}
			if size != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "exported %d posts to %s (%s)\n", n, args[0], humanize.Bytes(uint64(size())))
			}
			return nil
		},
	}
}

// serverProbeTimeout bounds the check for a running server before import.
const serverProbeTimeout = 2 * time.Second

// newImportCmd merges an archive into the storage named by a config file.
// It writes the document directly, so the server must be stopped: a running
// server keeps its own copy of the posts and overwrites the import on its
// next post.
func newImportCmd(opts *options) *cobra.Command {
	var (
		configPath string
		replace    bool
		force      bool
	)

	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Merge an archive into the posts document (server must be stopped)",
		Long: `import merges an archive straight into the posts document named by the
server config. Stop the server first: a running server holds the posts in
memory and its next post would overwrite the imported ones.

import refuses to run while a server answers at --server unless --force is
given.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !force {
				if err := opts.ensureServerStopped(cmd); err != nil {
					return err
				}
			}

			cfg, err := config.LoadStorage(configPath)
			if err != nil {
				return err
			}

			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			incoming, err := archive.Import(f)
			if err != nil {
				return fmt.Errorf("read archive: %w", err)
			}

			doc, closeDoc, err := openDocument(cfg)
			if err != nil {
				return err
			}
			defer closeDoc()

			existing, err := doc.Read(cmd.Context())
			if err != nil && !errors.Is(err, domain.ErrNotFound) {
				return fmt.Errorf("read posts: %w", err)
			}
			if replace {
				existing = nil
			}

			merged := archive.Merge(existing, incoming)
			if err := doc.Write(cmd.Context(), merged); err != nil {
				return fmt.Errorf("write posts: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "imported %d posts, journal now holds %d\n", len(merged)-len(existing), len(merged))
			return nil
		},
	}
	cmd.Flags().StringVar(&configPath, "config", os.Getenv("JOURNAL_CONFIG"), "server config file naming the storage")
	cmd.Flags().BoolVar(&replace, "replace", false, "replace the journal instead of merging")
	cmd.Flags().BoolVar(&force, "force", false, "import even if a server answers at --server")
	return cmd
}

// ensureServerStopped fails if a journal server answers its health check at
// the configured URL.
func (o *options) ensureServerStopped(cmd *cobra.Command) error {
	c, err := client.NewClient(o.server)
	if err != nil {
		return err
	}
	defer c.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), serverProbeTimeout)
	defer cancel()
	if err := c.Health(ctx); err != nil {
		o.logger(cmd).Debug("no server answering", "server", o.server, "error", err)
		return nil
	}
	return fmt.Errorf("a journal server is running at %s: stop it before importing, or pass --force", o.server)
}

func openDocument(cfg config.StorageConfig) (domain.DocumentStore, func(), error) {
	switch cfg.Driver {
	case config.DriverSQLite:
		repo, err := sqlite.Open(cfg.DatabasePath)
		if err != nil {
			return nil, nil, err
		}
		return repo.Document(postsDocumentKey), func() { repo.Close() }, nil
	case config.DriverFile:
		return docstore.NewFileStore(cfg.PostsPath), func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}
