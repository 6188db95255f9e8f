package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/blackmichael/journal/internal/api"
	"github.com/blackmichael/journal/internal/client"
	"github.com/blackmichael/journal/internal/domain"
)

func newPageCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "page [n]",
		Short: "Show a page of posts, newest first",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n := 1
			if len(args) == 1 {
				var err error
				if n, err = strconv.Atoi(args[0]); err != nil {
					return fmt.Errorf("invalid page %q", args[0])
				}
			}

			c, err := opts.connect(cmd)
			if err != nil {
				return err
			}
			defer c.Close()

			page, err := c.Posts(cmd.Context(), n)
			if err != nil {
				return err
			}
			printPage(cmd.OutOrStdout(), page, time.Now())
			return nil
		},
	}
}

func newTailCmd(opts *options) *cobra.Command {
	var delay time.Duration

	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Show the first page, then follow new posts live",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.connect(cmd)
			if err != nil {
				return err
			}
			defer c.Close()

			out := cmd.OutOrStdout()
			fl := c.NewFollower(delay, opts.logger(cmd))
			fl.OnPage = func(p *api.PageResponse) {
				fmt.Fprintln(out, "-- connected --")
				printPage(out, p, time.Now())
			}
			fl.OnPost = func(p domain.Post) {
				fmt.Fprintln(out, formatPost(p, time.Now()))
			}

			if err := fl.Start(cmd.Context()); err != nil && cmd.Context().Err() == nil {
				return err
			}
			return nil
		},
	}
	cmd.Flags().DurationVar(&delay, "reconnect", client.DefaultReconnectDelay, "wait between reconnects")
	return cmd
}

func printPage(w io.Writer, p *api.PageResponse, now time.Time) {
	for i := len(p.Items) - 1; i >= 0; i-- {
		fmt.Fprintln(w, formatPost(p.Items[i].Post, now))
	}

	var nav []string
	if p.HasNewer {
		nav = append(nav, "newer: page "+strconv.Itoa(p.Page-1))
	}
	if p.HasOlder {
		nav = append(nav, "older: page "+strconv.Itoa(p.Page+1))
	}
	footer := fmt.Sprintf("page %d", p.Page)
	if len(nav) > 0 {
		footer += " (" + strings.Join(nav, ", ") + ")"
	}
	fmt.Fprintln(w, footer)
}

// formatPost renders a post as one line with a relative time.
func formatPost(p domain.Post, now time.Time) string {
	when := p.Timestamp
	if !p.CreatedAt.IsZero() {
		when = humanize.RelTime(p.CreatedAt, now, "ago", "from now")
	}
	text := strings.ReplaceAll(p.Text, "\n", " ")
	return fmt.Sprintf("[%s] %s", when, text)
}
