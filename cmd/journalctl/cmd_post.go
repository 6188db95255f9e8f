package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

func newPostCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "post <text>...",
		Short: "Publish a post (editor key)",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.connect(cmd)
			if err != nil {
				return err
			}
			defer c.Close()

			post, err := c.CreatePost(cmd.Context(), strings.Join(args, " "))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "posted %s (%s): %s\n", post.ID, post.Kind, post.Text)
			return nil
		},
	}
}

func newUploadCmd(opts *options) *cobra.Command {
	var andPost bool

	cmd := &cobra.Command{
		Use:   "upload <file>",
		Short: "Upload an image (editor key)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			info, err := f.Stat()
			if err != nil {
				return err
			}

			c, err := opts.connect(cmd)
			if err != nil {
				return err
			}
			defer c.Close()

			url, err := c.Upload(cmd.Context(), filepath.Base(args[0]), f)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "uploaded %s (%s): %s\n", filepath.Base(args[0]), humanize.IBytes(uint64(info.Size())), url)

			if !andPost {
				return nil
			}
			post, err := c.CreatePost(cmd.Context(), url)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "posted %s (%s)\n", post.ID, post.Kind)
			return nil
		},
	}
	cmd.Flags().BoolVar(&andPost, "post", false, "also publish a post with the image URL")
	return cmd
}
