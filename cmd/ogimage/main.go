package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"gitlab.com/sympolymathesy/ogimage"
	"gitlab.com/sympolymathesy/ogimage/cache"
	"gitlab.com/sympolymathesy/ogimage/cachekey"
	"gitlab.com/sympolymathesy/ogimage/config"
	"gitlab.com/sympolymathesy/ogimage/http"
	"gitlab.com/sympolymathesy/ogimage/render"
	"gitlab.com/sympolymathesy/ogimage/store"
)

func writeImage(out string, data []byte) error {
	return errors.Wrapf(os.WriteFile(out, data, 0o644), "could not write to '%s'", out)
}

func cmdRender() *cobra.Command {
	var siteTitle, author string

	cmd := &cobra.Command{
		Use:   "render <page-title> <out>",
		Short: "Render the image for a page title to a file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := render.NewRenderer(siteTitle, author).Render(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return writeImage(args[1], data)
		},
	}

	cmd.Flags().StringVar(&siteTitle, "site-title", os.Getenv(config.EnvSiteTitle), "site title drawn under the page title")
	cmd.Flags().StringVar(&author, "author", os.Getenv(config.EnvAuthor), "author name drawn in the byline")

	return cmd
}

func cmdFetch(logger func() *slog.Logger) *cobra.Command {
	var server string

	cmd := &cobra.Command{
		Use:   "fetch <page-title> <out>",
		Short: "Get or create the stored image for a page title and write it to a file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			var svc ogimage.ImageService
			if server != "" {
				svc = http.NewClient(server)
			} else {
				cfg, err := config.Load()
				if err != nil {
					return errors.Wrap(err, "failed to load configuration")
				}
				objectStore, closer, err := store.Open(ctx, cfg, logger())
				if err != nil {
					return err
				}
				defer closer.Close()

				svc = cache.NewImageService(
					objectStore,
					render.NewRenderer(cfg.SiteTitle, cfg.Author),
					cachekey.NewDeriver(ogimage.BuildID()),
					logger(),
				)
			}

			img, err := svc.GetOrCreate(ctx, args[0])
			if err != nil {
				return err
			}
			if err := writeImage(args[1], img.Data); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s hit=%t bytes=%d\n", img.Key, img.Hit, len(img.Data))
			return nil
		},
	}

	cmd.Flags().StringVar(&server, "server", "", "fetch through a running ogimaged at this URL instead of the store")

	return cmd
}

func newRootCmd() *cobra.Command {
	var verbose bool
	logger := func() *slog.Logger {
		if !verbose {
			return slog.New(slog.NewTextHandler(io.Discard, nil))
		}
		return config.NewLogger(config.LogConfig{Level: "debug", Format: "text"}, os.Stderr)
	}

	rootCmd := &cobra.Command{
		Use:           "ogimage",
		Short:         "Render social preview images",
		Version:       ogimage.BuildID(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log progress to stderr")

	rootCmd.AddCommand(cmdRender())
	rootCmd.AddCommand(cmdFetch(logger))
	return rootCmd
}

func main() {
	// Optionally load environment variables from a .env file.
	_ = godotenv.Load()

	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
