package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"gocloud.dev/blob"
	_ "gocloud.dev/blob/fileblob"
	_ "gocloud.dev/blob/gcsblob"
	_ "gocloud.dev/blob/memblob"

	"github.com/getsentry/pe2pdburl/internal/errorutil"
	"github.com/getsentry/pe2pdburl/internal/logutil"
	"github.com/getsentry/pe2pdburl/internal/storageutil"
	"github.com/getsentry/pe2pdburl/internal/symbolurl"
)

var release string

var (
	// errSomeFilesFailed makes the process exit with a non-zero code once
	// every file has been reported.
	errSomeFilesFailed = errors.New("some files could not be resolved")
	errUsage           = errors.New("at least one PE file is required")
)

type command struct {
	config ServiceConfig
	stdout io.Writer

	asJSON bool
}

func newRootCommand(cfg ServiceConfig, stdout io.Writer) *cobra.Command {
	c := &command{config: cfg, stdout: stdout}
	cmd := &cobra.Command{
		Use:   "pe2pdburl <PE file>...",
		Short: "Print symbol server URLs of PE images and their PDBs",
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return errUsage
			}
			return nil
		},
		Version:       release,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.run(context.Background(), args)
		},
	}
	flags := cmd.Flags()
	flags.BoolVar(&c.asJSON, "json", false, "print debug images as JSON")
	flags.StringVar(&c.config.SymbolServerURL, "server", cfg.SymbolServerURL, "symbol server base URL")
	flags.StringVar(&c.config.ManifestBucket, "manifest-bucket", cfg.ManifestBucket, "blob bucket URL to store the debug image manifest in")
	flags.StringVar(&c.config.ManifestName, "manifest-name", cfg.ManifestName, "object name of the manifest")
	flags.IntVar(&c.config.Workers, "workers", cfg.Workers, "number of files parsed concurrently")
	return cmd
}

func (c *command) run(ctx context.Context, paths []string) error {
	workers := c.config.Workers
	if workers < 1 {
		workers = 1
	}
	b := symbolurl.NewBuilder(c.config.SymbolServerURL)
	results := resolve(b, paths, workers)

	failed := false
	for _, r := range results {
		if r.Err == nil {
			log.Debug().Str("file", r.Path).Str("pdb_url", r.URLs.PDBURL).Msg("resolved")
			continue
		}
		failed = true
		log.Error().Err(r.Err).Str("file", r.Path).Msg("can't resolve debug information")
		if !errors.Is(r.Err, errorutil.ErrFileNotFound) && !errors.Is(r.Err, errorutil.ErrNoDebugInfo) {
			sentry.WithScope(func(scope *sentry.Scope) {
				scope.SetTag("file", r.Path)
				sentry.CaptureException(r.Err)
			})
		}
	}

	var err error
	if c.asJSON {
		err = writeJSON(c.stdout, results)
	} else {
		err = writeText(c.stdout, results)
	}
	if err != nil {
		return err
	}

	if c.config.ManifestBucket != "" {
		if err := c.writeManifest(ctx, results); err != nil {
			return err
		}
	}

	if failed {
		return errSomeFilesFailed
	}
	return nil
}

func (c *command) writeManifest(ctx context.Context, results []fileResult) error {
	bucket, err := blob.OpenBucket(ctx, c.config.ManifestBucket)
	if err != nil {
		return fmt.Errorf("opening manifest bucket: %w", err)
	}
	defer bucket.Close()

	d := debugMeta(results)
	if err := storageutil.CompressedWrite(ctx, bucket, c.config.ManifestName, d); err != nil {
		return fmt.Errorf("writing manifest: %w", err)
	}
	log.Info().
		Str("bucket", c.config.ManifestBucket).
		Str("object", c.config.ManifestName).
		Int("images", len(d.Images)).
		Msg("manifest written")
	return nil
}

func main() {
	cfg, err := readConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "can't read configuration: %v\n", err)
		os.Exit(1)
	}

	logutil.ConfigureLogger(cfg.LogLevel, cfg.LogFormat)

	if cfg.SentryDSN != "" {
		err = sentry.Init(sentry.ClientOptions{
			Dsn:         cfg.SentryDSN,
			Environment: cfg.Environment,
			Release:     release,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("can't initialize sentry")
		}
	}

	cmd := newRootCommand(cfg, os.Stdout)
	err = cmd.Execute()
	switch {
	case err == nil:
	case errors.Is(err, errUsage):
		fmt.Fprint(os.Stderr, cmd.UsageString())
	case errors.Is(err, errSomeFilesFailed):
	default:
		sentry.CaptureException(err)
		log.Error().Err(err).Msg("pe2pdburl failed")
	}
	sentry.Flush(5 * time.Second)
	if err != nil {
		os.Exit(1)
	}
}
