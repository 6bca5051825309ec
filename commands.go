package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/go-kit/log/level"
	"github.com/hashicorp/go-cleanhttp"
	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/thanos-io/objstore/providers/filesystem"

	"github.com/iwanhae/qdblocks/internal/api"
	"github.com/iwanhae/qdblocks/internal/classify"
	"github.com/iwanhae/qdblocks/internal/config"
	"github.com/iwanhae/qdblocks/internal/extract"
	"github.com/iwanhae/qdblocks/internal/layout"
	"github.com/iwanhae/qdblocks/internal/logging"
	"github.com/iwanhae/qdblocks/internal/plan"
	"github.com/iwanhae/qdblocks/internal/storage"
)

// newLayout builds the storage layer view selected by cfg.Layout.
func newLayout(fs afero.Fs, cfg *config.Config) (layout.FileSystem, error) {
	switch cfg.Layout {
	case config.LayoutLocal:
		return layout.NewLocal(fs, cfg.BlockSize, cfg.LocalHost), nil
	case config.LayoutWebHDFS:
		client := cleanhttp.DefaultPooledClient()
		client.Timeout = cfg.WebHDFSTimeout
		return layout.NewWebHDFS(cfg.WebHDFSURL, cfg.WebHDFSUser, client)
	case config.LayoutBucket:
		bkt, err := filesystem.NewBucket(cfg.BucketDir)
		if err != nil {
			return nil, errors.Wrapf(err, "open bucket directory %s", cfg.BucketDir)
		}
		return layout.NewBucket(bkt, cfg.BlockSize), nil
	}
	return nil, errors.Errorf("unknown layout %q", cfg.Layout)
}

func (a *app) recorder() (*extract.Recorder, error) {
	lay, err := newLayout(a.fs, a.cfg)
	if err != nil {
		return nil, err
	}
	paths := extract.Paths{
		RecordsDir:       a.cfg.RecordsDir(),
		ExecutionTimeLog: a.cfg.ExecutionTimeLog(),
		CPUTimeLog:       a.cfg.CPUTimeLog(),
		ExplainDir:       a.cfg.ExplainDir(),
	}
	return extract.NewRecorder(a.fs, lay, paths, logging.Component(a.logger, "extract")), nil
}

func (a *app) classifier() *classify.Classifier {
	return classify.NewClassifier(a.fs, classify.Config{
		ResultsDir:  a.cfg.ResultsDir(),
		NodeMarker:  a.cfg.NodeMarker,
		NodeLogName: a.cfg.NodeLogName,
	}, logging.Component(a.logger, "classify"))
}

func newExtractCmd(a *app) *cobra.Command {
	var planPath string
	cmd := &cobra.Command{
		Use:   "extract",
		Short: "Record the files, blocks and replicas read by a compiled query",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, err := plan.Load(a.fs, planPath)
			if err != nil {
				return err
			}
			rec, err := a.recorder()
			if err != nil {
				return err
			}

			res := rec.AfterCompile(cmd.Context(), p)
			if res.Skipped {
				fmt.Fprintf(a.out, "%s: not a select query, nothing recorded\n", p.QueryID)
				return nil
			}
			if res.Err != nil {
				level.Warn(a.logger).Log("msg", "extraction finished with errors", "query_id", p.QueryID, "err", res.Err)
			}
			if res.Path == "" {
				return errors.Errorf("record of %s was not saved", p.QueryID)
			}
			files, blocks, replicas := res.Record.Counts()
			fmt.Fprintf(a.out, "%s: %d tables, %s files, %s blocks, %s replicas -> %s\n",
				p.QueryID, len(res.Record.Tables),
				humanize.Comma(int64(files)), humanize.Comma(int64(blocks)), humanize.Comma(int64(replicas)),
				res.Path)
			return nil
		},
	}
	cmd.Flags().StringVar(&planPath, "plan", "", "Plan file written by the query engine hook (YAML or JSON)")
	_ = cmd.MarkFlagRequired("plan")
	return cmd
}

func newExplainCmd(a *app) *cobra.Command {
	var planPath string
	cmd := &cobra.Command{
		Use:   "explain",
		Short: "Append the explain output of a compiled query to its explain log",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, err := plan.Load(a.fs, planPath)
			if err != nil {
				return err
			}
			if p.Explain == "" {
				return errors.Errorf("plan %s carries no explain output", planPath)
			}
			rec, err := a.recorder()
			if err != nil {
				return err
			}
			if err := rec.RecordExplain(p.QueryID, p.Explain); err != nil {
				return err
			}
			fmt.Fprintf(a.out, "%s: explain output recorded in %s\n", p.QueryID, a.cfg.ExplainDir())
			return nil
		},
	}
	cmd.Flags().StringVar(&planPath, "plan", "", "Plan file written by the query engine hook (YAML or JSON)")
	_ = cmd.MarkFlagRequired("plan")
	return cmd
}

func newClassifyCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "classify",
		Short: "Move the finished run into its query folder under results/data",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out, err := a.classifier().Classify(cmd.Context())
			if out == nil {
				return err
			}
			if err != nil {
				level.Warn(a.logger).Log("msg", "classification finished with errors", "err", err)
			}
			if out.Skipped {
				fmt.Fprintln(a.out, "no run to classify")
				return nil
			}
			verb := "created"
			if out.Appended {
				verb = "appended to"
			}
			fmt.Fprintf(a.out, "%s %s: %s (%d node logs)\n", verb, out.Folder, out.Run, len(out.NodeLogs))
			return nil
		},
	}
}

func newCleanCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "clean",
		Short: "Delete the per-node result folders left by the previous run",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			removed, err := a.classifier().Clean(cmd.Context())
			if err != nil {
				level.Warn(a.logger).Log("msg", "some paths could not be removed", "err", err)
			}
			fmt.Fprintf(a.out, "removed %s paths\n", humanize.Comma(int64(removed)))
			return nil
		},
	}
}

func newIndexCmd(a *app) *cobra.Command {
	var exportPath string
	cmd := &cobra.Command{
		Use:   "index",
		Short: "Rebuild the analysis index from the classified runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			ix, err := storage.Open(ctx, a.cfg.IndexFile(), logging.Component(a.logger, "storage"))
			if err != nil {
				return err
			}
			defer ix.Close()

			n, err := ix.Rebuild(ctx, a.fs, a.cfg.DataDir())
			if err != nil {
				level.Warn(a.logger).Log("msg", "index rebuilt with errors", "err", err)
			}
			fmt.Fprintf(a.out, "indexed %s replicas into %s\n", humanize.Comma(int64(n)), a.cfg.IndexFile())

			if exportPath == "" {
				return nil
			}
			if err := ix.Export(ctx, exportPath); err != nil {
				return err
			}
			info, err := os.Stat(exportPath)
			if err != nil {
				return errors.Wrapf(err, "stat %s", exportPath)
			}
			fmt.Fprintf(a.out, "exported %s to %s\n", humanize.Bytes(uint64(info.Size())), exportPath)
			return nil
		},
	}
	cmd.Flags().StringVar(&exportPath, "export", "", "Also export the index to this parquet file")
	return cmd
}

func newServeCmd(a *app) *cobra.Command {
	var refresh time.Duration
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the analysis index over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			ix, err := storage.Open(ctx, a.cfg.IndexFile(), logging.Component(a.logger, "storage"))
			if err != nil {
				return err
			}
			defer ix.Close()
			if _, err := ix.Rebuild(ctx, a.fs, a.cfg.DataDir()); err != nil {
				level.Warn(a.logger).Log("msg", "initial index rebuild incomplete", "err", err)
			}
			if refresh > 0 {
				go ix.RefreshLoop(ctx, a.fs, a.cfg.DataDir(), refresh)
			}

			srv := api.New(ix, a.cfg.ListenPort, logging.Component(a.logger, "api"))
			errCh := make(chan error, 1)
			go func() { errCh <- srv.Start() }()

			select {
			case err := <-errCh:
				if errors.Is(err, http.ErrServerClosed) {
					return nil
				}
				return err
			case <-ctx.Done():
				level.Info(a.logger).Log("msg", "received shutdown signal, shutting down gracefully")
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	}
	cmd.Flags().DurationVar(&refresh, "refresh", time.Minute, "Rebuild the index at this interval, 0 to disable")
	return cmd
}
