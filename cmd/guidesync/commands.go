package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/maxstewm/asian-guide-web/internal/api"
	"github.com/maxstewm/asian-guide-web/internal/country"
	"github.com/maxstewm/asian-guide-web/internal/domain"
	"github.com/maxstewm/asian-guide-web/internal/scheduler"
	"github.com/maxstewm/asian-guide-web/internal/service"
	"github.com/maxstewm/asian-guide-web/internal/slug"
)

var importCmd = &cobra.Command{
	Use:   "import [dir]",
	Short: "Import article folders into the database",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runImport,
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export published articles as Markdown folders",
	Args:  cobra.NoArgs,
	RunE:  runExport,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the article API",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the last recorded import and export runs",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

func init() {
	exportCmd.Flags().Bool("force", false, "download images that already exist locally")
	exportCmd.Flags().String("out", "", "output directory (default from config)")
	exportCmd.Flags().Duration("every", 0, "repeat the export at this interval (default from config, 0 runs once)")
}

func runImport(cmd *cobra.Command, args []string) error {
	a, err := bootstrap()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signalContext(cmd.Context())
	defer stop()

	root := a.cfg.Import.RootDir
	if len(args) == 1 {
		root = args[0]
	}

	pool, err := service.ReadAuthorPool(a.cfg.Import.AuthorsFile)
	if err != nil {
		return err
	}
	catalog, err := service.LoadCatalog(ctx, a.countries, a.authors, pool)
	if err != nil {
		return err
	}
	a.logger.Info("catalog loaded", "authors", len(catalog.Authors))

	importer := service.NewImportService(
		a.articles,
		a.images,
		a.blobs,
		a.txManager,
		a.runs,
		a.janitor,
		a.publisher,
		slug.New(),
		a.logger,
		a.cfg.Import,
	)

	stats, err := importer.Run(ctx, catalog, root)
	if stats != nil {
		fmt.Fprintf(cmd.OutOrStdout(),
			"import finished: processed=%d imported=%d skipped=%d errors=%d images=%d duration=%s\n",
			stats.Processed, stats.Imported, stats.Skipped, stats.Errors, stats.Images, stats.Duration.Round(time.Millisecond),
		)
	}
	return err
}

func runExport(cmd *cobra.Command, _ []string) error {
	force, _ := cmd.Flags().GetBool("force")
	out, _ := cmd.Flags().GetString("out")
	every, _ := cmd.Flags().GetDuration("every")

	a, err := bootstrap()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signalContext(cmd.Context())
	defer stop()

	if out == "" {
		out = a.cfg.Export.OutputDir
	}

	exporter := service.NewExportService(a.articles, a.images, a.blobs, a.runs, a.logger, a.cfg.Export)
	export := func(ctx context.Context) error {
		stats, err := exporter.Run(ctx, out, force)
		if stats != nil {
			fmt.Fprintf(cmd.OutOrStdout(),
				"export finished: found=%d exported=%d with_errors=%d skipped=%d errors=%d downloaded=%d reused=%d duration=%s\n",
				stats.Found, stats.Exported, stats.ExportedWithErrors, stats.Skipped, stats.Errors,
				stats.Downloaded, stats.Reused, stats.Duration.Round(time.Millisecond),
			)
		}
		return err
	}

	if cmd.Flags().Changed("every") {
		a.cfg.Export.Interval = every
		a.cfg.Export.RunTimeout = every
	}
	if a.cfg.Export.Interval <= 0 {
		return export(ctx)
	}

	sched := scheduler.NewScheduler("export", export, a.cfg.Export.Interval, a.cfg.Export.RunTimeout, a.logger)
	if err := sched.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func runServe(cmd *cobra.Command, _ []string) error {
	a, err := bootstrap()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signalContext(cmd.Context())
	defer stop()

	resolver, err := country.Load(ctx, a.countries)
	if err != nil {
		return err
	}

	articles := service.NewArticleManager(
		a.articles,
		a.images,
		a.txManager,
		resolver,
		slug.New(),
		a.janitor,
		a.publisher,
		a.logger,
		a.cfg.API.MaxContentBytes,
	)
	images := service.NewImageManager(
		a.articles,
		a.images,
		a.blobs,
		a.txManager,
		a.janitor,
		a.logger,
		a.cfg.API.MaxUploadBytes,
	)

	reader := service.NewArticleReader(a.articles, a.images, a.countries)

	handler := api.NewHandler(articles, images, reader, a.cfg.API.MaxUploadBytes, a.logger)
	auth := api.NewAuthenticator(a.cfg.API.JWTSecret, a.cfg.API.JWTIssuer, a.logger)
	e := api.NewRouter(handler, auth, a.logger)

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("starting api server", "addr", a.cfg.API.Addr)
		if err := e.Start(a.cfg.API.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("api server: %w", err)
		}
		return nil
	case <-ctx.Done():
		a.logger.Info("shutting down api server")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.API.ShutdownTimeout)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown api server: %w", err)
	}
	return nil
}

func runStatus(cmd *cobra.Command, _ []string) error {
	a, err := bootstrap()
	if err != nil {
		return err
	}
	defer a.Close()

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "KIND\tSTARTED\tDURATION\tPROCESSED\tSUCCEEDED\tSKIPPED\tERRORS")
	for _, kind := range []domain.RunKind{domain.RunImport, domain.RunExport} {
		run, err := a.runs.Latest(cmd.Context(), kind)
		if errors.Is(err, domain.ErrNotFound) {
			fmt.Fprintf(w, "%s\tnever\t-\t-\t-\t-\t-\n", kind)
			continue
		}
		if err != nil {
			return fmt.Errorf("latest %s run: %w", kind, err)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%d\t%d\n",
			run.Kind,
			run.StartedAt.Format(time.RFC3339),
			run.FinishedAt.Sub(run.StartedAt).Round(time.Millisecond),
			run.Processed, run.Succeeded, run.Skipped, run.Errors,
		)
	}
	return w.Flush()
}
