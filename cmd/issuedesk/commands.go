package main

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/deusflow/issuedesk/internal/aggregate"
	"github.com/deusflow/issuedesk/internal/app"
	"github.com/deusflow/issuedesk/internal/config"
	"github.com/deusflow/issuedesk/internal/ingest"
	"github.com/deusflow/issuedesk/internal/logger"
	"github.com/deusflow/issuedesk/internal/monitor"
)

var errFailed = errors.New("operation finished with status error")

type runtime struct {
	configPath string
	cfg        *config.Config
	log        *zap.Logger
	registry   *prometheus.Registry
}

func NewRootCommand() *cobra.Command {
	rt := &runtime{}

	root := &cobra.Command{
		Use:           "issuedesk",
		Short:         "Regional news intake and issue classification",
		SilenceUsage:  true,
		SilenceErrors: true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// A missing .env is normal in production.
			_ = godotenv.Load()

			cfg, err := config.Load(rt.configPath)
			if err != nil {
				return errors.Wrap(err, "load config")
			}
			log, err := logger.New(cfg.Debug, cfg.LogFormat)
			if err != nil {
				return errors.Wrap(err, "init logger")
			}
			rt.cfg, rt.log = cfg, log
			rt.registry = prometheus.NewRegistry()
			rt.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if rt.log != nil {
				_ = rt.log.Sync()
			}
		},
	}
	root.PersistentFlags().StringVarP(&rt.configPath, "config", "c", config.DefaultPath, "path to the YAML config file")

	root.AddCommand(
		newFetchCommand(rt),
		newArticlesCommand(rt),
		newSummarizeCommand(rt),
		newExportCommand(rt),
		newCheckCommand(rt),
		newServeCommand(rt),
	)
	return root
}

// withApp builds the application for one command and closes it afterwards.
func (rt *runtime) withApp(fn func(ctx context.Context, a *app.App) error) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, rt.cfg, rt.registry, rt.log)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			rt.log.Warn("close failed", zap.Error(err))
		}
	}()
	return fn(ctx, a)
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newFetchCommand(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "fetch",
		Short: "Fetch, classify and store new articles",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := rt.cfg.RequireIngest(); err != nil {
				return err
			}
			return rt.withApp(func(ctx context.Context, a *app.App) error {
				sum := a.FetchAndStore(ctx)
				if err := printJSON(sum); err != nil {
					return err
				}
				if sum.Status != ingest.StatusSuccess {
					return errFailed
				}
				return nil
			})
		},
	}
}

func newArticlesCommand(rt *runtime) *cobra.Command {
	var date string
	cmd := &cobra.Command{
		Use:   "articles",
		Short: "List stored articles for a day, or the last 24 hours",
		RunE: func(cmd *cobra.Command, args []string) error {
			return rt.withApp(func(ctx context.Context, a *app.App) error {
				articles, err := a.Articles(ctx, date)
				if err != nil {
					return err
				}
				return printJSON(articles)
			})
		},
	}
	cmd.Flags().StringVarP(&date, "date", "d", "", "day to list, YYYY-MM-DD")
	return cmd
}

func newSummarizeCommand(rt *runtime) *cobra.Command {
	var date string
	cmd := &cobra.Command{
		Use:   "summarize",
		Short: "Group a day of stored articles into issue categories",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := rt.cfg.RequireOracle(); err != nil {
				return err
			}
			return rt.withApp(func(ctx context.Context, a *app.App) error {
				res := a.Summarize(ctx, date)
				if err := printJSON(res); err != nil {
					return err
				}
				if res.Status != aggregate.StatusSuccess {
					return errFailed
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&date, "date", "d", "", "day to summarize, YYYY-MM-DD")
	return cmd
}

func newExportCommand(rt *runtime) *cobra.Command {
	var dir string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write every stored article to a timestamped JSON file",
		RunE: func(cmd *cobra.Command, args []string) error {
			if dir == "" {
				dir = rt.cfg.ExportDir
			}
			return rt.withApp(func(ctx context.Context, a *app.App) error {
				path, err := a.Export(ctx, dir)
				if err != nil {
					return err
				}
				cmd.Println(path)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "", "output directory (default from config)")
	return cmd
}

func newCheckCommand(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Check corpus connectivity and show the latest articles",
		RunE: func(cmd *cobra.Command, args []string) error {
			return rt.withApp(func(ctx context.Context, a *app.App) error {
				report, err := a.Check(ctx)
				if err != nil {
					return err
				}
				return printJSON(report)
			})
		},
	}
}

func newServeCommand(rt *runtime) *cobra.Command {
	var fetch bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve /health and /metrics, optionally running one ingestion pass",
		RunE: func(cmd *cobra.Command, args []string) error {
			return rt.withApp(func(ctx context.Context, a *app.App) error {
				router := monitor.NewRouter(a.Metrics(), rt.registry)
				srv := monitor.NewServer(rt.cfg.MonitoringPort, router, rt.log)

				g, ctx := errgroup.WithContext(ctx)
				g.Go(func() error { return srv.Run(ctx) })
				if fetch {
					g.Go(func() error {
						sum := a.FetchAndStore(ctx)
						rt.log.Info("startup ingestion done", zap.String("status", sum.Status), zap.Int("stored", sum.ArticlesFetched))
						return nil
					})
				}
				return g.Wait()
			})
		},
	}
	cmd.Flags().BoolVar(&fetch, "fetch", false, "run one ingestion pass after starting")
	return cmd
}
