package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	sweepv1 "github.com/kination/sweeper/api/v1"
	"github.com/kination/sweeper/internal/artifact"
	"github.com/kination/sweeper/internal/compiler"
	"github.com/kination/sweeper/internal/logging"
	"github.com/kination/sweeper/internal/render"
	"github.com/kination/sweeper/internal/store"
	"github.com/kination/sweeper/internal/sweep"
)

var (
	configPath string
	outputDir  string
	planFile   string
)

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Expand sweep files into job plan manifests",
	Long: `Expand sweep files into YAML job plans without running anything.
With --file the plan of one sweep is printed. Otherwise the compiler will:
  1. Scan the source directories listed in the config file
  2. Load every .yaml and .hcl sweep file
  3. Expand each into its job list
  4. Save <name>.plan.yaml to the output directory`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if planFile != "" {
			_, src, err := compiler.LoadSource(planFile)
			if err != nil {
				return err
			}
			out, err := yaml.Marshal(compiler.BuildPlan(src))
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		}

		fmt.Println("🚀 Starting Sweeper plan compiler...")
		fmt.Printf("   - Config: %s\n", configPath)
		fmt.Printf("   - Output: %s\n", outputDir)

		if err := compiler.CompilePlans(configPath, outputDir); err != nil {
			return fmt.Errorf("compilation failed: %w", err)
		}

		fmt.Println("✅ All plans compiled successfully!")
		return nil
	},
}

var variantsFile string

var variantsCmd = &cobra.Command{
	Use:   "variants",
	Short: "List the job list of a sweep with the command of each job",
	RunE: func(cmd *cobra.Command, args []string) error {
		sf, src, err := compiler.LoadSource(variantsFile)
		if err != nil {
			return err
		}
		r := render.New(src, render.FromSpec(sf.Command), render.NoPrefix)
		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "%s: %d variants\n", src.Name(), r.Len())
		for i := 0; i < r.Len(); i++ {
			c, err := r.Render(i, sweepv1.Worker{})
			if err != nil {
				return err
			}
			v, _ := r.Variant(i)
			fmt.Fprintf(w, "%4d  %-8s  %s\n      %s\n", i, v.Suite(), c.Label, c.String())
		}
		return nil
	},
}

var publishOpts struct {
	sweepFile string
	runID     string
	dir       string
	endpoint  string
	bucket    string
	prefix    string
	region    string
	ssl       bool
	parallel  int
}

var publishCmd = &cobra.Command{
	Use:   "publish",
	Short: "Upload the output files of a run to S3-compatible storage",
	Long: `Publish uploads <dir>/<label>.data for every variant of the sweep, plus
the run log and plot, under <prefix>/<run-id>/ in the bucket.

Credentials are read from S3_ACCESS_KEY and S3_SECRET_KEY (a .env file works).`,
	RunE: func(cmd *cobra.Command, args []string) error {
		_, src, err := compiler.LoadSource(publishOpts.sweepFile)
		if err != nil {
			return err
		}
		s3, err := artifact.NewS3Store(artifact.S3Config{
			Endpoint:  firstNonEmpty(publishOpts.endpoint, os.Getenv("S3_ENDPOINT")),
			Region:    publishOpts.region,
			AccessKey: os.Getenv("S3_ACCESS_KEY"),
			SecretKey: os.Getenv("S3_SECRET_KEY"),
			Bucket:    firstNonEmpty(publishOpts.bucket, os.Getenv("S3_BUCKET")),
			Prefix:    publishOpts.prefix,
			UseSSL:    publishOpts.ssl,
		})
		if err != nil {
			return err
		}

		logs, err := logging.Open(logging.Config{})
		if err != nil {
			return err
		}
		defer logs.Close()

		naming := sweep.Naming(src.Name())
		p := artifact.NewPublisher(s3, logs.Logger(), publishOpts.parallel)
		sum, err := p.Publish(cmd.Context(), publishOpts.runID, publishOpts.dir, src.Variants(),
			naming.LogPath(), naming.PNGFilename())
		if err != nil {
			return err
		}

		fmt.Printf("✅ Published %s\n", sum)
		if len(sum.Missing) > 0 {
			fmt.Printf("   - Missing: %s\n", strings.Join(sum.Missing, ", "))
		}
		return nil
	},
}

var reportOpts struct {
	dbPath string
	suite  string
	limit  int
}

var reportCmd = &cobra.Command{
	Use:   "report [run-id]",
	Short: "Show run history, or the jobs of one run",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := os.Stat(reportOpts.dbPath); err != nil {
			return fmt.Errorf("no run history at %s: %w", reportOpts.dbPath, err)
		}
		history, err := store.New(store.StoreConfig{Type: store.StoreTypeSQLite, ConnectionString: reportOpts.dbPath})
		if err != nil {
			return err
		}
		defer history.Close()

		if len(args) == 1 {
			return printRun(cmd.Context(), cmd, history, args[0])
		}
		return printRuns(cmd.Context(), cmd, history)
	},
}

func printRuns(ctx context.Context, cmd *cobra.Command, history store.Store) error {
	runs, err := history.ListRuns(ctx, store.ListOptions{Suite: reportOpts.suite, Limit: reportOpts.limit})
	if err != nil {
		return err
	}
	w := cmd.OutOrStdout()
	for _, r := range runs {
		fmt.Fprintf(w, "%s  %-16s  %-15s  %d/%d completed  %d lost  %s\n",
			r.RunID, r.Suite, r.State, r.Completed, r.Jobs, r.WorkersLost, humanize.Time(r.StartTime))
	}
	return nil
}

func printRun(ctx context.Context, cmd *cobra.Command, history store.Store, runID string) error {
	run, err := history.GetRun(ctx, runID)
	if err != nil {
		return err
	}
	jobs, err := history.ListJobStatuses(ctx, runID)
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "%s  %s  %s  started %s\n", run.RunID, run.Suite, run.State, humanize.Time(run.StartTime))
	for _, j := range jobs {
		line := fmt.Sprintf("%4d  %-10s  %-12s  %s", j.Index, j.State, j.Worker, j.Label)
		if j.State == sweepv1.StateFailed {
			line += "  (" + j.Message + ")"
		}
		fmt.Fprintln(w, line)
	}
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func init() {
	planCmd.Flags().StringVarP(&configPath, "config", "c", "sources.yaml", "Path to the sources file")
	planCmd.Flags().StringVarP(&outputDir, "out", "o", "dist", "Directory to save generated plans")
	planCmd.Flags().StringVarP(&planFile, "file", "f", "", "Print the plan of a single sweep file")

	variantsCmd.Flags().StringVarP(&variantsFile, "file", "f", "", "Path to the sweep file")
	_ = variantsCmd.MarkFlagRequired("file")

	pf := publishCmd.Flags()
	pf.StringVarP(&publishOpts.sweepFile, "file", "f", "", "Path to the sweep file")
	pf.StringVar(&publishOpts.runID, "run-id", "", "Run the artifacts belong to")
	pf.StringVar(&publishOpts.dir, "dir", filepath.Join(sweep.ResultsDir, "data"), "Directory holding the pulled output files")
	pf.StringVar(&publishOpts.endpoint, "endpoint", "", "S3 endpoint (default $S3_ENDPOINT)")
	pf.StringVar(&publishOpts.bucket, "bucket", "", "Bucket (default $S3_BUCKET)")
	pf.StringVar(&publishOpts.prefix, "prefix", "sweeps", "Key prefix")
	pf.StringVar(&publishOpts.region, "region", "", "Bucket region")
	pf.BoolVar(&publishOpts.ssl, "ssl", true, "Use TLS")
	pf.IntVar(&publishOpts.parallel, "parallel", artifact.DefaultConcurrency, "Concurrent uploads")
	_ = publishCmd.MarkFlagRequired("file")
	_ = publishCmd.MarkFlagRequired("run-id")

	reportCmd.Flags().StringVar(&reportOpts.dbPath, "db", store.DefaultStoreConfig().ConnectionString, "SQLite run history")
	reportCmd.Flags().StringVar(&reportOpts.suite, "suite", "", "Only runs of this suite")
	reportCmd.Flags().IntVar(&reportOpts.limit, "limit", 20, "Maximum runs to list")
}
