package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/felo/eml2doc/internal/attachments"
	"github.com/felo/eml2doc/internal/config"
	"github.com/felo/eml2doc/internal/db"
	"github.com/felo/eml2doc/internal/extract"
	"github.com/felo/eml2doc/internal/pipeline"
	"github.com/felo/eml2doc/internal/redact"
	"github.com/felo/eml2doc/internal/scanner"
)

func convertFlags() map[string]string {
	return map[string]string{
		"input_dir":        "input-dir",
		"output_format":    "output-format",
		"output_dir":       "output-dir",
		"attachments_dir":  "attachments-dir",
		"collision":        "collision",
		"workers":          "workers",
		"keep_going":       "keep-going",
		"combined":         "combined",
		"combined_name":    "combined-name",
		"include_mbox":     "include-mbox",
		"skip_unchanged":   "skip-unchanged",
		"catalog.path":     "db",
		"catalog.disabled": "no-catalog",
	}
}

func newConvertCommand() *cobra.Command {
	d := config.Default()
	cmd := &cobra.Command{
		Use:   "eml2doc",
		Short: "Convert .eml messages into HTML, PDF, Markdown, text or JSON documents",
		Long: "eml2doc reads the .eml files in a directory, strips confidentiality boilerplate,\n" +
			"saves attachments and writes one document per message, or one combined document.",
		SilenceUsage: true,
		Args:         cobra.NoArgs,
		RunE:         runConvert,
	}

	f := cmd.Flags()
	f.String("input-dir", "", "Directory containing .eml files (required)")
	f.String("output-format", "", formatUsage()+" (required)")
	f.String("output-dir", d.OutputDir, "Directory for converted documents")
	f.String("attachments-dir", "", "Directory for attachments (default <output-dir>/attachments)")
	f.String("collision", d.Collision, "Attachment name collisions: overwrite or rename")
	f.Int("workers", d.Workers, "Number of messages converted in parallel")
	f.Bool("keep-going", false, "Convert every message and report all failures at the end")
	f.Bool("combined", false, "Write one document containing every message")
	f.String("combined-name", d.CombinedName, "Base name of the combined document")
	f.Bool("include-mbox", false, "Also convert each message of *.mbox files")
	f.Bool("skip-unchanged", false, "Skip messages whose source and output are unchanged since the last run")
	f.String("db", "", "Catalog database path (default <output-dir>/catalog.db)")
	f.Bool("no-catalog", false, "Do not record conversions in the catalog")

	return cmd
}

func runConvert(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd, convertFlags())
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	log, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer log.Sync()

	format, err := cfg.Format()
	if err != nil {
		return err
	}
	policy, err := attachments.ParseCollisionPolicy(cfg.Collision)
	if err != nil {
		return err
	}
	redactor, err := redact.WithExtra(cfg.Redaction.ExtraPatterns)
	if err != nil {
		return err
	}

	var catalog *db.DB
	if path := cfg.CatalogPath(); path != "" {
		if catalog, err = db.Open(path); err != nil {
			return err
		}
		defer catalog.Close()
	} else if cfg.SkipUnchanged {
		log.Warnw("skip-unchanged has no effect without the catalog")
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	runner := pipeline.New(
		scanner.NewScanner(cfg.InputDir).WithMbox(cfg.IncludeMbox),
		extract.New(redactor, attachments.NewStore(cfg.AttachmentsPath(), policy)),
		catalog,
		log,
		pipeline.Options{
			Format:        format,
			OutputDir:     cfg.OutputDir,
			Combined:      cfg.Combined,
			CombinedName:  cfg.CombinedName,
			Workers:       cfg.Workers,
			KeepGoing:     cfg.KeepGoing,
			SkipUnchanged: cfg.SkipUnchanged,
		},
	)

	res, runErr := runner.Run(ctx)
	if res != nil {
		out := cmd.OutOrStdout()
		for _, p := range res.Outputs {
			fmt.Fprintln(out, p)
		}
		fmt.Fprintf(out, "%d found, %d converted, %d skipped, %d failed\n",
			res.TotalFound, res.Converted, res.Skipped, res.Failed)
	}
	return runErr
}
