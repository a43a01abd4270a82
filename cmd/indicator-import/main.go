// indicator-import loads an indicator hierarchy template, prints the tree
// with derived codes, and optionally stores it as a draft.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/pflag"

	"github.com/sinag-platform/vantage-backend/internal/data/db"
	repos "github.com/sinag-platform/vantage-backend/internal/data/repos/indicators"
	"github.com/sinag-platform/vantage-backend/internal/indicatortree/template"
	"github.com/sinag-platform/vantage-backend/internal/platform/logger"
	"github.com/sinag-platform/vantage-backend/internal/services"
)

func main() {
	if err := run(os.Args[1:], os.Stdin, os.Stdout); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

type options struct {
	file           string
	builtin        string
	listBuiltins   bool
	governanceArea int
	title          string
	format         string
	persist        bool
	submit         bool
	verbose        bool
	db             db.Options
}

func parseFlags(args []string, stderr io.Writer) (options, error) {
	var opts options
	fs := pflag.NewFlagSet("indicator-import", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVarP(&opts.file, "file", "f", "", "YAML template path (- for stdin)")
	fs.StringVar(&opts.builtin, "builtin", "", "name of a template shipped with the binary")
	fs.BoolVar(&opts.listBuiltins, "list-builtins", false, "list shipped templates and exit")
	fs.IntVar(&opts.governanceArea, "governance-area", 0, "override the template's governance_area_id")
	fs.StringVar(&opts.title, "title", "", "draft title when persisting")
	fs.StringVar(&opts.format, "format", "text", "output format: text or json")
	fs.BoolVar(&opts.persist, "persist", false, "store the tree as a new draft")
	fs.BoolVar(&opts.submit, "submit", false, "submit the persisted draft (implies --persist)")
	fs.BoolVarP(&opts.verbose, "verbose", "v", false, "log to stderr")

	fs.StringVar(&opts.db.Driver, "db-driver", "sqlite", "postgres or sqlite")
	fs.StringVar(&opts.db.SQLitePath, "sqlite-path", "vantage.db", "sqlite database file")
	fs.StringVar(&opts.db.PostgresHost, "postgres-host", "localhost", "postgres host")
	fs.StringVar(&opts.db.PostgresPort, "postgres-port", "5432", "postgres port")
	fs.StringVar(&opts.db.PostgresUser, "postgres-user", "postgres", "postgres user")
	fs.StringVar(&opts.db.PostgresPassword, "postgres-password", os.Getenv("POSTGRES_PASSWORD"), "postgres password")
	fs.StringVar(&opts.db.PostgresName, "postgres-name", "vantage", "postgres database")

	if err := fs.Parse(args); err != nil {
		return opts, err
	}
	if rest := fs.Args(); len(rest) > 0 {
		return opts, fmt.Errorf("unexpected argument: %s", rest[0])
	}
	if opts.submit {
		opts.persist = true
	}
	switch opts.format {
	case "text", "json":
	default:
		return opts, fmt.Errorf("unknown --format %q", opts.format)
	}
	if !opts.listBuiltins && (opts.file == "") == (opts.builtin == "") {
		return opts, errors.New("exactly one of --file or --builtin is required")
	}
	return opts, nil
}

func run(args []string, stdin io.Reader, stdout io.Writer) error {
	opts, err := parseFlags(args, os.Stderr)
	if err != nil {
		return err
	}
	if opts.listBuiltins {
		for _, name := range template.BuiltinNames() {
			fmt.Fprintln(stdout, name)
		}
		return nil
	}

	tpl, err := loadTemplate(opts, stdin)
	if err != nil {
		return err
	}
	if opts.governanceArea > 0 {
		tpl.GovernanceAreaID = opts.governanceArea
	}
	if tpl.GovernanceAreaID <= 0 {
		return errors.New("template has no governance_area_id; pass --governance-area")
	}

	if !opts.persist {
		tree, err := tpl.Build()
		if err != nil {
			return err
		}
		return printTree(stdout, opts.format, tree.GetTreeView())
	}

	log := logger.Nop()
	if opts.verbose {
		if log, err = logger.New("development"); err != nil {
			return err
		}
		defer log.Sync()
	}
	return persist(context.Background(), log, opts, tpl, stdout)
}

func loadTemplate(opts options, stdin io.Reader) (*template.Template, error) {
	if opts.builtin != "" {
		return template.Builtin(opts.builtin)
	}
	var (
		data []byte
		err  error
	)
	if opts.file == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(opts.file)
	}
	if err != nil {
		return nil, fmt.Errorf("read template: %w", err)
	}
	return template.Parse(data)
}

func persist(ctx context.Context, log *logger.Logger, opts options, tpl *template.Template, stdout io.Writer) error {
	opts.db.Driver = strings.ToLower(opts.db.Driver)
	gdb, err := db.Open(log, opts.db)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	if sqlDB, err := gdb.DB(); err == nil {
		defer sqlDB.Close()
	}
	if err := db.AutoMigrateAll(gdb); err != nil {
		return fmt.Errorf("automigrate: %w", err)
	}

	drafts := services.NewIndicatorDraftService(gdb, log,
		repos.NewDraftRepo(gdb, log),
		repos.NewIndicatorRepo(gdb, log),
		nil, nil,
	)
	view, err := drafts.ImportTemplate(ctx, tpl, opts.title)
	if err != nil {
		return err
	}
	defer drafts.CloseDraft(ctx, view.DraftID, false)

	if !opts.submit {
		return printDraft(stdout, opts.format, view)
	}
	res, err := drafts.SubmitDraft(ctx, view.DraftID)
	if err != nil {
		return err
	}
	if opts.format == "json" {
		return writeJSON(stdout, res)
	}
	fmt.Fprintf(stdout, "submitted draft %s (version %d)\n", res.DraftID, res.Version)
	for _, ind := range res.Indicators {
		fmt.Fprintf(stdout, "%-12s id=%d\n", ind.Code, ind.ID)
	}
	return nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
