package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"ecodash/internal/console"
	"ecodash/internal/core"
	"ecodash/internal/report"
	"ecodash/internal/services"
	"ecodash/internal/source"
	"ecodash/internal/source/rest"
)

const (
	defaultAPIURL  = "http://localhost:8090"
	defaultTimeout = 30 * time.Second
)

// Remote is the part of the record API the command line uses.
type Remote interface {
	report.Lister
	source.ReferenceReader
	source.TemplateProvider
	source.Importer
}

// RemoteFactory builds a Remote for a base URL.
type RemoteFactory func(baseURL string, timeout time.Duration) Remote

func restRemote(baseURL string, timeout time.Duration) Remote {
	return rest.NewClient(baseURL, timeout)
}

// CLIApp is the ecodash-cli command tree.
type CLIApp struct {
	rootCmd   *cobra.Command
	console   *console.Console
	newRemote RemoteFactory
	now       func() time.Time

	fileConfig *FileConfig
	remote     Remote
}

// NewCLIApp creates the command tree. A nil console writes to stdout and a
// nil factory talks to the REST record API.
func NewCLIApp(versionStr string, out *console.Console, newRemote RemoteFactory) *CLIApp {
	if out == nil {
		out = console.New()
	}
	if newRemote == nil {
		newRemote = restRemote
	}
	app := &CLIApp{console: out, newRemote: newRemote, now: time.Now}

	rootCmd := &cobra.Command{
		Use:               "ecodash-cli",
		Short:             "Economic value disclosures from the command line",
		Version:           versionStr,
		SilenceUsage:      true,
		PersistentPreRunE: app.setup,
	}
	rootCmd.SetVersionTemplate(`{{printf "ecodash-cli version: %s\n" .Version}}`)
	rootCmd.SetOut(out.Writer())
	rootCmd.SetErr(out.Writer())

	rootCmd.PersistentFlags().StringP("config-file", "C", "", "Path to a TOML, YAML, or JSON configuration file")
	rootCmd.PersistentFlags().String("api-url", "", "Record API base URL (default "+defaultAPIURL+")")
	rootCmd.PersistentFlags().Duration("timeout", 0, "Timeout for each record API call (default 30s)")

	rootCmd.AddCommand(
		app.referenceCommand(),
		app.listCommand(),
		app.exportCommand(),
		app.templateCommand(),
		app.importCommand(),
	)

	app.rootCmd = rootCmd
	return app
}

// Execute runs the CLI application.
func (app *CLIApp) Execute() error {
	return app.rootCmd.Execute()
}

// ExecuteArgs runs the CLI with explicit arguments.
func (app *CLIApp) ExecuteArgs(ctx context.Context, args ...string) error {
	app.rootCmd.SetArgs(args)
	return app.rootCmd.ExecuteContext(ctx)
}

// setup merges the optional config file with flags and builds the remote.
func (app *CLIApp) setup(cmd *cobra.Command, _ []string) error {
	flags := cmd.Flags()
	path, _ := flags.GetString("config-file")

	cfg := &FileConfig{}
	if path != "" {
		loaded, err := LoadFileConfig(path)
		if err != nil {
			return err
		}
		cfg = loaded
	}

	baseURL := cfg.APIURL
	if flags.Changed("api-url") {
		baseURL, _ = flags.GetString("api-url")
	}
	if baseURL == "" {
		baseURL = defaultAPIURL
	}

	timeout, err := cfg.TimeoutOr(defaultTimeout)
	if err != nil {
		return err
	}
	if flags.Changed("timeout") {
		timeout, _ = flags.GetDuration("timeout")
	}

	app.fileConfig = cfg
	app.remote = app.newRemote(strings.TrimRight(baseURL, "/"), timeout)
	return nil
}

func sectionArg(arg string) (core.Section, error) {
	section, err := core.ParseSection(arg)
	if err != nil {
		return "", fmt.Errorf("%w (valid: %s)", err, sectionNames())
	}
	return section, nil
}

func sectionNames() string {
	names := make([]string, len(core.Sections))
	for i, s := range core.Sections {
		names[i] = string(s)
	}
	return strings.Join(names, ", ")
}

func addFilterFlags(cmd *cobra.Command) {
	cmd.Flags().String("company", "", "Only rows for this company")
	cmd.Flags().Int("year", 0, "Only rows for this year")
	cmd.Flags().StringP("query", "q", "", "Case-insensitive search over company, type and year")
}

// filter reads the filter flags, falling back to the config file.
func (app *CLIApp) filter(cmd *cobra.Command) (services.Filter, error) {
	f := services.Filter{Company: app.fileConfig.Company, Year: app.fileConfig.Year}
	if cmd.Flags().Changed("company") {
		f.Company, _ = cmd.Flags().GetString("company")
	}
	if cmd.Flags().Changed("year") {
		f.Year, _ = cmd.Flags().GetInt("year")
	}
	f.Query, _ = cmd.Flags().GetString("query")
	if f.Year != 0 {
		if err := core.ValidateYear(f.Year); err != nil {
			return services.Filter{}, err
		}
	}
	return f, nil
}

func (app *CLIApp) referenceCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "reference",
		Short: "Show companies and expenditure types",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			companies, err := app.remote.ListCompanies(ctx)
			if err != nil {
				return fmt.Errorf("list companies: %w", err)
			}
			types, err := app.remote.ListExpenditureTypes(ctx)
			if err != nil {
				return fmt.Errorf("list expenditure types: %w", err)
			}

			rows := make([][]string, 0, len(companies))
			for _, c := range companies {
				rows = append(rows, []string{c.ID, c.Name})
			}
			app.console.PrintTable([]string{"Company", "Name"}, rows)

			rows = rows[:0]
			for _, t := range types {
				rows = append(rows, []string{t.ID, t.Name})
			}
			app.console.PrintTable([]string{"Type", "Name"}, rows)
			return nil
		},
	}
}

func (app *CLIApp) listCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list <section>",
		Short: "Print a section report",
		Long:  "Print a section report. Sections: " + sectionNames() + ".",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			section, err := sectionArg(args[0])
			if err != nil {
				return err
			}
			f, err := app.filter(cmd)
			if err != nil {
				return err
			}

			status := app.console.Status("Loading " + section.Title())
			tbl, err := report.Build(cmd.Context(), app.remote, section, f)
			status.Stop()
			if err != nil {
				return err
			}

			if len(tbl.Rows) == 0 {
				app.console.LogWarning("No %s records", strings.ToLower(tbl.Title))
				return nil
			}
			rows := make([][]string, len(tbl.Rows))
			for i, r := range tbl.Rows {
				rows[i] = r.Cells
			}
			app.console.PrintTable(tbl.Header, rows)
			return nil
		},
	}
	addFilterFlags(cmd)
	return cmd
}

func (app *CLIApp) exportCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write section reports as CSV, JSON or PDF files",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			sections, formats, dir, name, err := app.exportArgs(cmd)
			if err != nil {
				return err
			}
			f, err := app.filter(cmd)
			if err != nil {
				return err
			}
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return fmt.Errorf("create output directory: %w", err)
			}

			var errs []error
			for _, section := range sections {
				tbl, err := report.Build(cmd.Context(), app.remote, section, f)
				if err != nil {
					app.console.LogError("%s: %v", section.Title(), err)
					errs = append(errs, err)
					continue
				}
				for _, format := range formats {
					path, err := app.writeReport(dir, name, tbl, format)
					if err != nil {
						app.console.LogError("%s: %v", section.Title(), err)
						errs = append(errs, err)
						continue
					}
					app.console.LogSuccess("%s report saved to %s", strings.ToUpper(string(format)), path)
				}
			}
			return errors.Join(errs...)
		},
	}
	addFilterFlags(cmd)
	cmd.Flags().StringSliceP("section", "s", nil, "Sections to export (default all)")
	cmd.Flags().StringSliceP("report-type", "y", nil, "Report types: csv, json, pdf (default csv)")
	cmd.Flags().StringP("dir", "d", "", "Directory to save the report files (default: current directory)")
	cmd.Flags().StringP("report-name", "n", "ecodash", "Base name for the report files")
	return cmd
}

func (app *CLIApp) exportArgs(cmd *cobra.Command) (sections []core.Section, formats []report.Format, dir, name string, err error) {
	names := app.fileConfig.Sections
	if cmd.Flags().Changed("section") {
		names, _ = cmd.Flags().GetStringSlice("section")
	}
	if len(names) == 0 {
		sections = core.Sections
	}
	for _, n := range names {
		s, err := sectionArg(n)
		if err != nil {
			return nil, nil, "", "", err
		}
		sections = append(sections, s)
	}

	types := app.fileConfig.Formats
	if cmd.Flags().Changed("report-type") {
		types, _ = cmd.Flags().GetStringSlice("report-type")
	}
	if len(types) == 0 {
		types = []string{string(report.FormatCSV)}
	}
	for _, t := range types {
		f, err := report.ParseFormat(t)
		if err != nil {
			return nil, nil, "", "", err
		}
		formats = append(formats, f)
	}

	dir = app.fileConfig.Dir
	if cmd.Flags().Changed("dir") {
		dir, _ = cmd.Flags().GetString("dir")
	}
	if dir == "" {
		if dir, err = os.Getwd(); err != nil {
			return nil, nil, "", "", err
		}
	}
	if dir, err = filepath.Abs(dir); err != nil {
		return nil, nil, "", "", err
	}

	name, _ = cmd.Flags().GetString("report-name")
	return sections, formats, dir, name, nil
}

func (app *CLIApp) writeReport(dir, name string, tbl report.Table, format report.Format) (string, error) {
	filename := fmt.Sprintf("%s_%s_%s.%s", name, tbl.Section, app.now().Format("20060102"), format)
	path := filepath.Join(dir, filename)

	file, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("error creating %s file: %w", format, err)
	}
	if err := report.Write(file, tbl, format); err != nil {
		_ = file.Close()
		return "", err
	}
	if err := file.Close(); err != nil {
		return "", fmt.Errorf("error closing %s file: %w", format, err)
	}
	return path, nil
}

func (app *CLIApp) templateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "template <section>",
		Short: "Download the xlsx import template of a section",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			section, err := sectionArg(args[0])
			if err != nil {
				return err
			}
			data, err := app.remote.Template(cmd.Context(), section)
			if err != nil {
				return fmt.Errorf("download template: %w", err)
			}

			path, _ := cmd.Flags().GetString("output")
			if path == "" {
				path = "template-" + string(section) + ".xlsx"
			}
			if err := os.WriteFile(path, data, 0o644); err != nil {
				return fmt.Errorf("save template: %w", err)
			}
			app.console.LogSuccess("Template saved to %s", path)
			return nil
		},
	}
	cmd.Flags().StringP("output", "o", "", "Output file (default template-<section>.xlsx)")
	return cmd
}

// ErrImportRejected is returned when the record API rejected an upload.
var ErrImportRejected = errors.New("import rejected")

func (app *CLIApp) importCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "import <section> <file.xlsx>",
		Short: "Upload a filled import template",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			section, err := sectionArg(args[0])
			if err != nil {
				return err
			}
			data, err := os.ReadFile(args[1])
			if err != nil {
				return fmt.Errorf("read import file: %w", err)
			}

			status := app.console.Status("Importing " + filepath.Base(args[1]))
			result, err := app.remote.Import(cmd.Context(), section, filepath.Base(args[1]), data)
			status.Stop()
			if err != nil {
				return fmt.Errorf("import: %w", err)
			}

			if result.Errors == 0 {
				app.console.LogSuccess("%s", result.Summary())
				return nil
			}
			app.console.LogError("%s", result.Summary())
			rows := make([][]string, len(result.ErrorDetails))
			for i, d := range result.ErrorDetails {
				rows[i] = []string{strconv.Itoa(i + 1), d}
			}
			app.console.PrintTable([]string{"#", "Error"}, rows)
			return ErrImportRejected
		},
	}
}
