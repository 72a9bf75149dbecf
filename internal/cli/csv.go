package cli

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"clientcore/internal/csvcodec"
)

// NewExportCommand creates the export command.
func NewExportCommand(rootOpts *RootOptions) *cobra.Command {
	var out string
	var toBlob bool
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export clients as CSV",
		Long: `Export every client as CSV (name, email, phone, tags, stage, notes, created).

Writes to stdout by default, to --out when given, or to the configured export
store as exports/clients-<timestamp>.csv with --to-blob.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if out != "" && toBlob {
				return NewExitError(ExitCommandError, "--out and --to-blob are mutually exclusive")
			}
			f := rootOpts.formatter(cmd)
			s, err := rootOpts.open(cmd.Context(), cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			switch {
			case toBlob:
				info, err := s.svc.ExportToBlob(cmd.Context())
				if err != nil {
					return fail(f, "export clients", err)
				}
				return f.Success(info, func(w io.Writer) error {
					_, err := fmt.Fprintf(w, "stored %s (%d bytes)\n", info.Key, info.Size)
					return err
				})
			case out != "":
				file, err := os.Create(out)
				if err != nil {
					return WrapExitError(ExitCommandError, "create export file", err)
				}
				if err := s.svc.ExportCSV(file); err != nil {
					_ = file.Close()
					return fail(f, "export clients", err)
				}
				if err := file.Close(); err != nil {
					return WrapExitError(ExitFailure, "write export file", err)
				}
				n := s.svc.Store().Len()
				return f.Success(map[string]any{"path": out, "records": n}, func(w io.Writer) error {
					_, err := fmt.Fprintf(w, "exported %d clients to %s\n", n, out)
					return err
				})
			default:
				if err := s.svc.ExportCSV(cmd.OutOrStdout()); err != nil {
					return fail(f, "export clients", err)
				}
				_, err := fmt.Fprintln(cmd.OutOrStdout())
				return err
			}
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "write the CSV to this file")
	cmd.Flags().BoolVar(&toBlob, "to-blob", false, "store the CSV in the export blob store")
	return cmd
}

type importResult struct {
	BatchID  string      `json:"batch_id"`
	Inserted int         `json:"inserted"`
	Failed   []failedRow `json:"failed"`
}

type failedRow struct {
	Line  int    `json:"line"`
	Error string `json:"error"`
}

func newImportResult(s csvcodec.ImportSummary) importResult {
	res := importResult{BatchID: s.BatchID.String(), Inserted: len(s.Inserted), Failed: []failedRow{}}
	for _, f := range s.Failed {
		res.Failed = append(res.Failed, failedRow{Line: f.Line, Error: f.Err.Error()})
	}
	return res
}

// NewImportCommand creates the import command.
func NewImportCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file|->",
		Short: "Import clients from CSV",
		Long: `Import clients from a CSV file with a header row. Columns are matched by
name; unknown columns such as id are ignored and every row gets a fresh id.
Malformed or invalid rows are reported and skipped.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var data []byte
			var err error
			if args[0] == "-" {
				data, err = io.ReadAll(cmd.InOrStdin())
			} else {
				data, err = os.ReadFile(args[0])
			}
			if err != nil {
				return WrapExitError(ExitCommandError, "read import file", err)
			}
			f := rootOpts.formatter(cmd)
			s, err := rootOpts.open(cmd.Context(), cmd)
			if err != nil {
				return err
			}
			defer s.Close()
			summary, err := s.svc.ImportCSV(cmd.Context(), string(data))
			if err != nil {
				return fail(f, fmt.Sprintf("import stopped after %d clients", len(summary.Inserted)), err)
			}
			res := newImportResult(summary)
			if err := f.Success(res, func(w io.Writer) error {
				var b strings.Builder
				fmt.Fprintf(&b, "imported %d clients (batch %s)\n", res.Inserted, res.BatchID)
				for _, row := range res.Failed {
					fmt.Fprintf(&b, "  skipped line %d: %s\n", row.Line, row.Error)
				}
				_, err := io.WriteString(w, b.String())
				return err
			}); err != nil {
				return err
			}
			if len(res.Failed) > 0 {
				return NewExitError(ExitFailure, fmt.Sprintf("%d row(s) skipped", len(res.Failed)))
			}
			return nil
		},
	}
}
