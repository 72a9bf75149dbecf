package cli

import (
	"fmt"
	"io"
	"os"
	"path"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"clientcore/internal/blob"
	"clientcore/internal/core"
)

// NewExportsCommand creates the exports command group for CSV exports kept
// in the export store.
func NewExportsCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "exports",
		Short: "Manage stored CSV exports",
		Long: `Manage CSV exports written with "export --to-blob". Exports are named by
file, e.g. clients-20240501T120000.000Z.csv.`,
	}
	cmd.AddCommand(newExportsListCommand(rootOpts))
	cmd.AddCommand(newExportsGetCommand(rootOpts))
	cmd.AddCommand(newExportsLinkCommand(rootOpts))
	cmd.AddCommand(newExportsRemoveCommand(rootOpts))
	return cmd
}

func newExportsListCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored exports, oldest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := rootOpts.formatter(cmd)
			s, err := rootOpts.open(cmd.Context(), cmd)
			if err != nil {
				return err
			}
			defer s.Close()
			infos, err := s.svc.Exports(cmd.Context())
			if err != nil {
				return fail(f, "list exports", err)
			}
			if infos == nil {
				infos = []blob.Info{}
			}
			return f.Success(infos, func(w io.Writer) error { return writeExportTable(w, infos) })
		},
	}
}

func writeExportTable(w io.Writer, infos []blob.Info) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tSIZE\tRECORDS\tSTORED")
	for _, info := range infos {
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\n", path.Base(info.Key), info.Size, info.Metadata["records"], info.LastModified.UTC().Format(time.RFC3339))
	}
	return tw.Flush()
}

func newExportsGetCommand(rootOpts *RootOptions) *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "get <name>",
		Short: "Write a stored export to stdout or --out",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f := rootOpts.formatter(cmd)
			s, err := rootOpts.open(cmd.Context(), cmd)
			if err != nil {
				return err
			}
			defer s.Close()
			info, rc, err := s.svc.OpenExport(cmd.Context(), args[0])
			if err != nil {
				return fail(f, "read export", err)
			}
			defer rc.Close()
			if out == "" {
				_, err := io.Copy(cmd.OutOrStdout(), rc)
				return err
			}
			file, err := os.Create(out)
			if err != nil {
				return WrapExitError(ExitCommandError, "create output file", err)
			}
			n, err := io.Copy(file, rc)
			if cerr := file.Close(); err == nil {
				err = cerr
			}
			if err != nil {
				return WrapExitError(ExitFailure, "write output file", err)
			}
			return f.Success(map[string]any{"key": info.Key, "path": out, "bytes": n}, func(w io.Writer) error {
				_, err := fmt.Fprintf(w, "wrote %s to %s (%d bytes)\n", path.Base(info.Key), out, n)
				return err
			})
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "write the export to this file")
	return cmd
}

func newExportsLinkCommand(rootOpts *RootOptions) *cobra.Command {
	var expiry time.Duration
	cmd := &cobra.Command{
		Use:   "link <name>",
		Short: "Print a time-limited download URL for a stored export",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if expiry <= 0 {
				return NewExitError(ExitCommandError, "--expiry must be positive")
			}
			f := rootOpts.formatter(cmd)
			s, err := rootOpts.open(cmd.Context(), cmd)
			if err != nil {
				return err
			}
			defer s.Close()
			u, err := s.svc.ExportLink(cmd.Context(), args[0], expiry)
			if err != nil {
				return fail(f, "link export", err)
			}
			return f.Success(map[string]any{"url": u, "expires_in": expiry.String()}, func(w io.Writer) error {
				_, err := fmt.Fprintln(w, u)
				return err
			})
		},
	}
	cmd.Flags().DurationVar(&expiry, "expiry", core.DefaultExportLinkExpiry, "how long the link stays valid")
	return cmd
}

func newExportsRemoveCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "rm <name>",
		Short: "Delete a stored export",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f := rootOpts.formatter(cmd)
			s, err := rootOpts.open(cmd.Context(), cmd)
			if err != nil {
				return err
			}
			defer s.Close()
			if err := s.svc.DeleteExport(cmd.Context(), args[0]); err != nil {
				return fail(f, "delete export", err)
			}
			return f.Success(map[string]any{"deleted": args[0]}, func(w io.Writer) error {
				_, err := fmt.Fprintf(w, "deleted %s\n", args[0])
				return err
			})
		},
	}
}
