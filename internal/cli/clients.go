package cli

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"clientcore/pkg/domain"
)

type clientFlags struct {
	name  string
	email string
	phone string
	tags  []string
	stage string
	notes string
}

func (f *clientFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.name, "name", "", "client name")
	cmd.Flags().StringVar(&f.email, "email", "", "client email")
	cmd.Flags().StringVar(&f.phone, "phone", "", "client phone")
	cmd.Flags().StringArrayVar(&f.tags, "tag", nil, "tag (repeatable)")
	cmd.Flags().StringVar(&f.stage, "stage", "", "pipeline stage")
	cmd.Flags().StringVar(&f.notes, "notes", "", "free-form notes")
}

// NewAddCommand creates the add command.
func NewAddCommand(rootOpts *RootOptions) *cobra.Command {
	flags := &clientFlags{}
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a client",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := rootOpts.formatter(cmd)
			s, err := rootOpts.open(cmd.Context(), cmd)
			if err != nil {
				return err
			}
			defer s.Close()
			rec, err := s.svc.Create(cmd.Context(), domain.ClientDraft{
				Name:  flags.name,
				Email: flags.email,
				Phone: flags.phone,
				Tags:  flags.tags,
				Stage: domain.Stage(flags.stage),
				Notes: flags.notes,
			})
			if err != nil {
				return fail(f, "add client", err)
			}
			return f.Success(rec, func(w io.Writer) error {
				_, err := fmt.Fprintf(w, "added client %d (%s)\n", rec.ID, rec.Name)
				return err
			})
		},
	}
	flags.register(cmd)
	return cmd
}

// NewEditCommand creates the edit command. Only flags that are set change
// the stored client.
func NewEditCommand(rootOpts *RootOptions) *cobra.Command {
	flags := &clientFlags{}
	cmd := &cobra.Command{
		Use:   "edit <id>",
		Short: "Edit a client",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			f := rootOpts.formatter(cmd)
			s, err := rootOpts.open(cmd.Context(), cmd)
			if err != nil {
				return err
			}
			defer s.Close()
			changed := cmd.Flags().Changed
			rec, err := s.svc.Edit(cmd.Context(), id, func(r *domain.ClientRecord) {
				if changed("name") {
					r.Name = flags.name
				}
				if changed("email") {
					r.Email = flags.email
				}
				if changed("phone") {
					r.Phone = flags.phone
				}
				if changed("tag") {
					r.Tags = flags.tags
				}
				if changed("stage") {
					r.Stage = domain.Stage(flags.stage)
				}
				if changed("notes") {
					r.Notes = flags.notes
				}
			})
			if err != nil {
				return fail(f, "edit client", err)
			}
			return f.Success(rec, func(w io.Writer) error { return writeRecord(w, rec) })
		},
	}
	flags.register(cmd)
	return cmd
}

// NewMoveCommand creates the move command.
func NewMoveCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "move <id> <stage>",
		Short: "Move a client to another pipeline stage",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			f := rootOpts.formatter(cmd)
			s, err := rootOpts.open(cmd.Context(), cmd)
			if err != nil {
				return err
			}
			defer s.Close()
			rec, err := s.svc.Move(cmd.Context(), id, args[1])
			if err != nil {
				return fail(f, "move client", err)
			}
			return f.Success(rec, func(w io.Writer) error {
				_, err := fmt.Fprintf(w, "client %d is now %s\n", rec.ID, rec.Stage)
				return err
			})
		},
	}
}

// NewRemoveCommand creates the rm command.
func NewRemoveCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "rm <id>",
		Aliases: []string{"remove", "delete"},
		Short:   "Remove a client",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			f := rootOpts.formatter(cmd)
			s, err := rootOpts.open(cmd.Context(), cmd)
			if err != nil {
				return err
			}
			defer s.Close()
			if err := s.svc.Delete(cmd.Context(), id); err != nil {
				return fail(f, "remove client", err)
			}
			return f.Success(map[string]int64{"removed": id}, func(w io.Writer) error {
				_, err := fmt.Fprintf(w, "removed client %d\n", id)
				return err
			})
		},
	}
}

// NewListCommand creates the list command.
func NewListCommand(rootOpts *RootOptions) *cobra.Command {
	var stage, query string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List clients, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := rootOpts.formatter(cmd)
			var st domain.Stage
			if stage != "" {
				parsed, ok := domain.ParseStage(stage)
				if !ok {
					return NewExitError(ExitCommandError, fmt.Sprintf("unknown stage %q", stage))
				}
				st = parsed
			}
			s, err := rootOpts.open(cmd.Context(), cmd)
			if err != nil {
				return err
			}
			defer s.Close()
			records := s.svc.List(st, query)
			f.VerboseLog("%d of %d clients match", len(records), s.svc.Store().Len())
			return f.Success(records, func(w io.Writer) error { return writeTable(w, records) })
		},
	}
	cmd.Flags().StringVar(&stage, "stage", "", "only clients in this stage")
	cmd.Flags().StringVarP(&query, "query", "q", "", "case-insensitive match on name or email")
	return cmd
}

// NewShowCommand creates the show command.
func NewShowCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show one client",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			f := rootOpts.formatter(cmd)
			s, err := rootOpts.open(cmd.Context(), cmd)
			if err != nil {
				return err
			}
			defer s.Close()
			rec, err := s.svc.Get(id)
			if err != nil {
				return fail(f, "show client", err)
			}
			return f.Success(rec, func(w io.Writer) error { return writeRecord(w, rec) })
		},
	}
}

func writeTable(w io.Writer, records []domain.ClientRecord) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tEMAIL\tPHONE\tSTAGE\tTAGS\tCREATED")
	for _, r := range records {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\t%s\n", r.ID, r.Name, r.Email, r.Phone, r.Stage, strings.Join(r.Tags, ", "), r.Created)
	}
	return tw.Flush()
}

func writeRecord(w io.Writer, r domain.ClientRecord) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "id:\t%d\n", r.ID)
	fmt.Fprintf(tw, "name:\t%s\n", r.Name)
	fmt.Fprintf(tw, "email:\t%s\n", r.Email)
	fmt.Fprintf(tw, "phone:\t%s\n", r.Phone)
	fmt.Fprintf(tw, "stage:\t%s\n", r.Stage)
	fmt.Fprintf(tw, "tags:\t%s\n", strings.Join(r.Tags, ", "))
	fmt.Fprintf(tw, "created:\t%s\n", r.Created)
	if r.Notes != "" {
		fmt.Fprintf(tw, "notes:\t%s\n", r.Notes)
	}
	return tw.Flush()
}
