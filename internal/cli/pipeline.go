package cli

import (
	"io"

	"github.com/spf13/cobra"

	"clientcore/internal/pipeline"
)

// NewPipelineCommand creates the pipeline command.
func NewPipelineCommand(rootOpts *RootOptions) *cobra.Command {
	var width int
	cmd := &cobra.Command{
		Use:   "pipeline",
		Short: "Show client counts per stage",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := rootOpts.formatter(cmd)
			s, err := rootOpts.open(cmd.Context(), cmd)
			if err != nil {
				return err
			}
			defer s.Close()
			summary := s.svc.Pipeline()
			return f.Success(summary, func(w io.Writer) error {
				return pipeline.RenderBars(w, summary, width)
			})
		},
	}
	cmd.Flags().IntVar(&width, "width", 40, "bar width of the largest stage")
	return cmd
}
