package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ajitpratap0/pql/pkg/csv"
	"github.com/ajitpratap0/pql/pkg/ioutils"
	"github.com/ajitpratap0/pql/pkg/schema"
)

func (a *app) schemaCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schema <input.csv>",
		Short: "Infer the schema of a CSV file and print it as YAML",
		Long: `Infer the schema of a CSV file and print it as YAML. The output can be
edited and passed back to convert with --schema.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := csv.OptionsFromConfig(&a.cfg.CSV)
			if err != nil {
				return err
			}
			in, err := ioutils.OpenInput(args[0])
			if err != nil {
				return err
			}
			defer in.Close()

			src, err := csv.NewSource(in, opts)
			if err != nil {
				return err
			}
			s, sampled, err := csv.InferSchema(cmd.Context(), src, opts)
			if err != nil {
				return err
			}
			a.logger.Debug("schema inferred",
				zap.String("input", args[0]),
				zap.Int("sampled_rows", sampled),
				zap.Int("columns", s.Len()))
			return schema.EncodeSchema(a.stdout, s)
		},
	}
	addCSVFlags(cmd.Flags())
	return cmd
}
