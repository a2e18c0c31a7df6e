package main

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"datatoken/internal/domain"
	"datatoken/pkg/canonical"
)

func readInput(cmd *cobra.Command, args []string) ([]byte, error) {
	if len(args) == 0 || args[0] == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	return os.ReadFile(args[0])
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newChecksumCommand() *cobra.Command {
	var printCanonical bool
	cmd := &cobra.Command{
		Use:   "checksum [file|-]",
		Short: "Print the canonical SHA3-256 checksum of a JSON value",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := readInput(cmd, args)
			if err != nil {
				return err
			}
			if printCanonical {
				encoded, err := canonical.EncodeJSON(raw)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), string(encoded))
				return nil
			}
			sum, err := canonical.ChecksumJSON(raw)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), sum)
			return nil
		},
	}
	cmd.Flags().BoolVar(&printCanonical, "canonical", false, "Print the canonical encoding instead of the checksum")
	return cmd
}

func newDTCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dt",
		Short: "Identifier helpers",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "new",
		Short: "Issue a fresh identifier",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), domain.NewDT())
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "parse <dt>",
		Short: "Split an identifier into method and id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			parsed, err := domain.ParseDT(args[0])
			if err != nil {
				return err
			}
			id, err := domain.DTToIDBytes(args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd, map[string]any{
				"method": parsed.Method,
				"id":     parsed.ID,
				"bytes":  "0x" + hex.EncodeToString(id),
			})
		},
	})
	return cmd
}

func newDDOCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ddo",
		Short: "Document helpers",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "import [file|-]",
		Short: "Import a document and check its embedded checksum",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := readInput(cmd, args)
			if err != nil {
				return err
			}
			doc, err := domain.ImportDDOJSON(raw)
			if err != nil {
				return err
			}
			services := make([]string, 0, len(doc.Services()))
			for _, svc := range doc.Services() {
				services = append(services, svc.Index)
			}
			return printJSON(cmd, map[string]any{
				"dt":         doc.DT(),
				"creator":    doc.Creator(),
				"type":       doc.Type(),
				"name":       doc.Metadata().Name(),
				"composable": doc.IsComposable(),
				"child_dts":  doc.ChildDTs(),
				"services":   services,
				"checksum":   doc.Proof().Checksum,
				"created":    doc.Proof().Created,
			})
		},
	})
	return cmd
}

func newTemplateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "template",
		Short: "Operation template helpers",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "import [file|-]",
		Short: "Import an operation template and check its embedded checksum",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := readInput(cmd, args)
			if err != nil {
				return err
			}
			op, err := domain.ImportTemplateJSON(raw)
			if err != nil {
				return err
			}
			return printJSON(cmd, map[string]any{
				"tid":      op.TID(),
				"creator":  op.Creator(),
				"name":     op.Name(),
				"params":   op.Params(),
				"checksum": op.Proof().Checksum,
				"created":  op.Proof().Created,
			})
		},
	})
	return cmd
}
