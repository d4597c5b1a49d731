package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rolekeeper/rolekeeper/internal/metadata"
)

func newMetadataCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "metadata",
		Aliases: []string{"md"},
		Short:   "Export, compare and apply metadata documents",
	}

	cmd.AddCommand(newMetadataExportCmd())
	cmd.AddCommand(newMetadataDiffCmd())
	cmd.AddCommand(newMetadataApplyCmd())

	return cmd
}

// ---------- metadata export ----------

func newMetadataExportCmd() *cobra.Command {
	var (
		format     string
		outputFile string
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Print the metadata document",
		Example: `  rolekeeper metadata export > metadata.json
  rolekeeper metadata export --format yaml -o metadata.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMetadataExport(cmd.Context(), format, outputFile)
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "json", "Output format: json or yaml")
	cmd.Flags().StringVarP(&outputFile, "output", "o", "", "Write to file instead of stdout")

	return cmd
}

func runMetadataExport(ctx context.Context, format, outputFile string) error {
	if format != "json" && format != "yaml" {
		return fmt.Errorf("unsupported format %q; use 'json' or 'yaml'", format)
	}

	ws, err := openWorkspace(ctx)
	if err != nil {
		return err
	}
	defer ws.Close()
	if err := ws.load(ctx); err != nil {
		return err
	}
	doc, err := ws.session.Document()
	if err != nil {
		return err
	}

	data, err := encodeDocument(doc, format)
	if err != nil {
		return err
	}
	if outputFile == "" {
		_, err = os.Stdout.Write(data)
		return err
	}
	if err := os.WriteFile(outputFile, data, 0644); err != nil {
		return fmt.Errorf("write %s: %w", outputFile, err)
	}
	fmt.Fprintf(os.Stderr, "Wrote %s\n", outputFile)
	return nil
}

func encodeDocument(doc *metadata.Document, format string) ([]byte, error) {
	if format == "yaml" {
		return metadata.EncodeYAML(doc)
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	return append(data, '\n'), nil
}

// readDocumentFile reads a metadata document from a JSON or YAML file.
func readDocumentFile(path string) (*metadata.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	var doc *metadata.Document
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		doc, err = metadata.DecodeYAML(data)
	default:
		doc, err = metadata.Normalize(data)
	}
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return doc, nil
}

// ---------- metadata diff ----------

func newMetadataDiffCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "diff <file>",
		Short: "Compare the permissions of a local file with the remote metadata",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			local, err := readDocumentFile(args[0])
			if err != nil {
				return err
			}

			ws, err := openWorkspace(ctx)
			if err != nil {
				return err
			}
			defer ws.Close()
			if err := ws.load(ctx); err != nil {
				return err
			}
			remote, err := ws.session.Document()
			if err != nil {
				return err
			}

			report := metadata.Diff(remote, local)
			if jsonOutput {
				return printJSON(os.Stdout, report)
			}
			renderChanges(os.Stdout, report)
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

// ---------- metadata apply ----------

func newMetadataApplyCmd() *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "apply <file>",
		Short: "Replace the remote metadata with a local file",
		Long: `Replace the remote metadata with the document in a JSON or YAML file. The
permission changes are printed first. Legacy documents are converted to the
current shape before they are sent.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			local, err := readDocumentFile(args[0])
			if err != nil {
				return err
			}

			ws, err := openWorkspace(ctx)
			if err != nil {
				return err
			}
			defer ws.Close()
			if err := ws.load(ctx); err != nil {
				return err
			}
			remote, err := ws.session.Document()
			if err != nil {
				return err
			}
			if _, err := ws.session.Apply(ctx, local, filepath.Base(args[0])); err != nil {
				return err
			}
			differ, err := documentsDiffer(remote, local)
			if err != nil {
				return err
			}
			return commit(ctx, os.Stdout, ws, dryRun, differ)
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Print the changes without replacing the metadata")

	return cmd
}

// documentsDiffer reports whether a and b encode to different JSON.
func documentsDiffer(a, b *metadata.Document) (bool, error) {
	ab, err := json.Marshal(a)
	if err != nil {
		return false, err
	}
	bb, err := json.Marshal(b)
	if err != nil {
		return false, err
	}
	return !bytes.Equal(ab, bb), nil
}
