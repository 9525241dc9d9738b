package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/tidwall/sjson"
	"gopkg.in/yaml.v3"

	"github.com/dcgoodwin2112/dkanClientTools-sub000/pkg/catalog"
)

var (
	// Dataset command flags
	datasetPage     int
	datasetPageSize int
	datasetSort     string
	datasetFile     string
	datasetSets     []string
	datasetMessage  string
)

// datasetCmd represents the dataset command group
var datasetCmd = &cobra.Command{
	Use:   "dataset",
	Short: "Manage catalog datasets",
	Long: `Manage catalog datasets: search, inspect, create, update and publish.

Examples:
  # Search datasets
  dkanctl dataset search "traffic counts" --page 2 --page-size 20

  # Show a dataset
  dkanctl dataset show ds-123

  # Create a dataset from a file (YAML or JSON)
  dkanctl dataset create -f dataset.yaml

  # Patch individual fields
  dkanctl dataset patch ds-123 --set title="New Title" --set publisher.name=City

  # Publish a dataset
  dkanctl dataset publish ds-123 -m "go live"`,
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

var datasetSearchCmd = &cobra.Command{
	Use:   "search [TERM]",
	Short: "Search datasets by full-text term",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newClient()
		if err != nil {
			return err
		}
		params := catalog.SearchParams{
			Page:     datasetPage,
			PageSize: datasetPageSize,
			Sort:     datasetSort,
		}
		if len(args) == 1 {
			params.FullText = args[0]
		}
		res, err := client.SearchDatasets(context.Background(), params)
		if err != nil {
			return err
		}
		if jsonOutput {
			printJSON(res)
			return nil
		}
		fmt.Printf("Total: %d\n", res.Total)
		for _, ds := range res.Results {
			fmt.Printf("- %s  %s\n", ds.Identifier, ds.Title)
		}
		return nil
	},
}

var datasetShowCmd = &cobra.Command{
	Use:   "show IDENTIFIER",
	Short: "Show a single dataset",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newClient()
		if err != nil {
			return err
		}
		ds, err := client.GetDataset(context.Background(), args[0])
		if err != nil {
			return err
		}
		if jsonOutput {
			printJSON(ds)
			return nil
		}
		printDataset(ds)
		return nil
	},
}

var datasetCreateCmd = &cobra.Command{
	Use:   "create -f FILE",
	Short: "Create a dataset from a YAML or JSON file",
	RunE: func(cmd *cobra.Command, args []string) error {
		if datasetFile == "" {
			return fmt.Errorf("a dataset file is required (-f)")
		}
		var ds catalog.Dataset
		if err := readDocument(datasetFile, &ds); err != nil {
			return err
		}
		client, err := newClient()
		if err != nil {
			return err
		}
		created, err := client.CreateDataset(context.Background(), ds)
		if err != nil {
			return err
		}
		if jsonOutput {
			printJSON(created)
			return nil
		}
		okLabel.Printf("Created dataset %s\n", created.Identifier)
		return nil
	},
}

var datasetPatchCmd = &cobra.Command{
	Use:   "patch IDENTIFIER --set path=value [--set path=value ...]",
	Short: "Patch individual dataset fields",
	Long: `Patch individual dataset fields without replacing the whole document.
Each --set takes a dotted JSON path and a value; values that parse as JSON
(numbers, booleans, arrays) are applied typed, everything else as a string.

Examples:
  dkanctl dataset patch ds-123 --set title="New Title"
  dkanctl dataset patch ds-123 --set keyword='["transit","bus"]'`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(datasetSets) == 0 {
			return fmt.Errorf("at least one --set path=value is required")
		}
		patch, err := buildPatch(datasetSets)
		if err != nil {
			return err
		}
		client, err := newClient()
		if err != nil {
			return err
		}
		updated, err := client.PatchDataset(context.Background(), args[0], patch)
		if err != nil {
			return err
		}
		if jsonOutput {
			printJSON(updated)
			return nil
		}
		okLabel.Printf("Patched dataset %s\n", args[0])
		return nil
	},
}

var datasetDeleteCmd = &cobra.Command{
	Use:   "delete IDENTIFIER",
	Short: "Delete a dataset",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newClient()
		if err != nil {
			return err
		}
		if err := client.DeleteDataset(context.Background(), args[0]); err != nil {
			return err
		}
		if jsonOutput {
			printJSON(map[string]int{"result": 1})
		} else {
			okLabel.Printf("Deleted dataset %s\n", args[0])
		}
		return nil
	},
}

var datasetPublishCmd = &cobra.Command{
	Use:   "publish IDENTIFIER",
	Short: "Publish a dataset (create a published revision)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return transitionDataset(args[0], catalog.WorkflowPublished)
	},
}

var datasetArchiveCmd = &cobra.Command{
	Use:   "archive IDENTIFIER",
	Short: "Archive a dataset (create an archived revision)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return transitionDataset(args[0], catalog.WorkflowArchived)
	},
}

var datasetRevisionsCmd = &cobra.Command{
	Use:   "revisions IDENTIFIER",
	Short: "List the revision history of a dataset",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newClient()
		if err != nil {
			return err
		}
		revs, err := client.ListRevisions(context.Background(), "dataset", args[0])
		if err != nil {
			return err
		}
		if jsonOutput {
			printJSON(revs)
			return nil
		}
		for _, r := range revs {
			marker := " "
			if r.Published {
				marker = "*"
			}
			fmt.Printf("%s %s  %-10s  %s\n", marker, r.Identifier, r.State, r.Message)
		}
		return nil
	},
}

func transitionDataset(identifier string, state catalog.WorkflowState) error {
	client, err := newClient()
	if err != nil {
		return err
	}
	rev, err := client.ChangeDatasetState(context.Background(), identifier, state, datasetMessage)
	if err != nil {
		return err
	}
	if jsonOutput {
		printJSON(rev)
		return nil
	}
	okLabel.Printf("Dataset %s is now %s (revision %s)\n", identifier, state, rev.Identifier)
	return nil
}

// buildPatch assembles a patch document from --set path=value pairs. The
// document is built as JSON so dotted paths address nested fields.
func buildPatch(sets []string) (map[string]any, error) {
	doc := []byte(`{}`)
	for _, s := range sets {
		path, value, ok := strings.Cut(s, "=")
		if !ok || path == "" {
			return nil, fmt.Errorf("invalid --set %q: expected path=value", s)
		}
		var err error
		if json.Valid([]byte(value)) {
			doc, err = sjson.SetRawBytes(doc, path, []byte(value))
		} else {
			doc, err = sjson.SetBytes(doc, path, value)
		}
		if err != nil {
			return nil, fmt.Errorf("invalid --set %q: %w", s, err)
		}
	}
	var patch map[string]any
	if err := json.Unmarshal(doc, &patch); err != nil {
		return nil, fmt.Errorf("failed to assemble patch: %w", err)
	}
	return patch, nil
}

// readDocument loads a YAML or JSON document from file into out.
func readDocument(file string, out any) error {
	raw, err := os.ReadFile(file)
	if err != nil {
		return fmt.Errorf("unable to read %s: %w", file, err)
	}
	if json.Valid(raw) {
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("unable to parse %s: %w", file, err)
		}
		return nil
	}
	if err := yaml.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("unable to parse %s: %w", file, err)
	}
	return nil
}

func printDataset(ds *catalog.Dataset) {
	fmt.Printf("Identifier:  %s\n", ds.Identifier)
	fmt.Printf("Title:       %s\n", ds.Title)
	if ds.Description != "" {
		fmt.Printf("Description: %s\n", ds.Description)
	}
	if ds.Publisher != nil {
		fmt.Printf("Publisher:   %s\n", ds.Publisher.Name)
	}
	if len(ds.Keyword) > 0 {
		fmt.Printf("Keywords:    %s\n", strings.Join(ds.Keyword, ", "))
	}
	if len(ds.Distribution) > 0 {
		fmt.Println("Distributions:")
		for _, d := range ds.Distribution {
			fmt.Printf("- %s  %s (%s)\n", d.Identifier, d.Title, d.Format)
		}
	}
}

func init() {
	rootCmd.AddCommand(datasetCmd)
	datasetCmd.AddCommand(datasetSearchCmd)
	datasetCmd.AddCommand(datasetShowCmd)
	datasetCmd.AddCommand(datasetCreateCmd)
	datasetCmd.AddCommand(datasetPatchCmd)
	datasetCmd.AddCommand(datasetDeleteCmd)
	datasetCmd.AddCommand(datasetPublishCmd)
	datasetCmd.AddCommand(datasetArchiveCmd)
	datasetCmd.AddCommand(datasetRevisionsCmd)

	datasetSearchCmd.Flags().IntVar(&datasetPage, "page", 0, "Result page, starting at 1")
	datasetSearchCmd.Flags().IntVar(&datasetPageSize, "page-size", 0, "Results per page")
	datasetSearchCmd.Flags().StringVar(&datasetSort, "sort", "", "Sort field")
	datasetCreateCmd.Flags().StringVarP(&datasetFile, "file", "f", "", "Dataset file (YAML or JSON)")
	datasetPatchCmd.Flags().StringArrayVar(&datasetSets, "set", nil, "Field to set as path=value (repeatable)")
	datasetPublishCmd.Flags().StringVarP(&datasetMessage, "message", "m", "", "Revision log message")
	datasetArchiveCmd.Flags().StringVarP(&datasetMessage, "message", "m", "", "Revision log message")
}
