package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/h2non/filetype"
	"github.com/spf13/cobra"

	"github.com/dcgoodwin2112/dkanClientTools-sub000/pkg/catalog"
)

var (
	// Datastore command flags
	datastoreLimit   int
	datastoreOffset  int
	datastoreColumns []string
	datastoreWatch   bool
	datastoreOutput  string
	datastoreFormat  string
)

// datastoreCmd represents the datastore command group
var datastoreCmd = &cobra.Command{
	Use:   "datastore",
	Short: "Query and manage distribution datastores",
	Long: `Query and manage the tabular datastores behind dataset distributions.

Examples:
  # Query rows from a distribution
  dkanctl datastore query dist-456 --limit 10

  # Run a read-only SQL query
  dkanctl datastore sql "SELECT year, value FROM dist-456 LIMIT 5"

  # Import a distribution's file and watch the job
  dkanctl datastore import dist-456 --watch

  # Download a distribution's datastore
  dkanctl datastore download dist-456 -o trafficdata`,
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

var datastoreQueryCmd = &cobra.Command{
	Use:   "query DISTRIBUTION_ID",
	Short: "Query rows from a distribution's datastore",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newClient()
		if err != nil {
			return err
		}
		res, err := client.QueryDatastore(context.Background(), args[0], catalog.DatastoreQueryParams{
			Limit:      datastoreLimit,
			Offset:     datastoreOffset,
			Properties: datastoreColumns,
		})
		if err != nil {
			return err
		}
		if jsonOutput {
			printJSON(res)
			return nil
		}
		fmt.Printf("Rows: %d of %d\n", len(res.Results), res.Count)
		for _, row := range res.Results {
			fmt.Printf("%v\n", row)
		}
		return nil
	},
}

var datastoreSQLCmd = &cobra.Command{
	Use:   "sql QUERY",
	Short: "Run a read-only SQL query against the datastore",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newClient()
		if err != nil {
			return err
		}
		rows, err := client.QueryDatastoreSQL(context.Background(), args[0])
		if err != nil {
			return err
		}
		if jsonOutput {
			printJSON(rows)
			return nil
		}
		for _, row := range rows {
			fmt.Printf("%v\n", row)
		}
		return nil
	},
}

var datastoreImportCmd = &cobra.Command{
	Use:   "import DISTRIBUTION_ID",
	Short: "Import a distribution's file into the datastore",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newClient()
		if err != nil {
			return err
		}
		imp, err := client.TriggerDatastoreImport(context.Background(), args[0])
		if err != nil {
			return err
		}
		if !datastoreWatch {
			if jsonOutput {
				printJSON(imp)
			} else {
				okLabel.Printf("Import triggered for %s (status %s)\n", args[0], imp.Status)
			}
			return nil
		}
		return watchImport(client, args[0])
	},
}

var datastoreStatusCmd = &cobra.Command{
	Use:   "status [DISTRIBUTION_ID]",
	Short: "Show datastore import status",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newClient()
		if err != nil {
			return err
		}
		if len(args) == 1 {
			imp, err := client.GetDatastoreImport(context.Background(), args[0])
			if err != nil {
				return err
			}
			if jsonOutput {
				printJSON(imp)
			} else {
				printImport(args[0], imp)
			}
			return nil
		}
		imports, err := client.GetDatastoreImports(context.Background())
		if err != nil {
			return err
		}
		if jsonOutput {
			printJSON(imports)
			return nil
		}
		for id, imp := range imports {
			printImport(id, &imp)
		}
		return nil
	},
}

var datastoreDropCmd = &cobra.Command{
	Use:   "drop DISTRIBUTION_ID",
	Short: "Drop a distribution's imported datastore table",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newClient()
		if err != nil {
			return err
		}
		if err := client.DeleteDatastore(context.Background(), args[0]); err != nil {
			return err
		}
		if jsonOutput {
			printJSON(map[string]int{"result": 1})
		} else {
			okLabel.Printf("Dropped datastore for %s\n", args[0])
		}
		return nil
	},
}

var datastoreDownloadCmd = &cobra.Command{
	Use:   "download DISTRIBUTION_ID",
	Short: "Download a distribution's datastore to a file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newClient()
		if err != nil {
			return err
		}
		rc, contentType, err := client.DownloadDatastore(context.Background(), args[0], datastoreFormat)
		if err != nil {
			return err
		}
		defer rc.Close()

		out := datastoreOutput
		if out == "" {
			out = args[0]
		}
		return saveStream(rc, out, contentType)
	},
}

// watchImport polls the import job until it reaches a terminal status,
// printing progress as it goes.
func watchImport(client *catalog.Client, distributionID string) error {
	client.Mount()
	defer client.Unmount()

	sub := client.SubscribeDatastoreImport(distributionID, 2*time.Second)
	defer sub.Close()

	for snap := range sub.Updates() {
		if snap.Err != nil {
			warnLabel.Printf("transient error, still watching: %v\n", snap.Err)
			continue
		}
		imp, ok := snap.Data.(*catalog.DatastoreImport)
		if !ok {
			continue
		}
		if !imp.Status.Terminal() {
			fmt.Printf("import %s: %s (%d%%)\n", distributionID, imp.Status, imp.PercentDone)
			continue
		}
		if imp.Status == catalog.ImportError {
			errorLabel.Printf("import %s failed: %s\n", distributionID, imp.ErrorDetail)
			return ErrAlreadyHandled
		}
		okLabel.Printf("import %s done: %d records imported\n", distributionID, imp.RecordsImported)
		return nil
	}
	return nil
}

// saveStream writes the download stream to disk. When the target name has no
// extension, one is inferred from the stream's leading bytes, falling back to
// the format flag for text formats the sniffer cannot classify.
func saveStream(rc io.Reader, out, contentType string) error {
	head := make([]byte, 261)
	n, err := io.ReadFull(rc, head)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return fmt.Errorf("unable to read download stream: %w", err)
	}
	head = head[:n]

	if !hasExtension(out) {
		if kind, kerr := filetype.Match(head); kerr == nil && kind != filetype.Unknown {
			out += "." + kind.Extension
		} else if datastoreFormat != "" {
			out += "." + datastoreFormat
		} else {
			out += ".csv"
		}
	}

	f, err := os.Create(out)
	if err != nil {
		return fmt.Errorf("unable to create %s: %w", out, err)
	}
	defer f.Close()

	if _, err := f.Write(head); err != nil {
		return fmt.Errorf("unable to write %s: %w", out, err)
	}
	if _, err := io.Copy(f, rc); err != nil {
		return fmt.Errorf("unable to write %s: %w", out, err)
	}
	if jsonOutput {
		printJSON(map[string]string{"file": out, "content_type": contentType})
	} else {
		okLabel.Printf("Saved %s\n", out)
	}
	return nil
}

func hasExtension(name string) bool {
	for i := len(name) - 1; i >= 0; i-- {
		switch name[i] {
		case '.':
			return i > 0
		case '/', '\\':
			return false
		}
	}
	return false
}

func printImport(id string, imp *catalog.DatastoreImport) {
	fmt.Printf("%s  %-12s  %3d%%  %d records\n", id, imp.Status, imp.PercentDone, imp.RecordsImported)
}

func init() {
	rootCmd.AddCommand(datastoreCmd)
	datastoreCmd.AddCommand(datastoreQueryCmd)
	datastoreCmd.AddCommand(datastoreSQLCmd)
	datastoreCmd.AddCommand(datastoreImportCmd)
	datastoreCmd.AddCommand(datastoreStatusCmd)
	datastoreCmd.AddCommand(datastoreDropCmd)
	datastoreCmd.AddCommand(datastoreDownloadCmd)

	datastoreQueryCmd.Flags().IntVar(&datastoreLimit, "limit", 0, "Maximum rows to return")
	datastoreQueryCmd.Flags().IntVar(&datastoreOffset, "offset", 0, "Row offset")
	datastoreQueryCmd.Flags().StringSliceVar(&datastoreColumns, "columns", nil, "Columns to select")
	datastoreImportCmd.Flags().BoolVar(&datastoreWatch, "watch", false, "Watch the import until it finishes")
	datastoreDownloadCmd.Flags().StringVarP(&datastoreOutput, "output", "o", "", "Output file name")
	datastoreDownloadCmd.Flags().StringVar(&datastoreFormat, "format", "csv", "Download format (csv or json)")
}
