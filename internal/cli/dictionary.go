package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dcgoodwin2112/dkanClientTools-sub000/pkg/catalog"
)

var dictionaryFile string

// dictionaryCmd represents the dictionary command group
var dictionaryCmd = &cobra.Command{
	Use:   "dictionary",
	Short: "Manage data dictionaries",
	Long: `Manage the data dictionaries that describe distribution table schemas.

Examples:
  # List data dictionaries
  dkanctl dictionary list

  # Show one dictionary
  dkanctl dictionary show dict-123

  # Create a dictionary from a file
  dkanctl dictionary create -f dictionary.yaml`,
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

var dictionaryListCmd = &cobra.Command{
	Use:   "list",
	Short: "List data dictionaries",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newClient()
		if err != nil {
			return err
		}
		dicts, err := client.ListDataDictionaries(context.Background())
		if err != nil {
			return err
		}
		if jsonOutput {
			printJSON(dicts)
			return nil
		}
		for _, d := range dicts {
			fmt.Printf("- %s  %s (%d fields)\n", d.Identifier, d.Title, len(d.Data.Fields))
		}
		return nil
	},
}

var dictionaryShowCmd = &cobra.Command{
	Use:   "show IDENTIFIER",
	Short: "Show a data dictionary",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newClient()
		if err != nil {
			return err
		}
		d, err := client.GetDataDictionary(context.Background(), args[0])
		if err != nil {
			return err
		}
		if jsonOutput {
			printJSON(d)
			return nil
		}
		fmt.Printf("Identifier: %s\n", d.Identifier)
		fmt.Printf("Title:      %s\n", d.Title)
		for _, f := range d.Data.Fields {
			fmt.Printf("- %-20s %s\n", f.Name, f.Type)
		}
		return nil
	},
}

var dictionaryCreateCmd = &cobra.Command{
	Use:   "create -f FILE",
	Short: "Create a data dictionary from a YAML or JSON file",
	RunE: func(cmd *cobra.Command, args []string) error {
		if dictionaryFile == "" {
			return fmt.Errorf("a dictionary file is required (-f)")
		}
		var d catalog.DataDictionary
		if err := readDocument(dictionaryFile, &d); err != nil {
			return err
		}
		client, err := newClient()
		if err != nil {
			return err
		}
		created, err := client.CreateDataDictionary(context.Background(), d)
		if err != nil {
			return err
		}
		if jsonOutput {
			printJSON(created)
			return nil
		}
		okLabel.Printf("Created data dictionary %s\n", created.Identifier)
		return nil
	},
}

var dictionaryDeleteCmd = &cobra.Command{
	Use:   "delete IDENTIFIER",
	Short: "Delete a data dictionary",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newClient()
		if err != nil {
			return err
		}
		if err := client.DeleteDataDictionary(context.Background(), args[0]); err != nil {
			return err
		}
		if jsonOutput {
			printJSON(map[string]int{"result": 1})
		} else {
			okLabel.Printf("Deleted data dictionary %s\n", args[0])
		}
		return nil
	},
}

// propertyCmd represents the property command group
var propertyCmd = &cobra.Command{
	Use:   "property",
	Short: "Inspect searchable dataset properties",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

var propertyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the schemas the metastore serves",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newClient()
		if err != nil {
			return err
		}
		props, err := client.ListProperties(context.Background())
		if err != nil {
			return err
		}
		if jsonOutput {
			printJSON(props)
			return nil
		}
		for _, p := range props {
			fmt.Printf("- %s\n", p)
		}
		return nil
	},
}

var propertyValuesCmd = &cobra.Command{
	Use:   "values PROPERTY",
	Short: "List the distinct values of a property (theme, keyword)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newClient()
		if err != nil {
			return err
		}
		vals, err := client.ListPropertyValues(context.Background(), args[0])
		if err != nil {
			return err
		}
		if jsonOutput {
			printJSON(vals)
			return nil
		}
		for _, v := range vals {
			fmt.Printf("- %s\n", v.Data)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(dictionaryCmd)
	dictionaryCmd.AddCommand(dictionaryListCmd)
	dictionaryCmd.AddCommand(dictionaryShowCmd)
	dictionaryCmd.AddCommand(dictionaryCreateCmd)
	dictionaryCmd.AddCommand(dictionaryDeleteCmd)

	rootCmd.AddCommand(propertyCmd)
	propertyCmd.AddCommand(propertyListCmd)
	propertyCmd.AddCommand(propertyValuesCmd)

	dictionaryCreateCmd.Flags().StringVarP(&dictionaryFile, "file", "f", "", "Dictionary file (YAML or JSON)")
}
