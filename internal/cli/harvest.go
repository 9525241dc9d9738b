package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/dcgoodwin2112/dkanClientTools-sub000/pkg/catalog"
)

var (
	// Harvest command flags
	harvestFile  string
	harvestWatch bool
)

// harvestCmd represents the harvest command group
var harvestCmd = &cobra.Command{
	Use:   "harvest",
	Short: "Manage harvest plans and runs",
	Long: `Manage harvest source plans and their execution runs.

Examples:
  # Register a harvest plan
  dkanctl harvest register -f plan.yaml

  # List registered plans
  dkanctl harvest plans

  # Run a harvest and watch it finish
  dkanctl harvest run my-plan --watch

  # List the runs of a plan
  dkanctl harvest runs my-plan`,
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

var harvestRegisterCmd = &cobra.Command{
	Use:   "register -f FILE",
	Short: "Register a harvest plan from a YAML or JSON file",
	RunE: func(cmd *cobra.Command, args []string) error {
		if harvestFile == "" {
			return fmt.Errorf("a plan file is required (-f)")
		}
		var plan catalog.HarvestPlan
		if err := readDocument(harvestFile, &plan); err != nil {
			return err
		}
		client, err := newClient()
		if err != nil {
			return err
		}
		registered, err := client.RegisterHarvestPlan(context.Background(), plan)
		if err != nil {
			return err
		}
		if jsonOutput {
			printJSON(registered)
			return nil
		}
		okLabel.Printf("Registered harvest plan %s\n", registered.Identifier)
		return nil
	},
}

var harvestPlansCmd = &cobra.Command{
	Use:   "plans",
	Short: "List registered harvest plans",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newClient()
		if err != nil {
			return err
		}
		plans, err := client.ListHarvestPlans(context.Background())
		if err != nil {
			return err
		}
		if jsonOutput {
			printJSON(plans)
			return nil
		}
		for _, p := range plans {
			fmt.Printf("- %s\n", p)
		}
		return nil
	},
}

var harvestRunCmd = &cobra.Command{
	Use:   "run PLAN_ID",
	Short: "Run a harvest plan",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newClient()
		if err != nil {
			return err
		}
		run, err := client.RunHarvest(context.Background(), args[0])
		if err != nil {
			return err
		}
		if !harvestWatch {
			if jsonOutput {
				printJSON(run)
			} else {
				okLabel.Printf("Harvest run %s started for plan %s\n", run.Identifier, args[0])
			}
			return nil
		}
		if run.Identifier == "" {
			return fmt.Errorf("service did not return a run identifier; watch with \"dkanctl harvest runs %s\"", args[0])
		}
		return watchHarvestRun(client, run.Identifier)
	},
}

var harvestRunsCmd = &cobra.Command{
	Use:   "runs PLAN_ID",
	Short: "List the runs recorded for a harvest plan",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newClient()
		if err != nil {
			return err
		}
		runs, err := client.ListHarvestRuns(context.Background(), args[0])
		if err != nil {
			return err
		}
		if jsonOutput {
			printJSON(runs)
			return nil
		}
		for _, r := range runs {
			fmt.Printf("- %s\n", r)
		}
		return nil
	},
}

var harvestStatusCmd = &cobra.Command{
	Use:   "status RUN_ID",
	Short: "Show the state of a harvest run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newClient()
		if err != nil {
			return err
		}
		run, err := client.GetHarvestRun(context.Background(), args[0])
		if err != nil {
			return err
		}
		if jsonOutput {
			printJSON(run)
			return nil
		}
		printHarvestRun(run)
		return nil
	},
}

// watchHarvestRun polls the run until it reaches a terminal status.
func watchHarvestRun(client *catalog.Client, runID string) error {
	client.Mount()
	defer client.Unmount()

	sub := client.SubscribeHarvestRun(runID, 3*time.Second)
	defer sub.Close()

	for snap := range sub.Updates() {
		if snap.Err != nil {
			warnLabel.Printf("transient error, still watching: %v\n", snap.Err)
			continue
		}
		run, ok := snap.Data.(*catalog.HarvestRun)
		if !ok {
			continue
		}
		if !run.Status.Terminal() {
			fmt.Printf("harvest run %s: %s\n", runID, run.Status)
			continue
		}
		if run.Status == catalog.HarvestFailed {
			errorLabel.Printf("harvest run %s failed\n", runID)
			for _, e := range run.Errors {
				errorLabel.Printf("  %s\n", e)
			}
			return ErrAlreadyHandled
		}
		okLabel.Printf("harvest run %s complete\n", runID)
		printHarvestRun(run)
		return nil
	}
	return nil
}

func printHarvestRun(run *catalog.HarvestRun) {
	fmt.Printf("Run:     %s\n", run.Identifier)
	fmt.Printf("Status:  %s\n", run.Status)
	fmt.Printf("Load:    %d created, %d updated, %d unchanged, %d skipped, %d errored\n",
		run.Load.Created, run.Load.Updated, run.Load.Unchanged, run.Load.Skipped, run.Load.Errored)
}

func init() {
	rootCmd.AddCommand(harvestCmd)
	harvestCmd.AddCommand(harvestRegisterCmd)
	harvestCmd.AddCommand(harvestPlansCmd)
	harvestCmd.AddCommand(harvestRunCmd)
	harvestCmd.AddCommand(harvestRunsCmd)
	harvestCmd.AddCommand(harvestStatusCmd)

	harvestRegisterCmd.Flags().StringVarP(&harvestFile, "file", "f", "", "Plan file (YAML or JSON)")
	harvestRunCmd.Flags().BoolVar(&harvestWatch, "watch", false, "Watch the run until it finishes")
}
