package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/membankd/internal/render"
)

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Run a reconciliation pass and render the proposal",
	Long: `Compare the memory bank against GitHub and print the ordered sync
proposal. Nothing is applied; use "membankd apply" to confirm and
execute a proposal.

Examples:
  membankd plan
  MEMBANK_TRACKER_TOKEN=ghp_xxx membankd plan`,
	RunE: runPlan,
}

func runPlan(cmd *cobra.Command, args []string) error {
	a, err := newApp(true)
	if err != nil {
		return err
	}
	defer a.close()

	proposal, err := a.engine.Plan(cmd.Context())
	if err != nil {
		return err
	}
	fmt.Print(render.Proposal(proposal))
	return nil
}
