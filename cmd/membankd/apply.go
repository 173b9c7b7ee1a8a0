package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/membankd/internal/render"
)

var applyYes bool

var applyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Plan, confirm, and apply a sync proposal",
	Long: `Run a reconciliation pass, render the proposal, and apply it after
confirmation. Confirmation is the explicit plan-to-act transition; with
--yes the prompt is skipped but the proposal is still rendered first.

On a per-action failure the remaining actions are halted and surfaced
for the next pass; the applied prefix persists.

Examples:
  membankd apply
  membankd apply --yes`,
	RunE: runApply,
}

func init() {
	applyCmd.Flags().BoolVarP(&applyYes, "yes", "y", false, "apply without prompting")
}

func runApply(cmd *cobra.Command, args []string) error {
	a, err := newApp(true)
	if err != nil {
		return err
	}
	defer a.close()
	ctx := cmd.Context()

	proposal, err := a.engine.Plan(ctx)
	if err != nil {
		return err
	}
	fmt.Print(render.Proposal(proposal))

	if proposal.Empty() {
		return nil
	}
	if !applyYes && !confirmPrompt() {
		fmt.Println("aborted, nothing applied")
		return nil
	}

	if err := a.gate.Confirm(ctx); err != nil {
		return err
	}
	result, applyErr := a.exec.Apply(ctx, proposal)
	if result != nil {
		fmt.Print(render.ApplyResult(result.Applied, result.Failed, result.Remaining))
	}
	return applyErr
}

func confirmPrompt() bool {
	fmt.Print("apply these actions? [y/N]: ")
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes"
}
