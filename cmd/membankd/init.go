package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/membankd/internal/membank"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the memory bank documents from their templates",
	Long: `Create the memory bank directory and its nine documents. Existing
documents are left untouched.

Examples:
  membankd init
  membankd init --config ./project/.membankd.yaml`,
	RunE: runInit,
}

func runInit(cmd *cobra.Command, args []string) error {
	a, err := newApp(false)
	if err != nil {
		return err
	}
	defer a.close()

	if err := a.store.Init(cmd.Context()); err != nil {
		return fmt.Errorf("initializing memory bank: %w", err)
	}

	fmt.Printf("memory bank ready at %s\n", a.store.Dir())
	for _, role := range membank.AllRoles() {
		fmt.Printf("  %s\n", role.Filename())
	}
	return nil
}
