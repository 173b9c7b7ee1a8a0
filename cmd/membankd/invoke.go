package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var invokeCmd = &cobra.Command{
	Use:   "invoke <tool> [key=value ...]",
	Short: "Invoke a side-effect tool through the audited envelope",
	Long: `Invoke one of the leaf tools directly. The call is recorded in the
audit trail with its full argument set.

Examples:
  membankd invoke fs_list path=.
  membankd invoke fs_write path=notes.md content='scratch notes'
  membankd invoke deps_add package=requests
  membankd invoke lint_check fix=true`,
	Args: cobra.MinimumNArgs(1),
	RunE: runInvoke,
}

func runInvoke(cmd *cobra.Command, args []string) error {
	a, err := newApp(false)
	if err != nil {
		return err
	}
	defer a.close()

	toolArgs, err := parseToolArgs(args[1:])
	if err != nil {
		return err
	}

	result := a.adapter.Invoke(cmd.Context(), args[0], toolArgs)
	if result.Output != "" {
		fmt.Print(result.Output)
		if !strings.HasSuffix(result.Output, "\n") {
			fmt.Println()
		}
	}
	if !result.OK {
		return fmt.Errorf("%s failed: %s", args[0], result.Error)
	}
	return nil
}

func parseToolArgs(pairs []string) (map[string]string, error) {
	toolArgs := map[string]string{}
	for _, pair := range pairs {
		key, value, found := strings.Cut(pair, "=")
		if !found || key == "" {
			return nil, fmt.Errorf("argument %q is not key=value", pair)
		}
		toolArgs[key] = value
	}
	return toolArgs, nil
}
