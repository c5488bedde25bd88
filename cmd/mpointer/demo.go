package main

import (
	"fmt"

	"github.com/randalmurphal/mpointer/pkg/mpointer/list"
	"github.com/spf13/cobra"
)

func newDemoCmd(a *app) *cobra.Command {
	var values []int

	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Push values onto a list, print them, release and sweep",
		Long: `Pushes each value to the front of a handle-backed list and prints the
list front to back, one value per line, so the output is the input
reversed. The list is then cleared and the registry swept.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			reg := a.newRegistry()
			defer closeRegistry(reg, a.logger)

			l := list.New[int](reg)
			for _, v := range values {
				l.PushFront(v)
			}

			got, err := l.Values()
			if err != nil {
				return errorf(cmd, "traverse: %w", err)
			}
			out := cmd.OutOrStdout()
			for _, v := range got {
				fmt.Fprintln(out, v)
			}

			l.Clear()
			reg.Sweep(cmd.Context())
			return nil
		},
	}

	cmd.Flags().IntSliceVar(&values, "values", []int{10, 20, 30}, "values to push, in order")
	return cmd
}
