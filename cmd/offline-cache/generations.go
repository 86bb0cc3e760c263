package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newGenerationsCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "generations",
		Short: "Inspect and purge persisted cache generations",
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List stored generations",
		RunE: func(cmd *cobra.Command, args []string) error {
			root, err := NewStorageRoot(ResolveConfigPath(*configPath))
			if err != nil {
				return err
			}
			defer func() { _ = root.Cleanup() }()

			names, err := root.Store.Generations()
			if err != nil {
				return err
			}
			active, _ := root.Store.Active()
			for _, name := range names {
				marker := " "
				if name == active {
					marker = "*"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", marker, name)
			}
			return nil
		},
	}

	deleteCmd := &cobra.Command{
		Use:   "delete NAME",
		Short: "Delete a stored generation other than the active one",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root, err := NewStorageRoot(ResolveConfigPath(*configPath))
			if err != nil {
				return err
			}
			defer func() { _ = root.Cleanup() }()

			name := args[0]
			if active, ok := root.Store.Active(); ok && active == name {
				return fmt.Errorf("generation %s is active", name)
			}
			if err := root.Manager.DeleteGeneration(name); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted generation %s\n", name)
			return nil
		},
	}

	cmd.AddCommand(listCmd, deleteCmd)
	return cmd
}
