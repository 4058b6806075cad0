package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"volition/internal/format"
)

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Inspect the parked-work queue",
	Args:  cobra.NoArgs,
	RunE:  runQueue,
}

var queueDropCmd = &cobra.Command{
	Use:   "drop [id]",
	Short: "Remove one parked item by id",
	Args:  cobra.ExactArgs(1),
	RunE:  runQueueDrop,
}

func init() {
	queueCmd.AddCommand(queueDropCmd)
}

func runQueue(cmd *cobra.Command, _ []string) error {
	rt, err := buildRuntime()
	if err != nil {
		return err
	}
	defer rt.Close()

	users := rt.queue.Users()
	if len(users) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "queue is empty")
		return nil
	}

	tbl := format.NewTable(format.ASCII)
	tbl.Header("USER", "ID", "KIND", "ATTEMPTS", "LAST ERROR", "AGE")
	for _, user := range users {
		for _, it := range rt.queue.Items(user) {
			tbl.Row(user, format.ShortID(it.ID), it.Kind, it.Attempts,
				format.Truncate(it.LastError, 48), format.FmtAge(it.EnqueuedAt))
		}
	}
	fmt.Fprintln(cmd.OutOrStdout(), tbl.String())
	return nil
}

func runQueueDrop(cmd *cobra.Command, args []string) error {
	rt, err := buildRuntime()
	if err != nil {
		return err
	}
	defer rt.Close()

	// Ids are shown shortened; match on prefix within the user's items.
	for _, it := range rt.queue.Items(rt.cfg.User) {
		if it.ID == args[0] || format.ShortID(it.ID) == args[0] {
			if err := rt.queue.Remove(rt.cfg.User, it.ID); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "dropped %s (%s)\n", format.ShortID(it.ID), it.Kind)
			return nil
		}
	}
	return fmt.Errorf("no queued item %s for user %s", args[0], rt.cfg.User)
}
