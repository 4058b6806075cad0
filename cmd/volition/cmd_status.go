package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"volition/internal/format"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the runtime's state at a glance",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

func runStatus(cmd *cobra.Command, _ []string) error {
	rt, err := buildRuntime()
	if err != nil {
		return err
	}
	defer rt.Close()

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "User:   %s\n", rt.cfg.User)
	fmt.Fprintf(out, "Mode:   %s\n", rt.cfg.Policy.Mode)
	fmt.Fprintf(out, "Model:  %s (%s)\n", rt.cfg.LLM.DefaultModel, rt.cfg.LLM.BaseURL)
	fmt.Fprintf(out, "Data:   %s\n\n", rt.cfg.Data.Dir)

	desires, err := rt.desires.List(cmd.Context(), rt.cfg.User)
	if err != nil {
		return fmt.Errorf("list desires: %w", err)
	}

	counts := map[string]int{}
	for _, d := range desires {
		counts[string(d.Status)]++
	}

	tbl := format.NewTable(format.ASCII)
	tbl.Header("AREA", "DETAIL")
	tbl.Row("skills", fmt.Sprintf("%d registered", len(rt.skills.IDs())))
	tbl.Row("nodes", fmt.Sprintf("%d registered", len(rt.registry.IDs())))
	tbl.Row("desires", fmt.Sprintf("%d total", len(desires)))
	for status, n := range counts {
		tbl.Row("  "+status, n)
	}
	pending := 0
	for _, user := range rt.queue.Users() {
		pending += rt.queue.Len(user)
	}
	tbl.Row("queue", fmt.Sprintf("%d pending", pending))
	fmt.Fprintln(out, tbl.String())
	return nil
}
