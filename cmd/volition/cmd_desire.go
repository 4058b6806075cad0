package main

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"volition/internal/desire"
	"volition/internal/format"
	"volition/internal/skill"
)

var desireCmd = &cobra.Command{
	Use:   "desire",
	Short: "Drive the desire lifecycle: run, list, approve",
}

var desireRunFlags struct {
	description string
	reason      string
	strength    float64
	trust       string
}

var desireRunCmd = &cobra.Command{
	Use:   "run [title]",
	Short: "Run one desire through plan, review, verdict, and execution",
	Args:  cobra.ExactArgs(1),
	RunE:  runDesireRun,
}

var desireListCmd = &cobra.Command{
	Use:   "list",
	Short: "List desires, strongest first",
	Args:  cobra.NoArgs,
	RunE:  runDesireList,
}

var desireApproveCmd = &cobra.Command{
	Use:   "approve [id]",
	Short: "Approve a queued desire and execute its plan",
	Args:  cobra.ExactArgs(1),
	RunE:  runDesireApprove,
}

func init() {
	f := desireRunCmd.Flags()
	f.StringVar(&desireRunFlags.description, "description", "", "what fulfilling the desire looks like")
	f.StringVar(&desireRunFlags.reason, "reason", "", "why the agent holds this desire")
	f.Float64Var(&desireRunFlags.strength, "strength", 0.5, "desire strength in [0,1]")
	f.StringVar(&desireRunFlags.trust, "trust", "low", "required trust level (none, low, medium, high, full)")

	desireCmd.AddCommand(desireRunCmd)
	desireCmd.AddCommand(desireListCmd)
	desireCmd.AddCommand(desireApproveCmd)
}

func runDesireRun(cmd *cobra.Command, args []string) error {
	rt, err := buildRuntime()
	if err != nil {
		return err
	}
	defer rt.Close()

	now := time.Now().UTC()
	d := &desire.Desire{
		ID:            uuid.NewString(),
		User:          rt.cfg.User,
		Title:         args[0],
		Description:   desireRunFlags.description,
		Reason:        desireRunFlags.reason,
		Strength:      desireRunFlags.strength,
		RequiredTrust: skill.TrustLevel(desireRunFlags.trust),
		Status:        desire.StatusProposed,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	d, err = rt.pipeline.Run(cmd.Context(), d)
	if err != nil {
		return fmt.Errorf("desire run: %w", err)
	}

	printDesireResult(cmd, d)

	if d.Status == desire.StatusQueued {
		if _, err := rt.queue.Enqueue(rt.cfg.User, "approval", map[string]any{"desire": d.ID}); err != nil {
			return fmt.Errorf("park approval request: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "queued for approval: volition desire approve %s\n", d.ID)
	}
	return nil
}

func printDesireResult(cmd *cobra.Command, d *desire.Desire) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Desire:  %s (%s)\n", d.Title, d.ID)
	fmt.Fprintf(out, "Status:  %s\n", d.Status)
	if d.Review != nil {
		fmt.Fprintf(out, "Verdict: %s (combined %.2f, risk %s)\n",
			d.Review.Verdict, d.Review.CombinedScore, d.Review.Risk)
		fmt.Fprintf(out, "Reason:  %s\n", d.Review.Reasoning)
	}
	if d.Execution != nil {
		fmt.Fprintf(out, "Steps:   %d/%d completed\n",
			d.Execution.StepsCompleted, len(d.Execution.StepResults))
	}
	if d.Outcome != nil {
		fmt.Fprintf(out, "Outcome: %s (%.2f) %s\n",
			d.Outcome.Verdict, d.Outcome.SuccessScore, d.Outcome.Reasoning)
	}
}

func runDesireList(cmd *cobra.Command, _ []string) error {
	rt, err := buildRuntime()
	if err != nil {
		return err
	}
	defer rt.Close()

	list, err := rt.desires.List(cmd.Context(), rt.cfg.User)
	if err != nil {
		return fmt.Errorf("list desires: %w", err)
	}
	if len(list) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "no desires recorded")
		return nil
	}

	tbl := format.NewTable(format.ASCII)
	tbl.Header("ID", "TITLE", "STRENGTH", "STATUS", "VERDICT")
	for _, d := range list {
		verdict := ""
		if d.Review != nil {
			verdict = string(d.Review.Verdict)
		}
		tbl.Row(format.ShortID(d.ID), format.Truncate(d.Title, 40),
			fmt.Sprintf("%.2f", d.Strength), string(d.Status), verdict)
	}
	fmt.Fprintln(cmd.OutOrStdout(), tbl.String())
	return nil
}

func runDesireApprove(cmd *cobra.Command, args []string) error {
	rt, err := buildRuntime()
	if err != nil {
		return err
	}
	defer rt.Close()

	d, err := rt.desires.Get(cmd.Context(), rt.cfg.User, args[0])
	if err != nil {
		return fmt.Errorf("load desire %s: %w", args[0], err)
	}
	if d.Status != desire.StatusQueued {
		return fmt.Errorf("desire %s is %s, only queued desires can be approved", d.ID, d.Status)
	}

	d.Status = desire.StatusApproved
	d, err = rt.pipeline.ExecuteApproved(cmd.Context(), d)
	if err != nil {
		return fmt.Errorf("execute approved desire: %w", err)
	}

	printDesireResult(cmd, d)
	return nil
}
