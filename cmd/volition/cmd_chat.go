package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"volition/internal/graph"
)

var chatFlags struct {
	conversational bool
	session        string
}

var chatCmd = &cobra.Command{
	Use:   "chat [message]",
	Short: "Send one message through the agent loop",
	Long: `Runs one turn of the agent: conversational messages get a direct
answer; goals run plan/act/observe iterations against the registered
skills, with stuck detection and escalation.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runChat,
}

func init() {
	f := chatCmd.Flags()
	f.BoolVar(&chatFlags.conversational, "conversational", false, "skip planning and answer directly")
	f.StringVar(&chatFlags.session, "session", "cli", "session id for history scoping")
}

func runChat(cmd *cobra.Command, args []string) error {
	rt, err := buildRuntime()
	if err != nil {
		return err
	}
	defer rt.Close()

	message := strings.Join(args, " ")
	rc := graph.NewRunContext(rt.cfg.User, chatFlags.session, rt.cfg.Policy.Mode)

	res, err := rt.loop.Run(cmd.Context(), rc, message, chatFlags.conversational)
	if err != nil {
		return fmt.Errorf("chat: %w", err)
	}

	out := cmd.OutOrStdout()
	switch {
	case res.Completed:
		fmt.Fprintln(out, res.FinalAnswer)
	case res.Stuck:
		fmt.Fprintf(out, "stuck after %d iterations: %s\n", res.Iterations, res.StuckReason)
		if res.Advice != nil {
			if res.Advice.Reasoning != "" {
				fmt.Fprintf(out, "escalation: %s\n", res.Advice.Reasoning)
			}
			for _, s := range res.Advice.Suggestions {
				fmt.Fprintf(out, "  - %s\n", s)
			}
		}
	}
	return nil
}
