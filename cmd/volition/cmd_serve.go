package main

import (
	"github.com/spf13/cobra"

	mcpserver "volition/internal/mcp"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve MCP over stdio",
	Long: `Starts an MCP server on stdin/stdout exposing chat, desire_run,
desire_list, and queue_status. Editor agents connect via their MCP config.

The server watches its parent process and self-terminates when the
client dies, so disconnects do not leave zombie servers behind.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	rt, err := buildRuntime()
	if err != nil {
		return err
	}
	defer rt.Close()

	srv := mcpserver.NewServer(mcpserver.Runtime{
		User:     rt.cfg.User,
		Mode:     rt.cfg.Policy.Mode,
		Loop:     rt.loop,
		Pipeline: rt.pipeline,
		Desires:  rt.desires,
		Queue:    rt.queue,
	})
	return srv.Run(cmd.Context())
}
