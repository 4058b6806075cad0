package mcp

import (
	"context"
	"os"
	"time"

	"volition/internal/logging"
)

const parentPollInterval = 2 * time.Second

// WatchParent monitors the parent process in a background goroutine and
// calls cancelFn when it dies, so orphaned stdio servers do not pile up
// after the spawning client exits.
//
// It must NOT read from stdin: the SDK's StdioTransport owns stdin
// exclusively, and stealing bytes here would corrupt the JSON-RPC stream.
// Parent death is detected through getppid changes instead.
func WatchParent(ctx context.Context, cancelFn context.CancelFunc) {
	log := logging.New("mcp")
	ppid := os.Getppid()
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-time.After(parentPollInterval):
				if os.Getppid() != ppid {
					log.Warn("parent process died, shutting down", "was_pid", ppid)
					cancelFn()
					return
				}
			}
		}
	}()
}
