package rendezvous

import (
	"context"
	"fmt"
	"os/exec"
	"runtime"
)

// ExecOpener opens URIs in the system browser. It satisfies URLOpener for
// clients running outside a browser shell.
type ExecOpener struct{}

// OpenURL implements URLOpener.
func (ExecOpener) OpenURL(ctx context.Context, uri string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.CommandContext(ctx, "open", uri)
	case "windows":
		cmd = exec.CommandContext(ctx, "rundll32", "url.dll,FileProtocolHandler", uri)
	default:
		cmd = exec.CommandContext(ctx, "xdg-open", uri)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to open %q: %w", uri, err)
	}
	return nil
}
