//go:build linux

package hal

import (
	"fmt"
	"os"
	"syscall"
)

func reexec(env []string) error {
	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("locate executable: %w", err)
	}
	if err := syscall.Exec(exe, os.Args, env); err != nil {
		return fmt.Errorf("exec %s: %w", exe, err)
	}
	return nil
}
