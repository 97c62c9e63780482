//go:build !windows

package action

import (
	"fmt"
	"os/exec"
	"strings"
)

func launchElevated(path, args, dir string) error {
	return fmt.Errorf("elevated launch not supported on this platform")
}

func shellCommand(parts []string) *exec.Cmd {
	return exec.Command("sh", "-c", strings.Join(parts, " "))
}
