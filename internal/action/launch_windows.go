//go:build windows

package action

import (
	"fmt"
	"os/exec"
	"unsafe"

	"golang.org/x/sys/windows"
)

var (
	modshell32       = windows.NewLazySystemDLL("shell32.dll")
	procShellExecute = modshell32.NewProc("ShellExecuteW")
)

const swShowNormal = 1

// launchElevated launches an executable through the shell with the
// "runas" verb, which raises the UAC prompt. ShellExecuteW returns a
// value above 32 on success.
func launchElevated(path, args, dir string) error {
	verb, err := windows.UTF16PtrFromString("runas")
	if err != nil {
		return err
	}
	file, err := windows.UTF16PtrFromString(path)
	if err != nil {
		return err
	}

	var argPtr, dirPtr *uint16
	if args != "" {
		if argPtr, err = windows.UTF16PtrFromString(args); err != nil {
			return err
		}
	}
	if dir != "" {
		if dirPtr, err = windows.UTF16PtrFromString(dir); err != nil {
			return err
		}
	}

	ret, _, _ := procShellExecute.Call(
		0,
		uintptr(unsafe.Pointer(verb)),
		uintptr(unsafe.Pointer(file)),
		uintptr(unsafe.Pointer(argPtr)),
		uintptr(unsafe.Pointer(dirPtr)),
		swShowNormal,
	)
	if ret <= 32 {
		return fmt.Errorf("elevated launch failed with code %d", ret)
	}
	return nil
}

func shellCommand(parts []string) *exec.Cmd {
	return exec.Command("cmd", append([]string{"/C"}, parts...)...)
}
