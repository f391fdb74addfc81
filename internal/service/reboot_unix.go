//go:build unix

package service

import (
	"fmt"
	"os"
	"syscall"
)

func execSelf() error {
	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("locate executable: %w", err)
	}
	return syscall.Exec(exe, os.Args, os.Environ())
}
