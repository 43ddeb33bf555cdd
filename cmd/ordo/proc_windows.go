//go:build windows

package main

import "os/exec"

// Windows has no Setsid; a started process already outlives the CLI.
func configureDaemonProc(cmd *exec.Cmd) {}
