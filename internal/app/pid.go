// Package app wires the chorus services from config and runs the server process.
package app

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"syscall"
	"time"
)

// ReadPID returns the pid recorded in pidFile if that process is still alive, or 0.
func ReadPID(pidFile string) int {
	data, err := os.ReadFile(pidFile)
	if err != nil {
		return 0
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		return 0
	}

	if process.Signal(syscall.Signal(0)) != nil {
		return 0
	}

	return pid
}

// StopServer sends SIGTERM to the server recorded in pidFile and waits for it to exit.
// It returns the pid that was stopped, or 0 if no server was running.
func StopServer(pidFile string, wait time.Duration) (int, error) {
	pid := ReadPID(pidFile)
	if pid == 0 {
		return 0, nil
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		return 0, err
	}
	if err := process.Signal(syscall.SIGTERM); err != nil {
		return pid, err
	}

	deadline := time.Now().Add(wait)
	for time.Now().Before(deadline) {
		if ReadPID(pidFile) == 0 {
			return pid, nil
		}
		time.Sleep(100 * time.Millisecond)
	}
	return pid, errors.New("server did not exit in time")
}
