package process

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

// DefaultCgroupRoot is where the unified (v2) hierarchy is mounted
const DefaultCgroupRoot = "/sys/fs/cgroup"

// errNoCgroupV2 is returned when the unified hierarchy is not mounted at root
var errNoCgroupV2 = errors.New("cgroup v2 not available")

func cgroupV2(root string) bool {
	_, err := os.Stat(filepath.Join(root, "cgroup.controllers"))
	return err == nil
}

// createCgroup makes <root>/kiosk/<name> with memory.max set.
// The memory controller is enabled for the kiosk subtree on the way.
func createCgroup(root, name string, memoryMax int64) (string, error) {
	if memoryMax <= 0 {
		return "", fmt.Errorf("invalid memory limit: %d", memoryMax)
	}
	if !cgroupV2(root) {
		return "", errNoCgroupV2
	}

	parent := filepath.Join(root, "kiosk")
	if err := os.MkdirAll(parent, 0755); err != nil {
		return "", fmt.Errorf("failed to create cgroup %s: %w", parent, err)
	}
	// Usually already enabled by systemd; a failure shows up when memory.max is written
	_ = os.WriteFile(filepath.Join(parent, "cgroup.subtree_control"), []byte("+memory"), 0644)

	path := filepath.Join(parent, name)
	if err := os.MkdirAll(path, 0755); err != nil {
		return "", fmt.Errorf("failed to create cgroup %s: %w", path, err)
	}

	if err := os.WriteFile(filepath.Join(path, "memory.max"), []byte(strconv.FormatInt(memoryMax, 10)), 0644); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("failed to set memory.max: %w", err)
	}
	return path, nil
}

// joinCgroup moves pid into the cgroup. Children forked later inherit it.
func joinCgroup(path string, pid int) error {
	if pid <= 0 {
		return fmt.Errorf("invalid pid: %d", pid)
	}
	return os.WriteFile(filepath.Join(path, "cgroup.procs"), []byte(strconv.Itoa(pid)), 0644)
}

// removeCgroup deletes an empty cgroup. The kernel refuses while processes remain.
func removeCgroup(path string) error {
	if path == "" {
		return nil
	}
	return os.Remove(path)
}
