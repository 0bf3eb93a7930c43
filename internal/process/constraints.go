package process

import (
	"fmt"
	"os"
	"strconv"

	"golang.org/x/sys/unix"
)

// Constraints are best-effort OS-level settings applied to the child after start
type Constraints struct {
	NicePriority int   // -20 to 19, 0 = leave alone
	OOMScoreAdj  int   // -1000 to 1000, 0 = leave alone
	MemoryMax    int64 // bytes for the whole browser tree (cgroup v2), 0 = no limit
}

// Validate clamps constraints into their kernel ranges
func (c *Constraints) Validate() {
	if c.NicePriority < -20 {
		c.NicePriority = -20
	} else if c.NicePriority > 19 {
		c.NicePriority = 19
	}

	if c.OOMScoreAdj < -1000 {
		c.OOMScoreAdj = -1000
	} else if c.OOMScoreAdj > 1000 {
		c.OOMScoreAdj = 1000
	}

	if c.MemoryMax < 0 {
		c.MemoryMax = 0
	}
}

// ApplyNicePriority sets the scheduling priority of pid
func ApplyNicePriority(pid int, niceness int) error {
	if niceness == 0 {
		return nil
	}
	if err := unix.Setpriority(unix.PRIO_PROCESS, pid, niceness); err != nil {
		return fmt.Errorf("failed to set priority %d on pid %d: %w", niceness, pid, err)
	}
	return nil
}

// ApplyOOMScoreAdj writes /proc/<pid>/oom_score_adj
func ApplyOOMScoreAdj(pid int, score int) error {
	if score == 0 {
		return nil
	}
	path := fmt.Sprintf("/proc/%d/oom_score_adj", pid)
	if err := os.WriteFile(path, []byte(strconv.Itoa(score)), 0644); err != nil {
		return fmt.Errorf("failed to set OOM score %d on pid %d: %w", score, pid, err)
	}
	return nil
}
