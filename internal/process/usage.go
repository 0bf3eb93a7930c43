package process

import (
	gopsprocess "github.com/shirou/gopsutil/v3/process"
)

// Usage is a point-in-time resource snapshot of a child and its descendants
type Usage struct {
	Processes int    `json:"processes"`
	RSSBytes  uint64 `json:"rss_bytes"`
}

// TreeUsage sums resident memory over pid and every descendant.
// Processes that vanish mid-walk are skipped.
func TreeUsage(pid int) (Usage, error) {
	root, err := gopsprocess.NewProcess(int32(pid))
	if err != nil {
		return Usage{}, err
	}

	var usage Usage
	addUsage(&usage, root)
	for _, child := range descendants(int32(pid)) {
		p, err := gopsprocess.NewProcess(child)
		if err != nil {
			continue
		}
		addUsage(&usage, p)
	}
	return usage, nil
}

func addUsage(usage *Usage, p *gopsprocess.Process) {
	mem, err := p.MemoryInfo()
	if err != nil {
		return
	}
	usage.Processes++
	usage.RSSBytes += mem.RSS
}
