package proctree

import (
	"context"

	"github.com/shirou/gopsutil/v4/process"
)

// psSnapshot reads the process table through gopsutil. Processes that exit
// while the table is being read are skipped.
func psSnapshot(ctx context.Context) ([]Record, error) {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &PlatformUnsupportedError{Op: "snapshot", Err: err}
	}

	records := make([]Record, 0, len(procs))
	for _, p := range procs {
		ppid, err := p.PpidWithContext(ctx)
		if err != nil {
			continue
		}
		records = append(records, Record{PID: int(p.Pid), PPID: int(ppid)})
	}
	return records, nil
}
