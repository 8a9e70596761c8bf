package procrun

import "sync"

// active holds the pids of children that were started and not yet reaped. Each
// child leads its own process group.
var active = struct {
	sync.Mutex
	pids map[int]struct{}
}{pids: make(map[int]struct{})}

func track(pid int) (untrack func()) {
	active.Lock()
	active.pids[pid] = struct{}{}
	active.Unlock()
	return func() {
		active.Lock()
		delete(active.pids, pid)
		active.Unlock()
	}
}

// KillActive kills the process group of every tool still running and returns
// how many groups were signalled. It is meant for a forced exit, where the
// children would otherwise outlive the process.
func KillActive() int {
	active.Lock()
	defer active.Unlock()
	n := 0
	for pid := range active.pids {
		if killGroup(pid) == nil {
			n++
		}
	}
	return n
}

func activeCount() int {
	active.Lock()
	defer active.Unlock()
	return len(active.pids)
}
