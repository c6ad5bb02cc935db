// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package procgroup

import "github.com/prometheus/procfs"

// liveMembers counts non-zombie processes in group pgid from /proc.
// known is false when /proc cannot be read.
func liveMembers(pgid int) (live int, known bool) {
	procs, err := procfs.AllProcs()
	if err != nil {
		return 0, false
	}
	for _, p := range procs {
		st, err := p.Stat()
		if err != nil {
			// exited between listing and reading
			continue
		}
		if st.PGRP == pgid && st.State != "Z" && st.State != "X" {
			live++
		}
	}
	return live, true
}
