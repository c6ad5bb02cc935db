// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

//go:build unix && !linux

package procgroup

// liveMembers has no portable source outside Linux; callers fall back to
// the signal-0 probe.
func liveMembers(int) (int, bool) { return 0, false }
