// Copyright (C) 2025 Dyne.org foundation
// designed, written and maintained by Denis Roio <jaromil@dyne.org>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

//go:build linux

package sysinfo

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sys/unix"
)

const (
	procRoot       = "/proc"
	cpuSampleDelay = 500 * time.Millisecond
	topProcesses   = 10
)

func general() (string, error) {
	var uts unix.Utsname
	if err := unix.Uname(&uts); err != nil {
		return "", fmt.Errorf("uname failed: %v", err)
	}
	var si unix.Sysinfo_t
	if err := unix.Sysinfo(&si); err != nil {
		return "", fmt.Errorf("sysinfo failed: %v", err)
	}
	hostname, _ := os.Hostname()

	var b strings.Builder
	b.WriteString("General system information:\n\n")
	fmt.Fprintf(&b, "Hostname: %s\n", hostname)
	fmt.Fprintf(&b, "System: %s %s\n", unix.ByteSliceToString(uts.Sysname[:]), unix.ByteSliceToString(uts.Release[:]))
	fmt.Fprintf(&b, "Version: %s\n", unix.ByteSliceToString(uts.Version[:]))
	fmt.Fprintf(&b, "Architecture: %s\n", unix.ByteSliceToString(uts.Machine[:]))
	fmt.Fprintf(&b, "Uptime: %s\n", (time.Duration(si.Uptime) * time.Second).String())
	fmt.Fprintf(&b, "Processes: %d", si.Procs)
	return b.String(), nil
}

func cpu(ctx context.Context) (string, error) {
	var si unix.Sysinfo_t
	if err := unix.Sysinfo(&si); err != nil {
		return "", fmt.Errorf("sysinfo failed: %v", err)
	}
	// load averages are fixed point with 16 fractional bits
	const loadScale = 65536.0

	var b strings.Builder
	b.WriteString("CPU information:\n\n")
	if model := cpuModel(); model != "" {
		fmt.Fprintf(&b, "Model: %s\n", model)
	}
	fmt.Fprintf(&b, "Logical CPUs: %d\n", runtime.NumCPU())
	fmt.Fprintf(&b, "Load average: %.2f %.2f %.2f\n",
		float64(si.Loads[0])/loadScale, float64(si.Loads[1])/loadScale, float64(si.Loads[2])/loadScale)

	usage, err := cpuUsage(ctx)
	if err != nil {
		return "", err
	}
	fmt.Fprintf(&b, "Usage: %.1f%%", usage)
	return b.String(), nil
}

func cpuModel() string {
	f, err := os.Open(filepath.Join(procRoot, "cpuinfo"))
	if err != nil {
		return ""
	}
	defer f.Close()
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		key, value, ok := strings.Cut(sc.Text(), ":")
		if ok && strings.TrimSpace(key) == "model name" {
			return strings.TrimSpace(value)
		}
	}
	return ""
}

// cpuUsage samples the aggregate counters of /proc/stat twice.
func cpuUsage(ctx context.Context) (float64, error) {
	idle1, total1, err := readCPUTimes()
	if err != nil {
		return 0, err
	}
	select {
	case <-ctx.Done():
		return 0, ctx.Err()
	case <-time.After(cpuSampleDelay):
	}
	idle2, total2, err := readCPUTimes()
	if err != nil {
		return 0, err
	}
	if total2 <= total1 {
		return 0, nil
	}
	busy := (total2 - total1) - (idle2 - idle1)
	return percent(busy, total2-total1), nil
}

func readCPUTimes() (idle, total uint64, err error) {
	data, err := os.ReadFile(filepath.Join(procRoot, "stat"))
	if err != nil {
		return 0, 0, fmt.Errorf("failed to read cpu counters: %v", err)
	}
	line, _, _ := strings.Cut(string(data), "\n")
	fields := strings.Fields(line)
	if len(fields) < 5 || fields[0] != "cpu" {
		return 0, 0, fmt.Errorf("unexpected /proc/stat format")
	}
	for i, field := range fields[1:] {
		v, err := strconv.ParseUint(field, 10, 64)
		if err != nil {
			return 0, 0, fmt.Errorf("unexpected /proc/stat value %q", field)
		}
		total += v
		// idle and iowait
		if i == 3 || i == 4 {
			idle += v
		}
	}
	return idle, total, nil
}

func memory() (string, error) {
	var si unix.Sysinfo_t
	if err := unix.Sysinfo(&si); err != nil {
		return "", fmt.Errorf("sysinfo failed: %v", err)
	}
	unit := uint64(si.Unit)
	if unit == 0 {
		unit = 1
	}
	total := uint64(si.Totalram) * unit
	free := uint64(si.Freeram) * unit
	buffers := uint64(si.Bufferram) * unit
	used := total - free - buffers
	swapTotal := uint64(si.Totalswap) * unit
	swapUsed := swapTotal - uint64(si.Freeswap)*unit

	var b strings.Builder
	b.WriteString("Memory information:\n\n")
	fmt.Fprintf(&b, "Total: %s\n", FormatBytes(total))
	fmt.Fprintf(&b, "Used: %s (%.1f%%)\n", FormatBytes(used), percent(used, total))
	fmt.Fprintf(&b, "Free: %s\n", FormatBytes(free))
	fmt.Fprintf(&b, "Buffers: %s\n", FormatBytes(buffers))
	fmt.Fprintf(&b, "Swap: %s used of %s", FormatBytes(swapUsed), FormatBytes(swapTotal))
	return b.String(), nil
}

func disk(path string) (string, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return "", fmt.Errorf("statfs %s failed: %v", path, err)
	}
	bsize := uint64(st.Bsize)
	total := uint64(st.Blocks) * bsize
	free := uint64(st.Bavail) * bsize
	used := total - uint64(st.Bfree)*bsize

	var b strings.Builder
	fmt.Fprintf(&b, "Disk usage of %s:\n\n", path)
	fmt.Fprintf(&b, "Total: %s\n", FormatBytes(total))
	fmt.Fprintf(&b, "Used: %s (%.1f%%)\n", FormatBytes(used), percent(used, total))
	fmt.Fprintf(&b, "Available: %s", FormatBytes(free))
	return b.String(), nil
}

type procEntry struct {
	pid  int
	name string
	rss  uint64
}

func processes(ctx context.Context) (string, error) {
	entries, err := os.ReadDir(procRoot)
	if err != nil {
		return "", fmt.Errorf("failed to list processes: %v", err)
	}
	pageSize := uint64(unix.Getpagesize())

	var procs []procEntry
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		pid, err := strconv.Atoi(entry.Name())
		if err != nil {
			continue
		}
		p, ok := readProcStat(pid, pageSize)
		if ok {
			procs = append(procs, p)
		}
	}
	sort.Slice(procs, func(i, j int) bool {
		if procs[i].rss != procs[j].rss {
			return procs[i].rss > procs[j].rss
		}
		return procs[i].pid < procs[j].pid
	})

	var b strings.Builder
	fmt.Fprintf(&b, "Processes: %d running\n\nTop %d by memory:\n", len(procs), min(topProcesses, len(procs)))
	for i, p := range procs {
		if i == topProcesses {
			break
		}
		fmt.Fprintf(&b, "  %-8d %-24s %s\n", p.pid, p.name, FormatBytes(p.rss))
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

// readProcStat parses /proc/<pid>/stat. The command name is parenthesized
// and may itself contain spaces or parentheses.
func readProcStat(pid int, pageSize uint64) (procEntry, bool) {
	data, err := os.ReadFile(filepath.Join(procRoot, strconv.Itoa(pid), "stat"))
	if err != nil {
		return procEntry{}, false
	}
	s := string(data)
	nameStart := strings.IndexByte(s, '(')
	nameEnd := strings.LastIndexByte(s, ')')
	if nameStart < 0 || nameEnd < nameStart {
		return procEntry{}, false
	}
	fields := strings.Fields(s[nameEnd+1:])
	// rss is field 24 overall, 22nd after the command name
	if len(fields) < 22 {
		return procEntry{}, false
	}
	pages, err := strconv.ParseUint(fields[21], 10, 64)
	if err != nil {
		return procEntry{}, false
	}
	return procEntry{pid: pid, name: s[nameStart+1 : nameEnd], rss: pages * pageSize}, true
}
