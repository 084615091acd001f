//go:build linux

package guard

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// workerNice is the niceness requested at startup. Negative values need
// CAP_SYS_NICE and usually fail for unprivileged users.
const workerNice = -5

const meminfoPath = "/proc/meminfo"

// sampleHost prefers MemAvailable from /proc/meminfo. Kernels that do not
// report it fall back to sysinfo, which cannot see reclaimable cache.
func sampleHost() (HealthSample, error) {
	if f, err := os.Open(meminfoPath); err == nil {
		sample, ok, perr := parseMeminfo(f)
		f.Close()
		if perr == nil && ok {
			return sample, nil
		}
	}
	return sampleSysinfo()
}

func sampleSysinfo() (HealthSample, error) {
	var info unix.Sysinfo_t
	if err := unix.Sysinfo(&info); err != nil {
		return HealthSample{}, fmt.Errorf("sysinfo: %w", err)
	}
	unit := uint64(info.Unit)
	if unit == 0 {
		unit = 1
	}
	total := uint64(info.Totalram) * unit
	if total == 0 {
		return HealthSample{}, errUnsupported
	}
	free := (uint64(info.Freeram) + uint64(info.Bufferram)) * unit
	if free > total {
		free = total
	}
	used := float64(total-free) / float64(total) * 100
	return HealthSample{MemoryUsedPercent: used}, nil
}

func raisePriority() error {
	return unix.Setpriority(unix.PRIO_PROCESS, 0, workerNice)
}

// pinAffinity restricts the process to cores [reserved, n).
func pinAffinity(reserved, n int) error {
	var set unix.CPUSet
	set.Zero()
	for cpu := reserved; cpu < n; cpu++ {
		set.Set(cpu)
	}
	if set.Count() == 0 {
		return fmt.Errorf("no cores left after reserving %d of %d", reserved, n)
	}
	return unix.SchedSetaffinity(0, &set)
}
