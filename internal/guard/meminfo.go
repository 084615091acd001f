package guard

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// parseMeminfo reads MemTotal and MemAvailable from /proc/meminfo content.
// Page cache counts as available, so a model mapped into memory does not
// look like pressure. ok is false when either field is missing.
func parseMeminfo(r io.Reader) (sample HealthSample, ok bool, err error) {
	var total, available uint64
	var haveTotal, haveAvailable bool

	sc := bufio.NewScanner(r)
	for sc.Scan() {
		key, rest, found := strings.Cut(sc.Text(), ":")
		if !found {
			continue
		}
		fields := strings.Fields(rest)
		if len(fields) == 0 {
			continue
		}
		switch key {
		case "MemTotal":
			total, err = strconv.ParseUint(fields[0], 10, 64)
			haveTotal = err == nil
		case "MemAvailable":
			available, err = strconv.ParseUint(fields[0], 10, 64)
			haveAvailable = err == nil
		default:
			continue
		}
		if err != nil {
			return HealthSample{}, false, fmt.Errorf("parsing %s: %w", key, err)
		}
	}
	if err := sc.Err(); err != nil {
		return HealthSample{}, false, fmt.Errorf("reading meminfo: %w", err)
	}
	if !haveTotal || !haveAvailable || total == 0 {
		return HealthSample{}, false, nil
	}
	if available > total {
		available = total
	}
	used := float64(total-available) / float64(total) * 100
	return HealthSample{MemoryUsedPercent: used}, true, nil
}
