package device

import (
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
)

var videoDevicePattern = regexp.MustCompile(`(\d+)$`)

// ScanDevices lists candidate V4L2 capture devices (/dev/video*), sorted by
// device number. It does not open or probe them; opening parameters stay the
// caller's responsibility.
func ScanDevices() ([]string, error) {
	matches, err := filepath.Glob("/dev/video*")
	if err != nil {
		return nil, err
	}

	sort.Slice(matches, func(i, j int) bool {
		return deviceNumber(matches[i]) < deviceNumber(matches[j])
	})
	return matches, nil
}

// deviceNumber extracts the trailing number from a device path.
// Paths without one sort last.
func deviceNumber(path string) int {
	m := videoDevicePattern.FindStringSubmatch(path)
	if m == nil {
		return int(^uint(0) >> 1)
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return int(^uint(0) >> 1)
	}
	return n
}
