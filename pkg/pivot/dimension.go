package pivot

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/fio-analyzer/server/pkg/models"
)

// Dimension names an axis that can be derived from a run. The set is
// closed on purpose: resolution is a switch over these constants, never a
// dynamic field lookup, so an unknown name fails loudly at the boundary.
type Dimension string

const (
	DimBlockSize         Dimension = "block_size"
	DimQueueDepth        Dimension = "queue_depth"
	DimNumJobs           Dimension = "num_jobs"
	DimIODepth           Dimension = "iodepth"
	DimPattern           Dimension = "pattern"
	DimHostname          Dimension = "hostname"
	DimProtocol          Dimension = "protocol"
	DimDriveType         Dimension = "drive_type"
	DimDriveModel        Dimension = "drive_model"
	DimHostDevice        Dimension = "host_device"
	DimHostDevicePattern Dimension = "host_device_pattern"
)

// Default selection when the caller picks an invalid pair: devices down
// the side, block sizes across the top.
const (
	DefaultRowDimension = DimHostDevice
	DefaultColDimension = DimBlockSize
)

// AllDimensions lists every dimension the engine understands.
func AllDimensions() []Dimension {
	return []Dimension{
		DimBlockSize, DimQueueDepth, DimNumJobs, DimIODepth, DimPattern,
		DimHostname, DimProtocol, DimDriveType, DimDriveModel,
		DimHostDevice, DimHostDevicePattern,
	}
}

// Valid reports whether d names a known dimension.
func (d Dimension) Valid() bool {
	switch d {
	case DimBlockSize, DimQueueDepth, DimNumJobs, DimIODepth, DimPattern,
		DimHostname, DimProtocol, DimDriveType, DimDriveModel,
		DimHostDevice, DimHostDevicePattern:
		return true
	}
	return false
}

// KeyKind selects the ordering rule for a dimension's keys.
type KeyKind int

const (
	KindSize KeyKind = iota
	KindCount
	KindCategory
)

// Key is one resolved axis value. Join is the grouping identity and is
// always the literal field value; Label may be normalized for display.
// Bytes and Count carry the ordering value for size and count keys; the
// Host/Device/Pattern parts carry the tie-break order for composite
// categorical keys.
type Key struct {
	Label string
	Join  string
	Kind  KeyKind

	Bytes int64
	Count float64

	Host    string
	Device  string
	Pattern string
}

// Resolve projects one run onto a dimension. A nil result means the run
// has no value for that axis and is excluded from grouping; missing is
// not zero.
func Resolve(run models.TestRun, dim Dimension) *Key {
	switch dim {
	case DimBlockSize:
		if run.BlockSize == "" {
			return nil
		}
		return &Key{
			Label: run.BlockSize,
			Join:  run.BlockSize,
			Kind:  KindSize,
			Bytes: ParseBlockSize(run.BlockSize),
		}
	case DimQueueDepth:
		return countKey(run.QueueDepth)
	case DimNumJobs:
		if run.NumJobs == nil {
			return nil
		}
		return countKey(*run.NumJobs)
	case DimIODepth:
		if run.IODepth == nil {
			return nil
		}
		return countKey(*run.IODepth)
	case DimPattern:
		return patternKey(run.ReadWritePattern)
	case DimHostname:
		return categoryKey(run.Hostname, Key{Host: run.Hostname})
	case DimProtocol:
		return categoryKey(run.Protocol, Key{})
	case DimDriveType:
		return categoryKey(run.DriveType, Key{})
	case DimDriveModel:
		return categoryKey(run.DriveModel, Key{Device: run.DriveModel})
	case DimHostDevice:
		return hostDeviceKey(run, "")
	case DimHostDevicePattern:
		return hostDeviceKey(run, run.ReadWritePattern)
	}
	return nil
}

func countKey(n int) *Key {
	s := strconv.Itoa(n)
	return &Key{Label: s, Join: s, Kind: KindCount, Count: float64(n)}
}

func patternKey(raw string) *Key {
	if raw == "" {
		return nil
	}
	norm := NormalizePattern(raw)
	return &Key{Label: norm, Join: raw, Kind: KindCategory, Pattern: norm}
}

func categoryKey(value string, parts Key) *Key {
	if value == "" {
		return nil
	}
	parts.Label = value
	parts.Join = value
	parts.Kind = KindCategory
	return &parts
}

func hostDeviceKey(run models.TestRun, rawPattern string) *Key {
	if run.Hostname == "" || run.Protocol == "" || run.DriveModel == "" {
		return nil
	}
	k := &Key{
		Kind:   KindCategory,
		Host:   run.Hostname,
		Device: fmt.Sprintf("%s - %s", run.Protocol, run.DriveModel),
	}
	k.Label = run.DeviceKey()
	k.Join = k.Label
	if rawPattern != "" {
		k.Pattern = NormalizePattern(rawPattern)
		k.Label = fmt.Sprintf("%s - %s", k.Label, k.Pattern)
		k.Join = fmt.Sprintf("%s - %s", k.Join, rawPattern)
	}
	return k
}

// ParseBlockSize converts an fio block size such as "4K" or "1M" into
// bytes. Units are binary multiples, case-insensitive; a bare number is
// bytes. Malformed input parses to 0 so the key still sorts and displays
// rather than failing the whole grid.
func ParseBlockSize(s string) int64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	mult := int64(1)
	switch s[len(s)-1] {
	case 'k', 'K':
		mult = 1 << 10
		s = s[:len(s)-1]
	case 'm', 'M':
		mult = 1 << 20
		s = s[:len(s)-1]
	case 'g', 'G':
		mult = 1 << 30
		s = s[:len(s)-1]
	case 't', 'T':
		mult = 1 << 40
		s = s[:len(s)-1]
	}
	n, err := strconv.ParseFloat(s, 64)
	if err != nil || n < 0 {
		return 0
	}
	return int64(n * float64(mult))
}

// NormalizePattern expands fio's short pattern names into the display
// vocabulary ("randread" becomes "random_read"). Unknown patterns pass
// through unchanged; grouping always uses the raw value.
func NormalizePattern(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "read":
		return "sequential_read"
	case "write":
		return "sequential_write"
	case "randread":
		return "random_read"
	case "randwrite":
		return "random_write"
	case "rw", "readwrite":
		return "mixed"
	case "randrw":
		return "random_mixed"
	}
	return raw
}
