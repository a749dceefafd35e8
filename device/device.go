// Package device finds out what a path points at before burnin destroys it:
// capacity, physical block size, whether it is a whole disk or a partition,
// whether it spins, and whether anything has it mounted.
package device

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"
)

// DefaultBufferSize is used when a device has no physical block size.
const DefaultBufferSize = 8192

var (
	// ErrNotBlockDevice is returned for paths that are neither block devices nor image files.
	ErrNotBlockDevice = errors.New("the device under test must be a valid block device")
	// ErrUnsafe is returned by Check when a device fails a sanity check.
	ErrUnsafe = errors.New("refusing to test device")
	// ErrEmptyImage is returned by Check for an image file of size 0. Image
	// files grow instead of filling up, so they have to be created at size.
	ErrEmptyImage = errors.New("image file is empty")
)

// Media is the kind of storage behind a device.
type Media int

const (
	MediaUnknown Media = iota
	MediaRotational
	MediaSolidState
	// MediaImage is a regular file standing in for a disk.
	MediaImage
)

func (m Media) String() string {
	switch m {
	case MediaRotational:
		return "rotational"
	case MediaSolidState:
		return "solid-state"
	case MediaImage:
		return "image"
	default:
		return "unknown"
	}
}

// Info describes a device under test.
type Info struct {
	Path string
	// Resolved is Path with symlinks such as /dev/disk/by-id/... followed.
	Resolved string
	// Whole is the disk a partition belongs to, or Resolved for whole disks.
	Whole    string
	Capacity uint64
	// PhysicalBlockSize is 0 when the platform does not report one.
	PhysicalBlockSize uint64
	Media             Media
	Partition         bool
	Serial            string
	Model             string
	// Mounts lists mount points of the device or any of its partitions.
	Mounts []string
	// Classified is false on platforms where Media and Partition are guesses.
	Classified bool
}

// Prober inspects a device path.
type Prober interface {
	Probe(path string) (Info, error)
}

// CheckPolicy holds the overrides for the sanity checks.
type CheckPolicy struct {
	AllowAnyMedia       bool
	AllowAnyBlockDevice bool
	SkipChecks          bool
}

// Check refuses devices that are unsafe to overwrite unless the policy
// allows them. Overrides that were needed are logged as warnings. Empty
// image files are refused even when the checks are skipped.
func Check(info Info, policy CheckPolicy, log *logrus.Entry) error {
	log = log.WithField("device", info.Path)
	if info.Media == MediaImage && info.Capacity == 0 {
		return fmt.Errorf("%w: %w: create %s at the size to test first (e.g. truncate -s 1G %s)",
			ErrUnsafe, ErrEmptyImage, info.Path, info.Path)
	}
	if policy.SkipChecks {
		log.Warn("Skipping all sanity checks")
		return nil
	}
	if !info.Classified {
		return fmt.Errorf("%w: there is no way to run sanity checks on this platform; "+
			"run with --i-know-what-im-doing-let-me-skip-sanity-checks if you want to destroy %s anyway", ErrUnsafe, info.Path)
	}
	if len(info.Mounts) > 0 {
		return fmt.Errorf("%w: %s is mounted at %s", ErrUnsafe, info.Path, strings.Join(info.Mounts, ", "))
	}
	if info.Media == MediaImage {
		return nil
	}
	if info.Partition {
		if !policy.AllowAnyBlockDevice {
			return fmt.Errorf("%w: %s is not a whole disk but a partition of %s; "+
				"pass --allow-any-block-device to run tests anyway", ErrUnsafe, info.Path, info.Whole)
		}
		log.WithField("whole", info.Whole).Warn("Testing a partition but running tests anyway")
	}
	if info.Media != MediaRotational {
		if !policy.AllowAnyMedia {
			return fmt.Errorf("%w: %s is not a rotational disk (%s) - this tool may be harmful to solid-state drives and others; "+
				"pass --allow-any-media to run anyway", ErrUnsafe, info.Path, info.Media)
		}
		log.WithField("media", info.Media.String()).Warn("Media type is not as expected but running tests anyway")
	}
	return nil
}

// BufferSizeFor picks the chunk size: the override if set, else the
// physical block size, else DefaultBufferSize.
func BufferSizeFor(info Info, override int) int {
	if override > 0 {
		return override
	}
	if info.PhysicalBlockSize > 0 {
		return int(info.PhysicalBlockSize)
	}
	return DefaultBufferSize
}

// Describe renders the info block printed by "device info".
func (i Info) Describe() []string {
	lines := []string{
		fmt.Sprintf("  Input:    %s", i.Path),
	}
	if i.Resolved != "" && i.Resolved != i.Path {
		lines = append(lines, fmt.Sprintf("  Device:   %s", i.Resolved))
	}
	if i.Whole != "" && i.Whole != i.Resolved {
		lines = append(lines, fmt.Sprintf("  Whole:    %s", i.Whole))
	}
	if i.Capacity > 0 {
		lines = append(lines, fmt.Sprintf("  Size:     %s (%d bytes)", humanize.IBytes(i.Capacity), i.Capacity))
	}
	if i.PhysicalBlockSize > 0 {
		lines = append(lines, fmt.Sprintf("  Block:    %d bytes", i.PhysicalBlockSize))
	}
	lines = append(lines, fmt.Sprintf("  Media:    %s", i.Media))
	if i.Partition {
		lines = append(lines, "  Type:     partition")
	}
	if i.Model != "" {
		lines = append(lines, fmt.Sprintf("  Model:    %s", i.Model))
	}
	if i.Serial != "" {
		lines = append(lines, fmt.Sprintf("  Serial:   %s", i.Serial))
	}
	for _, m := range i.Mounts {
		lines = append(lines, fmt.Sprintf("  Mounted:  %s", m))
	}
	return lines
}

// Entry is one line of the device listing.
type Entry struct {
	Path       string
	Compatible bool
	Reason     string
}
