package copilot

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Supported language server version bounds. Servers newer than the
// latest supported version changed the watchedFiles contract and are
// rejected.
const (
	LatestSupportedVersion  = "1.48.0"
	MinimumSupportedVersion = "1.32.0"
)

// InstallState classifies the on-disk installation.
type InstallState int

const (
	// InstallNotInstalled means the server binary is absent.
	InstallNotInstalled InstallState = iota
	// InstallInstalled means the installed version is the supported one.
	InstallInstalled
	// InstallOutdated means an older version is installed; Mandatory
	// marks versions below the minimum that cannot be used at all.
	InstallOutdated
	// InstallUnsupported means the installed version is newer than
	// the latest supported one.
	InstallUnsupported
)

// String returns a human-readable state name.
func (s InstallState) String() string {
	switch s {
	case InstallNotInstalled:
		return "not installed"
	case InstallInstalled:
		return "installed"
	case InstallOutdated:
		return "outdated"
	case InstallUnsupported:
		return "unsupported"
	default:
		return fmt.Sprintf("unknown(%d)", s)
	}
}

// Installation describes the on-disk language server.
type Installation struct {
	State     InstallState
	Current   string
	Latest    string
	Mandatory bool
}

const (
	binaryDirName     = "copilot"
	versionMarkerName = "version"
)

// CheckInstallation inspects dir for the server binary directory and
// its plain-text version marker file.
func CheckInstallation(dir string) Installation {
	binaryPath := filepath.Join(dir, binaryDirName)
	markerPath := filepath.Join(dir, versionMarkerName)

	if _, err := os.Stat(binaryPath); err != nil {
		return Installation{State: InstallNotInstalled, Latest: LatestSupportedVersion}
	}

	data, err := os.ReadFile(markerPath)
	if err != nil {
		return Installation{
			State:   InstallOutdated,
			Current: "Unknown",
			Latest:  LatestSupportedVersion,
		}
	}
	version := strings.TrimSpace(string(data))

	switch compareVersions(version, LatestSupportedVersion) {
	case -1:
		mandatory := compareVersions(version, MinimumSupportedVersion) < 0
		return Installation{
			State:     InstallOutdated,
			Current:   version,
			Latest:    LatestSupportedVersion,
			Mandatory: mandatory,
		}
	case 0:
		return Installation{State: InstallInstalled, Current: version, Latest: LatestSupportedVersion}
	default:
		return Installation{State: InstallUnsupported, Current: version, Latest: LatestSupportedVersion}
	}
}

// WriteVersionMarker records the installed version in dir.
func WriteVersionMarker(dir, version string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create install dir: %w", err)
	}
	path := filepath.Join(dir, versionMarkerName)
	if err := os.WriteFile(path, []byte(version), 0o644); err != nil {
		return fmt.Errorf("write version marker: %w", err)
	}
	return nil
}

// Uninstall removes the server binary directory and version marker.
func Uninstall(dir string) error {
	if err := os.RemoveAll(filepath.Join(dir, binaryDirName)); err != nil {
		return fmt.Errorf("remove binary: %w", err)
	}
	if err := os.Remove(filepath.Join(dir, versionMarkerName)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove version marker: %w", err)
	}
	return nil
}

// compareVersions compares dotted numeric versions, returning -1, 0,
// or 1. Non-numeric segments compare as zero.
func compareVersions(a, b string) int {
	as := strings.Split(a, ".")
	bs := strings.Split(b, ".")
	n := len(as)
	if len(bs) > n {
		n = len(bs)
	}
	for i := 0; i < n; i++ {
		var av, bv int
		if i < len(as) {
			av, _ = strconv.Atoi(as[i])
		}
		if i < len(bs) {
			bv, _ = strconv.Atoi(bs[i])
		}
		if av != bv {
			if av < bv {
				return -1
			}
			return 1
		}
	}
	return 0
}
