package build

import "runtime/debug"

// Version is overridden at link time with -ldflags "-X arena-harness/build.Version=...".
var Version = "0.1.0-dev"

type Info struct {
	Path       string `json:"path,omitempty"`
	Checksum   string `json:"checksum,omitempty"`
	CommitHash string `json:"commitHash,omitempty"`
	CommitTime string `json:"commitTime,omitempty"`
	Modified   bool   `json:"modified,omitempty"`
}

func GetBuildInfo() *Info {
	result := &Info{}

	if bi, ok := debug.ReadBuildInfo(); ok {
		result.Path = bi.Main.Path
		result.Checksum = bi.Main.Sum

		for _, s := range bi.Settings {
			switch s.Key {
			case "vcs.revision":
				result.CommitHash = s.Value
			case "vcs.time":
				result.CommitTime = s.Value
			case "vcs.modified":
				result.Modified = s.Value == "true"
			}
		}
	}
	return result
}

// VersionString is what `arena --version` prints.
func VersionString() string {
	info := GetBuildInfo()
	if info.CommitHash == "" {
		return Version
	}
	hash := info.CommitHash
	if len(hash) > 12 {
		hash = hash[:12]
	}
	if info.Modified {
		hash += "-dirty"
	}
	return Version + " (" + hash + ")"
}
