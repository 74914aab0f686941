// Package buildconfig exposes version metadata stamped at build time.
package buildconfig

// Overridden with -ldflags "-X .../buildconfig.version=... -X .../buildconfig.commit=..."
var (
	version = "dev"
	commit  = "unknown"
)

// Version reports the release tag of this binary.
func Version() string {
	return version
}

// Commit reports the git revision this binary was built from.
func Commit() string {
	return commit
}

// VersionInfo bundles the stamped metadata for status payloads.
func VersionInfo() map[string]string {
	return map[string]string{
		"version": version,
		"commit":  commit,
	}
}
