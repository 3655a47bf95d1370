// Package buildversion reports the version of a module linked into the
// running binary.
package buildversion

import "runtime/debug"

// GetVersion returns the version of modulePath from the binary's build info,
// or "unknown" when it is not available (tests, or builds outside module mode).
func GetVersion(modulePath string) string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return "unknown"
	}

	if info.Main.Path == modulePath && info.Main.Version != "" {
		return info.Main.Version
	}

	for _, dep := range info.Deps {
		if dep.Path != modulePath {
			continue
		}
		if dep.Replace != nil && dep.Replace.Version != "" {
			return dep.Replace.Version
		}
		return dep.Version
	}

	return "unknown"
}
