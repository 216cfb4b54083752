package harness

import (
	"path/filepath"
	"slices"
	"strings"
)

// bwrapBinary is the sandbox wrapper executable. All policy enforcement
// happens at spawn time; nothing here tracks state.
const bwrapBinary = "bwrap"

// systemReadOnlyPaths are bound read-only into every sandbox so spawned
// tools can find their binaries and libraries.
var systemReadOnlyPaths = []string{"/usr", "/bin", "/lib", "/lib64", "/etc"}

// WrapCommand rewrites argv to run under the sandbox policy. The result
// is a complete command line (wrapper binary first) suitable for
// exec.Command(result[0], result[1:]...). A nil policy returns argv
// unchanged. Pure function: argv and the policy are never mutated.
func WrapCommand(argv []string, policy *SandboxPolicy) []string {
	if policy == nil || len(argv) == 0 {
		return argv
	}

	args := []string{
		"--die-with-parent",
		"--dev", "/dev",
		"--proc", "/proc",
		"--tmpfs", "/tmp",
	}
	for _, p := range systemReadOnlyPaths {
		args = append(args, "--ro-bind-try", p, p)
	}
	for _, p := range dedupe(policy.ReadPaths) {
		args = append(args, "--ro-bind", p, p)
	}
	// Write binds come last so a path in both sets ends up writable.
	for _, p := range dedupe(policy.WritePaths) {
		args = append(args, "--bind", p, p)
	}
	if policy.BlockNetwork {
		args = append(args, "--unshare-net")
	}

	wrapped := make([]string, 0, 1+len(args)+1+len(argv))
	wrapped = append(wrapped, bwrapBinary)
	wrapped = append(wrapped, args...)
	wrapped = append(wrapped, "--")
	wrapped = append(wrapped, argv...)
	return wrapped
}

// mergeSessionPaths returns a policy copy with the session's ephemeral
// home always writable and the working directory readable unless a write
// path already covers it.
func mergeSessionPaths(policy *SandboxPolicy, home, workingDir string) *SandboxPolicy {
	if policy == nil {
		return nil
	}
	merged := policy.clone()
	if home != "" && !pathCovered(merged.WritePaths, home) {
		merged.WritePaths = append(merged.WritePaths, home)
	}
	if workingDir != "" &&
		!pathCovered(merged.WritePaths, workingDir) &&
		!pathCovered(merged.ReadPaths, workingDir) {
		merged.ReadPaths = append(merged.ReadPaths, workingDir)
	}
	return merged
}

// pathCovered reports whether target equals, or sits under, any of the
// given paths. Binds are recursive, so a parent bind covers the child.
func pathCovered(paths []string, target string) bool {
	target = filepath.Clean(target)
	for _, p := range paths {
		p = filepath.Clean(p)
		if p == target || strings.HasPrefix(target, p+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

func dedupe(paths []string) []string {
	var out []string
	for _, p := range paths {
		if p != "" && !slices.Contains(out, p) {
			out = append(out, p)
		}
	}
	return out
}
