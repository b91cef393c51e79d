// Package policy implements the Policy Evaluator (§4.B): resolving
// (workspace, actor, client, toolPath, args) to allow/require_approval/deny
// by precedence tier, glob match, and argument conditions.
//
// Grounded on the teacher's execpolicy package: a Rule interface matched
// against a subject, aggregated by a Policy holding an indexed rule set,
// generalized here from command-prefix matching to dotted tool-path globs.
package policy

import "strings"

// matchToolPath reports whether pattern matches path. Segments are
// dot-separated; "*" matches exactly one segment, "**" matches any
// suffix of remaining segments (only meaningful as the final token).
func matchToolPath(pattern, path string) bool {
	if pattern == path {
		return true
	}
	patSegs := strings.Split(pattern, ".")
	pathSegs := strings.Split(path, ".")

	i := 0
	for ; i < len(patSegs); i++ {
		seg := patSegs[i]
		if seg == "**" {
			// "**" must be the last pattern token and matches any suffix,
			// including an empty one.
			return i == len(patSegs)-1
		}
		if i >= len(pathSegs) {
			return false
		}
		if seg == "*" {
			continue
		}
		if seg != pathSegs[i] {
			return false
		}
	}
	return i == len(pathSegs)
}
