package obs

import "strings"

// CanonicalPath collapses resource identifiers so metric label cardinality
// stays bounded. Only known parameterized routes are rewritten; everything
// else is passed through with the query stripped.
func CanonicalPath(path string) string {
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	if path == "" {
		return "/"
	}
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) >= 3 && parts[0] == "v1" {
		switch parts[1] {
		case "users", "roles", "workspaces":
			rewritten := append([]string{}, parts...)
			rewritten[2] = ":id"
			return "/" + strings.Join(rewritten, "/")
		}
	}
	return path
}
