package wvc

import "fmt"

const (
	LibraryName = "webview-channel"
	Version     = "2.0.0"
)

// VersionTag identifies the library and the side it runs on, e.g.
// "webview-channel@2.0.0 (widget)".
func VersionTag(role Role) string {
	return fmt.Sprintf("%s@%s (%s)", LibraryName, Version, role)
}
