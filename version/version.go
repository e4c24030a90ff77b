package version

import "fmt"

// will be replaced with the release version when using goreleaser
var version = "development"

// AppVersion returns the version string of this build
func AppVersion() string {
	return version
}

// LibraryUserAgent is the user agent fragment identifying this updater library
func LibraryUserAgent() string {
	return fmt.Sprintf("appupdate/%s", version)
}
