// Package version holds build information set at link time.
package version

// Version is the release version, overridden with
// -ldflags "-X github.com/getpup/fanout-orchestrator/pkg/version.Version=v1.2.3".
var Version = "dev"

// Commit is the source revision the binary was built from.
var Commit = "none"
