// Package version reports the build of the running mediascribe binary.
//
// Release builds stamp the version and commit through -ldflags:
//
//	go build -ldflags "-X github.com/kbukum/mediascribe/version.Version=1.4.0" ./cmd/mediascribe
//
// Unstamped builds fall back to the VCS metadata the Go toolchain embeds.
package version
