// Package version provides build information for Stage Player.
package version

// Version is the release version. Override at build time with:
//
//	go build -ldflags "-X github.com/AaronLay10/StagePlayer/internal/version.Version=x.y.z"
var Version = "0.1.0"
