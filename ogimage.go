package ogimage

import (
	"context"
	"runtime/debug"
)

// Build version & commit SHA, injected during build with
// -ldflags "-X gitlab.com/sympolymathesy/ogimage.Commit=$(git rev-parse HEAD)".
var (
	Version string
	Commit  string
)

// ReportError notifies an external service of errors. No-op by default.
var ReportError = func(ctx context.Context, err error, args ...interface{}) {}

// ReportPanic notifies an external service of panics. No-op by default.
var ReportPanic = func(err interface{}) {}

// BuildID returns the identifier that namespaces every cache key. A change in
// rendering logic ships with a new commit, which invalidates all previously
// cached images without an explicit purge.
func BuildID() string {
	if Commit != "" {
		return Commit
	}
	if info, ok := debug.ReadBuildInfo(); ok {
		for _, s := range info.Settings {
			if s.Key == "vcs.revision" && s.Value != "" {
				return s.Value
			}
		}
	}
	return "dev"
}
