// Package util holds small helpers shared by the binaries.
package util

import (
	"fmt"
	"io"

	"go.uber.org/zap"
)

// BuildInfo is stamped at link time via -ldflags "-X main.buildVersion=...".
type BuildInfo struct {
	Version string
	Date    string
	Commit  string
}

// na returns "N/A" if the input string is empty, otherwise it returns the input string.
func na(v string) string {
	if v == "" {
		return "N/A"
	}
	return v
}

// Print writes the build version, date and commit, one per line.
func (b BuildInfo) Print(w io.Writer) {
	fmt.Fprintf(w, "Build version: %s\n", na(b.Version))
	fmt.Fprintf(w, "Build date: %s\n", na(b.Date))
	fmt.Fprintf(w, "Build commit: %s\n", na(b.Commit))
}

// Fields renders the build info for a startup log line.
func (b BuildInfo) Fields() []zap.Field {
	return []zap.Field{
		zap.String("version", na(b.Version)),
		zap.String("build_date", na(b.Date)),
		zap.String("commit", na(b.Commit)),
	}
}
