package envread

import (
	"testing"

	"golang.org/x/tools/go/analysis/analysistest"
)

func TestAnalyzer(t *testing.T) {
	analysistest.Run(t, analysistest.TestData(), Analyzer,
		"a",
		"example.com/svc/internal/config",
		"example.com/svc/internal/misc",
	)
}

func TestAllowed(t *testing.T) {
	tests := map[string]bool{
		"github.com/vshulcz/Gatecounter/internal/config":          true,
		"github.com/vshulcz/Gatecounter/internal/misc":            true,
		"github.com/vshulcz/Gatecounter/internal/services/poller": false,
		"github.com/vshulcz/Gatecounter/cmd/collector":            false,
		"example.com/internal/configx":                            false,
	}
	for path, want := range tests {
		if got := allowed(path); got != want {
			t.Errorf("allowed(%q)=%v want %v", path, got, want)
		}
	}
}
