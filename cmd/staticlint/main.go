// Command staticlint runs the vet passes, staticcheck SA checks, ST1000 and the
// project analyzers. Analyzers named in STATICLINT_DISABLE (comma separated) are skipped.
package main

import (
	"slices"
	"strings"

	"golang.org/x/tools/go/analysis"
	"golang.org/x/tools/go/analysis/multichecker"

	"golang.org/x/tools/go/analysis/passes/assign"
	"golang.org/x/tools/go/analysis/passes/atomic"
	"golang.org/x/tools/go/analysis/passes/bools"
	"golang.org/x/tools/go/analysis/passes/buildtag"
	"golang.org/x/tools/go/analysis/passes/cgocall"
	"golang.org/x/tools/go/analysis/passes/composite"
	"golang.org/x/tools/go/analysis/passes/copylock"
	"golang.org/x/tools/go/analysis/passes/errorsas"
	"golang.org/x/tools/go/analysis/passes/httpresponse"
	"golang.org/x/tools/go/analysis/passes/loopclosure"
	"golang.org/x/tools/go/analysis/passes/lostcancel"
	"golang.org/x/tools/go/analysis/passes/nilfunc"
	"golang.org/x/tools/go/analysis/passes/printf"
	"golang.org/x/tools/go/analysis/passes/shift"
	"golang.org/x/tools/go/analysis/passes/stdmethods"
	"golang.org/x/tools/go/analysis/passes/structtag"
	"golang.org/x/tools/go/analysis/passes/tests"
	"golang.org/x/tools/go/analysis/passes/unmarshal"
	"golang.org/x/tools/go/analysis/passes/unreachable"
	"golang.org/x/tools/go/analysis/passes/unsafeptr"
	"golang.org/x/tools/go/analysis/passes/unusedresult"

	"honnef.co/go/tools/analysis/lint"
	"honnef.co/go/tools/staticcheck"
	"honnef.co/go/tools/stylecheck"

	"github.com/gostaticanalysis/forcetypeassert"
	"github.com/gostaticanalysis/nilerr"

	"github.com/vshulcz/Gatecounter/cmd/staticlint/envread"
	"github.com/vshulcz/Gatecounter/cmd/staticlint/osexitmain"
	"github.com/vshulcz/Gatecounter/internal/misc"
)

// vetPasses are the go vet analyzers worth running on the collector tree.
var vetPasses = []*analysis.Analyzer{
	assign.Analyzer,
	atomic.Analyzer,
	bools.Analyzer,
	buildtag.Analyzer,
	cgocall.Analyzer,
	composite.Analyzer,
	copylock.Analyzer,
	errorsas.Analyzer,
	httpresponse.Analyzer,
	loopclosure.Analyzer,
	lostcancel.Analyzer,
	nilfunc.Analyzer,
	printf.Analyzer,
	shift.Analyzer,
	stdmethods.Analyzer,
	structtag.Analyzer,
	tests.Analyzer,
	unmarshal.Analyzer,
	unreachable.Analyzer,
	unsafeptr.Analyzer,
	unusedresult.Analyzer,
}

func main() {
	all := slices.Clone(vetPasses)
	all = append(all, pickChecks(staticcheck.Analyzers, func(name string) bool {
		return strings.HasPrefix(name, "SA")
	})...)
	all = append(all, pickChecks(stylecheck.Analyzers, func(name string) bool {
		return name == "ST1000"
	})...)
	all = append(all,
		nilerr.Analyzer,
		forcetypeassert.Analyzer,
		osexitmain.Analyzer,
		envread.Analyzer,
	)

	disabled := misc.SplitList(misc.Getenv("STATICLINT_DISABLE", ""))
	multichecker.Main(filterAnalyzers(all, disabled)...)
}

// pickChecks unwraps the honnef checks whose name satisfies keep.
func pickChecks(checks []*lint.Analyzer, keep func(name string) bool) []*analysis.Analyzer {
	var out []*analysis.Analyzer
	for _, c := range checks {
		if c != nil && c.Analyzer != nil && keep(c.Analyzer.Name) {
			out = append(out, c.Analyzer)
		}
	}
	return out
}

// filterAnalyzers drops nil entries, duplicates by name and anything in disabled.
func filterAnalyzers(analyzers []*analysis.Analyzer, disabled []string) []*analysis.Analyzer {
	skip := make(map[string]bool, len(disabled))
	for _, name := range disabled {
		skip[strings.TrimSpace(name)] = true
	}
	seen := make(map[string]bool, len(analyzers))
	var filtered []*analysis.Analyzer
	for _, a := range analyzers {
		if a == nil || skip[a.Name] || seen[a.Name] {
			continue
		}
		seen[a.Name] = true
		filtered = append(filtered, a)
	}
	return filtered
}
