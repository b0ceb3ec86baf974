// Package envread defines an analyzer that keeps environment access inside the
// configuration packages. Everything else receives settings from a config value.
package envread

import (
	"fmt"
	"go/ast"
	"strings"

	"golang.org/x/tools/go/analysis"
	"golang.org/x/tools/go/analysis/passes/inspect"
	"golang.org/x/tools/go/ast/inspector"

	"github.com/vshulcz/Gatecounter/cmd/staticlint/internal/callcheck"
)

var Analyzer = &analysis.Analyzer{
	Name:     "envread",
	Doc:      "reports os.Getenv, os.LookupEnv and os.Environ outside internal/config and internal/misc",
	Requires: []*analysis.Analyzer{inspect.Analyzer},
	Run:      run,
}

var allowedSuffixes = []string{"/internal/config", "/internal/misc"}

var envFuncs = []string{"Getenv", "LookupEnv", "Environ"}

func allowed(pkgPath string) bool {
	for _, s := range allowedSuffixes {
		if strings.HasSuffix(pkgPath, s) {
			return true
		}
	}
	return false
}

func run(pass *analysis.Pass) (any, error) {
	if pass.Pkg == nil || allowed(pass.Pkg.Path()) {
		return nil, nil
	}

	insp, ok := pass.ResultOf[inspect.Analyzer].(*inspector.Inspector)
	if !ok {
		return nil, fmt.Errorf("failed to assert type: expected *inspector.Inspector")
	}

	insp.Preorder([]ast.Node{(*ast.CallExpr)(nil)}, func(n ast.Node) {
		call, ok := n.(*ast.CallExpr)
		if !ok {
			return
		}
		if callcheck.IsPkgFunc(pass.TypesInfo, call, "os", envFuncs...) {
			pass.Reportf(call.Pos(), "environment read outside internal/config; pass the value through config.CollectorConfig")
		}
	})
	return nil, nil
}
