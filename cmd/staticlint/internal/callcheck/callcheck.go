// Package callcheck resolves call expressions to package-level functions.
package callcheck

import (
	"go/ast"
	"go/types"
	"slices"
)

// IsPkgFunc reports whether call invokes one of names from the package at pkgPath.
// Resolution goes through type info, so renamed imports are matched and
// same-named methods or local functions are not.
func IsPkgFunc(info *types.Info, call *ast.CallExpr, pkgPath string, names ...string) bool {
	if info == nil || info.Uses == nil || call == nil {
		return false
	}
	sel, ok := ast.Unparen(call.Fun).(*ast.SelectorExpr)
	if !ok || sel.Sel == nil {
		return false
	}
	fn, ok := info.Uses[sel.Sel].(*types.Func)
	if !ok || fn.Pkg() == nil {
		return false
	}
	if sig, ok := fn.Type().(*types.Signature); ok && sig.Recv() != nil {
		return false
	}
	return fn.Pkg().Path() == pkgPath && slices.Contains(names, fn.Name())
}
