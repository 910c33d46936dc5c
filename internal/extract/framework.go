package extract

import (
	"regexp"
	"strings"

	"github.com/t14raptor/go-fast/ast"
	"github.com/t14raptor/go-fast/parser"

	"github.com/standardbeagle/semidx/internal/types"
)

var (
	jsxHeaderNavRe  = regexp.MustCompile(`<header[^>]*>[\s\S]{0,400}?<nav[^>]*>`)
	useEffectCallRe = regexp.MustCompile(`useEffect\s*\(\s*([a-zA-Z0-9_$]*)\s*,\s*(\[[^\]]*\])?\s*\)`)
	nextDataFnRe    = regexp.MustCompile(`export\s+(async\s+)?function\s+(getServerSideProps|getStaticProps|getStaticPaths)`)
	expressRouteRe  = regexp.MustCompile(`(?:app|router)\.(get|post|put|delete|patch|use)\s*\(\s*['"` + "`" + `]`)
	vueSFCBlockRe   = regexp.MustCompile(`<(template|script|style)(\s|>)`)
	rustDeriveRe    = regexp.MustCompile(`#\[derive\(([^)]*)\)\]`)
	rustImplTraitRe = regexp.MustCompile(`impl\s+([A-Za-z_][A-Za-z0-9_]*)\s+for\s+([A-Za-z_][A-Za-z0-9_]*)`)
	ecsInsertRe     = regexp.MustCompile(`\.(insert|spawn|add_component)\s*\(`)
)

// applyFrameworkEnhancements inspects the file's source for the
// framework-specific patterns listed in spec §4.2's enhancement table
// and appends the corresponding insertions/state changes directly onto
// s. This runs after the generic walk, working from raw source rather
// than the grammar-specific tree, since the signal (JSX shape, a
// decorator macro, a route-registration call) is easier to recognize
// as text than to add a tenth per-language AST branch for.
func applyFrameworkEnhancements(language string, source []byte, s *types.SemanticSummary) {
	text := string(source)

	switch language {
	case "javascript", "typescript":
		jsQuickScan(text, s)
		if jsxHeaderNavRe.MatchString(text) {
			s.Insertions = append(s.Insertions, "header container with nav")
		}
		for _, m := range useEffectCallRe.FindAllStringSubmatch(text, -1) {
			depsArg := m[2]
			hasDepsArg := depsArg != ""
			var deps []string
			if hasDepsArg {
				inner := strings.Trim(depsArg, "[]")
				if strings.TrimSpace(inner) != "" {
					for _, d := range strings.Split(inner, ",") {
						deps = append(deps, strings.TrimSpace(d))
					}
				}
			}
			s.Insertions = append(s.Insertions, effectInsertion(deps, hasDepsArg))
			s.Calls = append(s.Calls, types.Call{Name: "useEffect", Hook: true})
		}
		if nextDataFnRe.MatchString(text) {
			s.Insertions = append(s.Insertions, "data-fetching export")
		}
		if expressRouteRe.MatchString(text) {
			s.Insertions = append(s.Insertions, "route registration")
		}
	case "vue":
		for _, m := range vueSFCBlockRe.FindAllStringSubmatch(text, -1) {
			s.Insertions = append(s.Insertions, m[1]+" block")
		}
	case "rust":
		if m := rustDeriveRe.FindStringSubmatch(text); m != nil {
			s.Insertions = append(s.Insertions, "derive("+strings.TrimSpace(m[1])+")")
		}
		for _, m := range rustImplTraitRe.FindAllStringSubmatch(text, -1) {
			s.Insertions = append(s.Insertions, "impl "+m[1]+" for "+m[2])
		}
		if ecsInsertRe.MatchString(text) {
			s.Insertions = append(s.Insertions, "ECS component insertion")
		}
	}
}

// jsQuickScan runs go-fast's ES5 parser as a cheap pre-scan ahead of the
// regex table above: when it parses cleanly it gives a structural
// signal for fetch/axios calls without any regex false positives; when
// it fails (ES6 modules, TypeScript syntax; go-fast doesn't support
// either) this is silently skipped, the regex table still runs.
func jsQuickScan(text string, s *types.SemanticSummary) {
	program, err := parser.ParseFile(text)
	if err != nil {
		return
	}
	seen := make(map[string]bool)
	var visitExpr func(e ast.Expr)
	var visitStmt func(st ast.Stmt)

	visitExpr = func(e ast.Expr) {
		if e == nil {
			return
		}
		if call, ok := e.(*ast.CallExpression); ok {
			name := calleeName(call.Callee)
			if networkCallNames[name] && !seen[name] {
				seen[name] = true
				s.Insertions = append(s.Insertions, "network call introduced")
			}
			for _, arg := range call.ArgumentList {
				if arg.Expr != nil {
					visitExpr(arg.Expr)
				}
			}
		}
	}
	visitStmt = func(st ast.Stmt) {
		if st == nil {
			return
		}
		switch v := st.(type) {
		case *ast.ExpressionStatement:
			if v.Expression != nil {
				visitExpr(v.Expression.Expr)
			}
		case *ast.BlockStatement:
			for _, inner := range v.List {
				visitStmt(inner.Stmt)
			}
		}
	}
	for _, stmt := range program.Body {
		visitStmt(stmt.Stmt)
	}
}

// calleeName extracts a call site's target name from the go-fast
// tree: identifier name directly, or
// the property name off a member expression (so `axios.get(...)`
// resolves to "get", matched against the same network-call name table
// used for the tree-sitter path).
func calleeName(callee *ast.Expression) string {
	if callee == nil || callee.Expr == nil {
		return ""
	}
	switch c := callee.Expr.(type) {
	case *ast.Identifier:
		return c.Name
	case *ast.MemberExpression:
		if c.Property != nil && c.Property.Prop != nil {
			if ident, ok := c.Property.Prop.(*ast.Identifier); ok {
				return ident.Name
			}
		}
	}
	return ""
}
