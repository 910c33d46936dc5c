package langregistry

import (
	"unicode"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"
	tree_sitter_zig "github.com/tree-sitter-grammars/tree-sitter-zig/bindings/go"
	tree_sitter_csharp "github.com/tree-sitter/tree-sitter-c-sharp/bindings/go"
	tree_sitter_cpp "github.com/tree-sitter/tree-sitter-cpp/bindings/go"
	tree_sitter_go "github.com/tree-sitter/tree-sitter-go/bindings/go"
	tree_sitter_java "github.com/tree-sitter/tree-sitter-java/bindings/go"
	tree_sitter_javascript "github.com/tree-sitter/tree-sitter-javascript/bindings/go"
	tree_sitter_php "github.com/tree-sitter/tree-sitter-php/bindings/go"
	tree_sitter_python "github.com/tree-sitter/tree-sitter-python/bindings/go"
	tree_sitter_rust "github.com/tree-sitter/tree-sitter-rust/bindings/go"
	tree_sitter_typescript "github.com/tree-sitter/tree-sitter-typescript/bindings/go"

	"github.com/standardbeagle/semidx/internal/errs"
)

// Registry is the closed set of extension -> Entry bindings this build
// recognizes. Anything outside it is UnsupportedLanguage;
// the set deliberately covers the mainstream languages referenced in
// the corpus plus a handful of markup/config extensions that always
// take the raw-fallback path.
type Registry struct {
	entries map[string]*Entry
}

// New builds the registry, compiling every tree-sitter grammar once.
func New() *Registry {
	r := &Registry{entries: make(map[string]*Entry)}
	r.registerGo()
	r.registerJS()
	r.registerTS()
	r.registerPython()
	r.registerRust()
	r.registerJava()
	r.registerCSharp()
	r.registerCPP()
	r.registerPHP()
	r.registerZig()
	r.registerRawOnly(".json", "json")
	r.registerRawOnly(".yaml", "yaml")
	r.registerRawOnly(".yml", "yaml")
	r.registerRawOnly(".toml", "toml")
	r.registerRawOnly(".md", "markdown")
	return r
}

// LanguageFor resolves a path's extension to its Entry, or an
// UnsupportedLanguage error.
func (r *Registry) LanguageFor(ext string) (*Entry, error) {
	e, ok := r.entries[ext]
	if !ok {
		return nil, errs.UnsupportedLanguage("", ext)
	}
	return e, nil
}

// Extensions lists every recognized extension, sorted insertion order is
// not guaranteed; callers needing determinism should sort.
func (r *Registry) Extensions() []string {
	out := make([]string, 0, len(r.entries))
	for ext := range r.entries {
		out = append(out, ext)
	}
	return out
}

func (r *Registry) register(ext string, g *Grammar) {
	var parser func() *tree_sitter.Parser
	if g.TSLanguage != nil {
		lang := g.TSLanguage
		parser = func() *tree_sitter.Parser {
			p := tree_sitter.NewParser()
			_ = p.SetLanguage(lang)
			return p
		}
	}
	r.entries[ext] = &Entry{Grammar: g, Parser: parser}
}

func (r *Registry) registerRawOnly(ext, lang string) {
	r.entries[ext] = &Entry{Grammar: &Grammar{Language: lang}}
}

func exportedByCase(nodeKind, nodeText string, _ []byte) bool {
	for _, ch := range nodeText {
		return unicode.IsUpper(ch)
	}
	return false
}

func exportedByKeyword(keywords ...string) func(string, string, []byte) bool {
	set := kindSet(keywords...)
	return func(nodeKind, _ string, _ []byte) bool {
		return set[nodeKind]
	}
}

func (r *Registry) registerGo() {
	lang := tree_sitter.NewLanguage(tree_sitter_go.Language())
	g := &Grammar{
		Language:          "go",
		FunctionLike:      kindSet("function_declaration", "method_declaration", "func_literal"),
		ClassLike:         kindSet("type_declaration"),
		InterfaceLike:     kindSet("interface_type"),
		ControlFlow: map[string]string{
			"if_statement": "if", "for_statement": "for", "expression_switch_statement": "switch",
			"type_switch_statement": "switch", "select_statement": "switch",
		},
		CallLike:          kindSet("call_expression"),
		ImportLike:        kindSet("import_spec"),
		AssignLike:        kindSet("assignment_statement"),
		VarDeclLike:       kindSet("var_declaration", "short_var_declaration", "const_declaration"),
		Fields:            FieldNames{Name: "name", Value: "value", Type: "type", Body: "body", Params: "parameters"},
		UppercaseIsExport: true,
		IsExported:        exportedByCase,
		TSLanguage:        lang,
	}
	r.register(".go", g)
}

func (r *Registry) registerJS() {
	lang := tree_sitter.NewLanguage(tree_sitter_javascript.Language())
	g := jsLikeGrammar("javascript", lang)
	r.register(".js", g)
	r.register(".jsx", g)
}

func (r *Registry) registerTS() {
	lang := tree_sitter.NewLanguage(tree_sitter_typescript.LanguageTypescript())
	g := jsLikeGrammar("typescript", lang)
	g.InterfaceLike = kindSet("interface_declaration")
	g.EnumLike = kindSet("enum_declaration")
	r.register(".ts", g)
	tsx := tree_sitter.NewLanguage(tree_sitter_typescript.LanguageTSX())
	g2 := jsLikeGrammar("typescript", tsx)
	g2.InterfaceLike = kindSet("interface_declaration")
	g2.EnumLike = kindSet("enum_declaration")
	r.register(".tsx", g2)
}

func jsLikeGrammar(lang string, tsLang *tree_sitter.Language) *Grammar {
	return &Grammar{
		Language:      lang,
		FunctionLike:  kindSet("function_declaration", "generator_function_declaration", "arrow_function", "function_expression", "method_definition"),
		ClassLike:     kindSet("class_declaration"),
		ControlFlow: map[string]string{
			"if_statement": "if", "for_statement": "for", "for_in_statement": "for",
			"while_statement": "while", "do_statement": "while", "switch_statement": "switch",
			"try_statement": "try", "await_expression": "await",
		},
		CallLike:   kindSet("call_expression", "new_expression"),
		AwaitLike:  kindSet("await_expression"),
		ImportLike: kindSet("import_statement"),
		AssignLike: kindSet("assignment_expression", "variable_declarator"),
		VarDeclLike: kindSet("variable_declaration", "lexical_declaration"),
		Fields: FieldNames{Name: "name", Value: "value", Type: "type", Body: "body", Params: "parameters", Condition: "condition"},
		IsExported: func(nodeKind, _ string, _ []byte) bool {
			return nodeKind == "export_statement"
		},
		TSLanguage: tsLang,
	}
}

func (r *Registry) registerPython() {
	lang := tree_sitter.NewLanguage(tree_sitter_python.Language())
	g := &Grammar{
		Language:     "python",
		FunctionLike: kindSet("function_definition"),
		ClassLike:    kindSet("class_definition"),
		ControlFlow: map[string]string{
			"if_statement": "if", "for_statement": "for", "while_statement": "while",
			"try_statement": "try", "match_statement": "match",
		},
		CallLike:   kindSet("call"),
		AwaitLike:  kindSet("await"),
		ImportLike: kindSet("import_statement", "import_from_statement"),
		AssignLike: kindSet("assignment"),
		Fields:     FieldNames{Name: "name", Value: "value", Body: "body", Params: "parameters"},
		IsExported: func(_, nodeText string, _ []byte) bool {
			return len(nodeText) > 0 && nodeText[0] != '_'
		},
		TSLanguage: lang,
	}
	r.register(".py", g)
}

func (r *Registry) registerRust() {
	lang := tree_sitter.NewLanguage(tree_sitter_rust.Language())
	g := &Grammar{
		Language:      "rust",
		FunctionLike:  kindSet("function_item", "closure_expression"),
		ClassLike:     kindSet("struct_item", "enum_item", "impl_item"),
		InterfaceLike: kindSet("trait_item"),
		EnumLike:      kindSet("enum_item"),
		ControlFlow: map[string]string{
			"if_expression": "if", "for_expression": "for", "while_expression": "while",
			"match_expression": "match", "loop_expression": "loop",
		},
		CallLike:   kindSet("call_expression", "macro_invocation"),
		ImportLike: kindSet("use_declaration"),
		AssignLike: kindSet("assignment_expression"),
		VarDeclLike: kindSet("let_declaration"),
		Fields:     FieldNames{Name: "name", Value: "value", Body: "body", Params: "parameters"},
		IsExported: exportedByKeyword("visibility_modifier"),
		TSLanguage: lang,
	}
	r.register(".rs", g)
}

func (r *Registry) registerJava() {
	lang := tree_sitter.NewLanguage(tree_sitter_java.Language())
	g := &Grammar{
		Language:      "java",
		FunctionLike:  kindSet("method_declaration", "constructor_declaration"),
		ClassLike:     kindSet("class_declaration"),
		InterfaceLike: kindSet("interface_declaration"),
		EnumLike:      kindSet("enum_declaration"),
		ControlFlow: map[string]string{
			"if_statement": "if", "for_statement": "for", "enhanced_for_statement": "for",
			"while_statement": "while", "switch_expression": "switch", "try_statement": "try",
		},
		CallLike:   kindSet("method_invocation", "object_creation_expression"),
		ImportLike: kindSet("import_declaration"),
		AssignLike: kindSet("assignment_expression"),
		Fields:     FieldNames{Name: "name", Body: "body", Params: "parameters"},
		IsExported: exportedByKeyword("public"),
		TSLanguage: lang,
	}
	r.register(".java", g)
}

func (r *Registry) registerCSharp() {
	lang := tree_sitter.NewLanguage(tree_sitter_csharp.Language())
	g := &Grammar{
		Language:      "csharp",
		FunctionLike:  kindSet("method_declaration", "local_function_statement"),
		ClassLike:     kindSet("class_declaration", "struct_declaration"),
		InterfaceLike: kindSet("interface_declaration"),
		EnumLike:      kindSet("enum_declaration"),
		ControlFlow: map[string]string{
			"if_statement": "if", "for_statement": "for", "foreach_statement": "for",
			"while_statement": "while", "switch_statement": "switch", "try_statement": "try",
		},
		CallLike:   kindSet("invocation_expression", "object_creation_expression"),
		AwaitLike:  kindSet("await_expression"),
		ImportLike: kindSet("using_directive"),
		AssignLike: kindSet("assignment_expression"),
		Fields:     FieldNames{Name: "name", Body: "body", Params: "parameters"},
		IsExported: exportedByKeyword("public"),
		TSLanguage: lang,
	}
	r.register(".cs", g)
}

func (r *Registry) registerCPP() {
	lang := tree_sitter.NewLanguage(tree_sitter_cpp.Language())
	g := &Grammar{
		Language:     "cpp",
		FunctionLike: kindSet("function_definition"),
		ClassLike:    kindSet("class_specifier", "struct_specifier"),
		ControlFlow: map[string]string{
			"if_statement": "if", "for_statement": "for", "while_statement": "while",
			"switch_statement": "switch", "try_statement": "try",
		},
		CallLike:   kindSet("call_expression"),
		ImportLike: kindSet("preproc_include"),
		AssignLike: kindSet("assignment_expression"),
		Fields:     FieldNames{Name: "declarator", Body: "body", Params: "parameters"},
		IsExported: func(string, string, []byte) bool { return true },
		TSLanguage: lang,
	}
	r.register(".cpp", g)
	r.register(".cc", g)
	r.register(".h", g)
	r.register(".hpp", g)
}

func (r *Registry) registerPHP() {
	lang := tree_sitter.NewLanguage(tree_sitter_php.LanguagePHP())
	g := &Grammar{
		Language:     "php",
		FunctionLike: kindSet("function_definition", "method_declaration"),
		ClassLike:    kindSet("class_declaration"),
		InterfaceLike: kindSet("interface_declaration"),
		ControlFlow: map[string]string{
			"if_statement": "if", "for_statement": "for", "foreach_statement": "for",
			"while_statement": "while", "switch_statement": "switch", "try_statement": "try",
		},
		CallLike:   kindSet("function_call_expression", "object_creation_expression"),
		ImportLike: kindSet("namespace_use_declaration"),
		AssignLike: kindSet("assignment_expression"),
		Fields:     FieldNames{Name: "name", Body: "body", Params: "parameters"},
		IsExported: exportedByKeyword("public"),
		TSLanguage: lang,
	}
	r.register(".php", g)
}

func (r *Registry) registerZig() {
	lang := tree_sitter.NewLanguage(tree_sitter_zig.Language())
	g := &Grammar{
		Language:     "zig",
		FunctionLike: kindSet("FnProto", "function_declaration"),
		ClassLike:    kindSet("ContainerDecl"),
		ControlFlow: map[string]string{
			"IfExpr": "if", "ForExpr": "for", "WhileExpr": "while", "SwitchExpr": "switch",
		},
		CallLike:   kindSet("SuffixExpr", "call_expression"),
		ImportLike: kindSet("BUILTINIDENTIFIER"),
		Fields:     FieldNames{Name: "name", Body: "body", Params: "parameters"},
		IsExported: exportedByKeyword("pub"),
		TSLanguage: lang,
	}
	r.register(".zig", g)
}
