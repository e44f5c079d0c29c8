// Command gensyscall walks syscall/syscall.go's AST to find the Num
// syscall-number enum and writes syscall/names_gen.go, a Num.String()
// table for diagnostics (panic messages, profile labels) — not the
// dispatch switch itself, which stays hand-written since its branches are
// too heterogeneous (synchronous vs. FsReq-routed vs. waker-suspended) for
// a generator to usefully emit. In the spirit of biscuit's
// scripts/features.go AST-walking tooling, generalized from "report on
// code" to "emit code from a declaration", and run through
// golang.org/x/tools/imports for formatting instead of hand-indenting the
// output.
package main

import (
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"os"
	"strings"

	"golang.org/x/tools/imports"
)

const (
	srcFile = "syscall/syscall.go"
	outFile = "syscall/names_gen.go"
)

// numNames extracts the ordered identifier list of the first `const (...)`
// block whose value spec is typed Num — the Sys* enum.
func numNames(fset *token.FileSet, file *ast.File) ([]string, error) {
	for _, decl := range file.Decls {
		gd, ok := decl.(*ast.GenDecl)
		if !ok || gd.Tok != token.CONST {
			continue
		}
		first, ok := gd.Specs[0].(*ast.ValueSpec)
		if !ok || first.Type == nil {
			continue
		}
		ident, ok := first.Type.(*ast.Ident)
		if !ok || ident.Name != "Num" {
			continue
		}
		var names []string
		for _, spec := range gd.Specs {
			vs := spec.(*ast.ValueSpec)
			for _, n := range vs.Names {
				names = append(names, n.Name)
			}
		}
		return names, nil
	}
	return nil, fmt.Errorf("no `const (... Num = iota ...)` block found in %s", srcFile)
}

func generate(names []string) string {
	var b strings.Builder
	b.WriteString("// Code generated by cmd/gensyscall from the Num enum in syscall.go. DO NOT EDIT.\n\n")
	b.WriteString("package syscall\n\n")
	b.WriteString("var numNames = [...]string{\n")
	for i, n := range names {
		fmt.Fprintf(&b, "\t%d: %q,\n", i, strings.TrimPrefix(n, "Sys"))
	}
	b.WriteString("}\n\n")
	b.WriteString("// String renders a syscall number by name, for panic messages and profile\n")
	b.WriteString("// labels; an out-of-range value renders as its raw number instead of\n")
	b.WriteString("// panicking, since this path runs from diagnostic and recovery code.\n")
	b.WriteString("func (n Num) String() string {\n")
	b.WriteString("\tif int(n) < len(numNames) {\n")
	b.WriteString("\t\treturn numNames[n]\n")
	b.WriteString("\t}\n")
	b.WriteString("\treturn fmt.Sprintf(\"Num(%d)\", uint64(n))\n")
	b.WriteString("}\n")
	return b.String()
}

func main() {
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, srcFile, nil, 0)
	if err != nil {
		fmt.Printf("gensyscall: parse %s: %v\n", srcFile, err)
		os.Exit(1)
	}

	names, err := numNames(fset, file)
	if err != nil {
		fmt.Printf("gensyscall: %v\n", err)
		os.Exit(1)
	}

	src := generate(names)
	// generate() references fmt.Sprintf without importing fmt itself;
	// imports.Process adds the missing import (and would drop it again
	// if the template ever stopped needing it).
	formatted, err := imports.Process(outFile, []byte(src), nil)
	if err != nil {
		fmt.Printf("gensyscall: format %s: %v\n", outFile, err)
		os.Exit(1)
	}

	if err := os.WriteFile(outFile, formatted, 0644); err != nil {
		fmt.Printf("gensyscall: write %s: %v\n", outFile, err)
		os.Exit(1)
	}
	fmt.Printf("gensyscall: wrote %d syscall name(s) to %s\n", len(names), outFile)
}
