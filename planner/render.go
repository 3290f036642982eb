package planner

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/gqlfederate/gateway/ast"
)

// renderDocument prints a single operation as wire text: the shape every
// Fetch/Flatten node's QueryText carries. No example repo in the corpus
// ships a GraphQL AST-to-text printer (thunder's federation layer never
// leaves AST form internally), so this is built directly over
// strings.Builder rather than a third-party templating engine — there is
// nothing domain-specific about joining tokens with braces and commas.
func renderDocument(opKind ast.OperationKind, varDefs []*ast.VariableDefinition, ss *ast.SelectionSet) string {
	var b strings.Builder
	b.WriteString(string(opKind))
	if len(varDefs) > 0 {
		b.WriteString("(")
		for i, v := range varDefs {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString("$")
			b.WriteString(v.Name)
			b.WriteString(": ")
			b.WriteString(v.Type.String())
			if v.Default != nil {
				b.WriteString(" = ")
				renderValue(&b, v.Default)
			}
		}
		b.WriteString(")")
	}
	b.WriteString(" ")
	renderSelectionSet(&b, ss)
	return b.String()
}

func renderSelectionSet(b *strings.Builder, ss *ast.SelectionSet) {
	b.WriteString("{ ")
	for i, sel := range ss.Selections {
		if i > 0 {
			b.WriteString(" ")
		}
		renderSelection(b, sel)
	}
	b.WriteString(" }")
}

func renderSelection(b *strings.Builder, sel *ast.Selection) {
	if sel.InlineFragment {
		b.WriteString("... on ")
		b.WriteString(sel.TypeCondition)
		b.WriteString(" ")
		renderSelectionSet(b, sel.SelectionSet)
		return
	}
	if sel.Alias != "" && sel.Alias != sel.Name {
		b.WriteString(sel.Alias)
		b.WriteString(": ")
	}
	b.WriteString(sel.Name)
	if len(sel.Args) > 0 {
		b.WriteString("(")
		first := true
		for _, name := range sortedArgNames(sel.Args) {
			if !first {
				b.WriteString(", ")
			}
			first = false
			b.WriteString(name)
			b.WriteString(": ")
			renderValue(b, sel.Args[name])
		}
		b.WriteString(")")
	}
	for _, d := range sel.Directives {
		b.WriteString(" @")
		b.WriteString(d.Name)
		if len(d.Args) > 0 {
			b.WriteString("(")
			first := true
			for _, name := range sortedArgNames(d.Args) {
				if !first {
					b.WriteString(", ")
				}
				first = false
				b.WriteString(name)
				b.WriteString(": ")
				renderValue(b, d.Args[name])
			}
			b.WriteString(")")
		}
	}
	if sel.SelectionSet != nil && len(sel.SelectionSet.Selections) > 0 {
		b.WriteString(" ")
		renderSelectionSet(b, sel.SelectionSet)
	}
}

func sortedArgNames(args map[string]*ast.Value) []string {
	names := make([]string, 0, len(args))
	for name := range args {
		names = append(names, name)
	}
	// Deterministic output matters for golden-file tests and debug dumps;
	// insertion order isn't recoverable from a map so fall back to a plain
	// lexical sort.
	for i := 1; i < len(names); i++ {
		for j := i; j > 0 && names[j-1] > names[j]; j-- {
			names[j-1], names[j] = names[j], names[j-1]
		}
	}
	return names
}

func renderValue(b *strings.Builder, v *ast.Value) {
	if v == nil {
		b.WriteString("null")
		return
	}
	switch v.Kind {
	case ast.NullValue:
		b.WriteString("null")
	case ast.VariableValue:
		b.WriteString("$")
		b.WriteString(v.Variable)
	case ast.IntValue, ast.FloatValue:
		b.WriteString(fmt.Sprintf("%v", v.Raw))
	case ast.StringValue:
		b.WriteString(strconv.Quote(v.Raw.(string)))
	case ast.BooleanValue:
		b.WriteString(fmt.Sprintf("%v", v.Raw))
	case ast.EnumValue:
		b.WriteString(v.Raw.(string))
	case ast.ListValue:
		b.WriteString("[")
		for i, item := range v.List {
			if i > 0 {
				b.WriteString(", ")
			}
			renderValue(b, item)
		}
		b.WriteString("]")
	case ast.ObjectValue:
		b.WriteString("{")
		first := true
		for _, name := range sortedObjectKeys(v.Object) {
			if !first {
				b.WriteString(", ")
			}
			first = false
			b.WriteString(name)
			b.WriteString(": ")
			renderValue(b, v.Object[name])
		}
		b.WriteString("}")
	}
}

func sortedObjectKeys(obj map[string]*ast.Value) []string {
	names := make([]string, 0, len(obj))
	for name := range obj {
		names = append(names, name)
	}
	for i := 1; i < len(names); i++ {
		for j := i; j > 0 && names[j-1] > names[j]; j-- {
			names[j-1], names[j] = names[j], names[j-1]
		}
	}
	return names
}
