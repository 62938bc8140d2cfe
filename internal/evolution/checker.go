// Package evolution is the self-modification engine: proposed mutations with
// a one-way approval lifecycle, skill synthesis with AST-validated safety,
// and identity crystallization from accumulated experience.
package evolution

import (
	"bytes"
	_ "embed"
	"fmt"
	"go/ast"
	"go/parser"
	"go/printer"
	"go/token"
	"sort"
	"strings"

	"github.com/google/mangle/analysis"
	mangleast "github.com/google/mangle/ast"
	_ "github.com/google/mangle/builtin"
	mengine "github.com/google/mangle/engine"
	"github.com/google/mangle/factstore"
	"github.com/google/mangle/parse"

	"aura/internal/logging"
)

//go:embed safety.mg
var safetyPolicy string

// allowedSkillImports is the stdlib surface synthesized skills may touch.
// It matches the dynamic loader's runtime allowlist; the policy checker
// rejects code at synthesis time, the loader rejects it again at load time.
var allowedSkillImports = []string{
	"bytes",
	"encoding/base64",
	"encoding/csv",
	"encoding/json",
	"errors",
	"fmt",
	"math",
	"math/rand",
	"regexp",
	"sort",
	"strconv",
	"strings",
	"time",
	"unicode",
}

// Violation is one policy finding.
type Violation struct {
	Detail string
}

// SafetyReport is the outcome of checking one piece of generated code.
type SafetyReport struct {
	Safe           bool
	Violations     []Violation
	ImportsChecked int
	CallsChecked   int
}

// Checker validates synthesized skill code against the embedded Datalog
// policy before it is ever written to disk.
type Checker struct {
	program *analysis.ProgramInfo
}

// NewChecker parses and analyzes the safety policy.
func NewChecker() (*Checker, error) {
	unit, err := parse.Unit(strings.NewReader(safetyPolicy))
	if err != nil {
		return nil, fmt.Errorf("parse safety policy: %w", err)
	}
	program, err := analysis.AnalyzeOneUnit(unit, nil)
	if err != nil {
		return nil, fmt.Errorf("analyze safety policy: %w", err)
	}
	return &Checker{program: program}, nil
}

// Check extracts AST facts from the code, runs the policy to fixpoint, and
// collects derived violations. A parse failure is itself a violation.
func (c *Checker) Check(code string) *SafetyReport {
	report := &SafetyReport{Safe: true}

	facts, stats, err := extractFacts(code)
	if err != nil {
		report.Safe = false
		report.Violations = append(report.Violations, Violation{Detail: fmt.Sprintf("parse error: %v", err)})
		return report
	}
	report.ImportsChecked = stats.imports
	report.CallsChecked = stats.calls

	store := factstore.NewSimpleInMemoryStore()
	for _, pkg := range allowedSkillImports {
		store.Add(mangleast.NewAtom("allowed_package", mangleast.String(pkg)))
	}
	for _, f := range facts {
		store.Add(f)
	}

	if _, err := mengine.EvalProgramWithStats(c.program, store); err != nil {
		report.Safe = false
		report.Violations = append(report.Violations, Violation{Detail: fmt.Sprintf("policy evaluation failed: %v", err)})
		return report
	}

	query := mangleast.NewQuery(mangleast.PredicateSym{Symbol: "violation", Arity: 1})
	seen := map[string]bool{}
	_ = store.GetFacts(query, func(atom mangleast.Atom) error {
		if len(atom.Args) == 0 {
			return nil
		}
		detail := termString(atom.Args[0])
		if seen[detail] {
			return nil
		}
		seen[detail] = true
		report.Violations = append(report.Violations, Violation{Detail: detail})
		return nil
	})

	if len(report.Violations) > 0 {
		report.Safe = false
		sort.Slice(report.Violations, func(i, j int) bool {
			return report.Violations[i].Detail < report.Violations[j].Detail
		})
		logging.EvolutionWarn("safety check failed with %d violations", len(report.Violations))
	}
	return report
}

func termString(term mangleast.BaseTerm) string {
	if c, ok := term.(mangleast.Constant); ok {
		switch c.Type {
		case mangleast.StringType, mangleast.NameType:
			return c.Symbol
		}
	}
	return fmt.Sprintf("%v", term)
}

type factStats struct {
	imports int
	calls   int
}

// extractFacts parses Go source and emits ast_import and ast_call facts.
func extractFacts(code string) ([]mangleast.Atom, factStats, error) {
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, "skill.go", code, parser.ParseComments)
	if err != nil {
		return nil, factStats{}, err
	}

	var facts []mangleast.Atom
	var stats factStats

	for _, imp := range file.Imports {
		pkg := strings.Trim(imp.Path.Value, `"`)
		facts = append(facts, mangleast.NewAtom("ast_import",
			mangleast.String("skill.go"), mangleast.String(pkg)))
		stats.imports++
	}

	currentFn := ""
	var walk func(n ast.Node) bool
	walk = func(n ast.Node) bool {
		switch node := n.(type) {
		case *ast.FuncDecl:
			prev := currentFn
			currentFn = node.Name.Name
			if node.Body != nil {
				ast.Inspect(node.Body, walk)
			}
			currentFn = prev
			return false
		case *ast.CallExpr:
			var buf bytes.Buffer
			_ = printer.Fprint(&buf, fset, node.Fun)
			facts = append(facts, mangleast.NewAtom("ast_call",
				mangleast.String(currentFn), mangleast.String(buf.String())))
			stats.calls++
		}
		return true
	}
	ast.Inspect(file, walk)

	return facts, stats, nil
}
