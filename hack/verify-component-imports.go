//go:build ignore
// +build ignore

/*
Copyright 2025 The Kubernetes Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// verify-component-imports validates that the scheduler components under
// pkg/outbound stay independent of each other: a component may import the
// shared types, metrics and observability packages, plus the components
// listed for it below, and nothing else from this module.
package main

import (
	"fmt"
	"go/parser"
	"go/token"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/pflag"
)

const (
	outboundPath = "pkg/outbound"
	repoModule   = "sigs.k8s.io/outbound-scheduler"
)

var additionalAllowed []string

// globalAllowed may be imported by every component.
var globalAllowed = []string{
	"pkg/outbound/types",
	"pkg/outbound/metrics",
	"pkg/common/observability",
	"pkg/common/util",
}

// componentDeps lists, per component, the sibling components it may import. Packages under pkg/outbound that are not
// listed here (the scheduler facade, the server, transports, config) compose components and are not checked.
var componentDeps = map[string][]string{
	"types":       nil,
	"metrics":     nil,
	"classifier":  nil,
	"queue":       nil,
	"congestion":  nil,
	"ramp":        nil,
	"teleport":    nil,
	"ratecontrol": nil,
	"dispatch":    {"pkg/outbound/queue", "pkg/outbound/ratecontrol"},
}

func init() {
	pflag.StringSliceVar(&additionalAllowed, "allow", []string{}, "Additional allowed import paths (can be specified multiple times)")
}

func main() {
	pflag.Parse()

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

type violation struct {
	filePath   string
	importPath string
}

func (v violation) String() string {
	return fmt.Sprintf("%s: imports %s", v.filePath, v.importPath)
}

func run() error {
	var violations []violation

	components := make([]string, 0, len(componentDeps))
	for c := range componentDeps {
		components = append(components, c)
	}
	sort.Strings(components)

	fmt.Printf("Validating component imports in %s\n", outboundPath)
	fmt.Printf("Globally allowed paths: %v\n", globalAllowed)
	if len(additionalAllowed) > 0 {
		fmt.Printf("Additional allowed paths (via flags): %v\n", additionalAllowed)
	}
	fmt.Println()

	for _, component := range components {
		allowed := append([]string{filepath.Join(outboundPath, component)}, globalAllowed...)
		allowed = append(allowed, componentDeps[component]...)
		allowed = append(allowed, additionalAllowed...)

		found, err := checkDir(filepath.Join(outboundPath, component), allowed)
		if err != nil {
			return err
		}
		violations = append(violations, found...)
	}

	if len(violations) == 0 {
		fmt.Println("All component imports are valid")
		return nil
	}
	fmt.Printf("Found %d violation(s):\n", len(violations))
	for _, v := range violations {
		fmt.Printf("  %s\n", v)
	}
	return fmt.Errorf("component import validation failed")
}

// checkDir parses every Go file of a component, tests included, and reports imports of this module outside allowed.
func checkDir(dir string, allowed []string) ([]violation, error) {
	var violations []violation
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() || !strings.HasSuffix(path, ".go") {
			return nil
		}

		fset := token.NewFileSet()
		node, err := parser.ParseFile(fset, path, nil, parser.ImportsOnly)
		if err != nil {
			return fmt.Errorf("failed to parse %s: %w", path, err)
		}

		for _, imp := range node.Imports {
			importPath := strings.Trim(imp.Path.Value, `"`)
			if !strings.HasPrefix(importPath, repoModule+"/") {
				continue
			}
			rel := strings.TrimPrefix(importPath, repoModule+"/")
			if !hasAllowedPrefix(rel, allowed) {
				violations = append(violations, violation{filePath: path, importPath: importPath})
			}
		}
		return nil
	})
	return violations, err
}

func hasAllowedPrefix(rel string, allowed []string) bool {
	for _, base := range allowed {
		if rel == base || strings.HasPrefix(rel, base+"/") {
			return true
		}
	}
	return false
}
