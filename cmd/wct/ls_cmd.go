package main

import (
	"fmt"
	"io"

	"github.com/waivern/wct/pkg/export"
	"github.com/waivern/wct/pkg/ruleset"
)

// lsComponentsCmd lists registered component types. Connectors declare
// no input schemas; everything else is a processor.
func lsComponentsCmd(stdout, stderr io.Writer, connectors bool) int {
	_, components, err := registries()
	if err != nil {
		fmt.Fprintf(stderr, "wct: %v\n", err)
		return exitFailed
	}
	for _, name := range components.Names() {
		f, err := components.Lookup(name)
		if err != nil {
			continue
		}
		isConnector := len(f.InputSchemas()) == 0
		if isConnector != connectors {
			continue
		}
		out := make([]string, 0, len(f.OutputSchemas()))
		for _, s := range f.OutputSchemas() {
			out = append(out, s.Key())
		}
		fmt.Fprintf(stdout, "%s\t%v\n", name, out)
	}
	return exitOK
}

func lsExportersCmd(stdout io.Writer) int {
	for _, name := range export.Names() {
		fmt.Fprintln(stdout, name)
	}
	return exitOK
}

func lsRulesetsCmd(stdout io.Writer) int {
	names, err := ruleset.Names()
	if err != nil {
		fmt.Fprintln(stdout, err)
		return exitFailed
	}
	for _, name := range names {
		fmt.Fprintln(stdout, name)
	}
	return exitOK
}
