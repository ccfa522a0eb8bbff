// describe compiles YAML schema files and prints the resolved graph: the
// storage of every edge and the join tables synthesized for them.
//
//	go run ./compiler/cmd/describe compiler/load/testdata/chat.yaml
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/syssam/ents/compiler/load"
	"github.com/syssam/ents/graph"
	"github.com/syssam/ents/schema"
)

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("describe", flag.ContinueOnError)
	fs.SetOutput(stderr)
	verbose := fs.Bool("v", false, "log edge resolution")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		return errors.New("usage: describe [-v] schema.yaml...")
	}
	var tables []schema.Interface
	for _, path := range fs.Args() {
		s, err := load.Load(path)
		if err != nil {
			return err
		}
		tables = append(tables, s.Interfaces()...)
	}
	level := slog.LevelWarn
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))
	g, err := graph.NewBuilder(graph.WithLogger(logger)).Add(tables...).Build()
	if err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}
	g.Fprint(stdout)
	return nil
}
