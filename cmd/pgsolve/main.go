// Copyright 2017 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command pgsolve runs the version solver against a fixture universe: a
// yaml file describing packages, their versions, and the constraints each
// version imposes. It prints the resulting bindings, or the solver's
// explanation of why no solution exists.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	pubgrub "github.com/vsolver/pubgrub"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type options struct {
	trace      bool
	traceFile  string
	prefetch   bool
	cacheDir   string
	skipUpdate bool
	verbose    bool
}

func newRootCommand() *cobra.Command {
	var opts options

	cmd := &cobra.Command{
		Use:           "pgsolve <universe.yaml>",
		Short:         "Solve package version constraints from a fixture universe",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, args[0], opts)
		},
	}

	cmd.Flags().BoolVar(&opts.trace, "trace", false, "write a trace of solver actions to stderr")
	cmd.Flags().StringVar(&opts.traceFile, "trace-file", "", "append solver trace records to this file")
	cmd.Flags().BoolVar(&opts.prefetch, "prefetch", false, "prefetch dependency containers in the background")
	cmd.Flags().StringVar(&opts.cacheDir, "cache-dir", "", "persist container data to this directory")
	cmd.Flags().BoolVar(&opts.skipUpdate, "skip-update", false, "treat cached container data as authoritative")
	cmd.Flags().BoolVarP(&opts.verbose, "verbose", "v", false, "enable debug logging")

	return cmd
}

func run(cmd *cobra.Command, path string, opts options) error {
	uni, err := loadUniverse(path)
	if err != nil {
		return err
	}

	lg := logrus.New()
	lg.SetOutput(cmd.ErrOrStderr())
	if opts.verbose {
		lg.SetLevel(logrus.DebugLevel)
	}

	params := pubgrub.SolveParameters{
		Prefetch:   opts.prefetch,
		SkipUpdate: opts.skipUpdate,
		CacheDir:   opts.cacheDir,
		TraceFile:  opts.traceFile,
		Logger:     lg,
	}
	if opts.trace {
		params.TraceWriter = cmd.ErrOrStderr()
	}

	s, err := pubgrub.NewSolver(uni.provider(), params)
	if err != nil {
		return err
	}
	defer s.Close()

	bindings, err := s.Solve(context.Background(), uni.dependencies, uni.pins)
	if err != nil {
		return err
	}

	for _, b := range bindings {
		fmt.Fprintln(cmd.OutOrStdout(), b)
	}
	return nil
}
