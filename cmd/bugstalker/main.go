// Copyright 2014 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command bugstalker is a thin console front-end over the debugger
// facade (spec.md §6's "CLI boundary owned by the external front-end").
// It stands in for the out-of-scope REPL/TUI/IDE-adapter layers just
// enough to drive the module end-to-end: launch a target (the attach
// command reports that only launch is supported),
// dispatch console commands through debugger.Facade.Dispatch, and print
// StopReport/OutputLine events as they arrive.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/chzyer/readline"
	"github.com/godzie44/BugStalker/debugger"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	logFile    string
	logTrace   bool
	theme      string
	stdlibSrc  string
	oracle     string
)

func main() {
	root := &cobra.Command{
		Use:   "bugstalker",
		Short: "source-level debugger for native Linux x86-64 programs",
	}
	root.PersistentFlags().StringVar(&logFile, "log-file", "", "write logs to this file instead of stderr")
	root.PersistentFlags().BoolVar(&logTrace, "log-trace", false, "enable trace-level logging")
	root.PersistentFlags().StringVar(&theme, "theme", "default", "console color theme")
	root.PersistentFlags().StringVar(&stdlibSrc, "stdlib-src", "", "path to standard library sources for source display")
	root.PersistentFlags().StringVar(&oracle, "oracle", "", "container-recognition oracle override")
	viper.BindPFlags(root.PersistentFlags())

	root.AddCommand(&cobra.Command{
		Use:   "launch <path> [args...]",
		Short: "launch and debug a new process",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConsole(nil, args[0], args[1:])
		},
	})
	root.AddCommand(&cobra.Command{
		Use:   "attach <pid>",
		Short: "attach to a running process",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pid, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid pid %q: %w", args[0], err)
			}
			return runConsole(&pid, "", nil)
		},
	})

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// newLogger builds the session logger from viper's merged view of flags,
// environment, and (were one configured) a config file, rather than the
// raw cobra flag variables directly — the ambient config layer this
// module carries per its expanded specification.
func newLogger() *logrus.Entry {
	log := logrus.New()
	if viper.GetBool("log-trace") {
		log.SetLevel(logrus.TraceLevel)
	}
	if path := viper.GetString("log-file"); path != "" {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err == nil {
			log.SetOutput(f)
		}
	}
	return logrus.NewEntry(log)
}

// historyPath mirrors the teacher repo's session-persistence convention:
// one history file under the user's state directory, appended to by
// readline itself.
func historyPath() string {
	dir := os.Getenv("XDG_STATE_HOME")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		dir = filepath.Join(home, ".local", "state")
	}
	return filepath.Join(dir, "bugstalker", "history")
}

func runConsole(attachPID *int, path string, args []string) error {
	log := newLogger()
	f := debugger.New(log)

	f.OnStop(func(r debugger.StopReport) {
		if r.Exited {
			fmt.Printf("[exited with code %d]\n", r.ExitCode)
			return
		}
		if r.File != "" {
			fmt.Printf("thread %d stopped (%s) at %s:%d\n", r.Thread, r.Reason, r.File, r.Line)
		} else {
			fmt.Printf("thread %d stopped (%s) at %#x\n", r.Thread, r.Reason, r.PC)
		}
	})
	f.OnOutput(func(o debugger.OutputLine) {
		fmt.Printf("[%s] %s\n", o.Stream, o.Text)
	})
	f.OnObjectLoaded(func(e debugger.ObjectEvent) {
		fmt.Printf("[loaded %s]\n", e.Path)
	})
	f.OnObjectUnloaded(func(e debugger.ObjectEvent) {
		fmt.Printf("[unloaded %s]\n", e.Path)
	})

	if attachPID != nil {
		return fmt.Errorf("attach mode requires a running target; this build supports launch only (pid %d requested)", *attachPID)
	}

	argv := append([]string{path}, args...)
	if _, err := f.Run(path, argv, os.Environ(), "."); err != nil {
		return err
	}

	histFile := historyPath()
	if histFile != "" {
		os.MkdirAll(filepath.Dir(histFile), 0755)
	}
	rl, err := readline.NewEx(&readline.Config{
		Prompt:      "(bugstalker) ",
		HistoryFile: histFile,
	})
	if err != nil {
		return err
	}
	defer rl.Close()

	for {
		line, err := rl.Readline()
		if err != nil {
			break
		}
		if line == "quit" || line == "q" {
			break
		}
		out, err := f.Dispatch(line)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			continue
		}
		if out != "" {
			fmt.Println(out)
		}
	}
	return f.Quit()
}
