package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/peterh/liner"
	"github.com/tebeka/atexit"

	"bumbam/pkg/store"
	"bumbam/pkg/utils"
)

const prompt = ">>> "

func main() {
	storePath := flag.String("store", utils.DefaultStorePath(), "image library path (empty disables .save/.open)")
	historyPath := flag.String("history", defaultHistoryPath(), "line history file")
	maxSteps := flag.Uint64("max-steps", 1_000_000, "stop execution after this many instructions (0 = unlimited)")
	flag.Parse()

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn})))

	var lib *store.Store
	if *storePath != "" {
		s, err := store.Open(*storePath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "image library unavailable: %v\n", err)
		} else {
			lib = s
			atexit.Register(func() { s.Close() })
		}
	}

	ln := liner.NewLiner()
	ln.SetCtrlCAborts(true)
	atexit.Register(func() { ln.Close() })

	if *historyPath != "" {
		if f, err := os.Open(*historyPath); err == nil {
			_, _ = ln.ReadHistory(f)
			_ = f.Close()
		}
		atexit.Register(func() {
			if f, err := os.Create(*historyPath); err == nil {
				_, _ = ln.WriteHistory(f)
				_ = f.Close()
			}
		})
	}

	sh := NewShell(os.Stdout, lib, *maxSteps)
	for _, path := range flag.Args() {
		sh.Execute(".load_file " + path)
	}

	fmt.Println("Welcome to bumbam. Type .help for commands.")
	for {
		line, err := ln.Prompt(prompt)
		if errors.Is(err, io.EOF) || errors.Is(err, liner.ErrPromptAborted) {
			fmt.Println()
			break
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "read error: %v\n", err)
			break
		}
		ln.AppendHistory(line)
		if sh.Execute(line) {
			break
		}
	}
	atexit.Exit(0)
}

func defaultHistoryPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".bumbam_history")
}
