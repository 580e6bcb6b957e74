package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/chzyer/readline"
)

// confirm asks a yes/no question on the terminal. --yes answers it.
// Ctrl+C and Ctrl+D count as no.
func confirm(question string) (bool, error) {
	if flagYes {
		return true, nil
	}

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          fmt.Sprintf("%s %s ", yellow(question), gray("[y/N]")),
		InterruptPrompt: "^C",
		EOFPrompt:       "no",
	})
	if err != nil {
		return false, fmt.Errorf("failed to create readline: %w", err)
	}
	defer rl.Close()

	line, err := rl.Readline()
	if err != nil {
		if errors.Is(err, readline.ErrInterrupt) || errors.Is(err, io.EOF) {
			return false, nil
		}
		return false, err
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true, nil
	default:
		return false, nil
	}
}

// mustConfirm exits quietly when the operator declines.
func mustConfirm(question string) {
	ok, err := confirm(question)
	if err != nil {
		exitError(err)
	}
	if !ok {
		fmt.Println("Aborted.")
		os.Exit(0)
	}
}
