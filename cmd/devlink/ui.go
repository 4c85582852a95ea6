package main

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// terminalUI is the interactive collaborator for CLI use: plain prompts on
// stdin/stdout.
type terminalUI struct {
	in *bufio.Reader
}

func newTerminalUI() *terminalUI {
	return &terminalUI{in: bufio.NewReader(os.Stdin)}
}

func (u *terminalUI) Notify(msg string) {
	fmt.Println(msg)
}

func (u *terminalUI) Warn(msg string) {
	fmt.Println("warning:", msg)
}

func (u *terminalUI) Confirm(prompt string) bool {
	fmt.Printf("%s [y/N] ", prompt)
	line, err := u.in.ReadString('\n')
	if err != nil {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes"
}

func (u *terminalUI) Pick(prompt string, options []string) (int, bool) {
	fmt.Println(prompt)
	for i, opt := range options {
		fmt.Printf("  %d) %s\n", i+1, opt)
	}
	fmt.Print("> ")

	line, err := u.in.ReadString('\n')
	if err != nil {
		return 0, false
	}
	choice, err := strconv.Atoi(strings.TrimSpace(line))
	if err != nil || choice < 1 || choice > len(options) {
		return 0, false
	}
	return choice - 1, true
}
