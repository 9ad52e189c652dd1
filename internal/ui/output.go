// Package ui provides colored terminal output helpers for the CLI.
package ui

import (
	"strings"

	"github.com/fatih/color"
)

const headerWidth = 60

var (
	headerColor  = color.New(color.FgCyan, color.Bold)
	stepColor    = color.New(color.FgCyan)
	successColor = color.New(color.FgGreen)
	infoColor    = color.New(color.FgBlue)
	warnColor    = color.New(color.FgYellow)
	errorColor   = color.New(color.FgRed)
)

// Header prints a banner for a major phase of the run.
func Header(text string) {
	line := strings.Repeat("=", headerWidth)
	headerColor.Println(line)
	headerColor.Println(center(text, headerWidth))
	headerColor.Println(line)
}

// Step prints a numbered progress step, e.g. [2/4].
func Step(n, total int, text string) {
	stepColor.Printf("[%d/%d] %s\n", n, total, text)
}

func Success(text string) { successColor.Printf("✓ %s\n", text) }

func Info(text string) { infoColor.Printf("  %s\n", text) }

func Warning(text string) { warnColor.Printf("⚠ %s\n", text) }

func Error(text string) { errorColor.Printf("✗ %s\n", text) }

// BlueText returns text colored for inline use in plain output.
func BlueText(text string) string { return color.BlueString(text) }

// YellowText returns text colored for inline use in plain output.
func YellowText(text string) string { return color.YellowString(text) }

func center(text string, width int) string {
	if len(text) >= width {
		return text
	}
	pad := (width - len(text)) / 2
	return strings.Repeat(" ", pad) + text
}
