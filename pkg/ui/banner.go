package ui

import (
	"fmt"
	"strings"
	"time"
)

const (
	reset     = "\033[0m"
	bold      = "\033[1m"
	dim       = "\033[2m"
	frost     = "\033[38;5;195m"
	glacier   = "\033[38;5;153m"
	sky       = "\033[38;5;117m"
	seafoam   = "\033[38;5;49m"
	cobalt    = "\033[38;5;33m"
	indigo    = "\033[38;5;61m"
	heapAmber = "\033[38;5;214m"
)

var wordmark = [][]string{
	{"███╗   ███╗", "████╗ ████║", "██╔████╔██║", "██║╚██╔╝██║", "██║ ╚═╝ ██║", "╚═╝     ╚═╝"},
	{"███████╗", "██╔════╝", "█████╗  ", "██╔══╝  ", "███████╗", "╚══════╝"},
	{"███╗   ███╗", "████╗ ████║", "██╔████╔██║", "██║╚██╔╝██║", "██║ ╚═╝ ██║", "╚═╝     ╚═╝"},
	{"████████╗", "╚══██╔══╝", "   ██║   ", "   ██║   ", "   ██║   ", "   ╚═╝   "},
	{" ██████╗ ", "██╔═══██╗", "██║   ██║", "██║   ██║", "╚██████╔╝", " ╚═════╝ "},
	{"██████╗  ", "██╔══██╗ ", "██████╔╝ ", "██╔═══╝  ", "██║      ", "╚═╝      "},
}

var gradient = []string{frost, glacier, sky, seafoam, cobalt, indigo}

// Banner renders the colored memtop wordmark.
func Banner() string {
	var b strings.Builder

	rows := make([]string, len(wordmark[0]))
	for i, letter := range wordmark {
		color := gradient[i%len(gradient)]
		for row := range letter {
			rows[row] += color + letter[row] + " "
		}
	}
	for _, line := range rows {
		b.WriteString(bold + line + reset + "\n")
	}

	b.WriteString("\n")
	b.WriteString(bold + heapAmber + "memtop" + reset + "  •  per-container process memory\n\n")
	return b.String()
}

// Intro is the one-line run description printed under the banner.
func Intro(interval time.Duration, policy, logPath string) string {
	return fmt.Sprintf("%ssampling every %v (%s), logging to %s, press Ctrl+C to stop%s\n", dim, interval, policy, logPath, reset)
}
