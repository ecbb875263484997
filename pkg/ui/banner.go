package ui

import "strings"

const (
	reset       = "\033[0m"
	bold        = "\033[1m"
	rootRed     = "\033[38;5;196m"
	emberOrange = "\033[38;5;208m"
	honeyOrange = "\033[38;5;214m"
	beeYellow   = "\033[38;5;226m"
	mint        = "\033[38;5;121m"
	seafoam     = "\033[38;5;49m"
	cobalt      = "\033[38;5;33m"
	deepIndigo  = "\033[38;5;61m"
	dimGray     = "\033[38;5;244m"
)

// Banner renders a colored procwalk wordmark. Each letter gets one step of
// a gradient running from the root color down to the leaf color.
func Banner() string {
	var b strings.Builder

	letters := [][]string{
		{"██████╗ ", "██╔══██╗", "██████╔╝", "██╔═══╝ ", "██║     ", "╚═╝     "},
		{"██████╗ ", "██╔══██╗", "██████╔╝", "██╔══██╗", "██║  ██║", "╚═╝  ╚═╝"},
		{" ██████╗ ", "██╔═══██╗", "██║   ██║", "██║   ██║", "╚██████╔╝", " ╚═════╝ "},
		{" ██████╗", "██╔════╝", "██║     ", "██║     ", "╚██████╗", " ╚═════╝"},
		{"██╗    ██╗", "██║    ██║", "██║ █╗ ██║", "██║███╗██║", "╚███╔███╔╝", " ╚══╝╚══╝ "},
		{" █████╗ ", "██╔══██╗", "███████║", "██╔══██║", "██║  ██║", "╚═╝  ╚═╝"},
		{"██╗     ", "██║     ", "██║     ", "██║     ", "███████╗", "╚══════╝"},
		{"██╗  ██╗", "██║ ██╔╝", "█████╔╝ ", "██╔═██╗ ", "██║  ██╗", "╚═╝  ╚═╝"},
	}
	gradient := []string{rootRed, emberOrange, honeyOrange, beeYellow, mint, seafoam, cobalt, deepIndigo}
	rows := make([]string, len(letters[0]))
	for i, letter := range letters {
		color := gradient[i%len(gradient)]
		for row := 0; row < len(letter); row++ {
			rows[row] += color + letter[row] + " "
		}
	}
	for _, line := range rows {
		b.WriteString(bold + line + reset + "\n")
	}

	b.WriteString("\n")
	b.WriteString(bold + emberOrange + "procwalk" + reset + dimGray + "  •  " + reset + "process ancestry lens\n\n")

	return b.String()
}
