package ui

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// ConfirmDangerousOperation displays a warning box and prompts the user to
// type "I AGREE" to proceed. Returns true if the user confirmed.
func ConfirmDangerousOperation(title string, warnings []string, disclaimer string) bool {
	width := GetTerminalWidth()

	var lines []string

	titleLine := lipgloss.NewStyle().
		Foreground(WarningColor).
		Bold(true).
		Render(fmt.Sprintf("   ⚠  WARNING  ─  %s", title))
	lines = append(lines, "", titleLine, "")

	for _, warning := range warnings {
		bulletStyle := lipgloss.NewStyle().Foreground(TextColor)
		lines = append(lines, bulletStyle.Render("   • "+warning))
	}
	lines = append(lines, "")

	if disclaimer != "" {
		disclaimerStyle := lipgloss.NewStyle().
			Foreground(MutedColor).
			Italic(true).
			Width(width - 12).
			PaddingLeft(3)
		lines = append(lines, disclaimerStyle.Render(disclaimer), "")
	}

	box := lipgloss.NewStyle().
		Border(lipgloss.DoubleBorder()).
		BorderForeground(WarningColor).
		Width(width-2).
		Padding(0, 2).
		Render(strings.Join(lines, "\n"))

	fmt.Println(box)
	fmt.Println()

	promptStyle := lipgloss.NewStyle().
		Foreground(WarningColor).
		Bold(true)
	fmt.Print(promptStyle.Render("To proceed, type \"I AGREE\" and press Enter: "))

	reader := bufio.NewReader(os.Stdin)
	input, err := reader.ReadString('\n')
	if err != nil {
		fmt.Println()
		return false
	}

	if strings.TrimSpace(input) == "I AGREE" {
		fmt.Println()
		return true
	}

	fmt.Println()
	fmt.Println(MutedStyle.Render("  Operation cancelled."))
	fmt.Println()
	return false
}

// DeployConfirmation is a pre-configured confirmation for payload deployment.
func DeployConfirmation() bool {
	return ConfirmDangerousOperation(
		"PAYLOAD DEPLOYMENT",
		[]string{
			"This operation writes executable code into the target's RAM",
			"A wrong staging address can corrupt the running bootloader",
			"Only proceed on hardware you own or are authorized to test",
			"Keep a recovery method (flash programmer, recovery mode) at hand",
		},
		"DISCLAIMER: This software is provided as-is, without warranty of any kind. "+
			"The authors accept no responsibility for any damage to your device. "+
			"By proceeding, you acknowledge that you understand the risks involved "+
			"in executing code on the target.",
	)
}

// RebootConfirmation is a pre-configured confirmation for operations that
// reset the target, including crash-based register reads.
func RebootConfirmation() bool {
	return ConfirmDangerousOperation(
		"TARGET RESET",
		[]string{
			"This operation resets the target, or crashes it on purpose",
			"Unsaved target state (environment changes, staged payloads) is lost",
			"Targets with one-time boot counters or rollback fuses may be affected",
		},
		"DISCLAIMER: This software is provided as-is, without warranty of any kind. "+
			"The authors accept no responsibility for any damage to your device.",
	)
}
