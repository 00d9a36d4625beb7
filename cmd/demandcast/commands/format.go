package commands

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
)

// 모든 커맨드가 동일한 출력 포맷을 사용하도록 통일

const ruleWidth = 59

// PrintSeparator prints a visual separator
func PrintSeparator() { fmt.Println(strings.Repeat("─", ruleWidth)) }

// PrintDoubleSeparator prints a double-line separator
func PrintDoubleSeparator() { fmt.Println(strings.Repeat("═", ruleWidth)) }

// PrintTitle prints a boxed section title
func PrintTitle(title string) {
	fmt.Println()
	PrintDoubleSeparator()
	fmt.Printf("  %s\n", title)
	PrintSeparator()
}

// PrintWarning prints a warning message
func PrintWarning(message string) { fmt.Printf("\n⚠️  %s\n\n", message) }

// PrintSuccess prints a success message
func PrintSuccess(message string) { fmt.Printf("✅ %s\n", message) }

// PrintError prints an error message
func PrintError(message string) { fmt.Printf("❌ %s\n", message) }

// PrintList prints a bulleted list
func PrintList(items []string) {
	for _, item := range items {
		fmt.Printf("   • %s\n", item)
	}
}

// PrintKeyValue prints one aligned key-value line
func PrintKeyValue(key string, value string, keyWidth int) {
	fmt.Printf("   %-*s : %s\n", keyWidth, key, value)
}

// PrintTable prints rows under a header with tab-aligned columns
func PrintTable(header []string, rows [][]string) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, strings.Join(header, "\t"))

	rule := make([]string, len(header))
	for i, h := range header {
		rule[i] = strings.Repeat("─", len(h))
	}
	fmt.Fprintln(w, strings.Join(rule, "\t"))

	for _, row := range rows {
		fmt.Fprintln(w, strings.Join(row, "\t"))
	}
	w.Flush()
}
