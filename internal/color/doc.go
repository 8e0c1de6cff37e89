// Package color provides the terminal styles pfctl uses for its table and
// status output.
//
// Styles come from lipgloss, which degrades to plain text when the output is
// not a terminal or NO_COLOR is set. Initialize selects the palette for dark
// or light backgrounds.
//
// # Usage Example
//
//	color.Initialize(lipgloss.HasDarkBackground())
//	fmt.Println(color.Status("Running"))
package color
