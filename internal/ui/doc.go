// Package ui renders CLI output: a [lipgloss] palette, rounded tables via go-pretty, live
// transfer progress and the end-of-transfer summary.
//
// Commands write through a [Painter] so tests can use [Plain] and compare uncolored text.
package ui
