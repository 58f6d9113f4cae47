package report

import (
	"fmt"
	"io"
	"sort"
)

// WriteCoverageMarkdown renders a coverage report in Markdown.
func WriteCoverageMarkdown(w io.Writer, c *Coverage) {
	fmt.Fprintf(w, "# Capture Coverage Report\n\nGenerated: %s\n\n", c.GeneratedAt)
	fmt.Fprintf(w, "Source: %s\n\nFrames: %d (malformed: %d)\n\n", c.Source, c.Frames, c.Malformed)

	writeCounts(w, "Encapsulation Commands", c.Commands)
	if len(c.EncapStatuses) > 0 {
		writeCounts(w, "Encapsulation Errors", c.EncapStatuses)
	}

	fmt.Fprintf(w, "## CIP Services\n\n```text\n")
	for _, key := range sortedKeys(c.Services) {
		sc := c.Services[key]
		fmt.Fprintf(w, "%s %s: %d requests, %d replies, %d errors\n", key, sc.Name, sc.Requests, sc.Replies, sc.Errors)
	}
	fmt.Fprintf(w, "```\n\n")

	writeCounts(w, "CIP Request Coverage (Service/Class/Instance/Attribute)", c.Requests)
	if len(c.Embedded) > 0 {
		writeCounts(w, "Embedded Request Coverage (Unconnected Send, Multiple Service)", c.Embedded)
	}
	if len(c.Statuses) > 0 {
		writeCounts(w, "Error Statuses", c.Statuses)
	}
	if len(c.Invalid) > 0 {
		writeCounts(w, "Invalid Requests", c.Invalid)
	}
}

func writeCounts(w io.Writer, title string, counts map[string]int) {
	fmt.Fprintf(w, "## %s\n\n```text\n", title)
	for _, key := range sortedKeys(counts) {
		fmt.Fprintf(w, "%s (%d)\n", key, counts[key])
	}
	fmt.Fprintf(w, "```\n\n")
}

func sortedKeys[V any](values map[string]V) []string {
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
