package stats

import (
	"fmt"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// englishPrinter groups digits in human-facing numbers (12,345 bytes).
var englishPrinter = message.NewPrinter(language.English)

// AnalyzePatterns renders the size-distribution histogram together with the
// estimated average allocation size and allocation frequency.
func (l *Ledger) AnalyzePatterns() string {
	if l == nil {
		return ""
	}
	r := l.Snapshot()

	var b strings.Builder
	b.WriteString("Memory Allocation Pattern Analysis:\n")
	b.WriteString("================================\n")
	englishPrinter.Fprintf(&b, "Average Allocation Size: %.2f bytes\n", r.AverageSize)
	englishPrinter.Fprintf(&b, "Allocation Frequency: %d/sec\n\n", r.Frequency)
	b.WriteString("Size Distribution:\n")
	for i := range r.Distribution {
		if i == SizeBucketCount-1 {
			// The catch-all bucket has no finite threshold to print.
			englishPrinter.Fprintf(&b, "  > %d bytes: %d allocations\n",
				sizeThresholds[SizeBucketCount-2], r.Distribution[i].Count)
			continue
		}
		englishPrinter.Fprintf(&b, "  \u2264 %d bytes: %d allocations\n",
			r.Distribution[i].Threshold, r.Distribution[i].Count)
	}
	return b.String()
}

// CheckLeaks renders every outstanding tracked allocation, or a clean bill
// of health when nothing is live.
func (l *Ledger) CheckLeaks() string {
	if l == nil {
		return ""
	}
	r := l.Snapshot()

	var b strings.Builder
	b.WriteString("Memory Leak Analysis:\n")
	b.WriteString("===================\n")
	englishPrinter.Fprintf(&b, "Active Allocations: %d\n", r.ActiveTracked)
	englishPrinter.Fprintf(&b, "Total Leaked Bytes: %d\n\n", r.LeakedBytes)

	if len(r.Leaks) == 0 {
		b.WriteString("No memory leaks detected.\n")
		return b.String()
	}

	b.WriteString("Detected Leaks:\n")
	for i, leak := range r.Leaks {
		fmt.Fprintf(&b, "  Leak #%d:\n", i+1)
		fmt.Fprintf(&b, "    Address: 0x%x\n", uint64(leak.Address))
		englishPrinter.Fprintf(&b, "    Size: %d bytes\n", leak.Size)
		fmt.Fprintf(&b, "    Location: %s:%d\n", leak.File, leak.Line)
		fmt.Fprintf(&b, "    Time: %d\n\n", leak.Timestamp)
	}
	return b.String()
}
