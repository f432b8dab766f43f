package memory

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
)

// appendLog writes one Markdown block for the context to the human log.
// The log is append-only and never machine-read.
func (s *Store) appendLog(ctx ExecutionContext, replicaMetadata map[string]any) error {
	f, err := os.OpenFile(s.logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("append log: %w", err)
	}
	defer f.Close()

	if _, err := f.WriteString(renderLogBlock(ctx, replicaMetadata)); err != nil {
		return fmt.Errorf("append log: %w", err)
	}
	return nil
}

// renderLogBlock produces the Markdown block for one context, headed by
// its timestamp and cycle, with bullet sections for each populated field.
func renderLogBlock(ctx ExecutionContext, replicaMetadata map[string]any) string {
	var b strings.Builder

	cycle := "unknown"
	if ctx.Cycle != nil {
		cycle = strconv.Itoa(*ctx.Cycle)
	}
	fmt.Fprintf(&b, "## %s — Cycle %s\n", ctx.Timestamp, cycle)

	if ctx.Artifact != nil && *ctx.Artifact != "" {
		fmt.Fprintf(&b, "* Artifact: `%s`\n", *ctx.Artifact)
	}
	if ctx.Summary != nil && *ctx.Summary != "" {
		fmt.Fprintf(&b, "* Narrative: %s\n", strings.TrimSpace(*ctx.Summary))
	}

	if len(ctx.Commands) > 0 {
		b.WriteString("* Commands:\n")
		for _, entry := range ctx.Commands {
			suffix := ""
			if entry.Detail != nil && *entry.Detail != "" {
				suffix = " — " + *entry.Detail
			}
			fmt.Fprintf(&b, "  * %s%s\n", entry.Name, suffix)
		}
	}

	if len(ctx.DatasetFingerprints) > 0 {
		b.WriteString("* Dataset Fingerprints:\n")
		for _, name := range sortedKeys(ctx.DatasetFingerprints) {
			data := ctx.DatasetFingerprints[name]
			digest := data.SHA256
			if digest == "" {
				digest = data.Error
			}
			if digest == "" {
				digest = "n/a"
			}
			fmt.Fprintf(&b, "  * %s: %s\n", name, digest)
		}
	}

	if len(ctx.Validations) > 0 {
		b.WriteString("* Validations:\n")
		for _, result := range ctx.Validations {
			suffix := ""
			if len(result.Details) > 0 {
				if raw, err := json.Marshal(result.Details); err == nil {
					suffix = fmt.Sprintf(" (%s)", raw)
				}
			}
			fmt.Fprintf(&b, "  * %s: %s%s\n", result.Name, result.Status, suffix)
		}
	}

	if len(ctx.Metrics) > 0 {
		b.WriteString("* Metrics:\n")
		for _, name := range sortedKeys(ctx.Metrics) {
			samples := ctx.Metrics[name]
			if len(samples) == 0 {
				continue
			}
			last := samples[len(samples)-1]
			unit := ""
			if last.Unit != "" {
				unit = " " + last.Unit
			}
			fmt.Fprintf(&b, "  * %s: %s%s (%d samples)\n",
				name, formatMetricValue(last.Value), unit, len(samples))
		}
	}

	if len(ctx.Metadata) > 0 {
		b.WriteString("* Metadata:\n")
		for _, key := range sortedKeys(ctx.Metadata) {
			fmt.Fprintf(&b, "  * %s: %v\n", key, ctx.Metadata[key])
		}
	}

	if len(replicaMetadata) > 0 {
		b.WriteString("* Sync Metadata:\n")
		for _, key := range sortedKeys(replicaMetadata) {
			fmt.Fprintf(&b, "  * %s: %v\n", key, replicaMetadata[key])
		}
	}

	b.WriteString("\n")
	return b.String()
}

func formatMetricValue(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
