// Package conscious implements the five-layer consciousness stack:
// perception, interpretation, deliberation, reflection, metacognition.
// Each layer consumes the previous layer's output and records its wall-clock
// duration into the response's layer timings.
package conscious

import "strings"

// Perceive is layer one: input normalization. Pure function.
func Perceive(input string) string {
	return strings.Join(strings.Fields(strings.TrimSpace(input)), " ")
}
