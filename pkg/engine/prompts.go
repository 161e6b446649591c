package engine

import (
	"fmt"
	"sort"
	"strings"
)

// renderInterfacePrompt wraps the raw user prompt for interface-class models:
// an instruction-following wrapper requesting a complete solution.
func renderInterfacePrompt(prompt string, context map[string]string) string {
	var b strings.Builder
	b.WriteString("You are a helpful assistant specialized in generating complete solutions.\n\n")
	writeContext(&b, context)
	fmt.Fprintf(&b, "User Request: %s\n\n", prompt)
	b.WriteString("Provide a complete, working solution with proper formatting, comments, and examples.")
	return b.String()
}

// renderKnowledgePrompt wraps the raw user prompt for knowledge-class models:
// a context-retrieval wrapper requesting background, best practices, and pitfalls.
func renderKnowledgePrompt(prompt string, context map[string]string) string {
	var b strings.Builder
	b.WriteString("You are a knowledge retrieval system. Provide relevant context and information.\n\n")
	writeContext(&b, context)
	fmt.Fprintf(&b, "User Request: %s\n\n", prompt)
	b.WriteString("Provide: 1) relevant background information, 2) best practices, 3) common pitfalls to avoid.")
	return b.String()
}

// augmentWithInterfaceOutput extends a raw prompt with the interface call's
// output, used by the sequential strategy to chain the knowledge call.
func augmentWithInterfaceOutput(prompt, interfaceOutput string) string {
	if interfaceOutput == "" {
		return prompt
	}
	return fmt.Sprintf("%s\n\nContext from interface model:\n%s", prompt, interfaceOutput)
}

// writeContext renders the optional context map in deterministic key order.
func writeContext(b *strings.Builder, context map[string]string) {
	if len(context) == 0 {
		return
	}
	keys := make([]string, 0, len(context))
	for k := range context {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	b.WriteString("Context:\n")
	for _, k := range keys {
		fmt.Fprintf(b, "  %s: %s\n", k, context[k])
	}
	b.WriteString("\n")
}
