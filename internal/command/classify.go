// Package command classifies chat messages by their leading command token and
// parses the key/value parameter lines that follow it.
package command

import "strings"

// Kind identifies the handler selected for a message.
type Kind string

const (
	Generate  Kind = "generate"
	Enhance   Kind = "enhance"
	Mojo      Kind = "mojo"
	Fireworks Kind = "fireworks"
	Hide      Kind = "hide"
	Reveal    Kind = "reveal"
	Default   Kind = "default"
)

// Spec is one entry of a command table.
type Spec struct {
	Kind   Kind
	Prefix string
	// Offset is the number of characters dropped from the first line to reach
	// the argument. Users rely on these exact values, so they are not derived
	// from the prefix length.
	Offset int
}

// Table is an ordered list of commands; the first matching prefix wins.
type Table []Spec

// EchoCommands is the command table of the main bot.
var EchoCommands = Table{
	{Kind: Generate, Prefix: "/generate", Offset: 10},
	{Kind: Enhance, Prefix: "/enhance", Offset: 9},
	{Kind: Mojo, Prefix: "/mojo", Offset: 6},
	{Kind: Fireworks, Prefix: "/fireworks", Offset: 11},
}

// StegoCommands is the command table of the steganography bot.
var StegoCommands = Table{
	{Kind: Hide, Prefix: "/hide", Offset: 5},
	{Kind: Reveal, Prefix: "/reveal", Offset: 7},
}

// Classify returns the first spec whose prefix starts content. Matching is
// case-sensitive and content is not trimmed. Unmatched content yields a
// Default spec with zero offset.
func (t Table) Classify(content string) Spec {
	for _, s := range t {
		if strings.HasPrefix(content, s.Prefix) {
			return s
		}
	}
	return Spec{Kind: Default}
}

// Argument returns text with the spec's offset removed, counted in characters.
func (s Spec) Argument(text string) string {
	return dropRunes(text, s.Offset)
}

// dropRunes removes the first n characters of s. It returns "" when s is
// shorter than n.
func dropRunes(s string, n int) string {
	for i := range s {
		if n == 0 {
			return s[i:]
		}
		n--
	}
	return ""
}
