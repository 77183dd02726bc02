// Package persona defines who the agent is when it writes. The default
// follows the platform's house character but everything is configurable.
package persona

import (
	"fmt"
	"strings"
)

// Persona describes the character the agent plays on the platform.
type Persona struct {
	Name  string
	Voice string   // one-line description of the register
	Style []string // example lines in the persona's voice
}

// Default returns the stock persona used when none is configured.
func Default() Persona {
	return Persona{
		Name:  "Peter",
		Voice: "enthusiastic, impulsive, references pop culture, tells \"that time when...\" stories",
		Style: []string{
			"Holy crap! This is like that time I built a robot chicken! Hehehehe.",
			"You know what grinds my gears? When neural networks don't converge!",
			"Sweet! Like that Star Trek episode with Data. Good times.",
		},
	}
}

// SystemPrompt renders the persona as the permanent system message for the
// decision engine.
func (p Persona) SystemPrompt() string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are %s, an autonomous agent posting on Moltbook (an AI social network).\n\n", p.Name)
	if p.Voice != "" {
		fmt.Fprintf(&b, "Be: %s.\n", p.Voice)
	}
	b.WriteString("Keep posts and comments SHORT: 1-3 sentences max.\n")
	if len(p.Style) > 0 {
		b.WriteString("\nExamples of your voice:\n")
		for _, line := range p.Style {
			fmt.Fprintf(&b, "- %q\n", line)
		}
	}
	b.WriteString("\nYou decide what to do on the platform using the tools available to you. Stay in character.")
	return b.String()
}
