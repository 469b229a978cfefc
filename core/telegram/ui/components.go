package ui

import (
	"fmt"
	"strings"
)

// Card renders the bot's reply layout:
//
//	『<i>Title</i>』 ✅
//	├ first
//	└ last
type Card struct {
	sections []section
}

type section struct {
	title string
	icon  string
	lines []string
	raw   string
}

// NewCard starts a card with a header.
func NewCard(title, icon string) *Card {
	return &Card{sections: []section{{title: title, icon: icon}}}
}

// Line appends a tree line to the current section. title and args are
// expected to be HTML-safe.
func (c *Card) Line(format string, args ...any) *Card {
	if len(args) == 0 {
		return c.Text(format)
	}
	return c.Text(fmt.Sprintf(format, args...))
}

// Text appends an already formatted line.
func (c *Card) Text(line string) *Card {
	s := &c.sections[len(c.sections)-1]
	s.lines = append(s.lines, line)
	return c
}

// Field appends "label: value".
func (c *Card) Field(label string, value any) *Card {
	return c.Line("%s: %v", label, value)
}

// Section starts a new header separated by a blank line.
func (c *Card) Section(title, icon string) *Card {
	c.sections = append(c.sections, section{title: title, icon: icon})
	return c
}

// Raw appends preformatted HTML after the current section's lines.
func (c *Card) Raw(html string) *Card {
	s := &c.sections[len(c.sections)-1]
	s.raw += html
	return c
}

func (c *Card) String() string {
	var b strings.Builder
	for i, s := range c.sections {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString("『<i>")
		b.WriteString(s.title)
		b.WriteString("</i>』")
		if s.icon != "" {
			b.WriteByte(' ')
			b.WriteString(s.icon)
		}
		for j, line := range s.lines {
			b.WriteByte('\n')
			if j == len(s.lines)-1 {
				b.WriteString("└ ")
			} else {
				b.WriteString("├ ")
			}
			b.WriteString(line)
		}
		if s.raw != "" {
			b.WriteByte('\n')
			b.WriteString(s.raw)
		}
	}
	return b.String()
}
