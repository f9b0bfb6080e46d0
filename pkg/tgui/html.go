package tgui

import (
	"html"
	"strings"
)

const ParseModeHTML = "HTML"

// H is HTML that is already safe for Telegram's HTML parse mode.
type H string

func (h H) String() string { return string(h) }

// Esc escapes text for Telegram HTML parse mode.
func Esc(s string) H { return H(html.EscapeString(s)) }

func tag(name string, inner H) H { return H("<" + name + ">" + string(inner) + "</" + name + ">") }

func B(s string) H    { return tag("b", Esc(s)) }
func I(s string) H    { return tag("i", Esc(s)) }
func U(s string) H    { return tag("u", Esc(s)) }
func Code(s string) H { return tag("code", Esc(s)) }

// Card renders a titled block of "Label: value" lines. Empty values are
// shown as "-".
type Card struct {
	title H
	lines []H
}

func NewCard(title H) *Card { return &Card{title: title} }

func (c *Card) Field(label, value string) *Card {
	if strings.TrimSpace(value) == "" {
		value = "-"
	}
	c.lines = append(c.lines, B(label+":")+" "+Esc(value))
	return c
}

// CodeField is Field with the value in monospace, handy for ids.
func (c *Card) CodeField(label, value string) *Card {
	c.lines = append(c.lines, B(label+":")+" "+Code(value))
	return c
}

func (c *Card) Line(h H) *Card {
	c.lines = append(c.lines, h)
	return c
}

func (c *Card) String() string {
	var b strings.Builder
	if c.title != "" {
		b.WriteString(string(c.title))
		b.WriteString("\n\n")
	}
	for i, l := range c.lines {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(string(l))
	}
	return b.String()
}
