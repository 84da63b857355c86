package numbering

import (
	"strconv"
	"strings"
)

const (
	minLevel = 1
	maxLevel = 6
)

// counters is the per-container fold state. It is rebuilt from zero for
// every container on every pass and never outlives a scan.
type counters struct {
	h          [maxLevel + 1]int
	has        [maxLevel + 1]bool
	paragraphs int
	seenHead   bool
}

func clampLevel(level int) int {
	if level < minLevel {
		return minLevel
	}
	if level > maxLevel {
		return maxLevel
	}
	return level
}

// heading advances the counter for level and returns its display number.
func (c *counters) heading(level int) string {
	level = clampLevel(level)
	c.h[level]++
	c.has[level] = true
	for k := level + 1; k <= maxLevel; k++ {
		c.h[k] = 0
		c.has[k] = false
	}
	c.paragraphs = 0
	c.seenHead = true
	return c.format(level)
}

// paragraph advances the paragraph run and returns its ordinal.
func (c *counters) paragraph() int {
	c.paragraphs++
	return c.paragraphs
}

// format applies the missing-ancestor rule: levels one to three omit absent
// ancestors, deeper levels pad them with 1.
func (c *counters) format(level int) string {
	h := c.h
	itoa := strconv.Itoa
	switch level {
	case 1:
		return itoa(h[1])
	case 2:
		if !c.has[1] {
			return itoa(h[2])
		}
		return itoa(h[1]) + "." + itoa(h[2])
	case 3:
		switch {
		case c.has[1] && c.has[2]:
			return itoa(h[1]) + "." + itoa(h[2]) + "." + itoa(h[3])
		case c.has[1]:
			return itoa(h[1]) + "." + itoa(h[3])
		case c.has[2]:
			return itoa(h[2]) + "." + itoa(h[3])
		default:
			return itoa(h[3])
		}
	default:
		parts := make([]string, 0, level)
		for k := 1; k <= level; k++ {
			value := h[k]
			if k < level && !c.has[k] {
				value = 1
			}
			parts = append(parts, itoa(value))
		}
		return strings.Join(parts, ".")
	}
}
