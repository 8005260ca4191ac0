package materialize

import (
	"strings"

	"golang.org/x/net/html"
)

// Requirement labels that have a materialized column.
const (
	LabelOS        = "OS"
	LabelProcessor = "Processor"
	LabelMemory    = "Memory"
	LabelGraphics  = "Graphics"
)

var requirementLabels = map[string]bool{
	LabelOS: true, LabelProcessor: true, LabelMemory: true, LabelGraphics: true,
}

// ParseRequirements extracts labelled lines from a system requirements
// fragment of the form <li><strong>Label:</strong> value</li>. The label
// loses trailing colons and asterisks; only OS, Processor, Memory and
// Graphics are kept. The value is the rest of the item's text with
// whitespace collapsed, including the text of any nested items. An item
// left open is closed by the end of its list, as a browser would.
func ParseRequirements(fragment string) map[string]string {
	fields := make(map[string]string)
	if strings.TrimSpace(fragment) == "" {
		return fields
	}

	var (
		open    []*requirementItem
		seen    = make(map[string]int)
		lists   int
		strongs int
		started int
	)
	// Items are emitted in start order so an inner item with the same
	// label wins over its enclosing item.
	closeItem := func(it *requirementItem) {
		if !it.hasLabel {
			return
		}
		name := cleanLabel(it.label.String())
		if !requirementLabels[name] {
			return
		}
		if prev, ok := seen[name]; ok && prev > it.seq {
			return
		}
		seen[name] = it.seq
		fields[name] = collapse(it.value.String())
	}
	// closeFrom closes every open item nested at list depth or deeper.
	closeFrom := func(depth int) {
		for len(open) > 0 && open[len(open)-1].list >= depth {
			closeItem(open[len(open)-1])
			open = open[:len(open)-1]
		}
	}

	z := html.NewTokenizer(strings.NewReader(fragment))
	for {
		tt := z.Next()
		switch tt {
		case html.ErrorToken:
			closeFrom(0)
			return fields
		case html.StartTagToken, html.SelfClosingTagToken:
			name, _ := z.TagName()
			switch string(name) {
			case "ul", "ol":
				if tt == html.StartTagToken {
					lists++
				}
			case "li":
				closeFrom(lists)
				started++
				open = append(open, &requirementItem{list: lists, seq: started})
			case "strong":
				if tt != html.StartTagToken {
					continue
				}
				strongs++
				// the first strong inside an item is its label
				for _, it := range open {
					if !it.hasLabel {
						it.hasLabel, it.labelDepth = true, strongs
					}
				}
			case "br":
				for _, it := range open {
					if it.hasLabel && it.labelDepth == 0 {
						it.value.WriteByte(' ')
					}
				}
			}
		case html.EndTagToken:
			name, _ := z.TagName()
			switch string(name) {
			case "ul", "ol":
				if lists > 0 {
					closeFrom(lists)
					lists--
				}
			case "li":
				if n := len(open); n > 0 && open[n-1].list == lists {
					closeItem(open[n-1])
					open = open[:n-1]
				}
			case "strong":
				if strongs == 0 {
					continue
				}
				for _, it := range open {
					if it.labelDepth == strongs {
						it.labelDepth = 0
					}
				}
				strongs--
			}
		case html.TextToken:
			for _, it := range open {
				switch {
				case it.labelDepth > 0:
					it.label.Write(z.Text())
				case it.hasLabel:
					it.value.Write(z.Text())
				}
			}
		}
	}
}

type requirementItem struct {
	label, value strings.Builder
	hasLabel     bool
	// labelDepth is the strong nesting level of the open label, zero once
	// the label is closed.
	labelDepth int
	list       int
	seq        int
}

func cleanLabel(s string) string {
	return strings.TrimSpace(strings.TrimRight(strings.TrimSpace(s), ":*"))
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
