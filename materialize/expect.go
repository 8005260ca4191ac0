package materialize

import (
	"bytes"
	"encoding/json"
	"math"
	"strings"

	"golang.org/x/net/html"

	"github.com/poiesic/steamset/core"
)

// The Expect functions re-derive materialized values with typed decoding and
// a parsed HTML tree. They share no code with the rule table so a wrong rule
// shows up as a discrepancy instead of agreeing with itself.

// Expected returns the expected value of every materialized column for src.
// NULL columns are absent.
func Expected(src core.MaterialSource) core.MaterializedRow {
	row := core.MaterializedRow{AppID: src.AppID, Values: make(map[string]core.Value)}
	set := func(column string, v core.Value) {
		if !v.IsNull() {
			row.Values[column] = v
		}
	}

	set(core.ColSupportsWindows, ExpectSupports(src.PCRequirements))
	set(core.ColSupportsMac, ExpectSupports(src.MacRequirements))
	set(core.ColSupportsLinux, ExpectSupports(src.LinuxRequirements))

	initial, final, discount, currency := ExpectPrices(src.PriceOverview, src.IsFree)
	set(core.ColInitialPrice, initial)
	set(core.ColFinalPrice, final)
	set(core.ColDiscountPercent, discount)
	set(core.ColCurrency, currency)

	set(core.ColAchievementCount, ExpectAchievementCount(src.Achievements))

	minimum, recommended := ExpectRequirements(src.PCRequirements)
	for label, cols := range map[string][2]string{
		LabelOS:        {core.ColPCOSMin, core.ColPCOSRec},
		LabelProcessor: {core.ColPCProcessorMin, core.ColPCProcessorRec},
		LabelMemory:    {core.ColPCMemoryMin, core.ColPCMemoryRec},
		LabelGraphics:  {core.ColPCGraphicsMin, core.ColPCGraphicsRec},
	} {
		if v, ok := minimum[label]; ok {
			set(cols[0], core.Text(v))
		}
		if v, ok := recommended[label]; ok {
			set(cols[1], core.Text(v))
		}
	}
	return row
}

// ExpectSupports is false for a missing fragment or an empty object.
func ExpectSupports(raw json.RawMessage) core.Value {
	if len(bytes.TrimSpace(raw)) == 0 {
		return core.Bool(false)
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err == nil && buf.String() == "{}" {
		return core.Bool(false)
	}
	return core.Bool(true)
}

// ExpectPrices returns the four price columns. All are NULL for free
// applications and when initial is not an integral number.
func ExpectPrices(raw json.RawMessage, isFree bool) (initial, final, discount, currency core.Value) {
	initial, final, discount, currency = core.Null(), core.Null(), core.Null(), core.Null()
	if isFree {
		return
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return
	}
	initial = decodeInteger(fields["initial"])
	if initial.IsNull() {
		return
	}
	final = decodeInteger(fields["final"])
	discount = decodeInteger(fields["discount_percent"])
	var s *string
	if err := json.Unmarshal(fields["currency"], &s); err == nil && s != nil {
		currency = core.Text(*s)
	}
	return
}

// ExpectAchievementCount is achievements.total when it is an integral number.
func ExpectAchievementCount(raw json.RawMessage) core.Value {
	var achievements struct {
		Total json.RawMessage `json:"total"`
	}
	if err := json.Unmarshal(raw, &achievements); err != nil {
		return core.Null()
	}
	return decodeInteger(achievements.Total)
}

// ExpectRequirements parses the minimum and recommended lists of an object
// shaped pc_requirements fragment.
func ExpectRequirements(raw json.RawMessage) (minimum, recommended map[string]string) {
	var req struct {
		Minimum     *string `json:"minimum"`
		Recommended *string `json:"recommended"`
	}
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, nil
	}
	if err := json.Unmarshal(trimmed, &req); err != nil {
		// a non-string minimum still leaves recommended usable
		var loose map[string]json.RawMessage
		if json.Unmarshal(trimmed, &loose) != nil {
			return nil, nil
		}
		req.Minimum, req.Recommended = stringField(loose["minimum"]), stringField(loose["recommended"])
	}
	if req.Minimum != nil {
		minimum = requirementTree(*req.Minimum)
	}
	if req.Recommended != nil {
		recommended = requirementTree(*req.Recommended)
	}
	return minimum, recommended
}

func stringField(raw json.RawMessage) *string {
	var s *string
	if json.Unmarshal(raw, &s) != nil {
		return nil
	}
	return s
}

func decodeInteger(raw json.RawMessage) core.Value {
	var f *float64
	if len(raw) == 0 || json.Unmarshal(raw, &f) != nil || f == nil {
		return core.Null()
	}
	if *f != math.Trunc(*f) {
		return core.Null()
	}
	return core.Int(int64(*f))
}

// requirementTree walks the parsed document for labelled list items.
func requirementTree(fragment string) map[string]string {
	fields := make(map[string]string)
	if strings.TrimSpace(fragment) == "" {
		return fields
	}
	doc, err := html.Parse(strings.NewReader(fragment))
	if err != nil {
		return fields
	}
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "li" {
			if label, value, ok := listItem(n); ok {
				if label == LabelOS || label == LabelProcessor || label == LabelMemory || label == LabelGraphics {
					fields[label] = value
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return fields
}

// listItem splits an item into the text of its first strong element and
// the text that follows it.
func listItem(li *html.Node) (label, value string, ok bool) {
	var labelText, valueText strings.Builder
	var strong *html.Node
	var visit func(*html.Node)
	visit = func(n *html.Node) {
		switch {
		case n.Type == html.ElementNode && n.Data == "strong" && strong == nil:
			strong = n
			labelText.WriteString(textOf(n))
			return
		case n.Type == html.ElementNode && n.Data == "br" && strong != nil:
			valueText.WriteByte(' ')
		case n.Type == html.TextNode && strong != nil:
			valueText.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			visit(c)
		}
	}
	for c := li.FirstChild; c != nil; c = c.NextSibling {
		visit(c)
	}
	if strong == nil {
		return "", "", false
	}
	label = strings.TrimSpace(labelText.String())
	for strings.HasSuffix(label, ":") || strings.HasSuffix(label, "*") {
		label = label[:len(label)-1]
	}
	return strings.TrimSpace(label), strings.Join(strings.Fields(valueText.String()), " "), true
}

func textOf(n *html.Node) string {
	if n.Type == html.TextNode {
		return n.Data
	}
	var b strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		b.WriteString(textOf(c))
	}
	return b.String()
}
