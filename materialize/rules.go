package materialize

import (
	"bytes"
	"math"

	"github.com/ohler55/ojg/jp"
	"github.com/ohler55/ojg/oj"

	"github.com/poiesic/steamset/core"
)

// Fragments is a materialization source with its fragments parsed once.
type Fragments struct {
	AppID  int64
	IsFree bool

	price        any
	pc           any
	achievements any

	// raw presence, for the platform columns
	pcRaw, macRaw, linuxRaw []byte

	reqParsed   bool
	minimum     map[string]string
	recommended map[string]string
}

// ParseFragments decodes the fragments of src. Malformed fragments read as absent.
func ParseFragments(src core.MaterialSource) *Fragments {
	return &Fragments{
		AppID:        src.AppID,
		IsFree:       src.IsFree,
		price:        parse(src.PriceOverview),
		pc:           parse(src.PCRequirements),
		achievements: parse(src.Achievements),
		pcRaw:        src.PCRequirements,
		macRaw:       src.MacRequirements,
		linuxRaw:     src.LinuxRequirements,
	}
}

func parse(raw []byte) any {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	v, err := oj.Parse(raw)
	if err != nil {
		return nil
	}
	return v
}

func (f *Fragments) requirements() (minimum, recommended map[string]string) {
	if !f.reqParsed {
		f.reqParsed = true
		if obj, ok := f.pc.(map[string]any); ok {
			if s, ok := obj["minimum"].(string); ok {
				f.minimum = ParseRequirements(s)
			}
			if s, ok := obj["recommended"].(string); ok {
				f.recommended = ParseRequirements(s)
			}
		}
	}
	return f.minimum, f.recommended
}

// Rule derives one materialized column.
type Rule struct {
	Column string
	Derive func(*Fragments) core.Value
}

var (
	pathInitial  = jp.MustParseString("$.initial")
	pathFinal    = jp.MustParseString("$.final")
	pathDiscount = jp.MustParseString("$.discount_percent")
	pathCurrency = jp.MustParseString("$.currency")
	pathTotal    = jp.MustParseString("$.total")
)

// Rules is the rule table, one rule per materialized column.
var Rules = []Rule{
	{core.ColSupportsWindows, func(f *Fragments) core.Value { return supported(f.pcRaw) }},
	{core.ColSupportsMac, func(f *Fragments) core.Value { return supported(f.macRaw) }},
	{core.ColSupportsLinux, func(f *Fragments) core.Value { return supported(f.linuxRaw) }},
	{core.ColInitialPrice, priced(func(f *Fragments) core.Value { return integer(pathInitial.First(f.price)) })},
	{core.ColFinalPrice, priced(func(f *Fragments) core.Value { return integer(pathFinal.First(f.price)) })},
	{core.ColDiscountPercent, priced(func(f *Fragments) core.Value { return integer(pathDiscount.First(f.price)) })},
	{core.ColCurrency, priced(func(f *Fragments) core.Value { return text(pathCurrency.First(f.price)) })},
	{core.ColAchievementCount, func(f *Fragments) core.Value { return integer(pathTotal.First(f.achievements)) }},
	{core.ColPCOSMin, minimum(LabelOS)},
	{core.ColPCProcessorMin, minimum(LabelProcessor)},
	{core.ColPCMemoryMin, minimum(LabelMemory)},
	{core.ColPCGraphicsMin, minimum(LabelGraphics)},
	{core.ColPCOSRec, recommended(LabelOS)},
	{core.ColPCProcessorRec, recommended(LabelProcessor)},
	{core.ColPCMemoryRec, recommended(LabelMemory)},
	{core.ColPCGraphicsRec, recommended(LabelGraphics)},
}

// Derive applies every rule to src.
func Derive(src core.MaterialSource) core.MaterializedRow {
	f := ParseFragments(src)
	row := core.MaterializedRow{AppID: src.AppID, Values: make(map[string]core.Value, len(Rules))}
	for _, r := range Rules {
		if v := r.Derive(f); !v.IsNull() {
			row.Values[r.Column] = v
		}
	}
	return row
}

// supported is true when the fragment is stored and is not an empty object.
func supported(raw []byte) core.Value {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return core.Bool(false)
	}
	v, err := oj.Parse(trimmed)
	if err != nil {
		return core.Bool(true)
	}
	if obj, ok := v.(map[string]any); ok && len(obj) == 0 {
		return core.Bool(false)
	}
	return core.Bool(true)
}

// priced gates a price column: free applications and price fragments
// without an integral initial price give NULL.
func priced(derive func(*Fragments) core.Value) func(*Fragments) core.Value {
	return func(f *Fragments) core.Value {
		if f.IsFree || integer(pathInitial.First(f.price)).IsNull() {
			return core.Null()
		}
		return derive(f)
	}
}

func minimum(label string) func(*Fragments) core.Value {
	return func(f *Fragments) core.Value {
		m, _ := f.requirements()
		return lookup(m, label)
	}
}

func recommended(label string) func(*Fragments) core.Value {
	return func(f *Fragments) core.Value {
		_, r := f.requirements()
		return lookup(r, label)
	}
}

func lookup(fields map[string]string, label string) core.Value {
	if v, ok := fields[label]; ok {
		return core.Text(v)
	}
	return core.Null()
}

// integer accepts JSON numbers with an integral value.
func integer(v any) core.Value {
	switch n := v.(type) {
	case int64:
		return core.Int(n)
	case float64:
		if n == math.Trunc(n) && !math.IsInf(n, 0) {
			return core.Int(int64(n))
		}
	}
	return core.Null()
}

func text(v any) core.Value {
	if s, ok := v.(string); ok {
		return core.Text(s)
	}
	return core.Null()
}
