package wabbitlearn

import (
	"math"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// TransformRule tags the derivation a Transform performs. New rules
// are added here, not via a generic interpreter (§9 "avoid a deep
// abstract hierarchy").
type TransformRule string

const (
	RuleBinByLog       TransformRule = "bin-by-log"
	RuleCombineProduct TransformRule = "combine-product"
	RuleCopy           TransformRule = "copy"
)

// Transform is one compiled `NEW_NS=RULE(ARG_NS, ...)` declaration
// (§4.4). Transforms run after parsing and before translation,
// appending a derived sub-segment to the Frame at OutputField.
// Transforms may reference declared namespaces or the output of an
// earlier transform in the same declaration list; forward references
// are rejected at parse time.
type Transform struct {
	OutputName        string
	OutputNamespaceID int
	Rule              TransformRule
	ArgNames          []string

	OutputField int
	argFields   []int
}

// ParseTransforms compiles transform declaration strings in order.
// Output namespace ids are synthesized above nm.Bound() so they never
// collide with declared namespaces.
func ParseTransforms(nm *NamespaceMap, decls []string) ([]*Transform, error) {
	out := make([]*Transform, 0, len(decls))
	fieldByName := map[string]int{}
	for _, id := range nm.Ids() {
		fieldByName[nm.NameOf(id)] = mustFieldIndex(nm, id)
	}
	nextID := nm.Bound()
	for i, decl := range decls {
		t, err := parseOneTransform(decl)
		if err != nil {
			return nil, err
		}
		t.OutputNamespaceID = nextID
		nextID++
		t.OutputField = nm.Len() + i
		for _, arg := range t.ArgNames {
			fi, ok := fieldByName[arg]
			if !ok {
				return nil, newErrf(ConfigError, nil, "transform %q references unknown/forward namespace %q", decl, arg)
			}
			t.argFields = append(t.argFields, fi)
		}
		fieldByName[t.OutputName] = t.OutputField
		out = append(out, t)
	}
	return out, nil
}

func mustFieldIndex(nm *NamespaceMap, id int) int {
	fi, _ := nm.FieldIndex(id)
	return fi
}

func parseOneTransform(decl string) (*Transform, error) {
	eq := strings.IndexByte(decl, '=')
	if eq < 0 {
		return nil, newErrf(ConfigError, nil, "transform %q missing '='", decl)
	}
	name := strings.TrimSpace(decl[:eq])
	rest := strings.TrimSpace(decl[eq+1:])
	lp := strings.IndexByte(rest, '(')
	rp := strings.LastIndexByte(rest, ')')
	if lp < 0 || rp < 0 || rp < lp {
		return nil, newErrf(ConfigError, nil, "transform %q missing rule(args)", decl)
	}
	rule := TransformRule(strings.TrimSpace(rest[:lp]))
	switch rule {
	case RuleBinByLog, RuleCombineProduct, RuleCopy:
	default:
		return nil, newErrf(ConfigError, nil, "transform %q has unknown rule %q", decl, rule)
	}
	argsStr := rest[lp+1 : rp]
	var args []string
	for _, a := range strings.Split(argsStr, ",") {
		a = strings.TrimSpace(a)
		if a != "" {
			args = append(args, a)
		}
	}
	if len(args) == 0 {
		return nil, newErrf(ConfigError, nil, "transform %q has no arguments", decl)
	}
	if rule == RuleCombineProduct && len(args) < 2 {
		return nil, newErrf(ConfigError, nil, "transform %q (%s) needs at least 2 arguments", decl, rule)
	}
	if (rule == RuleBinByLog || rule == RuleCopy) && len(args) != 1 {
		return nil, newErrf(ConfigError, nil, "transform %q (%s) needs exactly 1 argument", decl, rule)
	}
	return &Transform{OutputName: name, Rule: rule, ArgNames: args}, nil
}

// Apply runs the transform against frame, appending its derived
// sub-segment. Transforms are deterministic, pure functions of the
// frame's current contents, costing O(sum of input sub-segment sizes)
// except combine-product, which is O(product of input sizes).
func (t *Transform) Apply(frame *Frame) {
	out := &frame.Segments[t.OutputField]
	switch t.Rule {
	case RuleCopy:
		src := frame.Segments[t.argFields[0]].Feats
		for _, f := range src {
			out.Feats = append(out.Feats, f)
		}
	case RuleBinByLog:
		count := len(frame.Segments[t.argFields[0]].Feats)
		if count <= 0 {
			return
		}
		bin := int(math.Log2(float64(count))) + 1
		key := hashFeature(binLogSeed, binLogKeyBytes(bin))
		out.Feats = append(out.Feats, Feature{Key: key, Value: 1})
	case RuleCombineProduct:
		t.combineInto(frame, out)
	}
}

const binLogSeed uint64 = 0x4249 // "BI"

func binLogKeyBytes(bin int) []byte {
	return []byte{byte(bin), byte(bin >> 8)}
}

// combineInto appends the cartesian product of every argument
// segment's features: one derived feature per combination, its key a
// mix of the constituent keys and its value their product.
func (t *Transform) combineInto(frame *Frame, out *Segment) {
	segs := make([][]Feature, len(t.argFields))
	for i, fi := range t.argFields {
		segs[i] = frame.Segments[fi].Feats
	}
	var rec func(i int, keyAcc uint64, valAcc float32)
	rec = func(i int, keyAcc uint64, valAcc float32) {
		if i == len(segs) {
			out.Feats = append(out.Feats, Feature{Key: uint32(keyAcc), Value: valAcc})
			return
		}
		for _, f := range segs[i] {
			rec(i+1, mixKey(keyAcc, f.Key), valAcc*f.Value)
		}
	}
	if len(segs) > 0 {
		for _, first := range segs[0] {
			rec(1, uint64(first.Key), first.Value)
		}
	}
}

func mixKey(acc uint64, key uint32) uint64 {
	return xxhash.Sum64(append(uint64Bytes(acc), uint32Bytes(key)...))
}

func uint64Bytes(v uint64) []byte {
	return []byte{byte(v), byte(v >> 8), byte(v >> 16), byte(v >> 24), byte(v >> 32), byte(v >> 40), byte(v >> 48), byte(v >> 56)}
}

func uint32Bytes(v uint32) []byte {
	return []byte{byte(v), byte(v >> 8), byte(v >> 16), byte(v >> 24)}
}

// ApplyTransforms runs every transform in order against frame, in the
// fixed field order [declared namespaces][transforms...].
func ApplyTransforms(transforms []*Transform, frame *Frame) {
	for _, t := range transforms {
		t.Apply(frame)
	}
}
