package wabbitlearn

import (
	"bytes"
	"strconv"

	"github.com/cespare/xxhash/v2"
)

// Parser tokenizes one input line (§6 "Input record grammar") into a
// Frame. A Parser owns a single reusable output Frame so steady-state
// parsing allocates nothing; callers must not retain the returned
// Frame across the next Parse call.
//
// Grammar: LABEL [WEIGHT] ( |NS (feature[:value])* )*
type Parser struct {
	inst *Instance
	out  *Frame
}

// NewParser creates a Parser bound to inst's namespace map and field
// layout.
func NewParser(inst *Instance) *Parser {
	return &Parser{inst: inst, out: NewFrame(inst.NumFields())}
}

func isSpace(b byte) bool {
	switch b {
	case ' ', '\t', '\v', '\f', '\r':
		return true
	default:
		return false
	}
}

// tokenSplit returns the first whitespace-delimited token in line and
// the remainder with leading whitespace trimmed. It slices line rather
// than allocating, so splitting a whole example costs no more than the
// initial read.
func tokenSplit(line []byte) (tok []byte, rest []byte) {
	i := 0
	for i < len(line) && isSpace(line[i]) {
		i++
	}
	line = line[i:]
	j := 0
	for j < len(line) && !isSpace(line[j]) {
		j++
	}
	tok = line[:j]
	k := j
	for k < len(line) && isSpace(line[k]) {
		k++
	}
	rest = line[k:]
	return
}

func trimTrailingSpace(line []byte) []byte {
	n := len(line)
	for n > 0 && isSpace(line[n-1]) {
		n--
	}
	return line[:n]
}

// Parse tokenizes line into the Parser's reusable Frame and returns
// it. Errors are *Error with Kind ParseError or UnknownNamespace.
func (p *Parser) Parse(line []byte) (*Frame, error) {
	p.out.Reset()
	line = trimTrailingSpace(line)

	labelTok, rest := tokenSplit(line)
	if len(labelTok) == 0 {
		// Empty line: valid, label 0, importance 1, no features.
		return p.out, nil
	}
	label, err := strconv.ParseFloat(string(labelTok), 32)
	if err != nil {
		return nil, newErrf(ParseError, err, "malformed label %q", labelTok)
	}
	p.out.Label = float32(label)

	if len(rest) > 0 && rest[0] != '|' {
		weightTok, rest2 := tokenSplit(rest)
		w, err := strconv.ParseFloat(string(weightTok), 32)
		if err != nil {
			return nil, newErrf(ParseError, err, "malformed importance weight %q", weightTok)
		}
		p.out.Importance = float32(w)
		rest = rest2
	}

	curField := -1
	var curSeed uint64
	for len(rest) > 0 {
		tok, next := tokenSplit(rest)
		rest = next
		if len(tok) == 0 {
			continue
		}
		if tok[0] == '|' {
			nsName := string(tok[1:])
			if nsName == "" {
				return nil, newErr(ParseError, "empty namespace token", nil)
			}
			id, ok := p.inst.Namespaces.IdOf(nsName)
			if !ok {
				return nil, newErrf(UnknownNamespace, nil, "namespace %q is not declared", nsName)
			}
			fieldIdx, ok := p.inst.FieldOf(id)
			if !ok {
				return nil, newErrf(UnknownNamespace, nil, "namespace %q has no field index", nsName)
			}
			curField = fieldIdx
			curSeed = namespaceSeed(id)
			continue
		}
		if curField < 0 {
			return nil, newErrf(ParseError, nil, "feature %q before any namespace", tok)
		}
		featBytes, valueBytes := splitFeatureValue(tok)
		value := float32(1.0)
		if len(valueBytes) > 0 {
			v, err := strconv.ParseFloat(string(valueBytes), 32)
			if err != nil {
				return nil, newErrf(ParseError, err, "malformed feature value %q", tok)
			}
			value = float32(v)
		}
		key := hashFeature(curSeed, featBytes)
		p.out.Append(curField, key, value)
	}
	return p.out, nil
}

// splitFeatureValue splits a "feature[:value]" token on the last ':',
// since feature strings are otherwise unconstrained printable tokens.
func splitFeatureValue(tok []byte) (feat, value []byte) {
	i := bytes.LastIndexByte(tok, ':')
	if i < 0 {
		return tok, nil
	}
	return tok[:i], tok[i+1:]
}

// namespaceSeed derives a hashing seed from a namespace id so
// identical feature strings in different namespaces hash
// independently (spec invariant 4).
func namespaceSeed(namespaceID int) uint64 {
	var idBuf [8]byte
	idBuf[0] = byte(namespaceID)
	idBuf[1] = byte(namespaceID >> 8)
	idBuf[2] = byte(namespaceID >> 16)
	idBuf[3] = byte(namespaceID >> 24)
	copy(idBuf[4:], "fwns")
	return xxhash.Sum64(idBuf[:])
}

// hashFeature computes the 32-bit hashed key for a feature string
// under a namespace seed.
func hashFeature(seed uint64, feat []byte) uint32 {
	d := xxhash.NewWithSeed(seed)
	d.Write(feat)
	return uint32(d.Sum64())
}
