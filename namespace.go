package wabbitlearn

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"

	"github.com/golang/glog"
)

// NamespaceMap assigns every declared namespace a stable small integer
// id, loaded from a two-column (name,id) CSV. It is bidirectional and
// supports iteration in id order. The map's content is hashed into a
// 16-byte fingerprint that binds a Model Instance to the namespace
// declaration it was built against.
type NamespaceMap struct {
	nameToId map[string]int
	idToName []string // sparse, sized max(id)+1; "" where unused
	ordered  []int    // declared ids in ascending order
}

// NewNamespaceMap loads a namespace declaration from the two-column
// CSV at path. The header row is optional: the first row is treated
// as data unless its id column fails to parse as an integer, in which
// case it is skipped as a header.
func NewNamespaceMap(path string) (*NamespaceMap, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, newErrf(IoError, err, "opening namespace map %s", path)
	}
	defer f.Close()
	return parseNamespaceMap(f)
}

// NewNamespaceMapFromReader parses a namespace declaration from an
// already-open reader, for callers that don't have it as a file (tests,
// embedded declarations).
func NewNamespaceMapFromReader(r io.Reader) (*NamespaceMap, error) {
	return parseNamespaceMap(r)
}

func parseNamespaceMap(r io.Reader) (*NamespaceMap, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = 2
	cr.TrimLeadingSpace = true

	nm := &NamespaceMap{nameToId: map[string]int{}}
	maxId := -1
	first := true
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, newErrf(ConfigError, err, "reading namespace CSV")
		}
		if first {
			first = false
			if _, err := strconv.Atoi(rec[1]); err != nil {
				// Header row; skip.
				continue
			}
		}
		name := rec[0]
		id, err := strconv.Atoi(rec[1])
		if err != nil {
			return nil, newErrf(ConfigError, err, "namespace id for %q is not an integer", name)
		}
		if id < 0 {
			return nil, newErrf(ConfigError, nil, "namespace id for %q is negative", name)
		}
		if _, dup := nm.nameToId[name]; dup {
			return nil, newErrf(ConfigError, nil, "duplicate namespace name %q", name)
		}
		if id < len(nm.idToName) && nm.idToName[id] != "" {
			return nil, newErrf(ConfigError, nil, "duplicate namespace id %d (%q and %q)", id, nm.idToName[id], name)
		}
		for len(nm.idToName) <= id {
			nm.idToName = append(nm.idToName, "")
		}
		nm.idToName[id] = name
		nm.nameToId[name] = id
		if id > maxId {
			maxId = id
		}
	}
	if maxId < 0 {
		return nil, newErr(ConfigError, "namespace map is empty", nil)
	}
	nm.ordered = make([]int, 0, len(nm.nameToId))
	for id, name := range nm.idToName {
		if name != "" {
			nm.ordered = append(nm.ordered, id)
		}
	}
	sort.Ints(nm.ordered)
	glog.Infof("loaded namespace map: %d namespaces, max id %d", len(nm.ordered), maxId)
	return nm, nil
}

// Len returns the number of declared namespaces.
func (nm *NamespaceMap) Len() int { return len(nm.ordered) }

// Bound returns max(id)+1, the size of a sparse array indexable by id.
func (nm *NamespaceMap) Bound() int { return len(nm.idToName) }

// IdOf returns the id for name and true, or (0, false) if undeclared.
func (nm *NamespaceMap) IdOf(name string) (int, bool) {
	id, ok := nm.nameToId[name]
	return id, ok
}

// NameOf returns the declared name for id, or "" if id is out of
// range or unused.
func (nm *NamespaceMap) NameOf(id int) string {
	if id < 0 || id >= len(nm.idToName) {
		return ""
	}
	return nm.idToName[id]
}

// Ids returns declared namespace ids in ascending order.
func (nm *NamespaceMap) Ids() []int {
	out := make([]int, len(nm.ordered))
	copy(out, nm.ordered)
	return out
}

// FieldIndex returns the dense field index (position in Ids()) for a
// declared namespace id, used to place FFM regions contiguously.
func (nm *NamespaceMap) FieldIndex(id int) (int, bool) {
	for i, x := range nm.ordered {
		if x == id {
			return i, true
		}
	}
	return 0, false
}

// Fingerprint returns a 16-byte digest of the declared (name,id) pairs
// in id order, used to bind cache files and model snapshots to this
// exact namespace declaration.
func (nm *NamespaceMap) Fingerprint() [16]byte {
	h := sha256.New()
	for _, id := range nm.ordered {
		name := nm.idToName[id]
		var idBuf [8]byte
		binary.BigEndian.PutUint64(idBuf[:], uint64(id))
		h.Write(idBuf[:])
		h.Write([]byte(name))
		h.Write([]byte{0})
	}
	sum := h.Sum(nil)
	var fp [16]byte
	copy(fp[:], sum[:16])
	return fp
}

func (nm *NamespaceMap) String() string {
	return fmt.Sprintf("NamespaceMap{%d namespaces, bound=%d}", nm.Len(), nm.Bound())
}
