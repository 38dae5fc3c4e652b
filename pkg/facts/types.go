package facts

// Standard field names every fact must carry.
const (
	// FieldType declares the fact type (e.g., "Customer", "Order").
	FieldType = "type"

	// FieldID is the identifying field required for every fact.
	FieldID = "id"
)

// Raw is an untyped fact as submitted by a caller, typically the result of
// unmarshaling a JSON document. Nested objects must be map[string]any and
// arrays []any for canonicalization to apply at every level.
type Raw = map[string]any

// Normalized is the canonical form of a fact. The Canonical bytes are the
// sorted-key JSON encoding of the raw fact; two facts with the same fields in
// any order produce identical bytes.
type Normalized struct {
	factType  string
	factID    string
	canonical []byte
}

// FactType returns the declared fact type.
func (n *Normalized) FactType() string { return n.factType }

// FactID returns the identifying field value.
func (n *Normalized) FactID() string { return n.factID }

// Canonical returns the canonical byte representation. Callers must not
// modify the returned slice.
func (n *Normalized) Canonical() []byte { return n.canonical }
