// Package knowledge defines the ranked result fragments the context augmenter
// assembles from external collaborators.
package knowledge

// FragmentType tags the collaborator a fragment came from.
type FragmentType string

const (
	FragmentOrder   FragmentType = "order-record"
	FragmentPolicy  FragmentType = "policy-fragment"
	FragmentProduct FragmentType = "product-fragment"
)

// Fragment is one piece of augmentation context. Key correlates fragments
// across collaborators (e.g. an order id shared by an order record and a
// shipping policy), so the draft generator can join them.
type Fragment struct {
	Type   FragmentType      `json:"type"`
	Key    string            `json:"key"`
	Title  string            `json:"title,omitempty"`
	Body   string            `json:"body,omitempty"`
	Fields map[string]string `json:"fields,omitempty"`
}

// Field names used in Fragment.Fields for order records.
const (
	FieldOrderTotal  = "total"
	FieldOrderStatus = "status"
	FieldDisplayName = "customer_display_name"
)

// Partial annotates a result set assembled under failure. Degraded results
// flow downstream instead of errors: the draft generator must be able to
// proceed with whatever context survived.
type Partial struct {
	Degraded bool     `json:"degraded"`
	Failures []string `json:"failures,omitempty"`
}

// Merge folds another partial into this one.
func (p *Partial) Merge(other Partial) {
	if other.Degraded {
		p.Degraded = true
		p.Failures = append(p.Failures, other.Failures...)
	}
}

// Fail records a single collaborator failure.
func (p *Partial) Fail(collaborator string) {
	p.Degraded = true
	p.Failures = append(p.Failures, collaborator)
}

// Failed reports whether the named collaborator is recorded as failed. A
// missing fragment with no recorded failure means the collaborator answered
// definitively, not that the call degraded.
func (p Partial) Failed(collaborator string) bool {
	for _, f := range p.Failures {
		if f == collaborator {
			return true
		}
	}
	return false
}

// ByType returns the first fragment of the given type, if present.
func ByType(frags []Fragment, t FragmentType) (Fragment, bool) {
	for _, f := range frags {
		if f.Type == t {
			return f, true
		}
	}
	return Fragment{}, false
}
