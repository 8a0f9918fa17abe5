package relationship

type Relationship struct {
	Person1  string `json:"person1" validate:"required"`
	Person2  string `json:"person2" validate:"required"`
	Relation string `json:"relation" validate:"required"`
	// Value defaults to true; false asserts that the relation does not hold.
	Value *bool `json:"value,omitempty"`
}

func (r Relationship) Holds() bool {
	return r.Value == nil || *r.Value
}

type Property string

const (
	Symmetric   Property = "symmetric"
	Transitive  Property = "transitive"
	Reflexive   Property = "reflexive"
	Irreflexive Property = "irreflexive"
	Asymmetric  Property = "asymmetric"
)

var Properties = []Property{Symmetric, Transitive, Reflexive, Irreflexive, Asymmetric}

type RelationshipQuery struct {
	Relationships []Relationship `json:"relationships" validate:"dive"`
	// Query is a relation application such as "parent(Alice, Bob)", or any
	// boolean combination of them.
	Query string `json:"query" validate:"required"`
	// Properties adds axioms per relation on top of the configured defaults.
	Properties map[string][]Property `json:"properties,omitempty"`
}

type Verdict string

const (
	Entailed     Verdict = "entailed"
	Contradicted Verdict = "contradicted"
	Undetermined Verdict = "undetermined"
	Inconsistent Verdict = "inconsistent"
)

type RelationshipResult struct {
	Result        bool    `json:"result"`
	Explanation   string  `json:"explanation"`
	IsSatisfiable bool    `json:"is_satisfiable"`
	Verdict       Verdict `json:"verdict"`
}
