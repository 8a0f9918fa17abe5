package solver

type VariableType string

const (
	TypeInteger VariableType = "integer"
	TypeReal    VariableType = "real"
	TypeBoolean VariableType = "boolean"
	TypeString  VariableType = "string"
)

var VariableTypes = []VariableType{TypeInteger, TypeReal, TypeBoolean, TypeString}

type Variable struct {
	Name string       `json:"name" validate:"required"`
	Type VariableType `json:"type" validate:"required"`
}

type Constraint struct {
	Expression  string `json:"expression" validate:"required"`
	Description string `json:"description,omitempty"`
}

type Problem struct {
	Variables   []Variable   `json:"variables" validate:"dive"`
	Constraints []Constraint `json:"constraints" validate:"dive"`
	Description string       `json:"description,omitempty"`
}

type Solution struct {
	Values        map[string]any `json:"values"`
	IsSatisfiable bool           `json:"is_satisfiable"`
	Status        string         `json:"status"`
	UnsatCore     []string       `json:"unsat_core,omitempty"`
	Reason        string         `json:"reason,omitempty"`
}
