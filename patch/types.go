package patch

const (
	OperationAdd     = "add"
	OperationRemove  = "remove"
	OperationReplace = "replace"
)

type Operation struct {
	Op    string `json:"op" jsonschema:"required,enum=add,enum=replace,enum=remove"`
	Path  string `json:"path" jsonschema:"required,description=JSON pointer of the fact to change"`
	Value any    `json:"value,omitempty" jsonschema:"description=New value for the fact"`
}
