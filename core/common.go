package core

import (
	"fmt"

	"github.com/goccy/go-json"
)

// UnmarshalJSON is a custom JSON unmarshaller
func (o *Operation) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*o = Operation(s)
	switch *o {
	case OperationRead, OperationCreate, OperationEdit, OperationDelete:
		return nil
	default:
		return fmt.Errorf("%s is not valid Operation", s)
	}
}

// Operations returns all table operations in permission tuple order
func Operations() []Operation {
	return []Operation{OperationRead, OperationCreate, OperationEdit, OperationDelete}
}
