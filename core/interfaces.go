package core

import "context"

// Operation represents a table operation, one of Read, Create, Edit, Delete.
// Listing, fetching one record and filtering are all read operations.
type Operation string

// all supported table operations
const (
	OperationRead   Operation = "read"
	OperationCreate Operation = "create"
	OperationEdit   Operation = "edit"
	OperationDelete Operation = "delete"
)

// Notifier is an interface to receive change notifications. Notify is called
// after a mutating statement has been committed.
type Notifier interface {
	Notify(ctx context.Context, table string, operation Operation, payload []byte) error
}
