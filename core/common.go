package core

// Operation represents a modifying backend storage operation, one of Create, Update, Delete
type Operation string

// all notified database operations
const (
	OperationCreate Operation = "create"
	OperationUpdate Operation = "update"
	OperationDelete Operation = "delete"
)

// IsMutation returns true for operations that change the store
func (o Operation) IsMutation() bool {
	return o == OperationCreate || o == OperationUpdate || o == OperationDelete
}
