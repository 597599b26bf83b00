package template

import "errors"

var (
	// ErrNotFound means the template id or name does not exist.
	ErrNotFound = errors.New("template not found")
	// ErrDuplicateName means a template with the same name and type exists.
	ErrDuplicateName = errors.New("template with this name and type already exists")
	// ErrActiveDelete means delete was called on an active template.
	ErrActiveDelete = errors.New("cannot delete active template; deactivate it first")
)
