// Package template manages the communication template catalogue: creation
// with name/type uniqueness, content updates, the activation and approval
// lifecycle, preview rendering, and structural validation.
//
// The package owns its repository interface; persistence implementations
// live under internal/repository.
package template
