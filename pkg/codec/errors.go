package codec

import "fmt"

// MissingArgumentError reports a declared argument absent from the request body.
type MissingArgumentError struct {
	Name     string
	Position int
}

func (e *MissingArgumentError) Error() string {
	return fmt.Sprintf("Expected '%s' argument.", e.Name)
}

// UnexpectedKeyError reports an input key that names no declared field.
type UnexpectedKeyError struct {
	Struct string
	Key    string
}

func (e *UnexpectedKeyError) Error() string {
	return fmt.Sprintf("Unexpected key '%s' for '%s'.", e.Key, e.Struct)
}

// TypeMismatchError reports a value whose JSON shape cannot hold the declared type.
type TypeMismatchError struct {
	Path     string
	Expected string
	Got      string
}

func (e *TypeMismatchError) Error() string {
	return fmt.Sprintf("%s: expected %s, got %s", e.Path, e.Expected, e.Got)
}
