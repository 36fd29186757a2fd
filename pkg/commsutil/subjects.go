package commsutil

import "strings"

const (
	// DefaultFunctionPrefix prefixes the per-function request subjects.
	DefaultFunctionPrefix = "rpc"
	// SubjectMappings receives every mappings announcement.
	SubjectMappings = "bridge.mappings"
)

// FunctionSubject is the request subject for one function, e.g. "rpc.pingPong".
func FunctionSubject(prefix, function string) string {
	if prefix == "" {
		prefix = DefaultFunctionPrefix
	}
	return prefix + "." + function
}

// FunctionWildcard matches every function subject under prefix.
func FunctionWildcard(prefix string) string {
	return FunctionSubject(prefix, "*")
}

// FunctionFromSubject returns the last token of a function subject.
func FunctionFromSubject(subject string) string {
	return subject[strings.LastIndexByte(subject, '.')+1:]
}

// MappingsSubject is the per-service announcement subject, e.g. "bridge.mappings.ExampleService".
// Dots in the service name become underscores so it stays one token.
func MappingsSubject(service string) string {
	return SubjectMappings + "." + strings.ReplaceAll(service, ".", "_")
}
