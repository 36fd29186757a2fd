package codec

import "github.com/morezero/idl-bridge/pkg/idl"

// BuildArgs rebuilds the positional argument list of a function from a JSON object.
// Positions are walked from 1 until the argument list ends; the first declared argument missing
// from body is reported. Undeclared keys are ignored.
func BuildArgs(spec idl.ArgSpec, body map[string]any) ([]any, error) {
	args := make([]any, 0, len(spec))
	for pos := 1; ; pos++ {
		arg, ok := spec.At(pos)
		if !ok {
			break
		}
		raw, present := body[arg.Name]
		if !present {
			return nil, &MissingArgumentError{Name: arg.Name, Position: pos}
		}
		v, err := decodeValue(arg.Type, raw, arg.Name)
		if err != nil {
			return nil, err
		}
		args = append(args, v)
	}
	return args, nil
}
