package commsutil

import jsoniter "github.com/json-iterator/go"

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// EncodePayload serializes v to JSON. Map keys are sorted.
func EncodePayload(v any) ([]byte, error) {
	return json.Marshal(v)
}

// DecodePayload deserializes JSON data into v.
func DecodePayload(data []byte, v any) error {
	return json.Unmarshal(data, v)
}
