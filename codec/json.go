package codec

import (
	"bytes"
	"encoding/json"
)

// JSON is the standard-library JSON codec.
//
// Use it when stored queries must be readable by tooling that does not share the
// go-json encoder. Both JSON codecs produce interchangeable bytes.
type JSON struct{}

// Marshal encodes the value to JSON.
func (JSON) Marshal(v any) ([]byte, error) { return json.Marshal(v) }

// Unmarshal decodes the JSON data into v.
func (JSON) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }

// UnmarshalUseNumber decodes the JSON data into v, keeping numbers as json.Number.
func (JSON) UnmarshalUseNumber(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	return dec.Decode(v)
}

// Name returns the unique name of the codec ("json").
func (JSON) Name() string { return "json" }

// Default is the codec used for newly stored queries.
//
// NOTE: Existing blobs are self-describing and keep decoding with the codec that
// wrote them.
var Default Codec = GoJSON{}
