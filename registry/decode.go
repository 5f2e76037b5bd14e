package registry

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// DecodeError wraps a JSON decode failure with the dotted field path that
// was being parsed when it failed, so a bad registry response pinpoints the
// offending field (spec §4.B) instead of reporting a bare offset.
type DecodeError struct {
	Path string
	Err  error
}

func (e *DecodeError) Error() string {
	if e.Path == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s: %s", e.Path, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// DecodeRegistryResponse parses a registry metadata document, preserving
// the insertion order of the "versions" object (encoding/json's native map
// decoding does not) and wrapping any failure in a DecodeError.
func DecodeRegistryResponse(data []byte) (*RegistryResponse, error) {
	var raw struct {
		Name     string                      `json:"name"`
		DistTags map[string]string           `json:"dist-tags"`
		Versions map[string]*PackageMetadata `json:"versions"`
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&raw); err != nil {
		return nil, &DecodeError{Path: fieldPathFromError(err), Err: err}
	}

	order, err := versionsKeyOrder(data)
	if err != nil {
		return nil, &DecodeError{Path: "versions", Err: err}
	}

	return &RegistryResponse{
		Name:        raw.Name,
		DistTags:    raw.DistTags,
		Versions:    raw.Versions,
		VersionKeys: order,
	}, nil
}

// versionsKeyOrder re-scans the raw document with a token stream to record
// the order "versions" object keys appeared in, since map[string]T decoding
// loses it.
func versionsKeyOrder(data []byte) ([]string, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	depth := 0
	inVersions := false
	var order []string

	for {
		tok, err := dec.Token()
		if err != nil {
			break
		}
		switch t := tok.(type) {
		case json.Delim:
			switch t {
			case '{':
				depth++
			case '}', ']':
				depth--
				if depth <= 1 {
					inVersions = false
				}
			case '[':
				depth++
			}
		case string:
			if depth == 1 && t == "versions" {
				inVersions = true
				continue
			}
			if inVersions && depth == 2 {
				order = append(order, t)
				// Skip the value for this key without descending into it
				// a second time: decode into json.RawMessage and discard.
				var skip json.RawMessage
				if err := dec.Decode(&skip); err != nil {
					return nil, err
				}
			}
		}
	}
	return order, nil
}

// fieldPathFromError extracts a best-effort field path from a
// json.UnmarshalTypeError, falling back to an empty path for other error
// kinds (syntax errors carry only a byte offset).
func fieldPathFromError(err error) string {
	if te, ok := err.(*json.UnmarshalTypeError); ok {
		if te.Struct != "" && te.Field != "" {
			return te.Struct + "." + te.Field
		}
		return te.Field
	}
	return ""
}
