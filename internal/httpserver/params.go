package httpserver

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
)

// maxBodyBytes bounds signed request bodies. Requests carry flat parameter
// maps, never payloads.
const maxBodyBytes = 64 * 1024

// decodeParams reads a flat JSON object into the string parameter map the
// token scheme signs over. Scalar values are rendered the way merchants
// render them when signing: strings verbatim, numbers without exponent
// notation, booleans lowercase. Nested objects and arrays are not part of
// the signing surface and are rejected.
func decodeParams(r *http.Request) (map[string]string, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
	if err != nil {
		return nil, err
	}
	if len(body) > maxBodyBytes {
		return nil, errBodyTooLarge
	}

	var raw map[string]any
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, err
	}

	params := make(map[string]string, len(raw))
	for name, value := range raw {
		switch v := value.(type) {
		case string:
			params[name] = v
		case float64:
			params[name] = strconv.FormatFloat(v, 'f', -1, 64)
		case bool:
			params[name] = strconv.FormatBool(v)
		case nil:
			params[name] = ""
		default:
			return nil, errNestedParam
		}
	}
	return params, nil
}

var (
	errBodyTooLarge = jsonError("request body too large")
	errNestedParam  = jsonError("request parameters must be flat scalars")
)

type jsonError string

func (e jsonError) Error() string { return string(e) }
