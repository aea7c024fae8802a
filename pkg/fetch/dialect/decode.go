// Package dialect holds the provider-specific halves of the fetcher: how each API
// authenticates, pages, shapes its records and reports its errors.
package dialect

import (
	"errors"
	"fmt"

	jsoniter "github.com/json-iterator/go"
	"github.com/leo-cloudarbitration/functions/pkg/fetch"
	"github.com/tidwall/gjson"
)

// Decoding errors.
var (
	// ErrInvalidJSON is returned when a 2xx body is not JSON.
	ErrInvalidJSON = errors.New("response body is not valid JSON")

	// ErrUnexpectedShape is returned when the records path holds something other than an array.
	ErrUnexpectedShape = errors.New("unexpected response shape")
)

// Records keep numbers as json.Number so that ids and micros survive untouched.
var json = jsoniter.Config{
	EscapeHTML:             false,
	UseNumber:              true,
	ValidateJsonRawMessage: true,
}.Froze()

// recordsAt decodes the array at path ("" for the document root).
// A missing or null path yields no records.
func recordsAt(body []byte, path string) ([]fetch.Record, error) {
	if !gjson.ValidBytes(body) {
		return nil, ErrInvalidJSON
	}

	res := gjson.ParseBytes(body)
	if path != "" {
		res = res.Get(path)
	}
	if !res.Exists() || res.Type == gjson.Null {
		return nil, nil
	}
	if !res.IsArray() {
		return nil, fmt.Errorf("%w: %q is not an array", ErrUnexpectedShape, path)
	}

	var records []fetch.Record
	if err := json.UnmarshalFromString(res.Raw, &records); err != nil {
		return nil, fmt.Errorf("decode records: %w", err)
	}
	return records, nil
}

// errorDetail reads code, subcode and message from the given paths.
func errorDetail(body []byte, codePath, subcodePath, messagePath string) fetch.ErrorDetail {
	if !gjson.ValidBytes(body) {
		return fetch.ErrorDetail{}
	}
	res := gjson.ParseBytes(body)
	detail := fetch.ErrorDetail{
		Code:    int(res.Get(codePath).Int()),
		Message: res.Get(messagePath).String(),
	}
	if subcodePath != "" {
		detail.Subcode = int(res.Get(subcodePath).Int())
	}
	return detail
}

// ByName returns the dialect registered under name.
func ByName(name string) (fetch.Dialect, error) {
	switch name {
	case FacebookName:
		return Facebook(), nil
	case GoogleName:
		return Google(GoogleOptions{}), nil
	case GAMName:
		return GAM(), nil
	case SupabaseName:
		return Supabase(""), nil
	default:
		return fetch.Dialect{}, fmt.Errorf("unknown dialect %q", name)
	}
}
