package profile

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
)

// ValidationError reports a malformed ingestion request.
type ValidationError struct {
	// Field is the JSON path of the offending value, empty for body-level
	// problems such as invalid JSON.
	Field string
	Msg   string
	Err   error
}

func (e *ValidationError) Error() string {
	var b strings.Builder
	b.WriteString("invalid request")
	if e.Field != "" {
		b.WriteString(": ")
		b.WriteString(e.Field)
	}
	b.WriteString(": ")
	b.WriteString(e.Msg)
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *ValidationError) Unwrap() error { return e.Err }

type rawRequest struct {
	Profile json.RawMessage `json:"profile"`
	Casts   json.RawMessage `json:"casts"`
}

type rawProfile struct {
	FID         json.RawMessage `json:"fid"`
	Username    json.RawMessage `json:"username"`
	DisplayName json.RawMessage `json:"displayName"`
	Bio         json.RawMessage `json:"bio"`
}

// DecodeRequest reads one JSON ingestion request from r.
//
// Rules:
//   - The body must be a single JSON object.
//   - profile must be an object whose fid is a positive integer (a JSON
//     number or a decimal string).
//   - casts, when present and not null, must be an array. Entries that are not
//     objects or whose text is not a string are kept as empty casts.
//   - Profile string fields accept strings or numbers; anything else is empty.
func DecodeRequest(r io.Reader) (Request, error) {
	dec := json.NewDecoder(r)
	var raw rawRequest
	if err := dec.Decode(&raw); err != nil {
		return Request{}, &ValidationError{Msg: "body is not a JSON object", Err: err}
	}
	if dec.More() {
		return Request{}, &ValidationError{Msg: "body must contain a single JSON object"}
	}

	if isNull(raw.Profile) {
		return Request{}, &ValidationError{Field: "profile", Msg: "is required"}
	}
	var rp rawProfile
	if err := json.Unmarshal(raw.Profile, &rp); err != nil {
		return Request{}, &ValidationError{Field: "profile", Msg: "must be an object", Err: err}
	}

	fid, err := decodeFID(rp.FID)
	if err != nil {
		return Request{}, err
	}

	casts, err := decodeCasts(raw.Casts)
	if err != nil {
		return Request{}, err
	}

	return Request{
		Profile: Profile{
			FID:         fid,
			Username:    looseString(rp.Username),
			DisplayName: looseString(rp.DisplayName),
			Bio:         looseString(rp.Bio),
		},
		Casts: casts,
	}, nil
}

func decodeFID(raw json.RawMessage) (int64, error) {
	if isNull(raw) {
		return 0, &ValidationError{Field: "profile.fid", Msg: "is required"}
	}

	var literal string
	switch raw[0] {
	case '"':
		if err := json.Unmarshal(raw, &literal); err != nil {
			return 0, &ValidationError{Field: "profile.fid", Msg: "must be a positive integer", Err: err}
		}
		literal = strings.TrimSpace(literal)
	default:
		var n json.Number
		if err := json.Unmarshal(raw, &n); err != nil {
			return 0, &ValidationError{Field: "profile.fid", Msg: "must be a positive integer", Err: err}
		}
		literal = n.String()
	}

	fid, err := strconv.ParseInt(literal, 10, 64)
	if err != nil {
		// Accept integral floats such as 1.0 or 1e3.
		f, ferr := strconv.ParseFloat(literal, 64)
		if ferr != nil || f != math.Trunc(f) || f >= 0x1p63 || f < -0x1p63 {
			return 0, &ValidationError{Field: "profile.fid", Msg: fmt.Sprintf("must be a positive integer, got %s", literal)}
		}
		fid = int64(f)
	}
	if fid <= 0 {
		return 0, &ValidationError{Field: "profile.fid", Msg: fmt.Sprintf("must be a positive integer, got %d", fid)}
	}
	return fid, nil
}

func decodeCasts(raw json.RawMessage) ([]Cast, error) {
	if isNull(raw) {
		return []Cast{}, nil
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, &ValidationError{Field: "casts", Msg: "must be an array", Err: err}
	}

	casts := make([]Cast, len(items))
	for i, item := range items {
		var c struct {
			Text json.RawMessage `json:"text"`
		}
		if json.Unmarshal(item, &c) != nil {
			continue
		}
		var text string
		if json.Unmarshal(c.Text, &text) == nil {
			casts[i].Text = text
		}
	}
	return casts, nil
}

// looseString accepts a JSON string or number; everything else is empty.
func looseString(raw json.RawMessage) string {
	if isNull(raw) {
		return ""
	}
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return s
	}
	var n json.Number
	if json.Unmarshal(raw, &n) == nil {
		return n.String()
	}
	return ""
}

func isNull(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

// IsValidation reports whether err contains a *ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
