// Package profile holds the ingestion request types and the text compositor
// that turns a user profile and its recent casts into the single text blob
// fed to the enrichment services.
package profile

import "strings"

// MaxCasts is the number of casts, in caller order, that [Compose] consumes.
const MaxCasts = 5

// Profile is the caller-supplied social-graph user.
type Profile struct {
	FID         int64  `json:"fid"`
	Username    string `json:"username"`
	DisplayName string `json:"displayName"`
	Bio         string `json:"bio"`
}

// Cast is a single post. Only its text is consumed.
type Cast struct {
	Text string `json:"text"`
}

// Request is one ingestion request.
type Request struct {
	Profile Profile `json:"profile"`
	Casts   []Cast  `json:"casts"`
}

// Validate checks the fields the pipeline depends on. It is the programmatic
// counterpart of [DecodeRequest] for callers that build a Request in code.
func (r Request) Validate() error {
	if r.Profile.FID <= 0 {
		return &ValidationError{Field: "profile.fid", Msg: "must be a positive integer"}
	}
	return nil
}

// Compose builds the composed text for p and casts:
//
//	Display Name: <displayName>
//
//	Username: <username>
//
//	Bio: <bio>
//
//	Recent Casts:
//	<cast 1>
//	...
//
// At most [MaxCasts] casts are used, in the given order. Compose is total:
// empty fields and empty casts render as empty values.
func Compose(p Profile, casts []Cast) string {
	if len(casts) > MaxCasts {
		casts = casts[:MaxCasts]
	}
	texts := make([]string, len(casts))
	for i, c := range casts {
		texts[i] = c.Text
	}

	return strings.Join([]string{
		"Display Name: " + p.DisplayName,
		"Username: " + p.Username,
		"Bio: " + p.Bio,
		"Recent Casts:\n" + strings.Join(texts, "\n"),
	}, "\n\n")
}
