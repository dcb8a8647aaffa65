package profile

import (
	"errors"
	"strings"
	"testing"
)

func TestDecodeRequest_Valid(t *testing.T) {
	t.Parallel()

	body := `{"profile":{"fid":1,"displayName":"Ann","username":"ann","bio":"dev"},"casts":[{"text":"hello","hash":"0xabc"},{"text":"world"}]}`
	req, err := DecodeRequest(strings.NewReader(body))
	if err != nil {
		t.Fatalf("DecodeRequest: %v", err)
	}
	want := Profile{FID: 1, DisplayName: "Ann", Username: "ann", Bio: "dev"}
	if req.Profile != want {
		t.Errorf("Profile = %+v, want %+v", req.Profile, want)
	}
	if len(req.Casts) != 2 || req.Casts[0].Text != "hello" || req.Casts[1].Text != "world" {
		t.Errorf("Casts = %+v", req.Casts)
	}
}

func TestDecodeRequest_Lenient(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		body      string
		wantFID   int64
		wantUser  string
		wantCasts []string
	}{
		{
			name:      "missing casts",
			body:      `{"profile":{"fid":2}}`,
			wantFID:   2,
			wantCasts: []string{},
		},
		{
			name:      "null casts",
			body:      `{"profile":{"fid":2},"casts":null}`,
			wantFID:   2,
			wantCasts: []string{},
		},
		{
			name:      "string fid",
			body:      `{"profile":{"fid":" 77 "},"casts":[]}`,
			wantFID:   77,
			wantCasts: []string{},
		},
		{
			name:      "integral float fid",
			body:      `{"profile":{"fid":1e3},"casts":[]}`,
			wantFID:   1000,
			wantCasts: []string{},
		},
		{
			name:      "numeric username",
			body:      `{"profile":{"fid":5,"username":12345},"casts":[]}`,
			wantFID:   5,
			wantUser:  "12345",
			wantCasts: []string{},
		},
		{
			name:      "malformed cast entries become empty",
			body:      `{"profile":{"fid":5,"username":{"x":1}},"casts":[{"text":"ok"},"bare",{"text":7},{},null]}`,
			wantFID:   5,
			wantCasts: []string{"ok", "", "", "", ""},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			req, err := DecodeRequest(strings.NewReader(tc.body))
			if err != nil {
				t.Fatalf("DecodeRequest: %v", err)
			}
			if req.Profile.FID != tc.wantFID {
				t.Errorf("FID = %d, want %d", req.Profile.FID, tc.wantFID)
			}
			if req.Profile.Username != tc.wantUser {
				t.Errorf("Username = %q, want %q", req.Profile.Username, tc.wantUser)
			}
			if len(req.Casts) != len(tc.wantCasts) {
				t.Fatalf("len(Casts) = %d, want %d", len(req.Casts), len(tc.wantCasts))
			}
			for i, want := range tc.wantCasts {
				if req.Casts[i].Text != want {
					t.Errorf("Casts[%d] = %q, want %q", i, req.Casts[i].Text, want)
				}
			}
		})
	}
}

func TestDecodeRequest_Invalid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		body  string
		field string
	}{
		{"empty body", ``, ""},
		{"not json", `hello`, ""},
		{"array body", `[1,2]`, ""},
		{"two objects", `{"profile":{"fid":1}} {"profile":{"fid":2}}`, ""},
		{"missing profile", `{"casts":[]}`, "profile"},
		{"profile not object", `{"profile":"ann"}`, "profile"},
		{"missing fid", `{"profile":{"username":"ann"}}`, "profile.fid"},
		{"null fid", `{"profile":{"fid":null}}`, "profile.fid"},
		{"zero fid", `{"profile":{"fid":0}}`, "profile.fid"},
		{"negative fid", `{"profile":{"fid":-3}}`, "profile.fid"},
		{"fractional fid", `{"profile":{"fid":1.5}}`, "profile.fid"},
		{"bool fid", `{"profile":{"fid":true}}`, "profile.fid"},
		{"word fid", `{"profile":{"fid":"abc"}}`, "profile.fid"},
		{"casts object", `{"profile":{"fid":1},"casts":{"text":"hi"}}`, "casts"},
		{"casts string", `{"profile":{"fid":1},"casts":"hi"}`, "casts"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := DecodeRequest(strings.NewReader(tc.body))
			var ve *ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("err = %v (%T), want *ValidationError", err, err)
			}
			if ve.Field != tc.field {
				t.Errorf("Field = %q, want %q", ve.Field, tc.field)
			}
		})
	}
}

func TestDecodeRequest_FIDOverflow(t *testing.T) {
	t.Parallel()

	for _, lit := range []string{"9223372036854775808", "9.3e18", `"9223372036854775808"`} {
		_, err := DecodeRequest(strings.NewReader(`{"profile":{"fid":` + lit + `}}`))
		var ve *ValidationError
		if !errors.As(err, &ve) || ve.Field != "profile.fid" {
			t.Fatalf("fid %s: err = %v, want a profile.fid ValidationError", lit, err)
		}
		if strings.Contains(ve.Error(), "-9223372036854775808") {
			t.Errorf("fid %s wrapped around: %v", lit, ve)
		}
	}
}

func TestValidationError_Message(t *testing.T) {
	t.Parallel()

	err := &ValidationError{Field: "casts", Msg: "must be an array"}
	if got, want := err.Error(), "invalid request: casts: must be an array"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}
