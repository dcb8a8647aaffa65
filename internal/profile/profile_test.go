package profile

import (
	"fmt"
	"strings"
	"testing"
)

func TestCompose_AnnScenario(t *testing.T) {
	t.Parallel()

	got := Compose(
		Profile{FID: 1, DisplayName: "Ann", Username: "ann", Bio: "dev"},
		[]Cast{{Text: "hello"}, {Text: "world"}},
	)
	want := "Display Name: Ann\n\nUsername: ann\n\nBio: dev\n\nRecent Casts:\nhello\nworld"
	if got != want {
		t.Errorf("Compose =\n%q\nwant\n%q", got, want)
	}
}

func TestCompose_EmptyCasts(t *testing.T) {
	t.Parallel()

	for _, casts := range [][]Cast{nil, {}} {
		got := Compose(Profile{DisplayName: "Ann", Username: "ann", Bio: "dev"}, casts)
		want := "Display Name: Ann\n\nUsername: ann\n\nBio: dev\n\nRecent Casts:\n"
		if got != want {
			t.Errorf("Compose(%v) = %q, want %q", casts, got, want)
		}
	}
}

func TestCompose_EmptyProfileFields(t *testing.T) {
	t.Parallel()

	got := Compose(Profile{}, []Cast{{Text: "gm"}})
	want := "Display Name: \n\nUsername: \n\nBio: \n\nRecent Casts:\ngm"
	if got != want {
		t.Errorf("Compose = %q, want %q", got, want)
	}
}

func TestCompose_AtMostFiveCastsInOrder(t *testing.T) {
	t.Parallel()

	for n := 0; n <= 12; n++ {
		casts := make([]Cast, n)
		for i := range casts {
			casts[i] = Cast{Text: fmt.Sprintf("cast-%02d", i)}
		}

		got := Compose(Profile{}, casts)
		section := got[strings.Index(got, "Recent Casts:\n")+len("Recent Casts:\n"):]

		var lines []string
		if section != "" {
			lines = strings.Split(section, "\n")
		}
		wantLen := min(n, MaxCasts)
		if len(lines) != wantLen {
			t.Fatalf("n=%d: %d cast lines, want %d", n, len(lines), wantLen)
		}
		for i, line := range lines {
			if want := fmt.Sprintf("cast-%02d", i); line != want {
				t.Errorf("n=%d: line %d = %q, want %q", n, i, line, want)
			}
		}
	}
}

func TestCompose_DoesNotMutateInput(t *testing.T) {
	t.Parallel()

	casts := []Cast{{Text: "a"}, {Text: "b"}, {Text: "c"}, {Text: "d"}, {Text: "e"}, {Text: "f"}}
	_ = Compose(Profile{}, casts)
	if len(casts) != 6 || casts[5].Text != "f" {
		t.Errorf("input casts modified: %v", casts)
	}
}

func TestRequest_Validate(t *testing.T) {
	t.Parallel()

	if err := (Request{Profile: Profile{FID: 3}}).Validate(); err != nil {
		t.Errorf("valid request: %v", err)
	}
	err := (Request{}).Validate()
	if !IsValidation(err) {
		t.Fatalf("zero fid: err = %v, want ValidationError", err)
	}
}
