package profilestore

import (
	"errors"
	"fmt"
	"math"
	"testing"
)

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		p      Profile
		dims   int
		reason Reason
	}{
		{name: "ok", p: Profile{FID: 1, Embedding: []float32{1, 2, 3}}, dims: 3},
		{name: "ok without dimension check", p: Profile{FID: 1, Embedding: []float32{1}}, dims: 0},
		{name: "zero fid", p: Profile{FID: 0, Embedding: []float32{1}}, reason: ReasonConstraint},
		{name: "negative fid", p: Profile{FID: -4, Embedding: []float32{1}}, reason: ReasonConstraint},
		{name: "empty embedding", p: Profile{FID: 1}, reason: ReasonSerialization},
		{name: "dimension mismatch", p: Profile{FID: 1, Embedding: []float32{1, 2}}, dims: 3, reason: ReasonSerialization},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			err := Validate(tc.p, tc.dims)
			if tc.reason == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if got := ReasonOf(err); got != tc.reason {
				t.Fatalf("ReasonOf = %q, want %q (err %v)", got, tc.reason, err)
			}
		})
	}
}

func TestValidate_DimensionErrorDetails(t *testing.T) {
	t.Parallel()

	err := Validate(Profile{FID: 7, Embedding: make([]float32, 768)}, 1536)
	var de *DimensionError
	if !errors.As(err, &de) {
		t.Fatalf("expected *DimensionError in chain, got %v", err)
	}
	if de.Got != 768 || de.Want != 1536 {
		t.Errorf("DimensionError = %+v", de)
	}
}

func TestError_NotFoundMatching(t *testing.T) {
	t.Parallel()

	notFound := fmt.Errorf("lookup: %w", &Error{Op: "get", Reason: ReasonNotFound, FID: 3, Err: errors.New("no rows")})
	if !errors.Is(notFound, ErrNotFound) {
		t.Error("not-found store error should match ErrNotFound")
	}

	other := &Error{Op: "get", Reason: ReasonConnectivity, FID: 3, Err: errors.New("refused")}
	if errors.Is(other, ErrNotFound) {
		t.Error("connectivity error must not match ErrNotFound")
	}
	if ReasonOf(errors.New("plain")) != ReasonUnknown {
		t.Error("plain error should be ReasonUnknown")
	}
}

func TestError_Message(t *testing.T) {
	t.Parallel()

	withFID := &Error{Op: "upsert", Reason: ReasonConstraint, FID: 9, Err: errors.New("boom")}
	if got, want := withFID.Error(), "profilestore: upsert fid 9: constraint: boom"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
	noFID := &Error{Op: "ping", Reason: ReasonConnectivity, Err: errors.New("refused")}
	if got, want := noFID.Error(), "profilestore: ping: connectivity: refused"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestCosineDistance(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{"identical", []float32{1, 0}, []float32{1, 0}, 0},
		{"scaled", []float32{1, 1}, []float32{3, 3}, 0},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 1},
		{"opposite", []float32{1, 0}, []float32{-1, 0}, 2},
		{"length mismatch", []float32{1}, []float32{1, 0}, 1},
		{"zero vector", []float32{0, 0}, []float32{1, 0}, 1},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := CosineDistance(tc.a, tc.b); math.Abs(got-tc.want) > 1e-9 {
				t.Errorf("CosineDistance = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestRankMatches(t *testing.T) {
	t.Parallel()

	in := []Match{
		{Profile: Profile{FID: 3}, Distance: 0.5},
		{Profile: Profile{FID: 2}, Distance: 0.1},
		{Profile: Profile{FID: 1}, Distance: 0.5},
		{Profile: Profile{FID: 4}, Distance: 0.9},
	}
	got := RankMatches(in, 3)
	want := []int64{2, 1, 3}
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d", len(got), len(want))
	}
	for i, fid := range want {
		if got[i].Profile.FID != fid {
			t.Errorf("rank %d = fid %d, want %d", i, got[i].Profile.FID, fid)
		}
	}
}
