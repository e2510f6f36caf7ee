// Package testutil provides shared test helpers.
//
// Centralising the small assertion helpers keeps the package-level tests
// focused on behaviour rather than plumbing.
package testutil

import (
	"math"
	"testing"
)

// AssertNoError fails the test if err is not nil.
func AssertNoError(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// AssertError fails the test if err is nil.
func AssertError(t *testing.T, err error) {
	t.Helper()
	if err == nil {
		t.Fatal("expected error, got nil")
	}
}

// AssertStatusCode checks that an HTTP response status code matches expected.
func AssertStatusCode(t *testing.T, got, want int) {
	t.Helper()
	if got != want {
		t.Errorf("status code = %d, want %d", got, want)
	}
}

// AssertInDelta checks that got is within delta of want.
func AssertInDelta(t *testing.T, got, want, delta float64) {
	t.Helper()
	if math.Abs(got-want) > delta {
		t.Errorf("value = %v, want %v (±%v)", got, want, delta)
	}
}

// AssertRelClose checks that got matches want within a relative tolerance.
// A zero want falls back to an absolute comparison.
func AssertRelClose(t *testing.T, got, want, relTol float64) {
	t.Helper()
	if want == 0 {
		AssertInDelta(t, got, want, relTol)
		return
	}
	if math.Abs(got-want)/math.Abs(want) > relTol {
		t.Errorf("value = %v, want %v (rel tol %v)", got, want, relTol)
	}
}
