package selector

import "testing"

func TestEndpointsPruning(t *testing.T) {
	// S3: libA has versions 0.5.0, 0.9.0, 1.0.0, 1.1.0, 1.2.0 and range
	// >=1.0.0, <1.2.0; expected seeds exactly libA-1.0.0 and libA-1.1.0.
	versions := []string{"0.5.0", "0.9.0", "1.0.0", "1.1.0", "1.2.0"}
	oldest, newest, err := Endpoints(versions, ">=1.0.0, <1.2.0")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if oldest == nil || oldest.Raw != "1.0.0" {
		t.Fatalf("oldest = %+v, want 1.0.0", oldest)
	}
	if newest == nil || newest.Raw != "1.1.0" {
		t.Fatalf("newest = %+v, want 1.1.0", newest)
	}
}

func TestEndpointsUnparseableSkipped(t *testing.T) {
	// S6: versions_of returns ["1.0.0", "not-a-version", "1.1.0"].
	versions := []string{"1.0.0", "not-a-version", "1.1.0"}
	oldest, newest, err := Endpoints(versions, ">=0.0.0")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if oldest.Raw != "1.0.0" || newest.Raw != "1.1.0" {
		t.Fatalf("got oldest=%s newest=%s", oldest.Raw, newest.Raw)
	}
}

func TestEndpointsSingleMatch(t *testing.T) {
	versions := []string{"1.0.0", "2.0.0"}
	oldest, newest, err := Endpoints(versions, "=1.0.0")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if oldest != newest {
		t.Fatalf("expected single match to be returned as both endpoints, got oldest=%+v newest=%+v", oldest, newest)
	}
	if oldest.Raw != "1.0.0" {
		t.Fatalf("got %s, want 1.0.0", oldest.Raw)
	}
}

func TestEndpointsNoMatch(t *testing.T) {
	oldest, newest, err := Endpoints([]string{"1.0.0"}, ">=5.0.0")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if oldest != nil || newest != nil {
		t.Fatalf("expected no match, got oldest=%+v newest=%+v", oldest, newest)
	}
}

func TestEndpointsEmptyRange(t *testing.T) {
	// An empty range string is not a valid SemVer range, so Endpoints
	// reports an error rather than an empty selection.
	_, _, err := Endpoints([]string{"1.0.0"}, "")
	if err == nil {
		t.Fatalf("expected malformed range to error")
	}
}
