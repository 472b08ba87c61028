package eval

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"strings"
	"testing"
	"testing/fstest"
)

func TestEvaluateRecordedFixtures(t *testing.T) {
	rep, err := Evaluate(context.Background(), os.DirFS("testdata"), "fixtures", nil)
	if err != nil {
		t.Fatal(err)
	}
	if rep.Total != 9 || rep.Passed != rep.Total || rep.Score != 1 {
		t.Fatalf("score=%v total=%d passed=%d details=%v", rep.Score, rep.Total, rep.Passed, rep.Details)
	}
}

func TestRunReportsMismatches(t *testing.T) {
	zero := 0
	fixtures := []Fixture{{
		Name:      "wrong expectation",
		Tool:      "get_product_variants",
		Arguments: map[string]any{"product_id": "p1"},
		Upstream:  &Recording{Body: []byte(`{"success":true,"data":[{"id":"v1"}]}`)},
		Expect: Expectation{
			IsError:       true,
			Contains:      []string{"nope"},
			UpstreamCalls: &zero,
			Request:       &RequestExpectation{Path: "/products/p2/variants"},
		},
	}}
	rep, err := Run(context.Background(), fixtures, nil)
	if err != nil {
		t.Fatal(err)
	}
	if rep.Passed != 0 || rep.Score != 0 {
		t.Fatalf("rep=%+v", rep)
	}
	joined := strings.Join(rep.Details, "\n")
	for _, want := range []string{"is_error=false want true", "missing contains: nope", "upstream calls=1 want 0", "path=/products/p1/variants"} {
		if !strings.Contains(joined, want) {
			t.Fatalf("details missing %q:\n%s", want, joined)
		}
	}
}

func TestRunConnectionFailure(t *testing.T) {
	rep, err := Run(context.Background(), []Fixture{{
		Name:     "refused",
		Tool:     "search_products",
		Upstream: &Recording{Fail: "connection"},
		Expect:   Expectation{IsError: true, Kind: "Network", Contains: []string{"unreachable"}},
	}}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if rep.Passed != 1 {
		t.Fatalf("details=%v", rep.Details)
	}
}

func TestEvaluateEmptyAndMissing(t *testing.T) {
	rep, err := Evaluate(context.Background(), fstest.MapFS{"cases/readme.txt": {Data: []byte("x")}}, "cases", nil)
	if err != nil {
		t.Fatal(err)
	}
	if rep.Total != 0 || rep.Score != 1 {
		t.Fatalf("rep=%+v", rep)
	}

	_, err = Evaluate(context.Background(), fstest.MapFS{}, "cases", nil)
	if !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("err=%v", err)
	}
}

func TestLoadFixturesRejectsBadJSON(t *testing.T) {
	fsys := fstest.MapFS{"cases/bad.json": {Data: []byte(`{"tool":`)}}
	if _, err := LoadFixtures(fsys, "cases"); err == nil || !strings.Contains(err.Error(), "bad.json") {
		t.Fatalf("err=%v", err)
	}
}

func TestLoadFixturesDefaultsName(t *testing.T) {
	fsys := fstest.MapFS{"cases/view_cart.json": {Data: []byte(`{"tool":"view_cart","expect":{"is_error":true}}`)}}
	fx, err := LoadFixtures(fsys, "cases")
	if err != nil {
		t.Fatal(err)
	}
	if len(fx) != 1 || fx[0].Name != "view_cart" {
		t.Fatalf("fixtures=%+v", fx)
	}
}
