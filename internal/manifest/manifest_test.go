package manifest

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestParseBasicLines(t *testing.T) {
	body := []byte(`
# comment line
0 patch0001.thor
1 patch0002.zip target=data.grf hash=sha256:deadbeef size=1024
// another comment
2 patch0003.thor extract=true
`)
	records, err := Parse(body)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("expected 3 records, got %d", len(records))
	}
	if records[1].Filename != "patch0002.zip" || records[1].TargetContainer != "data.grf" {
		t.Fatalf("unexpected record 1: %+v", records[1])
	}
	if records[1].Hash != "sha256:deadbeef" {
		t.Fatalf("unexpected hash: %q", records[1].Hash)
	}
	if !records[1].HasSize || records[1].Size != 1024 {
		t.Fatalf("unexpected size: %+v", records[1])
	}
	if !records[2].ForceExtract {
		t.Fatalf("expected extract=true on record 2")
	}
}

func TestParseSkipsMalformedIndex(t *testing.T) {
	body := []byte("notanumber patch.thor\n0 good.thor\n")
	records, err := Parse(body)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(records) != 1 || records[0].Filename != "good.thor" {
		t.Fatalf("expected only the well-formed line, got %+v", records)
	}
}

func TestParseSingleTokenDefaultsToPosition(t *testing.T) {
	body := []byte("patch0001.thor\npatch0002.thor\n")
	records, err := Parse(body)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	if records[0].Index != 0 || records[1].Index != 1 {
		t.Fatalf("unexpected positional indices: %+v", records)
	}
}

func TestParseStableSortByIndex(t *testing.T) {
	body := []byte("5 e.thor\n1 a.thor\n3 c.thor\n")
	records, err := Parse(body)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	want := []string{"a.thor", "c.thor", "e.thor"}
	for i, w := range want {
		if records[i].Filename != w {
			t.Fatalf("position %d: want %q, got %q", i, w, records[i].Filename)
		}
	}
}

func TestFetch404IsEmptyNotError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewClient()
	records, err := c.Fetch(srv.URL)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if records != nil {
		t.Fatalf("expected nil records on 404, got %+v", records)
	}
}

func TestFetchServerErrorWraps(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient()
	c.http.RetryMax = 0
	_, err := c.Fetch(srv.URL)
	if err == nil {
		t.Fatalf("expected error on 500")
	}
	if _, ok := err.(*FetchError); !ok {
		t.Fatalf("expected *FetchError, got %T: %v", err, err)
	}
}

func TestFetchParsesSuccessfulBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("0 patch0001.thor\n1 patch0002.zip\n"))
	}))
	defer srv.Close()

	c := NewClient()
	records, err := c.Fetch(srv.URL)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
}
