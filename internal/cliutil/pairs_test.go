package cliutil

import (
	"os"
	"path/filepath"
	"testing"
)

func TestParsePairsCommaList(t *testing.T) {
	got, err := ParsePairs("BTC/USD, ETH/USD ,XBT/EUR")
	if err != nil {
		t.Fatalf("ParsePairs: %v", err)
	}
	want := []string{"BTC/USD", "ETH/USD", "XBT/EUR"}
	if !equalSlices(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestParsePairsBareSymbolFallback(t *testing.T) {
	got, err := ParsePairs("BTC/USD")
	if err != nil {
		t.Fatalf("ParsePairs: %v", err)
	}
	if !equalSlices(got, []string{"BTC/USD"}) {
		t.Errorf("got %v", got)
	}
}

func TestParsePairsTextFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pairs.txt")
	if err := os.WriteFile(path, []byte("BTC/USD\nETH/USD\n\nXBT/EUR\n"), 0644); err != nil {
		t.Fatal(err)
	}

	got, err := ParsePairs(path)
	if err != nil {
		t.Fatalf("ParsePairs: %v", err)
	}
	want := []string{"BTC/USD", "ETH/USD", "XBT/EUR"}
	if !equalSlices(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestParsePairsTextFileRowCap(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pairs.txt")
	if err := os.WriteFile(path, []byte("BTC/USD\nETH/USD\nXBT/EUR\n"), 0644); err != nil {
		t.Fatal(err)
	}

	got, err := ParsePairs(path + ":2")
	if err != nil {
		t.Fatalf("ParsePairs: %v", err)
	}
	if !equalSlices(got, []string{"BTC/USD", "ETH/USD"}) {
		t.Errorf("got %v", got)
	}
}

func TestParsePairsCSVByColumnName(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pairs.csv")
	content := "rank,symbol,volume\n1,BTC/USD,100\n2,ETH/USD,50\n3,XBT/EUR,10\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	got, err := ParsePairs(path + ":symbol")
	if err != nil {
		t.Fatalf("ParsePairs: %v", err)
	}
	want := []string{"BTC/USD", "ETH/USD", "XBT/EUR"}
	if !equalSlices(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestParsePairsCSVByColumnIndexWithLimit(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pairs.csv")
	content := "rank,symbol,volume\n1,BTC/USD,100\n2,ETH/USD,50\n3,XBT/EUR,10\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	got, err := ParsePairs(path + ":2:2")
	if err != nil {
		t.Fatalf("ParsePairs: %v", err)
	}
	if !equalSlices(got, []string{"BTC/USD", "ETH/USD"}) {
		t.Errorf("got %v", got)
	}
}

func TestParsePairsEmptySpecIsError(t *testing.T) {
	if _, err := ParsePairs(""); err == nil {
		t.Error("expected an error for an empty pairs spec")
	}
}

func TestParsePairsMissingCSVColumnIsError(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pairs.csv")
	if err := os.WriteFile(path, []byte("rank,symbol\n1,BTC/USD\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := ParsePairs(path + ":nonexistent"); err == nil {
		t.Error("expected an error for an unknown column selector")
	}
}

func equalSlices(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
