package filter

import (
	"reflect"
	"testing"
)

func TestShouldRespond(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		keywords []string
		want     bool
	}{
		{"empty keywords match all", "anything at all", nil, true},
		{"blank keywords match all", "anything", []string{" ", ""}, true},
		{"case insensitive", "Check out this NEW COIN", []string{"new coin"}, true},
		{"substring", "solana summer", []string{"sol"}, true},
		{"no match", "gardening tips", []string{"nft", "altcoin"}, false},
		{"empty text with keywords", "", []string{"nft"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ShouldRespond(tt.text, tt.keywords); got != tt.want {
				t.Errorf("ShouldRespond(%q, %v) = %v, want %v", tt.text, tt.keywords, got, tt.want)
			}
		})
	}
}

func TestMatched_PreservesKeywordOrder(t *testing.T) {
	got := Matched("Solana NFT drop", []string{"nft", "altcoin", "solana"})
	want := []string{"nft", "solana"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}
