package main

import (
	"testing"

	"github.com/a-h/nodepm/why"
)

func TestRenderPathTextJoinsHopsWithArrows(t *testing.T) {
	p := why.Path{
		{Name: "app", Version: "1.0.0"},
		{Name: "left-pad", Version: "1.0.0"},
		{Name: "shared", Version: "2.0.0"},
	}
	got := renderPathText(p)
	want := "app@1.0.0 -> left-pad@1.0.0 -> shared@2.0.0"
	if got != want {
		t.Fatalf("renderPathText = %q, want %q", got, want)
	}
}

func TestRenderPathTextOfSingleHop(t *testing.T) {
	p := why.Path{{Name: "left-pad", Version: "1.0.0"}}
	if got, want := renderPathText(p), "left-pad@1.0.0"; got != want {
		t.Fatalf("renderPathText = %q, want %q", got, want)
	}
}
