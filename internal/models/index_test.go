package models

import (
	"strings"
	"testing"
)

func validIndex() *Index {
	idx := NewIndex()
	idx.Files["a.md"] = &FileEntry{
		Path: "a.md",
		Name: "a",
		OutgoingLinks: []*LinkInstance{
			{Title: "b", SourceFile: "a.md", TargetFile: "b.md", TargetExists: true},
			{Title: "broken", SourceFile: "a.md"},
		},
	}
	idx.Files["b.md"] = &FileEntry{Path: "b.md", Name: "b"}
	idx.Backlinks["b.md"] = PathSet{"a.md": true}
	idx.Tags["t"] = PathSet{"a.md": true}
	idx.Metadata.TotalFiles = 2
	idx.Metadata.TotalLinks = 2
	return idx
}

func TestCheckInvariants_Valid(t *testing.T) {
	if err := validIndex().CheckInvariants(); err != nil {
		t.Fatalf("valid index rejected: %v", err)
	}
}

func TestCheckInvariants_Violations(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Index)
		wantMsg string
	}{
		{
			"file counter drift",
			func(idx *Index) { idx.Metadata.TotalFiles = 5 },
			"total_files",
		},
		{
			"link counter drift",
			func(idx *Index) { idx.Metadata.TotalLinks = 0 },
			"total_links",
		},
		{
			"empty backlink set",
			func(idx *Index) {
				delete(idx.Backlinks["b.md"], "a.md")
				idx.Files["a.md"].OutgoingLinks = idx.Files["a.md"].OutgoingLinks[1:]
				idx.Metadata.TotalLinks = 1
			},
			"empty backlink set",
		},
		{
			"backlink source missing from files",
			func(idx *Index) { idx.Backlinks["b.md"]["ghost.md"] = true },
			"missing file",
		},
		{
			"backlink without matching outgoing link",
			func(idx *Index) {
				idx.Backlinks["x.md"] = PathSet{"b.md": true}
			},
			"no such outgoing link",
		},
		{
			"resolved link missing from backlinks",
			func(idx *Index) { delete(idx.Backlinks, "b.md") },
			"missing from backlinks",
		},
		{
			"empty tag set",
			func(idx *Index) { idx.Tags["t"] = PathSet{} },
			"empty tag set",
		},
		{
			"tag member missing from files",
			func(idx *Index) { idx.Tags["t"]["ghost.md"] = true },
			"references missing file",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			idx := validIndex()
			tt.mutate(idx)
			err := idx.CheckInvariants()
			if err == nil {
				t.Fatal("expected invariant violation")
			}
			if !strings.Contains(err.Error(), tt.wantMsg) {
				t.Errorf("err = %v, want substring %q", err, tt.wantMsg)
			}
		})
	}
}

func TestClone_IsDeep(t *testing.T) {
	idx := validIndex()
	cp := idx.Clone()

	cp.Files["a.md"].OutgoingLinks[0].TargetFile = "elsewhere.md"
	cp.Backlinks["b.md"]["c.md"] = true
	cp.Tags["t"]["c.md"] = true
	cp.Metadata.TotalFiles = 99

	if idx.Files["a.md"].OutgoingLinks[0].TargetFile != "b.md" {
		t.Error("link mutation leaked into the original")
	}
	if idx.Backlinks["b.md"]["c.md"] {
		t.Error("backlink mutation leaked into the original")
	}
	if idx.Tags["t"]["c.md"] {
		t.Error("tag mutation leaked into the original")
	}
	if idx.Metadata.TotalFiles != 2 {
		t.Error("metadata mutation leaked into the original")
	}
}

func TestNewIndex_Initialized(t *testing.T) {
	idx := NewIndex()
	if idx.Files == nil || idx.Backlinks == nil || idx.Tags == nil {
		t.Fatal("maps not initialized")
	}
	if idx.Metadata.Version != IndexVersion {
		t.Errorf("version = %d, want %d", idx.Metadata.Version, IndexVersion)
	}
	if err := idx.CheckInvariants(); err != nil {
		t.Errorf("empty index invariants: %v", err)
	}
}
