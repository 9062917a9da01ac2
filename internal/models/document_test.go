package models

import (
	"encoding/json"
	"testing"
)

const sampleProject = `{
  "projectId": "qc-2024",
  "sequences": [
    {"id": "seq-1", "title": "Condición 1", "contents": ["s1", "s2", "ghost"]}
  ],
  "contents": {
    "s1": {"id": "s1", "title": "Portada", "type": "image", "src": "/media/portada.png",
           "hotspots": [{"id": "h1", "x": 0.1, "y": 0.1, "width": 0.2, "height": 0.2, "action": "route", "target": "s2"},
                        {"id": "h2", "x": 0.5, "y": 0.5, "width": 0.1, "height": 0.1, "action": "route", "target": "nowhere"}]},
    "s2": {"id": "s2", "title": "Detalle", "type": "html", "html": "<p>hola</p>", "allowScripts": true}
  }
}`

func TestParseDocumentNormalizes(t *testing.T) {
	doc, err := ParseDocument([]byte(sampleProject))
	if err != nil {
		t.Fatalf("ParseDocument: %v", err)
	}
	if doc.ProjectID != "qc-2024" {
		t.Fatalf("projectId: got=%s", doc.ProjectID)
	}
	s2, ok := doc.Content("s2")
	if !ok {
		t.Fatal("s2 missing")
	}
	if s2.Hotspots == nil {
		t.Fatal("hotspots should be normalized to an empty slice")
	}
	if !s2.AllowScripts || s2.Type != ContentTypeHTML {
		t.Fatalf("unexpected s2: %+v", s2)
	}

	if _, err := ParseDocument([]byte("{not json")); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestDocumentJSONShape(t *testing.T) {
	doc, err := ParseDocument([]byte(sampleProject))
	if err != nil {
		t.Fatal(err)
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		t.Fatal(err)
	}
	var generic map[string]any
	if err := json.Unmarshal(raw, &generic); err != nil {
		t.Fatal(err)
	}
	for _, key := range []string{"projectId", "sequences", "contents"} {
		if _, ok := generic[key]; !ok {
			t.Fatalf("missing top-level key %q in %s", key, raw)
		}
	}
	s1 := generic["contents"].(map[string]any)["s1"].(map[string]any)
	if _, ok := s1["allowScripts"]; ok {
		t.Fatal("allowScripts=false should be omitted")
	}
	if _, ok := s1["hotspots"]; !ok {
		t.Fatal("hotspots must always be present")
	}
}

func TestCheckIntegrity(t *testing.T) {
	doc, _ := ParseDocument([]byte(sampleProject))
	issues := doc.CheckIntegrity()
	if len(issues) != 2 {
		t.Fatalf("issues: got=%d want=2 (%+v)", len(issues), issues)
	}
	if issues[0].Kind != IssueDanglingSequenceEntry || issues[0].Ref != "ghost" || issues[0].Position != 2 {
		t.Fatalf("unexpected first issue: %+v", issues[0])
	}
	if issues[1].Kind != IssueDanglingTarget || issues[1].HotspotID != "h2" {
		t.Fatalf("unexpected second issue: %+v", issues[1])
	}
}

func TestCloneIsDeep(t *testing.T) {
	doc, _ := ParseDocument([]byte(sampleProject))
	cp := doc.Clone()
	cp.Sequences[0].Contents[0] = "changed"
	cp.Contents["s1"].Hotspots[0].X = 0.9
	cp.Contents["s1"].Title = "otro"

	if doc.Sequences[0].Contents[0] != "s1" {
		t.Fatal("sequence contents shared after Clone")
	}
	if doc.Contents["s1"].Hotspots[0].X != 0.1 || doc.Contents["s1"].Title != "Portada" {
		t.Fatal("content shared after Clone")
	}
}

func TestSequenceIndexOfFirstOccurrence(t *testing.T) {
	seq := Sequence{ID: "s", Contents: []string{"a", "b", "a"}}
	if got := seq.IndexOf("a"); got != 0 {
		t.Fatalf("IndexOf(a): got=%d want=0", got)
	}
	if got := seq.IndexOf("z"); got != -1 {
		t.Fatalf("IndexOf(z): got=%d want=-1", got)
	}
}

func TestRectValid(t *testing.T) {
	tests := []struct {
		name string
		r    Rect
		want bool
	}{
		{"full", Rect{0, 0, 1, 1}, true},
		{"inside", Rect{0.2, 0.3, 0.5, 0.4}, true},
		{"overflow x", Rect{0.8, 0, 0.3, 0.1}, false},
		{"negative", Rect{-0.1, 0, 0.2, 0.2}, false},
		{"too tall", Rect{0, 0, 0.1, 1.2}, false},
		{"zero size", Rect{0.5, 0.5, 0, 0}, false},
		{"zero width", Rect{0.5, 0.5, 0, 0.2}, false},
	}
	for _, tt := range tests {
		if got := tt.r.Valid(); got != tt.want {
			t.Fatalf("%s: got=%v want=%v", tt.name, got, tt.want)
		}
	}
}

func TestHitTestPrefersHigherZIndex(t *testing.T) {
	c := &Content{Hotspots: []Hotspot{
		{ID: "top", X: 0, Y: 0, Width: 0.5, Height: 0.5, ZIndex: 5},
		{ID: "under", X: 0, Y: 0, Width: 1, Height: 1, ZIndex: 1},
	}}
	h, ok := c.HitTest(0.25, 0.25)
	if !ok || h.ID != "top" {
		t.Fatalf("hit: got=%v want=top", h.ID)
	}
	h, ok = c.HitTest(0.75, 0.75)
	if !ok || h.ID != "under" {
		t.Fatalf("hit: got=%v want=under", h.ID)
	}
}
