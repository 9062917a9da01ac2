package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Corphon/HotspotDeck/internal/models"
)

const danglingDoc = `{
  "projectId": "demo",
  "sequences": [{"id": "seq-1", "title": "Main", "contents": ["s1", "ghost", "s2"]}],
  "contents": {
    "s1": {"id": "s1", "title": "One", "type": "image", "src": "/media/one.png",
      "hotspots": [{"id": "h1", "x": 0.1, "y": 0.1, "width": 0.2, "height": 0.2, "action": "route", "target": "s2"}]},
    "s2": {"id": "s2", "title": "Two", "type": "html", "html": "<p>two</p>", "hotspots": []}
  }
}`

func writeProject(t *testing.T, raw string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "project-config.json")
	if err := os.WriteFile(path, []byte(raw), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

type output struct {
	Data json.RawMessage `json:"data"`
	Meta map[string]any  `json:"meta"`
}

func decode(t *testing.T, s string) output {
	t.Helper()
	var o output
	if err := json.Unmarshal([]byte(s), &o); err != nil {
		t.Fatalf("decode %q: %v", s, err)
	}
	return o
}

func TestValidateReportsDanglingEntries(t *testing.T) {
	path := writeProject(t, danglingDoc)

	out, err := run(t, "validate", "--file", path)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	o := decode(t, out)
	if o.Meta["issues"] != float64(1) {
		t.Fatalf("issues got=%v want=1", o.Meta["issues"])
	}

	_, err = run(t, "validate", "--file", path, "--fail")
	if !errors.Is(err, ErrIntegrityIssues) {
		t.Fatalf("--fail got=%v want=%v", err, ErrIntegrityIssues)
	}
}

func TestRepairWritesDocument(t *testing.T) {
	path := writeProject(t, danglingDoc)

	out, err := run(t, "repair", "--file", path, "--write")
	if err != nil {
		t.Fatalf("repair: %v", err)
	}
	o := decode(t, out)
	if o.Meta["removed"] != float64(1) || o.Meta["written"] != true {
		t.Fatalf("meta got=%v", o.Meta)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	doc, err := models.ParseDocument(raw)
	if err != nil {
		t.Fatal(err)
	}
	if got := strings.Join(doc.Sequences[0].Contents, ","); got != "s1,s2" {
		t.Fatalf("contents got=%q want=%q", got, "s1,s2")
	}

	out, err = run(t, "validate", "--file", path, "--fail")
	if err != nil {
		t.Fatalf("validate after repair: %v out=%s", err, out)
	}
}

func TestExportMarkdownToStdout(t *testing.T) {
	path := writeProject(t, danglingDoc)

	out, err := run(t, "export", "--file", path, "--format", "markdown", "--out-dir", t.TempDir())
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if !strings.HasPrefix(out, "# demo") {
		t.Fatalf("markdown header missing:\n%s", out)
	}
	if !strings.Contains(out, "`ghost`") {
		t.Fatalf("dangling entry not reported:\n%s", out)
	}

	if _, err := run(t, "export", "--file", path, "--format", "pdf"); err == nil {
		t.Fatal("expected error for unknown format")
	}
}

func TestInitRefusesToOverwrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "project-config.json")

	if _, err := run(t, "init", "--file", path, "--project-id", "fresh"); err != nil {
		t.Fatalf("init: %v", err)
	}
	if _, err := run(t, "init", "--file", path); err == nil {
		t.Fatal("second init should fail without --force")
	}
	if _, err := run(t, "init", "--file", path, "--force"); err != nil {
		t.Fatalf("init --force: %v", err)
	}
}

func TestPlayTrace(t *testing.T) {
	doc, err := models.ParseDocument([]byte(danglingDoc))
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name  string
		steps []string
		want  []string
	}{
		{
			name:  "hotspot route",
			steps: []string{"hotspot:h1"},
			want:  []string{"s1", "s2"},
		},
		{
			name:  "next lands on dangling entry",
			steps: []string{"next", "next", "prev"},
			want:  []string{"s1", "ghost", "s2", "ghost"},
		},
		{
			name:  "bridge navigate",
			steps: []string{`msg:{"type":"NAVIGATE","targetId":"s2"}`, `msg:{"type":"CLICK","targetId":"s1"}`},
			want:  []string{"s1", "s2", "s2"},
		},
		{
			name:  "unknown route target ignored",
			steps: []string{`msg:{"type":"NAVIGATE","targetId":"nope"}`, "key:ArrowDown"},
			want:  []string{"s1", "s1", "ghost"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			trace, err := Play(doc, "seq-1", tt.steps)
			if err != nil {
				t.Fatalf("Play: %v", err)
			}
			got := make([]string, len(trace))
			for i, s := range trace {
				got[i] = s.ContentID
			}
			if strings.Join(got, ",") != strings.Join(tt.want, ",") {
				t.Fatalf("got=%v want=%v", got, tt.want)
			}
		})
	}

	if _, err := Play(doc, "seq-1", []string{"jump"}); err == nil {
		t.Fatal("expected error for unknown step")
	}
}
