package artifact

import (
	"testing"
	"time"
)

func fixedClock(t *testing.T, ms int64) {
	t.Helper()
	prev := now
	now = func() time.Time { return time.UnixMilli(ms) }
	t.Cleanup(func() { now = prev })
}

func TestParse_SingleFileArtifact(t *testing.T) {
	fixedClock(t, 1000)
	raw := `<boltArtifact title="Demo"><boltAction type="file" filePath="src/App.tsx">export default App</boltAction></boltArtifact>`

	got := Parse(raw, 1)
	if len(got) != 2 {
		t.Fatalf("expected 2 actions, got %d", len(got))
	}

	if got[0].Kind != KindCreateFolder || got[0].Title != "Demo" {
		t.Errorf("expected CreateFolder 'Demo', got %s %q", got[0].Kind, got[0].Title)
	}
	if got[1].Kind != KindCreateFile {
		t.Errorf("expected CreateFile, got %s", got[1].Kind)
	}
	if got[1].Path != "src/App.tsx" {
		t.Errorf("expected path src/App.tsx, got %q", got[1].Path)
	}
	if got[1].Code != "export default App" {
		t.Errorf("expected code 'export default App', got %q", got[1].Code)
	}
	if got[1].Title != "Create src/App.tsx" {
		t.Errorf("expected title 'Create src/App.tsx', got %q", got[1].Title)
	}
	if got[0].ID != 1001 || got[1].ID != 1002 {
		t.Errorf("expected ids 1001,1002, got %d,%d", got[0].ID, got[1].ID)
	}
}

func TestParse_DocumentOrderAndCount(t *testing.T) {
	raw := `Sure! Here you go.
<boltArtifact id="x" title="Todo App">
  <boltAction type="file" filePath="package.json">
    {"name": "todo"}
  </boltAction>
  <boltAction type="shell">
    npm install
  </boltAction>
  <boltAction type="file" filePath="src/main.tsx">main</boltAction>
</boltArtifact>
Enjoy.`

	got := Parse(raw, 5)
	if len(got) != 4 {
		t.Fatalf("expected 4 actions, got %d", len(got))
	}

	wantKinds := []Kind{KindCreateFolder, KindCreateFile, KindRunScript, KindCreateFile}
	for i, k := range wantKinds {
		if got[i].Kind != k {
			t.Errorf("action %d: expected %s, got %s", i, k, got[i].Kind)
		}
	}
	if got[1].Code != `{"name": "todo"}` {
		t.Errorf("expected trimmed file content, got %q", got[1].Code)
	}
	if got[2].Code != "npm install" || got[2].Title != "Run command" {
		t.Errorf("unexpected shell action: %+v", got[2])
	}
	for i, a := range got {
		if a.ID != int64(5+i) {
			t.Errorf("action %d: expected id %d, got %d", i, 5+i, a.ID)
		}
	}
}

func TestParse_StartIDShiftsIDsOnly(t *testing.T) {
	raw := `<boltArtifact title="T"><boltAction type="file" filePath="a">1</boltAction><boltAction type="shell">ls</boltAction></boltArtifact>`

	a := Parse(raw, 3)
	b := Parse(raw, 10)
	if len(a) != len(b) {
		t.Fatalf("expected equal lengths, got %d and %d", len(a), len(b))
	}
	for i := range a {
		if a[i].Kind != b[i].Kind || a[i].Path != b[i].Path || a[i].Code != b[i].Code {
			t.Errorf("action %d differs beyond id: %+v vs %+v", i, a[i], b[i])
		}
		if b[i].ID-a[i].ID != 7 {
			t.Errorf("action %d: expected id shift of 7, got %d", i, b[i].ID-a[i].ID)
		}
	}
}

func TestParse_AttributeOrderIndependent(t *testing.T) {
	raw := `<boltArtifact title="T"><boltAction filePath="index.html" type="file"><h1/></boltAction></boltArtifact>`

	got := Parse(raw, 2)
	if len(got) != 2 || got[1].Path != "index.html" {
		t.Fatalf("expected file action for index.html, got %+v", got)
	}
}

func TestParse_DefaultTitle(t *testing.T) {
	got := Parse(`<boltArtifact><boltAction type="shell">ls</boltAction></boltArtifact>`, 2)
	if got[0].Title != DefaultTitle {
		t.Errorf("expected default title %q, got %q", DefaultTitle, got[0].Title)
	}
}

func TestParse_UnknownTypeIgnored(t *testing.T) {
	raw := `<boltArtifact title="T"><boltAction type="deploy">now</boltAction><boltAction type="shell">ls</boltAction></boltArtifact>`

	got := Parse(raw, 2)
	if len(got) != 2 {
		t.Fatalf("expected 2 actions (unknown type dropped), got %d", len(got))
	}
	if got[1].Kind != KindRunScript {
		t.Errorf("expected RunScript, got %s", got[1].Kind)
	}
}

func TestParse_MissingFilePath(t *testing.T) {
	got := Parse(`<boltArtifact title="T"><boltAction type="file">x</boltAction></boltArtifact>`, 2)
	if len(got) != 2 {
		t.Fatalf("expected 2 actions, got %d", len(got))
	}
	if got[1].Path != "" {
		t.Errorf("expected empty path, got %q", got[1].Path)
	}
	if got[1].Title != "Create file" {
		t.Errorf("expected title 'Create file', got %q", got[1].Title)
	}
}

func TestParse_BareActionRecovery(t *testing.T) {
	raw := `<boltAction type="file" filePath="a.txt">hi</boltAction>`

	got := Parse(raw, 2)
	if len(got) != 2 {
		t.Fatalf("expected 2 actions, got %d", len(got))
	}
	if got[0].Kind != KindCreateFolder || got[0].Title != RecoveryTitle {
		t.Errorf("expected recovery folder %q, got %s %q", RecoveryTitle, got[0].Kind, got[0].Title)
	}
	if got[1].Path != "a.txt" || got[1].Code != "hi" {
		t.Errorf("unexpected file action: %+v", got[1])
	}
}

func TestParse_NoTagsFallback(t *testing.T) {
	inputs := []string{
		"",
		"I can help with that, what framework do you prefer?",
		"<boltArtifact title=\"unterminated\">",
		"<boltAction type=\"file\">never closed",
	}

	for _, in := range inputs {
		got := Parse(in, 4)
		if len(got) != 1 {
			t.Fatalf("input %q: expected 1 action, got %d", in, len(got))
		}
		if got[0].Kind != KindRunScript {
			t.Errorf("input %q: expected RunScript, got %s", in, got[0].Kind)
		}
		if got[0].Code != in {
			t.Errorf("input %q: expected code to equal input, got %q", in, got[0].Code)
		}
		if got[0].Title != FallbackTitle {
			t.Errorf("input %q: expected title %q, got %q", in, FallbackTitle, got[0].Title)
		}
		if got[0].ID != 4 {
			t.Errorf("input %q: expected id 4, got %d", in, got[0].ID)
		}
	}
}

func TestParse_OnlyFirstArtifact(t *testing.T) {
	raw := `<boltArtifact title="One"><boltAction type="shell">a</boltAction></boltArtifact>
<boltArtifact title="Two"><boltAction type="shell">b</boltAction></boltArtifact>`

	got := Parse(raw, 2)
	if len(got) != 2 || got[0].Title != "One" || got[1].Code != "a" {
		t.Fatalf("expected only the first artifact, got %+v", got)
	}
}

func TestKind_Valid(t *testing.T) {
	for _, k := range []Kind{KindCreateFolder, KindCreateFile, KindRunScript} {
		if !k.Valid() {
			t.Errorf("expected %s to be valid", k)
		}
	}
	if Kind("folder").Valid() {
		t.Error("expected unknown kind to be invalid")
	}
}
