package gphoto

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func testTree() (*Widget, *Widget, *Widget) {
	root := NewWidget("main", TypeWindow)
	settings := root.AddChild(NewWidget("capturesettings", TypeSection))
	aperture := settings.AddChild(NewWidget("aperture", TypeRadio))
	aperture.Choices = []string{"f/4", "", "f/5.6"}
	shutter := settings.AddChild(NewWidget("shutterspeed", TypeRadio))
	return root, aperture, shutter
}

func TestWidget_ChildByNameNested(t *testing.T) {
	root, aperture, _ := testTree()
	got, err := root.ChildByName("aperture")
	if err != nil {
		t.Fatal(err)
	}
	if got != aperture {
		t.Error("ChildByName returned a different widget")
	}
	if _, err := root.ChildByName("iso"); err == nil {
		t.Error("expected error for missing widget")
	}
}

func TestWidget_SetValueOnSection(t *testing.T) {
	root, _, _ := testTree()
	settings, _ := root.ChildByName("capturesettings")
	if err := settings.SetValue("x"); err == nil {
		t.Error("expected error setting a section value")
	}
}

func TestWidget_ChangedTracking(t *testing.T) {
	root, aperture, shutter := testTree()
	if n := len(root.ChangedLeaves()); n != 0 {
		t.Fatalf("fresh tree has %d changed widgets", n)
	}
	_ = shutter.SetValue("1/60")
	_ = aperture.SetValue("f/4")
	changed := root.ChangedLeaves()
	if len(changed) != 2 || changed[0] != aperture || changed[1] != shutter {
		t.Errorf("changed = %v, want [aperture shutterspeed] in tree order", changed)
	}
	root.ClearChanged()
	if len(root.ChangedLeaves()) != 0 {
		t.Error("ClearChanged left changed widgets")
	}
	if shutter.Value() != "1/60" {
		t.Error("ClearChanged must not reset values")
	}
}

func TestWidget_Choice(t *testing.T) {
	_, aperture, _ := testTree()
	if aperture.CountChoices() != 3 {
		t.Errorf("CountChoices = %d, want 3", aperture.CountChoices())
	}
	if c, err := aperture.Choice(2); err != nil || c != "f/5.6" {
		t.Errorf("Choice(2) = %q, %v", c, err)
	}
	if _, err := aperture.Choice(3); err == nil {
		t.Error("expected error for out of range index")
	}
	if _, err := aperture.Choice(-1); err == nil {
		t.Error("expected error for negative index")
	}
}

func TestMockSession_RoundTrip(t *testing.T) {
	ctx := context.Background()
	m := NewMockSession()
	if _, err := m.GetConfig(ctx); err == nil {
		t.Fatal("expected error before Init")
	}
	if err := m.Init(ctx); err != nil {
		t.Fatal(err)
	}
	defer m.Exit()

	root, err := m.GetConfig(ctx)
	if err != nil {
		t.Fatal(err)
	}
	shutter, _ := root.ChildByName("shutterspeed")
	_ = shutter.SetValue("1/125")
	if err := m.SetConfig(ctx, root); err != nil {
		t.Fatal(err)
	}

	again, _ := m.GetConfig(ctx)
	s2, _ := again.ChildByName("shutterspeed")
	if s2.Value() != "1/125" {
		t.Errorf("device value = %q, want 1/125", s2.Value())
	}

	_ = s2.SetValue("1/7")
	if err := m.SetConfig(ctx, again); err == nil {
		t.Error("expected error for value outside the choice list")
	}

	file, err := m.Capture(ctx)
	if err != nil {
		t.Fatal(err)
	}
	target := filepath.Join(t.TempDir(), file.Name)
	if err := m.Download(ctx, file, target); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(target); err != nil {
		t.Errorf("downloaded file missing: %v", err)
	}
	if err := m.Download(ctx, FilePath{Folder: file.Folder, Name: "NOPE.JPG"}, target); err == nil {
		t.Error("expected error for unknown file")
	}
}
