// SPDX-License-Identifier: GPL-2.0-only

package apps

import (
	"testing"

	"github.com/go-kit/log"

	"github.com/jkcoxson/minimuxer/idevice"
)

func TestStripFileURI(t *testing.T) {
	cases := map[string]string{
		"file:///var/mobile/x": "/var/mobile/x",
		"/var/mobile/x":        "/var/mobile/x",
	}
	for in, want := range cases {
		if got := stripFileURI(in); got != want {
			t.Errorf("stripFileURI(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestFileManagerTreeRespectsMaxDepth(t *testing.T) {
	afc := newFakeAFCClient()
	afc.dirs["/root"] = true
	afc.dirs["/root/a"] = true
	afc.dirs["/root/a/b"] = true
	afc.dirs["/root/a/b/c"] = true
	afc.listed["/root"] = []string{"a"}
	afc.listed["/root/a"] = []string{"b"}
	afc.listed["/root/a/b"] = []string{"c"}
	afc.listed["/root/a/b/c"] = []string{"d"}
	afc.statInfo["/root/a/b/c/d"] = idevice.AFCFileInfo{IFMT: "S_IFREG", Size: 10}

	device := &fakeDevice{afc: afc}
	manager := NewFileManager(device, log.NewNopLogger())

	entry, err := manager.Tree("/root")
	if err != nil {
		t.Fatalf("Tree returned error: %v", err)
	}

	// depth 0: /root, 1: a, 2: b, 3: c -- walk stops emitting children of c
	// (depth 4) since maxTreeDepth is 3.
	a := firstChild(t, entry)
	b := firstChild(t, a)
	c := firstChild(t, b)
	if len(c.Children) != 0 {
		t.Errorf("expected no children past max depth, got %v", c.Children)
	}
}

func firstChild(t *testing.T, e Entry) Entry {
	t.Helper()
	if len(e.Children) != 1 {
		t.Fatalf("expected exactly one child of %q, got %d", e.Path, len(e.Children))
	}
	return e.Children[0]
}

func TestFileManagerDeleteRecursiveStripsFileURI(t *testing.T) {
	afc := newFakeAFCClient()
	device := &fakeDevice{afc: afc}
	manager := NewFileManager(device, log.NewNopLogger())

	if err := manager.DeleteRecursive("file:///a/b"); err != nil {
		t.Fatalf("DeleteRecursive returned error: %v", err)
	}
	if len(afc.removed) != 1 || afc.removed[0] != "/a/b" {
		t.Errorf("removed = %v, want [/a/b]", afc.removed)
	}
}
