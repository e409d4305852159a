// SPDX-License-Identifier: GPL-2.0-only

package apps

import (
	"os"
	"strings"
	"testing"

	"github.com/go-kit/log"
)

func fakeProfileBlob(name, uuid string) []byte {
	xml := "<?xml version=\"1.0\"?><plist><dict><key>Name</key><string>" + name +
		"</string><key>UUID</key><string>" + uuid + "</string></dict></plist>"
	return append([]byte{0x00, 0x01, 0x02}, []byte(xml)...)
}

func TestExtractEmbeddedXML(t *testing.T) {
	blob := fakeProfileBlob("com.example.profile", "ABCD-1234")
	xml, err := extractEmbeddedXML(blob)
	if err != nil {
		t.Fatalf("extractEmbeddedXML returned error: %v", err)
	}
	if !strings.HasPrefix(string(xml), xmlStart) {
		t.Errorf("extracted xml does not start with marker: %q", xml)
	}
	if !strings.HasSuffix(string(xml), xmlEnd) {
		t.Errorf("extracted xml does not end with terminator: %q", xml)
	}
}

func TestRemoveProfilesMatchingSubstringOverMatch(t *testing.T) {
	misagent := &fakeMisagent{profiles: [][]byte{
		fakeProfileBlob("com.x", "uuid-1"),
		fakeProfileBlob("com.xenon", "uuid-2"),
		fakeProfileBlob("com.other", "uuid-3"),
	}}
	device := &fakeDevice{misagent: misagent}

	if err := RemoveProfilesMatching(device, log.NewNopLogger(), "com.x"); err != nil {
		t.Fatalf("RemoveProfilesMatching returned error: %v", err)
	}

	// Both "com.x" and "com.xenon" contain "com.x" as a substring, so both
	// are removed — the documented over-match behavior.
	if len(misagent.removed) != 2 {
		t.Fatalf("removed = %v, want 2 entries", misagent.removed)
	}
}

func TestDumpProfilesWritesRawAndXML(t *testing.T) {
	misagent := &fakeMisagent{profiles: [][]byte{fakeProfileBlob("com.example", "uuid-1")}}
	device := &fakeDevice{misagent: misagent}

	dir := t.TempDir()
	dumpDir, err := DumpProfiles(device, log.NewNopLogger(), dir)
	if err != nil {
		t.Fatalf("DumpProfiles returned error: %v", err)
	}

	entries, err := os.ReadDir(dumpDir)
	if err != nil {
		t.Fatalf("failed to read dump dir: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected one .bin and one .xml file, got %d entries", len(entries))
	}
}
