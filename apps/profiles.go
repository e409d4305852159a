// SPDX-License-Identifier: GPL-2.0-only

package apps

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"howett.net/plist"

	"github.com/jkcoxson/minimuxer/idevice"
	"github.com/jkcoxson/minimuxer/shim"
)

const misagentLabel = "minimuxer-apps-misagent"

// xmlStart and xmlEnd bound the embedded XML plist inside each profile
// blob misagent's Copy returns. Profile data is a concatenation of
// binary-encoded bytes and an embedded XML plist; rather than parse the
// outer container this locates the XML by fixed-byte windowing, mirroring
// the upstream format exactly (spec.md §8).
const (
	xmlStart = "<?xml version="
	xmlEnd   = "</plist>"
)

// InstallProfile installs a provisioning profile given its raw bytes.
func InstallProfile(device idevice.Device, logger log.Logger, profile []byte) error {
	misagent, err := device.NewMisagentClient(misagentLabel)
	if err != nil {
		return shim.NewError(shim.ErrCreateMisagent, err)
	}
	defer misagent.Close()

	if err := misagent.Install(profile); err != nil {
		return shim.NewError(shim.ErrProfileInstall, err)
	}

	level.Info(logger).Log("msg", "installed provisioning profile")
	return nil
}

// RemoveProfile removes a provisioning profile by UUID.
func RemoveProfile(device idevice.Device, logger log.Logger, uuid string) error {
	misagent, err := device.NewMisagentClient(misagentLabel)
	if err != nil {
		return shim.NewError(shim.ErrCreateMisagent, err)
	}
	defer misagent.Close()

	if err := misagent.Remove(uuid); err != nil {
		return shim.NewError(shim.ErrProfileRemove, err)
	}

	level.Info(logger).Log("msg", "removed provisioning profile", "uuid", uuid)
	return nil
}

// profileInfo is the subset of an extracted profile plist this package
// reads to drive bulk removal and dumping.
type profileInfo struct {
	Name string `plist:"Name"`
	UUID string `plist:"UUID"`
}

// RemoveProfilesMatching copies every installed profile, extracts each
// one's embedded XML plist, and removes any whose Name contains one of
// the supplied comma-separated bundle-id substrings. This preserves the
// original's substring (not exact) match, which can over-match a prefix
// against a longer identifier; see SPEC_FULL.md Open Questions.
func RemoveProfilesMatching(device idevice.Device, logger log.Logger, commaSeparatedIDs string) error {
	misagent, err := device.NewMisagentClient(misagentLabel)
	if err != nil {
		return shim.NewError(shim.ErrCreateMisagent, err)
	}
	defer misagent.Close()

	blobs, err := misagent.Copy()
	if err != nil {
		return shim.NewError(shim.ErrProfileRemove, err)
	}

	ids := strings.Split(commaSeparatedIDs, ",")
	for _, blob := range blobs {
		info, err := extractProfileInfo(blob)
		if err != nil {
			level.Debug(logger).Log("msg", "skipping unreadable profile blob", "err", err)
			continue
		}
		for _, id := range ids {
			if id == "" {
				continue
			}
			if strings.Contains(info.Name, id) {
				if err := misagent.Remove(info.UUID); err != nil {
					level.Error(logger).Log("msg", "failed to remove matched profile", "name", info.Name, "uuid", info.UUID, "err", err)
					continue
				}
				level.Info(logger).Log("msg", "removed matched profile", "name", info.Name, "uuid", info.UUID, "matched", id)
				break
			}
		}
	}
	return nil
}

// DumpProfiles copies every installed profile and writes both the raw
// blob and its extracted XML plist under a timestamped directory beneath
// docsRoot.
func DumpProfiles(device idevice.Device, logger log.Logger, docsRoot string) (string, error) {
	misagent, err := device.NewMisagentClient(misagentLabel)
	if err != nil {
		return "", shim.NewError(shim.ErrCreateMisagent, err)
	}
	defer misagent.Close()

	blobs, err := misagent.Copy()
	if err != nil {
		return "", shim.NewError(shim.ErrProfileRemove, err)
	}

	dumpDir := filepath.Join(docsRoot, fmt.Sprintf("profiles-%s", time.Now().UTC().Format("20060102T150405Z")))
	if err := os.MkdirAll(dumpDir, 0o755); err != nil {
		return "", shim.NewError(shim.ErrRWAfc, err)
	}

	for i, blob := range blobs {
		rawPath := filepath.Join(dumpDir, fmt.Sprintf("profile-%03d.bin", i))
		if err := os.WriteFile(rawPath, blob, 0o644); err != nil {
			level.Error(logger).Log("msg", "failed to dump raw profile blob", "index", i, "err", err)
			continue
		}

		xml, err := extractEmbeddedXML(blob)
		if err != nil {
			level.Debug(logger).Log("msg", "no embedded xml found in profile blob", "index", i, "err", err)
			continue
		}
		xmlPath := filepath.Join(dumpDir, fmt.Sprintf("profile-%03d.xml", i))
		if err := os.WriteFile(xmlPath, xml, 0o644); err != nil {
			level.Error(logger).Log("msg", "failed to dump extracted profile xml", "index", i, "err", err)
		}
	}

	level.Info(logger).Log("msg", "dumped provisioning profiles", "count", len(blobs), "dir", dumpDir)
	return dumpDir, nil
}

// extractEmbeddedXML locates the embedded XML plist inside a profile blob
// by scanning for the window [xmlStart, xmlEnd].
func extractEmbeddedXML(blob []byte) ([]byte, error) {
	start := strings.Index(string(blob), xmlStart)
	if start < 0 {
		return nil, fmt.Errorf("no %q marker in profile blob", xmlStart)
	}
	endMarker := strings.Index(string(blob[start:]), xmlEnd)
	if endMarker < 0 {
		return nil, fmt.Errorf("no %q terminator in profile blob", xmlEnd)
	}
	end := start + endMarker + len(xmlEnd)
	return blob[start:end], nil
}

func extractProfileInfo(blob []byte) (profileInfo, error) {
	xml, err := extractEmbeddedXML(blob)
	if err != nil {
		return profileInfo{}, err
	}
	var info profileInfo
	if err := plist.Unmarshal(xml, &info); err != nil {
		return profileInfo{}, err
	}
	return info, nil
}
