// SPDX-License-Identifier: GPL-2.0-only

package ddimount

import (
	"os"
	"path/filepath"

	"github.com/efficientgo/core/errors"
	"github.com/go-kit/log/level"

	"github.com/jkcoxson/minimuxer/idevice"
)

// Fixed upstream locations for the three personalized-mount artifacts.
// Apple ties these to a specific OS build, so unlike the legacy path there
// is no per-version index to consult.
const (
	personalizedImageURL    = "https://github.com/jkcoxson/JitStreamer/raw/master/Image.dmg"
	personalizedTrustURL    = "https://github.com/jkcoxson/JitStreamer/raw/master/Image.dmg.trustcache"
	personalizedManifestURL = "https://github.com/jkcoxson/JitStreamer/raw/master/BuildManifest.plist"

	mounterServiceName = "com.apple.mobile.mobile_image_mounter"
)

// mountPersonalized implements the iOS >=17 path of spec.md §4.6: ensure the
// three artifacts are present, open a CoreDevice tunnel, read the device's
// unique chip id, and invoke the personalized-mount routine.
func (m *Mounter) mountPersonalized(device idevice.Device, lockdown idevice.LockdownSession) bool {
	imagePath := filepath.Join(m.dmgDir, "Image.dmg")
	trustPath := filepath.Join(m.dmgDir, "Image.dmg.trustcache")
	manifestPath := filepath.Join(m.dmgDir, "BuildManifest.plist")

	if err := ensureArtifact(imagePath, personalizedImageURL); err != nil {
		level.Error(m.logger).Log("msg", "failed to fetch personalized image", "err", err)
		return false
	}
	if err := ensureArtifact(trustPath, personalizedTrustURL); err != nil {
		level.Error(m.logger).Log("msg", "failed to fetch personalized trust cache", "err", err)
		return false
	}
	if err := ensureArtifact(manifestPath, personalizedManifestURL); err != nil {
		level.Error(m.logger).Log("msg", "failed to fetch personalized build manifest", "err", err)
		return false
	}

	tunnel, err := device.OpenCoreDeviceTunnel()
	if err != nil {
		level.Debug(m.logger).Log("msg", "failed to open CoreDevice tunnel", "err", err)
		return false
	}
	defer tunnel.Close()

	if _, err := tunnel.DiscoverRemoteXPCPort(mounterServiceName); err != nil {
		level.Debug(m.logger).Log("msg", "failed to discover image mounter over RemoteXPC", "err", err)
		return false
	}

	chipID, err := readUniqueChipID(lockdown)
	if err != nil {
		level.Debug(m.logger).Log("msg", "failed to read UniqueChipID", "err", err)
		return false
	}

	mounter, err := device.NewImageMounter(lockdownLabel)
	if err != nil {
		level.Debug(m.logger).Log("msg", "failed to open image mounter session", "err", err)
		return false
	}
	defer mounter.Close()

	already, err := mounter.LookupImage(developerImageType)
	if err != nil {
		level.Debug(m.logger).Log("msg", "failed to look up mounted developer images", "err", err)
		return false
	}
	if len(already.Signatures) > 0 {
		return true
	}

	image, err := os.ReadFile(imagePath)
	if err != nil {
		level.Error(m.logger).Log("msg", "failed to read personalized image from disk", "err", err)
		return false
	}
	trustCache, err := os.ReadFile(trustPath)
	if err != nil {
		level.Error(m.logger).Log("msg", "failed to read trust cache from disk", "err", err)
		return false
	}
	manifest, err := os.ReadFile(manifestPath)
	if err != nil {
		level.Error(m.logger).Log("msg", "failed to read build manifest from disk", "err", err)
		return false
	}

	progress := func(percent int) {
		level.Debug(m.logger).Log("msg", "personalized mount progress", "percent", percent)
	}
	if err := mounter.MountPersonalizedImage(image, trustCache, manifest, chipID, progress); err != nil {
		level.Error(m.logger).Log("msg", "failed to mount personalized developer image", "err", err)
		return false
	}
	return true
}

// readUniqueChipID reads UniqueChipID as an unsigned integer; if the first
// read fails (the value is sometimes only exposed to a paired session), it
// upgrades the lockdown session with a full pairing handshake and retries
// once (spec.md §4.6).
func readUniqueChipID(lockdown idevice.LockdownSession) (uint64, error) {
	chipID, err := tryReadChipID(lockdown)
	if err == nil {
		return chipID, nil
	}

	if pairErr := lockdown.StartPaired(); pairErr != nil {
		return 0, errors.Wrap(pairErr, "failed to start paired lockdown session")
	}
	return tryReadChipID(lockdown)
}

func tryReadChipID(lockdown idevice.LockdownSession) (uint64, error) {
	raw, err := lockdown.GetValue("", "UniqueChipID")
	if err != nil {
		return 0, err
	}
	switch v := raw.(type) {
	case uint64:
		return v, nil
	case int64:
		return uint64(v), nil
	case uint32:
		return uint64(v), nil
	case int:
		return uint64(v), nil
	default:
		return 0, errors.Newf("UniqueChipID has unexpected type %T", raw)
	}
}

func ensureArtifact(path, url string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	return downloadFile(url, path)
}
