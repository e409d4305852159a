// SPDX-License-Identifier: GPL-2.0-only

package ddimount

import (
	"archive/zip"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/efficientgo/core/errors"
	"github.com/go-kit/log/level"

	"github.com/jkcoxson/minimuxer/idevice"
)

// versionsDictionaryURL maps iOS versions to Developer Disk Image zip URLs.
// This is a third-party community index, not an Apple endpoint; nothing in
// the example pack ships a DDI index of its own.
const versionsDictionaryURL = "https://raw.githubusercontent.com/jkcoxson/JitStreamer/master/versions.json"

// mountLegacy implements the iOS <17 path of spec.md §4.6: look up an
// already-mounted Developer image first, then download/extract/upload/mount
// if needed. It returns true once a Developer image is confirmed mounted.
func (m *Mounter) mountLegacy(device idevice.Device, productVersion string) bool {
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

	dmgPath, err := m.ensureLegacyImage(productVersion)
	if err != nil {
		level.Error(m.logger).Log("msg", "failed to obtain developer disk image", "version", productVersion, "err", err)
		return false
	}
	sigPath := dmgPath + ".signature"

	if err := mounter.UploadImage(dmgPath, developerImageType, sigPath); err != nil {
		level.Error(m.logger).Log("msg", "failed to upload developer disk image", "err", err)
		return false
	}
	if err := mounter.MountImage(dmgPath, developerImageType, sigPath); err != nil {
		level.Error(m.logger).Log("msg", "failed to mount developer disk image", "err", err)
		return false
	}
	return true
}

// ensureLegacyImage returns the path to {root}/DMG/{version}.dmg, downloading
// and extracting it from the community zip index first if it's not already
// present. A missing image triggers a full purge-and-redownload of the DMG
// directory, per spec.md §4.6.
func (m *Mounter) ensureLegacyImage(version string) (string, error) {
	dmgPath := filepath.Join(m.dmgDir, version+".dmg")
	if _, err := os.Stat(dmgPath); err == nil {
		return dmgPath, nil
	}

	if err := os.RemoveAll(m.dmgDir); err != nil {
		return "", errors.Wrap(err, "failed to purge stale DMG directory")
	}
	if err := os.MkdirAll(m.dmgDir, 0o755); err != nil {
		return "", errors.Wrap(err, "failed to recreate DMG directory")
	}

	url, err := lookupDMGZipURL(version)
	if err != nil {
		return "", err
	}

	zipPath := filepath.Join(m.dmgDir, "dmg.zip")
	if err := downloadFile(url, zipPath); err != nil {
		return "", errors.Wrap(err, "failed to download developer disk image zip")
	}
	defer os.Remove(zipPath)

	tmpPath := filepath.Join(m.dmgDir, "tmp")
	if err := extractZip(zipPath, tmpPath); err != nil {
		return "", errors.Wrap(err, "failed to extract developer disk image zip")
	}
	defer os.RemoveAll(tmpPath)

	extractedDir, err := findExtractedImageDir(tmpPath)
	if err != nil {
		return "", err
	}

	if err := os.Rename(filepath.Join(extractedDir, "DeveloperDiskImage.dmg"), dmgPath); err != nil {
		return "", errors.Wrap(err, "failed to move developer disk image into place")
	}
	if err := os.Rename(filepath.Join(extractedDir, "DeveloperDiskImage.dmg.signature"), dmgPath+".signature"); err != nil {
		return "", errors.Wrap(err, "failed to move developer disk image signature into place")
	}

	level.Info(m.logger).Log("msg", "downloaded and extracted developer disk image", "version", version)
	return dmgPath, nil
}

func lookupDMGZipURL(version string) (string, error) {
	resp, err := http.Get(versionsDictionaryURL)
	if err != nil {
		return "", errors.Wrap(err, "failed to download versions dictionary")
	}
	defer resp.Body.Close()

	var versions map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&versions); err != nil {
		return "", errors.Wrap(err, "failed to parse versions dictionary")
	}

	url, ok := versions[version]
	if !ok || url == "" {
		return "", errors.Newf("no developer disk image known for iOS %s", version)
	}
	return url, nil
}

func downloadFile(url, destPath string) error {
	resp, err := http.Get(url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	out, err := os.Create(destPath)
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, resp.Body)
	return err
}

func extractZip(zipPath, destDir string) error {
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return err
	}
	r, err := zip.OpenReader(zipPath)
	if err != nil {
		return err
	}
	defer r.Close()

	for _, f := range r.File {
		target := filepath.Join(destDir, f.Name)
		if !strings.HasPrefix(target, filepath.Clean(destDir)+string(os.PathSeparator)) {
			return errors.Newf("zip entry %q escapes extraction directory", f.Name)
		}
		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
			continue
		}
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return err
		}
		if err := extractZipEntry(f, target); err != nil {
			return err
		}
	}
	return nil
}

func extractZipEntry(f *zip.File, target string) error {
	src, err := f.Open()
	if err != nil {
		return err
	}
	defer src.Close()

	dst, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, f.Mode())
	if err != nil {
		return err
	}
	defer dst.Close()

	_, err = io.Copy(dst, src)
	return err
}

// findExtractedImageDir returns the one subdirectory of tmpPath that isn't
// the zip's __MACOSX resource-fork noise.
func findExtractedImageDir(tmpPath string) (string, error) {
	entries, err := os.ReadDir(tmpPath)
	if err != nil {
		return "", errors.Wrap(err, "failed to read extracted zip contents")
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		if strings.Contains(entry.Name(), "__MACOSX") {
			continue
		}
		return filepath.Join(tmpPath, entry.Name()), nil
	}
	return "", errors.New("extracted zip contained no usable image directory")
}
