// SPDX-License-Identifier: GPL-2.0-only

// Package apps implements App & Profile Ops (C8): staging and installing
// IPAs over AFC and installation-proxy, provisioning-profile management
// over misagent, and a general-purpose AFC file manager, grounded on the
// original install.rs/provision.rs/afc_file_manager.rs routines.
package apps

import (
	"fmt"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"github.com/jkcoxson/minimuxer/idevice"
	"github.com/jkcoxson/minimuxer/shim"
)

const (
	afcLabel       = "minimuxer-apps-afc"
	instproxyLabel = "minimuxer-apps-instproxy"
	stagingDir     = "PublicStaging"
)

// StageIPA ensures ./PublicStaging/ and ./PublicStaging/{bundleID}/ exist
// on the device, then streams ipa to ./PublicStaging/{bundleID}/app.ipa.
func StageIPA(device idevice.Device, logger log.Logger, bundleID string, ipa []byte) error {
	afc, err := device.NewAFCClient(afcLabel)
	if err != nil {
		return shim.NewError(shim.ErrCreateAfc, err)
	}
	defer afc.Close()

	if err := ensureDir(afc, stagingDir); err != nil {
		return shim.NewError(shim.ErrRWAfc, err)
	}
	bundleDir := fmt.Sprintf("%s/%s", stagingDir, bundleID)
	if err := ensureDir(afc, bundleDir); err != nil {
		return shim.NewError(shim.ErrRWAfc, err)
	}

	path := fmt.Sprintf("%s/app.ipa", bundleDir)
	file, err := afc.OpenWrite(path)
	if err != nil {
		return shim.NewError(shim.ErrRWAfc, err)
	}
	defer file.Close()

	if err := file.Write(ipa); err != nil {
		return shim.NewError(shim.ErrRWAfc, err)
	}

	level.Info(logger).Log("msg", "staged ipa", "bundle_id", bundleID, "path", path, "bytes", len(ipa))
	return nil
}

// ensureDir stats path and creates it only if the stat fails, matching
// the original's "check, then mkdir, then re-check" staging sequence.
func ensureDir(afc idevice.AFCClient, path string) error {
	if _, err := afc.Stat(path); err == nil {
		return nil
	}
	if err := afc.MkDir(path); err != nil {
		return err
	}
	_, err := afc.Stat(path)
	return err
}

// InstallIPA invokes the installation-proxy install call against the IPA
// staged by StageIPA, tagging it with a CFBundleIdentifier client option.
func InstallIPA(device idevice.Device, logger log.Logger, bundleID string) error {
	instproxy, err := device.NewInstallationProxy(instproxyLabel)
	if err != nil {
		return shim.NewError(shim.ErrCreateInstproxy, err)
	}
	defer instproxy.Close()

	path := fmt.Sprintf("%s/%s/app.ipa", stagingDir, bundleID)
	opts := map[string]interface{}{"CFBundleIdentifier": bundleID}
	if err := instproxy.Install(path, opts); err != nil {
		return shim.NewError(shim.ErrInstallApp, err)
	}

	level.Info(logger).Log("msg", "installed app", "bundle_id", bundleID)
	return nil
}

// UninstallApp removes an already-installed app by bundle id.
func UninstallApp(device idevice.Device, logger log.Logger, bundleID string) error {
	instproxy, err := device.NewInstallationProxy(instproxyLabel)
	if err != nil {
		return shim.NewError(shim.ErrCreateInstproxy, err)
	}
	defer instproxy.Close()

	if err := instproxy.Uninstall(bundleID); err != nil {
		return shim.NewError(shim.ErrUninstallApp, err)
	}

	level.Info(logger).Log("msg", "uninstalled app", "bundle_id", bundleID)
	return nil
}
