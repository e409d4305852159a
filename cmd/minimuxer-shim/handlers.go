// SPDX-License-Identifier: GPL-2.0-only

package main

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/jkcoxson/minimuxer/apps"
	"github.com/jkcoxson/minimuxer/idevice"
	"github.com/jkcoxson/minimuxer/jit"
)

// controlSurfaceMetrics counts on-demand C7/C8 operations by route and
// outcome, the HTTP-handler equivalent of the background workers'
// attempt/success counters.
type controlSurfaceMetrics struct {
	requests *prometheus.CounterVec
}

func newControlSurfaceMetrics(reg prometheus.Registerer) *controlSurfaceMetrics {
	m := &controlSurfaceMetrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "minimuxer_control_surface_requests_total",
			Help: "On-demand JIT/app/profile operations served, by route and outcome.",
		}, []string{"route", "outcome"}),
	}
	reg.MustRegister(m.requests)
	return m
}

// controlSurface wires the on-demand JIT Launcher (C7) and App & Profile
// Ops (C8) packages behind HTTP handlers, fetching a fresh device handle
// per request through locator the same way the background workers do.
type controlSurface struct {
	locator  *idevice.Locator
	logger   log.Logger
	docsRoot string
	metrics  *controlSurfaceMetrics
}

func (c *controlSurface) withDevice(w http.ResponseWriter, route string, fn func(idevice.Device) error) {
	device, err := c.locator.FirstDevice()
	if err != nil {
		level.Debug(c.logger).Log("msg", "no device for request", "err", err)
		c.observe(route, "no_device")
		http.Error(w, "no device reachable", http.StatusServiceUnavailable)
		return
	}
	defer device.Close()

	if err := fn(device); err != nil {
		level.Error(c.logger).Log("msg", "request failed", "err", err)
		c.observe(route, "error")
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	c.observe(route, "success")
	w.WriteHeader(http.StatusOK)
}

func (c *controlSurface) observe(route, outcome string) {
	if c.metrics == nil {
		return
	}
	c.metrics.requests.WithLabelValues(route, outcome).Inc()
}

func (c *controlSurface) handleJITLaunch(w http.ResponseWriter, r *http.Request) {
	appID := r.URL.Query().Get("app_id")
	if appID == "" {
		http.Error(w, "app_id is required", http.StatusBadRequest)
		return
	}
	c.withDevice(w, "jit_launch", func(device idevice.Device) error {
		return jit.LaunchByAppID(device, c.logger, appID)
	})
}

func (c *controlSurface) handleJITAttach(w http.ResponseWriter, r *http.Request) {
	pid, err := strconv.ParseUint(r.URL.Query().Get("pid"), 10, 32)
	if err != nil {
		http.Error(w, "pid must be a non-negative integer", http.StatusBadRequest)
		return
	}
	c.withDevice(w, "jit_attach", func(device idevice.Device) error {
		return jit.AttachByPID(device, c.logger, uint32(pid))
	})
}

func (c *controlSurface) handleStageAndInstall(w http.ResponseWriter, r *http.Request) {
	bundleID := r.URL.Query().Get("bundle_id")
	if bundleID == "" {
		http.Error(w, "bundle_id is required", http.StatusBadRequest)
		return
	}
	ipa, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "failed to read request body", http.StatusBadRequest)
		return
	}
	c.withDevice(w, "apps_install", func(device idevice.Device) error {
		if err := apps.StageIPA(device, c.logger, bundleID, ipa); err != nil {
			return err
		}
		return apps.InstallIPA(device, c.logger, bundleID)
	})
}

func (c *controlSurface) handleUninstall(w http.ResponseWriter, r *http.Request) {
	bundleID := r.URL.Query().Get("bundle_id")
	if bundleID == "" {
		http.Error(w, "bundle_id is required", http.StatusBadRequest)
		return
	}
	c.withDevice(w, "apps_uninstall", func(device idevice.Device) error {
		return apps.UninstallApp(device, c.logger, bundleID)
	})
}

func (c *controlSurface) handleProfileInstall(w http.ResponseWriter, r *http.Request) {
	profile, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "failed to read request body", http.StatusBadRequest)
		return
	}
	c.withDevice(w, "profiles_install", func(device idevice.Device) error {
		return apps.InstallProfile(device, c.logger, profile)
	})
}

func (c *controlSurface) handleProfileRemove(w http.ResponseWriter, r *http.Request) {
	uuid := r.URL.Query().Get("uuid")
	if uuid == "" {
		http.Error(w, "uuid is required", http.StatusBadRequest)
		return
	}
	c.withDevice(w, "profiles_remove", func(device idevice.Device) error {
		return apps.RemoveProfile(device, c.logger, uuid)
	})
}

func (c *controlSurface) handleProfileBulkRemove(w http.ResponseWriter, r *http.Request) {
	ids := r.URL.Query().Get("ids")
	if ids == "" {
		http.Error(w, "ids is required", http.StatusBadRequest)
		return
	}
	c.withDevice(w, "profiles_bulk_remove", func(device idevice.Device) error {
		return apps.RemoveProfilesMatching(device, c.logger, ids)
	})
}

func (c *controlSurface) handleProfileDump(w http.ResponseWriter, r *http.Request) {
	var dumpDir string
	c.withDevice(w, "profiles_dump", func(device idevice.Device) error {
		dir, err := apps.DumpProfiles(device, c.logger, c.docsRoot)
		dumpDir = dir
		return err
	})
	if dumpDir != "" {
		_ = json.NewEncoder(w).Encode(map[string]string{"dump_dir": dumpDir})
	}
}

func (c *controlSurface) handleFileTree(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	if path == "" {
		path = "/"
	}
	c.withDevice(w, "afc_tree", func(device idevice.Device) error {
		entry, err := apps.NewFileManager(device, c.logger).Tree(path)
		if err != nil {
			return err
		}
		return json.NewEncoder(w).Encode(entry)
	})
}

func registerControlSurface(mux *http.ServeMux, c *controlSurface) {
	mux.HandleFunc("/jit/launch", c.handleJITLaunch)
	mux.HandleFunc("/jit/attach", c.handleJITAttach)
	mux.HandleFunc("/apps/install", c.handleStageAndInstall)
	mux.HandleFunc("/apps/uninstall", c.handleUninstall)
	mux.HandleFunc("/profiles/install", c.handleProfileInstall)
	mux.HandleFunc("/profiles/remove", c.handleProfileRemove)
	mux.HandleFunc("/profiles/bulk-remove", c.handleProfileBulkRemove)
	mux.HandleFunc("/profiles/dump", c.handleProfileDump)
	mux.HandleFunc("/afc/tree", c.handleFileTree)
}
