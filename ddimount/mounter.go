// SPDX-License-Identifier: GPL-2.0-only

// Package ddimount implements the DDI Mounter (C6): a version-gated
// auto-mount loop that keeps a Developer Disk Image mounted on the device,
// downloading and caching artifacts as needed.
package ddimount

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/efficientgo/core/errors"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/jkcoxson/minimuxer/idevice"
)

const (
	retryInterval      = 5 * time.Second
	lockdownLabel      = "minimuxer-ddimount"
	developerImageType = "Developer"

	// majorVersionCutover is the iOS major version at which minimuxer
	// switches from the legacy signed-image mount to the personalized
	// mount (spec.md §4.6).
	majorVersionCutover = 17
)

// Metrics holds the Prometheus collectors the mounter updates; callers
// construct it once and register it with their own registry.
type Metrics struct {
	Attempts  *prometheus.CounterVec
	Successes prometheus.Counter
}

// NewMetrics builds a Metrics set registered under reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "minimuxer_ddimount_attempts_total",
			Help: "DDI mount attempts, by path taken.",
		}, []string{"path"}),
		Successes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "minimuxer_ddimount_success_total",
			Help: "Total times a Developer disk image was successfully mounted.",
		}),
	}
	reg.MustRegister(m.Attempts, m.Successes)
	return m
}

// Mounter drives the outer retry loop described in spec.md §4.6.
type Mounter struct {
	locator *idevice.Locator
	logger  log.Logger
	root    string
	dmgDir  string
	mounted func(bool)
	metrics *Metrics
}

// NewMounter builds a Mounter rooted at root (the caller's writable DDI
// artifact directory). mounted is called with true once a Developer image
// is observed mounted, publishing the `dmg_mounted` flag. metrics may be
// nil, in which case no Prometheus collectors are updated.
func NewMounter(locator *idevice.Locator, logger log.Logger, root string, mounted func(bool), metrics *Metrics) *Mounter {
	return &Mounter{
		locator: locator,
		logger:  logger,
		root:    root,
		dmgDir:  filepath.Join(root, "DMG"),
		mounted: mounted,
		metrics: metrics,
	}
}

// Run creates {root}/DMG if absent, then loops until a Developer image is
// mounted, sleeping retryInterval between attempts. It returns once an
// attempt confirms the image is mounted; there is no other way to stop it
// short of process exit.
func (m *Mounter) Run() {
	if err := os.MkdirAll(m.dmgDir, 0o755); err != nil {
		level.Error(m.logger).Log("msg", "failed to create DMG directory", "path", m.dmgDir, "err", err)
	}

	for {
		if m.attempt() {
			return
		}
		time.Sleep(retryInterval)
	}
}

// attempt runs a single iteration of the outer loop, returning true once a
// Developer image is confirmed mounted.
func (m *Mounter) attempt() bool {
	device, err := m.locator.FirstDevice()
	if err != nil {
		level.Debug(m.logger).Log("msg", "no device for DDI mount attempt", "err", err)
		return false
	}
	defer device.Close()

	lockdown, err := device.NewLockdownSession(lockdownLabel)
	if err != nil {
		level.Debug(m.logger).Log("msg", "failed to open lockdown session", "err", err)
		return false
	}
	defer lockdown.Close()

	productVersion, major, err := readProductVersion(lockdown)
	if err != nil {
		level.Debug(m.logger).Log("msg", "failed to read ProductVersion", "err", err)
		return false
	}

	var mounted bool
	path := "legacy"
	if major < majorVersionCutover {
		mounted = m.mountLegacy(device, productVersion)
	} else {
		path = "personalized"
		mounted = m.mountPersonalized(device, lockdown)
	}
	if m.metrics != nil {
		m.metrics.Attempts.WithLabelValues(path).Inc()
	}
	if mounted {
		m.mounted(true)
		if m.metrics != nil {
			m.metrics.Successes.Inc()
		}
		level.Info(m.logger).Log("msg", "developer disk image mounted", "product_version", productVersion)
	}
	return mounted
}

// readProductVersion reads the full dotted ProductVersion string from
// lockdown and parses its leading major-version component.
func readProductVersion(lockdown idevice.LockdownSession) (version string, major int, err error) {
	raw, err := lockdown.GetValue("", "ProductVersion")
	if err != nil {
		return "", 0, err
	}
	version, ok := raw.(string)
	if !ok || version == "" {
		return "", 0, errBadProductVersion
	}
	majorStr := version
	if idx := strings.IndexByte(version, '.'); idx >= 0 {
		majorStr = version[:idx]
	}
	major, err = strconv.Atoi(majorStr)
	if err != nil {
		return "", 0, err
	}
	return version, major, nil
}

var errBadProductVersion = errors.New("lockdown returned no usable ProductVersion")
