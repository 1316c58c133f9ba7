// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package update replaces the running binary with the latest GitHub
// release.
package update

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/creativeprojects/go-selfupdate"
)

// ErrSelfUpdateUnsupported is returned when the current environment cannot
// replace its own binary.
var ErrSelfUpdateUnsupported = errors.New("self-update is not supported in this environment")

type Config struct {
	Repository string
	Version    string
}

type Updater struct {
	config Config
}

func NewUpdater(config Config) *Updater {
	return &Updater{
		config: config,
	}
}

// CheckSupported reports whether the running binary can replace itself.
// Containers update by pulling a new image tag, and Windows cannot swap a
// running executable.
func (u *Updater) CheckSupported() error {
	if !isSelfUpdateSupportedPlatform() {
		return fmt.Errorf("%w: not available on %s", ErrSelfUpdateUnsupported, runtime.GOOS)
	}
	if isRunningInContainer() {
		return fmt.Errorf("%w: pull a newer image instead", ErrSelfUpdateUnsupported)
	}
	return nil
}

// Run downloads and installs the latest release when it is newer than the
// running version. It returns the installed version, or "" when the binary
// is already current.
func (u *Updater) Run(ctx context.Context) (string, error) {
	if _, err := semver.NewVersion(u.config.Version); err != nil {
		return "", fmt.Errorf("parse current version %q: %w", u.config.Version, err)
	}

	latest, found, err := selfupdate.DetectLatest(ctx, selfupdate.ParseSlug(u.config.Repository))
	if err != nil {
		return "", fmt.Errorf("detect latest release: %w", err)
	}
	if !found {
		return "", fmt.Errorf("no release found for %s", u.config.Repository)
	}

	if latest.LessOrEqual(u.config.Version) {
		return "", nil
	}

	exe, err := selfupdate.ExecutablePath()
	if err != nil {
		return "", fmt.Errorf("locate executable: %w", err)
	}

	if err := selfupdate.UpdateTo(ctx, latest.AssetURL, latest.AssetName, exe); err != nil {
		return "", fmt.Errorf("update binary: %w", err)
	}

	return latest.Version(), nil
}

// isRunningInContainer checks common container markers: /.dockerenv
// (Docker), /run/.containerenv (Podman) and well-known cgroup names.
func isRunningInContainer() bool {
	if _, err := os.Stat("/.dockerenv"); err == nil {
		return true
	}
	if _, err := os.Stat("/run/.containerenv"); err == nil {
		return true
	}

	data, err := os.ReadFile("/proc/1/cgroup")
	if err != nil {
		return false
	}

	content := string(data)
	for _, indicator := range []string{"docker", "kubepods", "containerd", "libpod"} {
		if strings.Contains(content, indicator) {
			return true
		}
	}
	return false
}

// Windows cannot replace a running executable in place.
func isSelfUpdateSupportedPlatform() bool {
	return runtime.GOOS != "windows"
}
