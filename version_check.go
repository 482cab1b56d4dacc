package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/oszuidwest/zwfm-ducker/internal/types"
	"github.com/oszuidwest/zwfm-ducker/internal/util"
	"golang.org/x/mod/semver"
)

const (
	releaseEndpoint = "https://api.github.com/repos/oszuidwest/zwfm-ducker/releases/latest"

	releasePollInterval = 24 * time.Hour
	releaseStartupDelay = 30 * time.Second // let the engine come up before touching the network
	releaseFetchTimeout = 30 * time.Second
	releaseMaxAttempts  = 3
	releaseRetryDelay   = time.Minute
)

// VersionChecker polls GitHub for the latest release tag. It is safe for
// concurrent use.
type VersionChecker struct {
	mu     sync.RWMutex
	latest string
	etag   string
	stopCh chan struct{}
}

// NewVersionChecker starts the background release poll and returns the
// checker.
func NewVersionChecker() *VersionChecker {
	vc := &VersionChecker{stopCh: make(chan struct{})}
	go vc.run()
	return vc
}

// Stop halts the background poll.
func (vc *VersionChecker) Stop() {
	close(vc.stopCh)
}

// sleep waits for d, returning false if the checker was stopped first.
func (vc *VersionChecker) sleep(d time.Duration) bool {
	select {
	case <-time.After(d):
		return true
	case <-vc.stopCh:
		return false
	}
}

func (vc *VersionChecker) run() {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("panic in version checker", "panic", r)
		}
	}()

	if !vc.sleep(releaseStartupDelay) {
		return
	}

	for {
		vc.poll()
		if !vc.sleep(releasePollInterval) {
			return
		}
	}
}

// poll runs one check cycle, retrying transient failures a few times.
func (vc *VersionChecker) poll() {
	for attempt := 1; ; attempt++ {
		retry, err := vc.fetchLatest()
		if err == nil {
			return
		}
		if !retry || attempt >= releaseMaxAttempts {
			slog.Debug("version check failed", "error", err, "attempt", attempt)
			return
		}
		if !vc.sleep(releaseRetryDelay) {
			return
		}
	}
}

type githubRelease struct {
	TagName    string `json:"tag_name"`
	Draft      bool   `json:"draft"`
	Prerelease bool   `json:"prerelease"`
}

// fetchLatest queries the release endpoint and records the newest stable
// tag. The bool reports whether a failure is worth retrying.
func (vc *VersionChecker) fetchLatest() (bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), releaseFetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, releaseEndpoint, http.NoBody)
	if err != nil {
		return false, err
	}
	req.Header.Set("Accept", "application/vnd.github.v3+json")
	req.Header.Set("User-Agent", "zwfm-ducker/"+Version)

	vc.mu.RLock()
	if vc.etag != "" {
		req.Header.Set("If-None-Match", vc.etag)
	}
	vc.mu.RUnlock()

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return true, err
	}
	defer func() {
		_ = resp.Body.Close() //nolint:errcheck // Best-effort cleanup
	}()

	switch {
	case resp.StatusCode == http.StatusOK:
		// fall through to decode
	case resp.StatusCode == http.StatusNotModified,
		resp.StatusCode == http.StatusNotFound:
		// Unchanged since last poll, or no releases published yet.
		return false, nil
	case resp.StatusCode == http.StatusForbidden,
		resp.StatusCode == http.StatusTooManyRequests,
		resp.StatusCode >= 500:
		return true, fmt.Errorf("github API status %d", resp.StatusCode)
	default:
		return false, fmt.Errorf("github API status %d", resp.StatusCode)
	}

	var release githubRelease
	if err := json.NewDecoder(resp.Body).Decode(&release); err != nil {
		return true, err
	}
	if release.Draft || release.Prerelease || release.TagName == "" {
		return false, nil
	}

	vc.mu.Lock()
	vc.latest = normalizeVersion(release.TagName)
	if etag := resp.Header.Get("ETag"); etag != "" {
		vc.etag = etag
	}
	vc.mu.Unlock()
	return false, nil
}

// Info returns the version details shown in the web UI.
func (vc *VersionChecker) Info() types.VersionInfo {
	vc.mu.RLock()
	defer vc.mu.RUnlock()

	current := normalizeVersion(Version)
	info := types.VersionInfo{
		Current:   current,
		Latest:    vc.latest,
		Commit:    Commit,
		BuildTime: util.FormatHumanTime(BuildTime),
	}
	if vc.latest != "" && current != "dev" && current != "unknown" {
		info.UpdateAvail = isNewerVersion(vc.latest, current)
	}
	return info
}

func normalizeVersion(v string) string {
	return strings.TrimPrefix(strings.TrimSpace(v), "v")
}

// isNewerVersion reports whether latest sorts after current under semver.
func isNewerVersion(latest, current string) bool {
	canon := func(v string) string {
		v = strings.TrimSpace(v)
		if !strings.HasPrefix(v, "v") {
			v = "v" + v
		}
		return v
	}
	return semver.Compare(canon(latest), canon(current)) > 0
}
