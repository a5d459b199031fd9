package preflight

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"sync"

	"cutroom/internal/config"
	"cutroom/internal/deps"
	"cutroom/internal/services"
	"cutroom/internal/timeline"
)

// Compatibility is the outcome of a platform capability check.
type Compatibility struct {
	Supported bool
	Issues    []string
}

// Summary joins the issues for display.
func (c Compatibility) Summary() string {
	if c.Supported {
		return "supported"
	}
	return strings.Join(c.Issues, "; ")
}

// Err returns a *services.CompatibilityError when unsupported.
func (c Compatibility) Err() error {
	if c.Supported {
		return nil
	}
	return &services.CompatibilityError{Issues: append([]string(nil), c.Issues...)}
}

// Checker reports whether the host can export a format.
type Checker interface {
	CheckCapabilities(ctx context.Context, format timeline.Format) Compatibility
}

// CheckerFunc adapts a function to Checker.
type CheckerFunc func(ctx context.Context, format timeline.Format) Compatibility

// CheckCapabilities calls f.
func (f CheckerFunc) CheckCapabilities(ctx context.Context, format timeline.Format) Compatibility {
	return f(ctx, format)
}

// SystemChecker inspects the local ffmpeg build and scratch directory.
// Drawing and mixing run in-process and are always available; frame
// streaming needs the encoders the format maps to.
type SystemChecker struct {
	FFmpegBinary string
	WorkDir      string
	// ListEncoders defaults to deps.ListEncoders.
	ListEncoders func(ctx context.Context, binary string) (map[string]bool, error)

	mu       sync.Mutex
	encoders map[string]bool
}

// NewSystemChecker builds a checker from configuration.
func NewSystemChecker(cfg *config.Config) *SystemChecker {
	return &SystemChecker{FFmpegBinary: cfg.FFmpegBinary(), WorkDir: cfg.Paths.WorkDir}
}

// CheckCapabilities implements Checker. The encoder listing is cached for
// the checker's lifetime.
func (c *SystemChecker) CheckCapabilities(ctx context.Context, format timeline.Format) Compatibility {
	var issues []string
	if !format.Valid() {
		issues = append(issues, fmt.Sprintf("format %q is not supported", format))
		return Compatibility{Issues: issues}
	}

	if c.WorkDir != "" {
		if res := CheckDirectoryAccess("work directory", c.WorkDir); !res.Passed {
			issues = append(issues, "scratch space unavailable: "+res.Detail)
		}
	}

	required := deps.RequiredEncoders(format)
	if len(required) > 0 {
		binary := strings.TrimSpace(c.FFmpegBinary)
		if binary == "" {
			binary = "ffmpeg"
		}
		if _, err := exec.LookPath(binary); err != nil {
			issues = append(issues, fmt.Sprintf("frame streaming requires ffmpeg (binary %q not found)", binary))
		} else {
			available, err := c.listEncoders(ctx, binary)
			if err != nil {
				issues = append(issues, fmt.Sprintf("could not list ffmpeg encoders: %v", err))
			}
			for _, name := range required {
				if err == nil && !available[name] {
					issues = append(issues, fmt.Sprintf("ffmpeg build lacks the %s encoder", name))
				}
			}
		}
	}
	return Compatibility{Supported: len(issues) == 0, Issues: issues}
}

func (c *SystemChecker) listEncoders(ctx context.Context, binary string) (map[string]bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.encoders != nil {
		return c.encoders, nil
	}
	list := c.ListEncoders
	if list == nil {
		list = deps.ListEncoders
	}
	encoders, err := list(ctx, binary)
	if err != nil {
		return nil, err
	}
	c.encoders = encoders
	return encoders, nil
}
