package main

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"

	"github.com/google/uuid"
)

// execGrabber shells out to the platform screenshot tool. The first
// tool found on PATH wins and is cached for the rest of the session.
type execGrabber struct {
	tool string
	args func(outFile string) []string
}

var linuxTools = []struct {
	name string
	args func(string) []string
}{
	{"grim", func(out string) []string { return []string{out} }},
	{"gnome-screenshot", func(out string) []string { return []string{"-f", out} }},
	{"scrot", func(out string) []string { return []string{"-o", out} }},
	{"import", func(out string) []string { return []string{"-window", "root", out} }},
}

func newScreenGrabber() (*execGrabber, error) {
	switch runtime.GOOS {
	case "darwin":
		if _, err := exec.LookPath("screencapture"); err != nil {
			return nil, fmt.Errorf("screencapture not found: %w", err)
		}
		return &execGrabber{
			tool: "screencapture",
			args: func(out string) []string { return []string{"-x", "-t", "png", out} },
		}, nil
	case "linux":
		for _, t := range linuxTools {
			if _, err := exec.LookPath(t.name); err == nil {
				return &execGrabber{tool: t.name, args: t.args}, nil
			}
		}
		return nil, fmt.Errorf("no screenshot tool found (tried grim, gnome-screenshot, scrot, import)")
	default:
		return nil, fmt.Errorf("screen capture not supported on %s", runtime.GOOS)
	}
}

func (g *execGrabber) Capture() ([]byte, error) {
	out := filepath.Join(os.TempDir(), "lexa-grab-"+uuid.NewString()+".png")
	defer os.Remove(out)

	cmd := exec.Command(g.tool, g.args(out)...)
	if output, err := cmd.CombinedOutput(); err != nil {
		return nil, fmt.Errorf("%s: %v: %s", g.tool, err, output)
	}
	return os.ReadFile(out)
}
