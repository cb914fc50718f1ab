// Package launchd installs a macOS launch agent that runs `tubewatch check`
// on a fixed interval, for users who prefer launchd scheduling over the
// long-running watch loop.
package launchd

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
)

// DefaultLabel identifies the tubewatch launch agent.
const DefaultLabel = "com.tubewatch.agent"

// InstallOptions configures the agent to install.
type InstallOptions struct {
	Label           string
	IntervalMinutes int
	ProgramPath     string   // absolute path to the tubewatch binary
	ProgramArgs     []string // args after ProgramPath
	StdOutPath      string
	StdErrPath      string
	PlistPath       string // optional custom plist path
}

// DefaultAgentPath returns ~/Library/LaunchAgents/<label>.plist.
func DefaultAgentPath(label string) (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, "Library", "LaunchAgents", label+".plist"), nil
}

// BuildPlist renders a StartInterval launch agent plist.
func BuildPlist(opt InstallOptions) ([]byte, error) {
	if opt.Label == "" {
		return nil, errors.New("label required")
	}
	if opt.ProgramPath == "" {
		return nil, errors.New("program path required")
	}
	if opt.IntervalMinutes <= 0 {
		opt.IntervalMinutes = 15
	}
	if opt.StdOutPath == "" || opt.StdErrPath == "" {
		if home, err := os.UserHomeDir(); err == nil {
			def := filepath.Join(home, "Library", "Logs", "Tubewatch", "agent.log")
			if opt.StdOutPath == "" {
				opt.StdOutPath = def
			}
			if opt.StdErrPath == "" {
				opt.StdErrPath = def
			}
		}
	}

	escape := func(s string) string {
		var b bytes.Buffer
		xml.EscapeText(&b, []byte(s))
		return b.String()
	}
	args := append([]string{opt.ProgramPath}, opt.ProgramArgs...)

	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	buf.WriteString("<!DOCTYPE plist PUBLIC \"-//Apple//DTD PLIST 1.0//EN\" \"http://www.apple.com/DTDs/PropertyList-1.0.dtd\">\n")
	buf.WriteString("<plist version=\"1.0\">\n  <dict>\n")
	buf.WriteString("    <key>Label</key>\n    <string>")
	buf.WriteString(escape(opt.Label))
	buf.WriteString("</string>\n")
	buf.WriteString("    <key>ProgramArguments</key>\n    <array>\n")
	for _, a := range args {
		buf.WriteString("      <string>")
		buf.WriteString(escape(a))
		buf.WriteString("</string>\n")
	}
	buf.WriteString("    </array>\n")
	buf.WriteString("    <key>StartInterval</key>\n    <integer>")
	buf.WriteString(strconv.Itoa(opt.IntervalMinutes * 60))
	buf.WriteString("</integer>\n")
	buf.WriteString("    <key>RunAtLoad</key>\n    <true/>\n")
	buf.WriteString("    <key>StandardOutPath</key>\n    <string>")
	buf.WriteString(escape(opt.StdOutPath))
	buf.WriteString("</string>\n")
	buf.WriteString("    <key>StandardErrorPath</key>\n    <string>")
	buf.WriteString(escape(opt.StdErrPath))
	buf.WriteString("</string>\n")
	buf.WriteString("  </dict>\n</plist>\n")
	return buf.Bytes(), nil
}

// Install writes the plist and loads it via launchctl.
func Install(opt InstallOptions) (string, error) {
	if runtime.GOOS != "darwin" {
		return "", errors.New("launchd is only available on macOS")
	}
	if opt.Label == "" {
		opt.Label = DefaultLabel
	}
	plistPath := opt.PlistPath
	if strings.TrimSpace(plistPath) == "" {
		var err error
		plistPath, err = DefaultAgentPath(opt.Label)
		if err != nil {
			return "", err
		}
	}
	data, err := BuildPlist(opt)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(plistPath), 0o755); err != nil {
		return "", err
	}
	_ = os.MkdirAll(filepath.Dir(opt.StdOutPath), 0o755)
	if err := os.WriteFile(plistPath, data, 0o644); err != nil {
		return "", err
	}

	lctl := launchctlPath()
	if lctl == "" {
		return plistPath, errors.New("launchctl not found in /bin, /usr/bin, or PATH")
	}

	// Prefer modern bootstrap under the user GUI domain, fall back to the
	// legacy load -w on older systems.
	domain := fmt.Sprintf("gui/%d", os.Getuid())
	if err := exec.Command(lctl, "bootstrap", domain, plistPath).Run(); err != nil {
		if err2 := exec.Command(lctl, "load", "-w", plistPath).Run(); err2 != nil {
			return plistPath, fmt.Errorf("launchctl bootstrap/load failed: %v / %v", err, err2)
		}
	} else {
		_ = exec.Command(lctl, "enable", domain+"/"+opt.Label).Run()
	}
	return plistPath, nil
}

// Uninstall unloads the agent and removes its plist.
func Uninstall(label, plistPath string) error {
	if runtime.GOOS != "darwin" {
		return errors.New("launchd is only available on macOS")
	}
	if label == "" {
		label = DefaultLabel
	}
	if strings.TrimSpace(plistPath) == "" {
		var err error
		plistPath, err = DefaultAgentPath(label)
		if err != nil {
			return err
		}
	}
	lctl := launchctlPath()
	if lctl == "" {
		return errors.New("launchctl not found")
	}
	domain := fmt.Sprintf("gui/%d", os.Getuid())
	if err := exec.Command(lctl, "bootout", domain, plistPath).Run(); err != nil {
		_ = exec.Command(lctl, "unload", "-w", plistPath).Run()
	}
	if err := os.Remove(plistPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// Status reports whether the agent is currently loaded for this user.
func Status(label string) (bool, error) {
	if runtime.GOOS != "darwin" {
		return false, errors.New("launchd is only available on macOS")
	}
	if label == "" {
		label = DefaultLabel
	}
	lctl := launchctlPath()
	if lctl == "" {
		return false, errors.New("launchctl not found")
	}
	out, err := exec.Command(lctl, "list").Output()
	if err != nil {
		return false, fmt.Errorf("launchctl list: %w", err)
	}
	for _, line := range strings.Split(string(out), "\n") {
		if strings.HasSuffix(strings.TrimSpace(line), label) {
			return true, nil
		}
	}
	return false, nil
}

func launchctlPath() string {
	for _, c := range []string{"/bin/launchctl", "/usr/bin/launchctl"} {
		if _, err := os.Stat(c); err == nil {
			return c
		}
	}
	if p, err := exec.LookPath("launchctl"); err == nil {
		return p
	}
	return ""
}
