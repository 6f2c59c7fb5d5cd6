package led

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

const sysfsLEDPath = "/sys/class/leds"

// sysfs implements Controller using the Linux sysfs LED interface
type sysfs struct {
	root string
	leds map[string]string // logical name -> sysfs directory name
}

func newSysfs(root string, leds map[string]string) *sysfs {
	if root == "" {
		root = sysfsLEDPath
	}
	return &sysfs{root: root, leds: leds}
}

// Set writes the trigger and brightness files for the mapped LED.
func (s *sysfs) Set(ledType string, enabled bool, pattern string) error {
	sysfsName, ok := s.leds[ledType]
	if !ok {
		return fmt.Errorf("LED type %q not supported on this board", ledType)
	}

	ledPath := filepath.Join(s.root, sysfsName)
	if _, err := os.Stat(ledPath); err != nil {
		return fmt.Errorf("LED %q not found at %s: %w", ledType, ledPath, err)
	}

	if pattern != "" {
		// Solid means manual control; the brightness write below turns it on
		trigger := pattern
		switch pattern {
		case PatternSolid:
			trigger = "none"
		case PatternBlink:
			trigger = "timer"
		}
		if err := writeAttr(ledPath, "trigger", trigger); err != nil {
			return fmt.Errorf("set LED trigger: %w", err)
		}
		if pattern != PatternSolid && enabled {
			return nil
		}
	}

	brightness := "0"
	if enabled {
		brightness = "1"
	}
	if err := writeAttr(ledPath, "brightness", brightness); err != nil {
		return fmt.Errorf("set LED brightness: %w", err)
	}
	return nil
}

func writeAttr(ledPath, name, value string) error {
	return os.WriteFile(filepath.Join(ledPath, name), []byte(value), 0o644)
}

func (s *sysfs) Available() []string {
	types := make([]string, 0, len(s.leds))
	for ledType := range s.leds {
		types = append(types, ledType)
	}
	sort.Strings(types)
	return types
}

func (s *sysfs) Patterns() []string {
	return []string{PatternSolid, PatternBlink, "heartbeat"}
}
