package led

import (
	"os"
	"strings"

	"github.com/smazurov/facegate/internal/logging"
)

const deviceTreeModelPath = "/proc/device-tree/model"

// New creates an LED controller for the recording indicator.
// When sysfsName is set it is used directly; otherwise the board is detected
// from the device tree. Falls back to a no-op controller when no LED is known.
func New(logger logging.Logger, sysfsName string) Controller {
	if sysfsName != "" {
		logger.Info("Using configured LED", "sysfs_name", sysfsName)
		return newSysfs("", map[string]string{Indicator: sysfsName})
	}

	boardModel := detectBoard(deviceTreeModelPath)
	name := boardIndicator(boardModel)
	if name == "" {
		logger.Info("No LED support detected, using no-op controller", "board_model", boardModel)
		return newNoop(logger)
	}

	logger.Info("Detected board with indicator LED", "board_model", boardModel, "sysfs_name", name)
	return newSysfs("", map[string]string{Indicator: name})
}

// boardIndicator returns the sysfs LED used as recording indicator on known boards.
func boardIndicator(model string) string {
	switch {
	case strings.Contains(model, "NanoPC-T6"):
		return "usr_led"
	case strings.Contains(model, "Orange Pi"):
		return "blue_led"
	case strings.Contains(model, "Raspberry Pi"):
		return "ACT"
	default:
		return ""
	}
}

// detectBoard reads the device tree model to identify the board.
func detectBoard(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return "unknown"
	}
	// Device tree strings are NUL terminated
	return strings.TrimRight(string(data), "\x00")
}
