package ffmpeg

// OptionType is a capture behavior flag applied before the v4l2 input.
type OptionType string

const (
	OptionThreadQueue        OptionType = "thread_queue"
	OptionWallclockTimestamp OptionType = "wallclock_ts"
	OptionLowLatency         OptionType = "low_latency"
	OptionIgnoreErrors       OptionType = "ignore_err"
)

// Option documents a flag for config validation and the probe command.
type Option struct {
	Key         OptionType `json:"key"`
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Args        []string   `json:"args"`
}

// AllOptions lists every supported capture option.
var AllOptions = []Option{
	{
		Key:         OptionThreadQueue,
		Name:        "Thread queue",
		Description: "Larger input packet queue for cameras that burst frames",
		Args:        []string{"-thread_queue_size", "1024"},
	},
	{
		Key:         OptionWallclockTimestamp,
		Name:        "Wallclock timestamps",
		Description: "Stamp frames with the system clock instead of the driver clock",
		Args:        []string{"-use_wallclock_as_timestamps", "1"},
	},
	{
		Key:         OptionLowLatency,
		Name:        "Low latency",
		Description: "Disable input buffering so frames are delivered as they arrive",
		Args:        []string{"-fflags", "nobuffer", "-flags", "low_delay"},
	},
	{
		Key:         OptionIgnoreErrors,
		Name:        "Ignore decode errors",
		Description: "Keep reading when the camera sends corrupt frames",
		Args:        []string{"-err_detect", "ignore_err"},
	},
}

// LookupOption returns the option for key.
func LookupOption(key OptionType) (Option, bool) {
	for _, opt := range AllOptions {
		if opt.Key == key {
			return opt, true
		}
	}
	return Option{}, false
}

// ParseOptions converts config strings into option types, skipping unknown ones.
// The second return value lists the names that were not recognized.
func ParseOptions(names []string) ([]OptionType, []string) {
	var opts []OptionType
	var unknown []string
	for _, name := range names {
		if name == "" {
			continue
		}
		if _, ok := LookupOption(OptionType(name)); ok {
			opts = append(opts, OptionType(name))
		} else {
			unknown = append(unknown, name)
		}
	}
	return opts, unknown
}

func optionArgs(opts []OptionType) []string {
	var args []string
	for _, key := range opts {
		if opt, ok := LookupOption(key); ok {
			args = append(args, opt.Args...)
		}
	}
	return args
}
