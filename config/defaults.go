package config

const (
	defaultConfigPath       = "~/.config/printerbus/config.toml"
	systemConfigPath        = "/etc/printerbus/config.toml"
	defaultCallTimeoutMS    = 25000
	defaultSignalBuffer     = 64
	defaultPrinterService   = "nl.ultimaker.printer"
	defaultPrinterPath      = "/nl/ultimaker/printer"
	defaultPrinterInterface = "nl.ultimaker"
	defaultMetadataCacheMS  = 500
	defaultPollIntervalMS   = 100
	defaultLogLevel         = "info"
	defaultLogFormat        = "text"
)

// Default returns a Config populated with the built-in defaults.
func Default() Config {
	return Config{
		Bus: Bus{
			CallTimeoutMS: defaultCallTimeoutMS,
			SignalBuffer:  defaultSignalBuffer,
		},
		Printer: Printer{
			Service:         defaultPrinterService,
			Path:            defaultPrinterPath,
			Interface:       defaultPrinterInterface,
			MetadataCacheMS: defaultMetadataCacheMS,
		},
		Poll: Poll{
			IntervalMS: defaultPollIntervalMS,
		},
		Logging: Logging{
			Level:  defaultLogLevel,
			Format: defaultLogFormat,
		},
	}
}
