package config

const (
	defaultConfigPath        = "~/.config/storyvoice/config.toml"
	defaultAPIBaseURL        = "http://localhost:8000"
	defaultRequestTimeout    = 30
	defaultStateDir          = "~/.local/share/storyvoice"
	defaultLogDir            = "~/.local/share/storyvoice/logs"
	defaultCaptureMaxSeconds = 600
	defaultUploadMaxBytes    = 10 * 1024 * 1024
	defaultLogFormat         = "console"
	defaultLogLevel          = "info"
	defaultCaptureBinary     = "arecord"
	defaultPlaybackBinary    = "ffplay"
	envUserID                = "STORYVOICE_USER_ID"
	envAPIBaseURL            = "STORYVOICE_API_URL"
)

var (
	defaultCaptureCommand  = []string{defaultCaptureBinary, "-q", "-f", "S16_LE", "-r", "16000", "-c", "1", "-t", "wav", "-"}
	defaultPlaybackCommand = []string{defaultPlaybackBinary, "-nodisp", "-autoexit", "-loglevel", "quiet"}
	defaultAllowedTypes    = []string{"audio/wav", "audio/mpeg", "audio/mp3"}
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		API: API{
			BaseURL:        defaultAPIBaseURL,
			RequestTimeout: defaultRequestTimeout,
		},
		Paths: Paths{
			CacheDir: defaultCacheDir(),
			StateDir: defaultStateDir,
			LogDir:   defaultLogDir,
		},
		Capture: Capture{
			Command:    append([]string(nil), defaultCaptureCommand...),
			MaxSeconds: defaultCaptureMaxSeconds,
		},
		Playback: Playback{
			Command: append([]string(nil), defaultPlaybackCommand...),
		},
		Upload: Upload{
			MaxBytes:     defaultUploadMaxBytes,
			AllowedTypes: append([]string(nil), defaultAllowedTypes...),
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
