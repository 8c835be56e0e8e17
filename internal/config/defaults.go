package config

const (
	defaultDataDir        = "~/.local/share/platescan"
	defaultLogDir         = "~/.local/share/platescan/logs"
	defaultAPIBind        = "127.0.0.1:7488"
	defaultGeminiBaseURL  = "https://generativelanguage.googleapis.com/v1beta/models"
	defaultGeminiModel    = "gemini-2.5-flash-preview-05-20"
	defaultGeminiBackend  = BackendREST
	defaultGeminiTimeout  = 20
	defaultJPEGQuality    = 75
	defaultCaptureMaxByte = 4 << 20
	defaultLogFormat      = "console"
	defaultLogLevel       = "info"
)

// Backend names accepted by gemini.backend.
const (
	BackendREST = "rest"
	BackendSDK  = "sdk"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir: defaultDataDir,
			LogDir:  defaultLogDir,
			APIBind: defaultAPIBind,
		},
		Gemini: Gemini{
			BaseURL:        defaultGeminiBaseURL,
			Model:          defaultGeminiModel,
			Backend:        defaultGeminiBackend,
			TimeoutSeconds: defaultGeminiTimeout,
		},
		Capture: Capture{
			JPEGQuality: defaultJPEGQuality,
			MaxBytes:    defaultCaptureMaxByte,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
