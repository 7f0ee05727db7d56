package whisper

// Config holds whisper.cpp configuration.
type Config struct {
	ModelPath string
	Language  string // ISO 639-1, "auto" to detect
	Threads   int    // <= 0 keeps the library default
}

// DefaultConfig returns a Korean configuration with no model path.
func DefaultConfig() Config {
	return Config{Language: "ko"}
}

func (c Config) language() string {
	if c.Language == "" {
		return "auto"
	}
	return c.Language
}
