package version

// Build information set by ldflags
var (
	Version = "dev"     // -X github.com/Hierosoft/hierosoft/internal/version.Version={{.Version}}
	Commit  = "unknown" // -X github.com/Hierosoft/hierosoft/internal/version.Commit={{.Commit}}
	Date    = "unknown" // -X github.com/Hierosoft/hierosoft/internal/version.Date={{.Date}}
)
