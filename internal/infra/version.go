package infra

// Set at build time with -ldflags "-X .../internal/infra.version=...".
var (
	version  = "dev"
	revision = "unknown"
)
