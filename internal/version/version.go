package version

// These variables are set at build time via -ldflags
// Example: go build -ldflags "-X github.com/pysugar/codex-status-fleet/internal/version.Version=v0.1.5"
var (
	// Version is the semantic version of the refresher binary
	Version = "dev"

	// Commit is the git commit hash
	Commit = "none"

	// BuildTime is the timestamp of the build
	BuildTime = "unknown"
)

const (
	// ClientName identifies the refresher to upstream providers and the codex app-server.
	ClientName = "codex-status-fleet-refresher"
	// ClientVersion is the protocol-facing client version sent in clientInfo.
	ClientVersion = "0.1.0"
)

// UserAgent returns the User-Agent header value used for outbound probes.
func UserAgent() string {
	return ClientName + "/" + ClientVersion
}
