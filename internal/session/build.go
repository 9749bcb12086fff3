package session

// Задаются при сборке:
//
//	go build -ldflags "-X github.com/annel0/spawnsvc/internal/session.BuildDate=$(date +%F)"
var (
	NetworkVersion = "1"
	BuildDate      = "unknown"
	BuildTime      = "unknown"
)

// BuildInfo - сведения о сборке для /api/server
type BuildInfo struct {
	NetworkVersion string `json:"network_version"`
	BuildDate      string `json:"build_date"`
	BuildTime      string `json:"build_time"`
}

// Build возвращает сведения о текущей сборке
func Build() BuildInfo {
	return BuildInfo{
		NetworkVersion: NetworkVersion,
		BuildDate:      BuildDate,
		BuildTime:      BuildTime,
	}
}
