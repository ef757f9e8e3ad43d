package version

import "fmt"

// ServiceName — имя сервиса в логах, health и ответе GET /.
const ServiceName = "order-store"

// Значения подставляются при сборке через -ldflags "-X .../internal/version.version=...".
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func GetVersion() string { return version }

func GetCommit() string { return commit }

func GetDate() string { return date }

// String собирает строку для стартового лога сервиса.
func String() string {
	return fmt.Sprintf("%s version=%s commit=%s date=%s", ServiceName, version, commit, date)
}
