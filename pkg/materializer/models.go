package materializer

import (
	"TargetFetcher/internal/logging"
	"net/http"
)

// StagingSuffix is appended to a file destination while its body is being
// written. The staging file is renamed over the destination only once the
// download is complete.
const StagingSuffix = ".downloading"

type Materializer struct {
	OwnerUID   int
	HttpClient *http.Client
	Logger     *logging.Logger

	// Elevated reports whether the process may chown to an arbitrary user.
	// It is queried at every ownership decision.
	Elevated func() bool
	// Chown changes the owning user of path and keeps its group.
	Chown func(path string, uid int) error
}
