package coordinator

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/google/uuid"

	infralogger "github.com/GFZ-Centre-for-Early-Warning/caravan/infrastructure/logger"
)

const (
	diagnosticsDirPerm  = 0o755
	diagnosticsFilePerm = 0o644
)

// Diagnostics writes one log file per failed target under
// <dir>/<session id>/. A nil Diagnostics or an empty dir writes nothing.
type Diagnostics struct {
	dir    string
	logger infralogger.Logger
	now    func() time.Time
}

// NewDiagnostics returns a writer rooted at dir.
func NewDiagnostics(dir string, logger infralogger.Logger) *Diagnostics {
	return &Diagnostics{dir: dir, logger: logger, now: time.Now}
}

// SessionDir returns the directory holding a session's files.
func (d *Diagnostics) SessionDir(sessionID int64) string {
	return filepath.Join(d.dir, strconv.FormatInt(sessionID, 10))
}

// Write records err for a target. Files are named after the geocell id, or
// a random name when the target has none.
func (d *Diagnostics) Write(sessionID, geocellID int64, err error) {
	if d == nil || d.dir == "" {
		return
	}

	dir := d.SessionDir(sessionID)
	if mkErr := os.MkdirAll(dir, diagnosticsDirPerm); mkErr != nil {
		d.logger.Warn("Failed to create diagnostics directory",
			infralogger.String("dir", dir),
			infralogger.Error(mkErr),
		)
		return
	}

	name := uuid.NewString()[:10]
	if geocellID != 0 {
		name = strconv.FormatInt(geocellID, 10)
	}
	path := filepath.Join(dir, name+".log")

	body := fmt.Sprintf("%s session=%d geocell=%d\n%+v\n",
		d.now().UTC().Format(time.RFC3339), sessionID, geocellID, err)
	if wErr := os.WriteFile(path, []byte(body), diagnosticsFilePerm); wErr != nil {
		d.logger.Warn("Failed to write diagnostics file",
			infralogger.String("path", path),
			infralogger.Error(wErr),
		)
	}
}
