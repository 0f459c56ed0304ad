package tracking

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/timhq/tim-agent-core/internal/config"
)

const defaultDatabaseFilename = "tim.db"

// DatabasePath resolves the tracking database location: $XDG_CONFIG_HOME/tim,
// else ~/.config/tim, with a Windows-specific %APPDATA%/tim (falling back
// to ~/AppData/Roaming) branch. The filename comes from TIM_DATABASE_FILENAME,
// defaulting to "tim.db".
func DatabasePath() (string, error) {
	filename := strings.TrimSpace(os.Getenv("TIM_DATABASE_FILENAME"))
	if filename == "" {
		filename = defaultDatabaseFilename
	}

	dir, err := config.GetUserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, filename), nil
}
