package processfile

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"github.com/google/renameio/v2"

	"github.com/core-tools/hsu-procset/pkg/errors"
	"github.com/core-tools/hsu-procset/pkg/logging"
)

// DefaultAppName names the PID file subdirectory
const DefaultAppName = "procset"

// ServiceContext selects the OS-appropriate PID directory
type ServiceContext string

const (
	// SystemService runs as a system service (daemon)
	SystemService ServiceContext = "system"

	// UserService runs as a user service
	UserService ServiceContext = "user"

	// SessionService runs as a session service (cleaned up on logout)
	SessionService ServiceContext = "session"
)

func ParseServiceContext(value string) (ServiceContext, error) {
	switch ServiceContext(strings.ToLower(value)) {
	case SystemService:
		return SystemService, nil
	case UserService, "":
		return UserService, nil
	case SessionService:
		return SessionService, nil
	}
	return "", errors.NewValidationError(fmt.Sprintf("unsupported service context: %q", value), nil).
		WithContext("supported_contexts", "system, user, session")
}

// ProcessFileConfig says where PID files of launched entries live
type ProcessFileConfig struct {
	// BaseDirectory overrides the OS-appropriate default
	BaseDirectory string

	ServiceContext ServiceContext

	// AppName is the subdirectory created under the base directory
	AppName string

	UseSubdirectory bool
}

// ProcessFileManager writes one <name>.pid per descriptor entry
type ProcessFileManager struct {
	config ProcessFileConfig
	logger logging.Logger
}

func NewProcessFileManager(config ProcessFileConfig, logger logging.Logger) *ProcessFileManager {
	if config.AppName == "" {
		config.AppName = DefaultAppName
	}
	if config.ServiceContext == "" {
		config.ServiceContext = UserService
	}
	return &ProcessFileManager{
		config: config,
		logger: logger,
	}
}

// PIDFilePath returns the PID file path for a descriptor entry
func (m *ProcessFileManager) PIDFilePath(name string) string {
	baseDir := m.getBaseDirectory()
	if m.config.UseSubdirectory {
		baseDir = filepath.Join(baseDir, m.config.AppName)
	}
	return filepath.Join(baseDir, name+".pid")
}

// WritePIDFile records pid for name. The file is replaced atomically so a
// reader never sees a partial PID.
func (m *ProcessFileManager) WritePIDFile(name string, pid int) error {
	path := m.PIDFilePath(name)
	m.logger.Debugf("Writing PID file, name: %s, pid: %d, path: %s", name, pid, path)

	if err := ensureDirectory(path); err != nil {
		return err
	}

	if err := renameio.WriteFile(path, []byte(fmt.Sprintf("%d\n", pid)), 0o644); err != nil {
		m.logger.Errorf("Failed to write PID file, name: %s, pid: %d, path: %s, error: %v", name, pid, path, err)
		return errors.NewIOError("failed to write PID file", err).WithContext("pid_file", path).WithContext("pid", pid)
	}
	return nil
}

// ReadPIDFile returns the recorded pid, or 0 when there is no PID file
func (m *ProcessFileManager) ReadPIDFile(name string) (int, error) {
	path := m.PIDFilePath(name)

	content, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, errors.NewIOError("failed to read PID file", err).WithContext("pid_file", path)
	}

	pidStr := strings.TrimSpace(string(content))
	pid, err := strconv.Atoi(pidStr)
	if err != nil || pid <= 0 {
		return 0, errors.NewValidationError("invalid PID in PID file", err).
			WithContext("pid_file", path).
			WithContext("content", pidStr)
	}
	return pid, nil
}

// RemovePIDFile deletes the PID file; a missing file is not an error
func (m *ProcessFileManager) RemovePIDFile(name string) error {
	path := m.PIDFilePath(name)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return errors.NewIOError("failed to remove PID file", err).WithContext("pid_file", path)
	}
	return nil
}

func (m *ProcessFileManager) getBaseDirectory() string {
	if m.config.BaseDirectory != "" {
		return m.config.BaseDirectory
	}

	switch m.config.ServiceContext {
	case SystemService:
		return systemServiceDirectory()
	case SessionService:
		return sessionServiceDirectory()
	default:
		return userServiceDirectory()
	}
}

func systemServiceDirectory() string {
	switch runtime.GOOS {
	case "windows":
		if programData := os.Getenv("PROGRAMDATA"); programData != "" {
			return programData
		}
		return "C:\\ProgramData"
	case "darwin":
		return "/var/run"
	default:
		// Modern standard is /run, with fallback to /var/run
		if _, err := os.Stat("/run"); err == nil {
			return "/run"
		}
		return "/var/run"
	}
}

func userServiceDirectory() string {
	switch runtime.GOOS {
	case "windows":
		if localAppData := os.Getenv("LOCALAPPDATA"); localAppData != "" {
			return localAppData
		}
		return os.TempDir()
	case "darwin":
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return os.TempDir()
		}
		return filepath.Join(homeDir, "Library", "Application Support")
	default:
		if runtimeDir := os.Getenv("XDG_RUNTIME_DIR"); runtimeDir != "" {
			return runtimeDir
		}
		return os.TempDir()
	}
}

func sessionServiceDirectory() string {
	if runtime.GOOS == "windows" || runtime.GOOS == "darwin" {
		return os.TempDir()
	}
	sessionDir := fmt.Sprintf("/run/user/%d", os.Getuid())
	if _, err := os.Stat(sessionDir); err == nil {
		return sessionDir
	}
	return os.TempDir()
}

func ensureDirectory(path string) error {
	dir := filepath.Dir(path)
	info, err := os.Stat(dir)
	if os.IsNotExist(err) {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errors.NewIOError("failed to create PID file directory", err).WithContext("directory", dir)
		}
		return nil
	}
	if err != nil {
		return errors.NewIOError("failed to access PID file directory", err).WithContext("directory", dir)
	}
	if !info.IsDir() {
		return errors.NewValidationError("PID file directory is not a directory", nil).WithContext("path", dir)
	}
	return nil
}
