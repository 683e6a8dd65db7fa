package bootstrap

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// InitLogger initializes the zap logger with colored console output at
// the given level ("debug", "info", "warn", "error").
func InitLogger(level string) (*zap.Logger, *zap.SugaredLogger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	encoderConfig := zap.NewDevelopmentEncoderConfig()
	encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderConfig.EncodeCaller = zapcore.ShortCallerEncoder

	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(encoderConfig),
		zapcore.AddSync(os.Stdout),
		lvl,
	)

	logger := zap.New(core, zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel))
	return logger, logger.Sugar(), nil
}

// EnsureInstanceDir creates the private instance directory and verifies
// it is writable. This is a pre-flight check before any instance
// configuration is read or generated.
func EnsureInstanceDir(dir string) (string, error) {
	absPath, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("failed to resolve absolute path for %s: %w", dir, err)
	}

	if err := os.MkdirAll(absPath, 0o755); err != nil {
		return "", fmt.Errorf("failed to create instance directory %s: %w", absPath, err)
	}

	testFile := filepath.Join(absPath, ".s4_write_test")
	if err := os.WriteFile(testFile, []byte("test"), 0o644); err != nil {
		return "", fmt.Errorf("instance directory %s is not writable: %w", absPath, err)
	}
	_ = os.Remove(testFile)

	return absPath, nil
}
