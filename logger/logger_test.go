package logger_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zapcore"

	"fleetcore/logger"
)

func TestConvertLevelToZapCoreLevel(t *testing.T) {
	assert.Equal(t, zapcore.DebugLevel, logger.ConvertLevelToZapCoreLevel("debug"))
	assert.Equal(t, zapcore.ErrorLevel, logger.ConvertLevelToZapCoreLevel("error"))
	assert.Equal(t, zapcore.InfoLevel, logger.ConvertLevelToZapCoreLevel("not-a-level"))
}

func TestConvertArgsToFieldsHandlesMixedTypes(t *testing.T) {
	fields := logger.ConvertArgsToFields("a string", 42, errors.New("boom"))
	assert.Len(t, fields, 3)
}

func TestInitLoggerWithOptionsLogfmtToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fleetd.log")
	logger.InitLoggerWithOptions(logger.Options{Level: "info", Format: "logfmt", File: path})

	logger.Info("hello from test", "k", "v")
	_ = logger.Logger.Sync()

	data, err := os.ReadFile(path)
	assert.NoError(t, err)
	assert.Contains(t, string(data), "hello from test")
}

func TestInitLoggerDefaultsToConsoleStdout(t *testing.T) {
	logger.InitLogger("debug")
	assert.NotNil(t, logger.Logger)
}
