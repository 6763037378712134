package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// BatchLogger manages the log file for a single generation or search batch.
// Everything written here also goes to the process logger at debug level so
// operators can follow a batch without opening the file.
type BatchLogger struct {
	batchID   string
	logFile   *os.File
	mutex     sync.Mutex
	startTime time.Time
}

var (
	currentLogger *BatchLogger
	loggerMutex   sync.Mutex
)

// StartBatchLogging initializes logging for a new batch invocation. A
// previous logger, if any, is closed first.
func StartBatchLogging(batchID string) (*BatchLogger, error) {
	loggerMutex.Lock()
	defer loggerMutex.Unlock()

	if currentLogger != nil {
		currentLogger.Close()
	}

	timestamp := time.Now().Format("20060102_150405")
	logPath := filepath.Join("batch_logs", fmt.Sprintf("batch_%s_%s.log", batchID, timestamp))

	if err := os.MkdirAll("batch_logs", 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	logFile, err := os.Create(logPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create log file: %w", err)
	}

	logger := &BatchLogger{
		batchID:   batchID,
		logFile:   logFile,
		startTime: time.Now(),
	}
	currentLogger = logger
	logger.writeHeader()

	return logger, nil
}

// GetCurrentLogger returns the active batch logger, or nil outside a batch.
func GetCurrentLogger() *BatchLogger {
	loggerMutex.Lock()
	defer loggerMutex.Unlock()
	return currentLogger
}

// Log writes a formatted message to the batch log.
func (b *BatchLogger) Log(format string, args ...interface{}) {
	if b == nil {
		return
	}

	b.mutex.Lock()
	defer b.mutex.Unlock()

	timestamp := time.Now().Format("15:04:05.000")
	elapsed := time.Since(b.startTime)
	message := fmt.Sprintf(format, args...)

	fmt.Fprintf(b.logFile, "[%s +%8s] %s\n", timestamp, elapsed.Round(time.Millisecond), message)
	log.Debug().Str("batch_id", b.batchID).Msg(message)
}

// LogSection writes a visual section separator to the batch log.
func (b *BatchLogger) LogSection(title string) {
	if b == nil {
		return
	}

	b.mutex.Lock()
	defer b.mutex.Unlock()

	fmt.Fprintf(b.logFile, "\n%s\n=== %s ===\n%s\n", strings.Repeat("=", len(title)+8), title, strings.Repeat("=", len(title)+8))
}

// LogError writes an error message to the batch log.
func (b *BatchLogger) LogError(context string, err error) {
	if b == nil {
		return
	}
	b.Log("ERROR %s: %v", context, err)
	log.Error().Err(err).Str("batch_id", b.batchID).Msg(context)
}

// Close writes the footer and closes the log file.
func (b *BatchLogger) Close() {
	if b == nil || b.logFile == nil {
		return
	}

	b.mutex.Lock()
	defer b.mutex.Unlock()

	fmt.Fprintf(b.logFile, "\n=== batch %s finished after %s ===\n", b.batchID, time.Since(b.startTime).Round(time.Millisecond))
	b.logFile.Close()
	b.logFile = nil
}

func (b *BatchLogger) writeHeader() {
	fmt.Fprintf(b.logFile, "=== batch %s started at %s ===\n\n", b.batchID, b.startTime.Format(time.RFC3339))
}
