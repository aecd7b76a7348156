package logger

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Service is attached to every entry as the "service" field.
const Service = "veledger"

// Logger is the process-wide logger. It discards everything until InitLogger runs.
var Logger = zap.NewNop()

// openSink appends to logFile, or writes to stdout when logFile is empty.
func openSink(logFile string) (zapcore.WriteSyncer, error) {
	if logFile == "" {
		return zapcore.Lock(os.Stdout), nil
	}
	file, err := os.OpenFile(logFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, err
	}
	return zapcore.AddSync(file), nil
}

// New builds a JSON logger at level writing to logFile.
func New(logFile string, level string) (*zap.Logger, error) {
	cfg := zap.NewProductionEncoderConfig()
	cfg.TimeKey = "time"
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder

	atom := zap.NewAtomicLevel()
	if err := atom.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	sink, err := openSink(logFile)
	if err != nil {
		return nil, err
	}

	core := zapcore.NewCore(zapcore.NewJSONEncoder(cfg), sink, atom)
	return zap.New(core, zap.AddCaller(), zap.Fields(zap.String("service", Service))), nil
}

// InitLogger replaces Logger with one built by New.
func InitLogger(logFile string, level string) error {
	l, err := New(logFile, level)
	if err != nil {
		return err
	}
	Logger = l
	return nil
}
