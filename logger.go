package relorm

import (
	"fmt"

	"go.uber.org/zap"
)

type LogLevel int

const (
	LogLevelDev LogLevel = iota + 1
	LogLevelProd
)

// Logger is what connections and sessions log through. The zero
// LogLevel logs nothing.
type Logger interface {
	Debugf(format string, args ...any)
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
}

// zapLogger names every entry "relorm"; zap writes the level itself.
type zapLogger struct {
	*zap.SugaredLogger
}

// NewZapLogger logs through an existing zap logger.
func NewZapLogger(l *zap.Logger) Logger {
	return &zapLogger{l.Named("relorm").Sugar()}
}

func newZapLogger(level LogLevel) (*zapLogger, error) {
	var config zap.Config
	switch level {
	case 0:
		return &zapLogger{zap.NewNop().Sugar()}, nil
	case LogLevelDev:
		config = zap.NewDevelopmentConfig()
	case LogLevelProd:
		config = zap.NewProductionConfig()
	default:
		return nil, fmt.Errorf("relorm: unknown log level %d", level)
	}
	l, err := config.Build()
	if err != nil {
		return nil, err
	}
	return &zapLogger{l.Named("relorm").Sugar()}, nil
}
