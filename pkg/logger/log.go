package logger

import (
	"log"

	"go.uber.org/zap"
)

// NewStdLog returns a standard library logger writing through Logger at
// info level, for libraries that only accept *log.Logger.
func NewStdLog(name string) *log.Logger {
	return zap.NewStdLog(Logger.Named(name).WithOptions(zap.AddCallerSkip(-1)))
}
