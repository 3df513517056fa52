package logging

import (
	"io"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"
)

// TeeToFile sends the default logger to stderr and to a size-rotated file
// at path. Close the returned writer when the command exits.
func TeeToFile(path string) io.Closer {
	file := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    64,
		MaxBackups: 7,
		MaxAge:     7,
		Compress:   false,
	}
	SetOutput(io.MultiWriter(os.Stderr, file))
	return file
}
