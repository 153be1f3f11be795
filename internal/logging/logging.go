// Package logging builds the plugin's logger from configuration.
package logging

import (
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// New returns a logger filtered at level, writing to stderr or, when file
// is non-empty, to a size-rotated log file at that path.
func New(level, file string) (*logrus.Logger, error) {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("parse log level %q: %w", level, err)
	}

	var out io.Writer = os.Stderr
	if file != "" {
		out = &lumberjack.Logger{
			Filename:   file,
			MaxSize:    100, // megabytes
			MaxBackups: 5,
			Compress:   true,
		}
	}

	log := logrus.New()
	log.SetLevel(lvl)
	log.SetOutput(out)
	log.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})

	return log, nil
}
