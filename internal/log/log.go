// SPDX-License-Identifier: Apache-2.0

// Package log is the structured-logging façade used by every package under
// frame/. The CLI layer logs through it too, so a warning logged while
// decoding a library's unwind metadata looks exactly like one logged by
// the command-line tool that drives it.
package log

import (
	"io"

	"github.com/sirupsen/logrus"
)

var logger = newLogger()

func newLogger() *logrus.Logger {
	l := logrus.New()
	l.SetFormatter(&logrus.TextFormatter{
		DisableColors:   true,
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02T15:04:05.000000000Z07:00",
		DisableSorting:  true,
	})
	l.SetLevel(logrus.InfoLevel)
	return l
}

// SetLevel adjusts the verbosity of the package-level logger. Tests and the
// CLI's -debug flag are the two expected callers.
func SetLevel(level logrus.Level) {
	logger.SetLevel(level)
}

// SetOutput redirects the package-level logger, mainly so tests can assert
// on warning counts without writing to stderr.
func SetOutput(w io.Writer) {
	logger.SetOutput(w)
}

// Warnf logs a per-image warning. image is always included as a field so
// a malformed library never gets attributed to the wrong caller when many
// images are parsed concurrently.
func Warnf(image, format string, args ...any) {
	logger.WithField("image", image).Warnf(format, args...)
}

// Debugf logs low-volume diagnostic detail not surfaced as a warning.
func Debugf(image, format string, args ...any) {
	logger.WithField("image", image).Debugf(format, args...)
}

// Errorf logs a top-level, non-image-scoped error, for the CLI layer's own
// failures (a bad flag, an unreadable file) rather than anything found
// while decoding a specific image's unwind metadata.
func Errorf(format string, args ...any) {
	logger.Errorf(format, args...)
}
