/*
 * MIT License
 *
 * Copyright (c) 2026 Nicolas JUHEL
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 *
 */

// Package logging is the structured-event-hook surface spec.md §9 asks for
// in place of ad-hoc printf logging: the host and peer engine never print,
// they call a Logger the embedder supplies. The default implementation
// wraps github.com/sirupsen/logrus, the same logging library the teacher
// package builds its own logger facade on top of.
package logging

import (
	"io"

	"github.com/sirupsen/logrus"
)

// Level mirrors the teacher's logger/level enumeration, trimmed to the
// subset this module's hooks actually emit.
type Level uint8

const (
	DebugLevel Level = iota
	InfoLevel
	WarnLevel
	ErrorLevel
)

func (l Level) logrus() logrus.Level {
	switch l {
	case DebugLevel:
		return logrus.DebugLevel
	case WarnLevel:
		return logrus.WarnLevel
	case ErrorLevel:
		return logrus.ErrorLevel
	default:
		return logrus.InfoLevel
	}
}

// Fields is a structured set of key/value pairs attached to one log entry:
// peer id, channel index, datagram counters, state transitions.
type Fields map[string]interface{}

// Logger is the interface the host and peer engine call. An embedder may
// provide any implementation; New returns the default logrus-backed one.
type Logger interface {
	Log(lvl Level, msg string, fields Fields)
	WithFields(fields Fields) Logger
}

// Discard is a Logger that drops every entry, used when the embedder does
// not supply one (the host must never require a sink to function).
var Discard Logger = discard{}

type discard struct{}

func (discard) Log(Level, string, Fields) {}
func (d discard) WithFields(Fields) Logger { return d }

type logrusLogger struct {
	entry *logrus.Entry
}

// New wraps an io.Writer (or io.Discard) with a logrus-backed Logger set to
// the given minimum level.
func New(w io.Writer, lvl Level) Logger {
	l := logrus.New()
	l.SetOutput(w)
	l.SetLevel(lvl.logrus())
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	return &logrusLogger{entry: logrus.NewEntry(l)}
}

func (l *logrusLogger) Log(lvl Level, msg string, fields Fields) {
	e := l.entry
	if len(fields) > 0 {
		e = e.WithFields(logrus.Fields(fields))
	}
	switch lvl {
	case DebugLevel:
		e.Debug(msg)
	case WarnLevel:
		e.Warn(msg)
	case ErrorLevel:
		e.Error(msg)
	default:
		e.Info(msg)
	}
}

func (l *logrusLogger) WithFields(fields Fields) Logger {
	return &logrusLogger{entry: l.entry.WithFields(logrus.Fields(fields))}
}
