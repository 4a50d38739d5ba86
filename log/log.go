package log

import (
	"io"
	"log"
	"os"
)

var (
	Info = newLogger(os.Stdout, "INFO ")
	Erro = newLogger(os.Stderr, "ERRO ")
	Debg = newLogger(os.Stdout, "DEBG ")
)

type Logger struct {
	*log.Logger
	out io.Writer
}

func newLogger(out io.Writer, prefix string) *Logger {
	return &Logger{
		Logger: log.New(out, prefix, log.LstdFlags|log.Lshortfile),
		out:    out,
	}
}

// On restores the logger's original output.
func (l *Logger) On() {
	l.SetOutput(l.out)
}

func (l *Logger) Off() {
	l.SetOutput(io.Discard)
}

// Enable switches the logger on or off.
func (l *Logger) Enable(on bool) {
	if on {
		l.On()

		return
	}

	l.Off()
}
