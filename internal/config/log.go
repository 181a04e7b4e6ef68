package config

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// SetupLogger configures the global zerolog logger.
func (c *Config) SetupLogger(f *os.File) {
	level, err := zerolog.ParseLevel(c.Log.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	var w io.Writer = f
	if c.Log.Format != "json" {
		w = ConsoleWriter(f)
	}
	log.Logger = zerolog.New(w).With().Timestamp().Logger()
}

// ConsoleWriter returns a human-readable writer, colored on terminals.
func ConsoleWriter(f *os.File) io.Writer {
	noColor := !isTerminal(f)

	w := zerolog.ConsoleWriter{Out: f, NoColor: noColor, TimeFormat: time.DateTime}

	if !noColor {
		w.FormatPrepare = func(m map[string]any) error {
			// pretty print request logs
			if sys, ok := m["sys"]; ok && sys == "http" {
				m["message"] = fmt.Sprintf("%v %-6v %v", m["status_code"], m["method"], m["path"])
				delete(m, "sys")
				delete(m, "method")
				delete(m, "status_code")
				delete(m, "path")
			}
			return nil
		}
	}

	return w
}

func isTerminal(f *os.File) bool {
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
