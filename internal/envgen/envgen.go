// Package envgen implements the service manager environment generator that
// publishes the generator search path as PATH.
package envgen

import (
	"io"
	"os"
	"strings"

	"github.com/nixos/nixos-init/internal/logging"
	"github.com/rs/zerolog"
)

// Generator prints PATH=<contents of PathFile> to Out.
type Generator struct {
	PathFile string
	// Kmsg receives the failure notice. It is opened for writing only and
	// never created.
	Kmsg string
	Out  io.Writer
}

// Run never fails: a generator error would abort the service manager's
// environment setup, so a missing path file only produces a kernel log line.
func (g Generator) Run() {
	data, err := os.ReadFile(g.PathFile)
	if err != nil {
		g.reportFailure(err)
		return
	}
	path := strings.TrimSuffix(string(data), "\n")
	_, _ = io.WriteString(g.Out, "PATH="+path+"\n")
}

func (g Generator) reportFailure(readErr error) {
	kmsg, err := os.OpenFile(g.Kmsg, os.O_WRONLY, 0)
	if err != nil {
		return
	}
	defer kmsg.Close()

	logger := logging.New(logging.Config{Level: zerolog.ErrorLevel, Out: kmsg, Tag: "env-generator"})
	logger.Error().Msgf("Failed to read %s: %v", g.PathFile, readErr)
}
