// Package commands implements archtest CLI commands.
package commands

import (
	"io"
	"log/slog"

	"github.com/NielsdaWheelz/archtest/internal/archive"
	"github.com/NielsdaWheelz/archtest/internal/config"
	"github.com/NielsdaWheelz/archtest/internal/exec"
	"github.com/NielsdaWheelz/archtest/internal/fs"
)

// Deps holds the dependencies shared by every command.
type Deps struct {
	CR  exec.CommandRunner
	FS  fs.FS
	Env config.Env

	Logger *slog.Logger
	Stdout io.Writer
	Stderr io.Writer

	// Progress receives one line per finished job. Nil disables it.
	Progress io.Writer

	// NewStore opens the archive store. Nil uses archive.NewMinioStore.
	NewStore func(config.ArchiveConfig) (archive.Store, error)
}

func (d Deps) logger() *slog.Logger {
	if d.Logger == nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return d.Logger
}

func (d Deps) env() config.Env {
	if d.Env == nil {
		return config.OSEnv{}
	}
	return d.Env
}

func (d Deps) openStore(cfg config.ArchiveConfig) (archive.Store, error) {
	if d.NewStore != nil {
		return d.NewStore(cfg)
	}
	store, err := archive.NewMinioStore(cfg)
	if err != nil {
		return nil, err
	}
	return store, nil
}
