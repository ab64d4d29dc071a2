package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/viper"

	"github.com/loykin/apidesk/cmd/apidesk/config"
	"github.com/loykin/apidesk/internal/common"
	"github.com/loykin/apidesk/internal/workspace"
)

// loadConfig reads the config file named by --config. A missing file at the
// default location yields the built-in defaults.
func loadConfig(v *viper.Viper) (*config.ConfigDoc, error) {
	doc := &config.ConfigDoc{}
	path := v.GetString("config")
	if path != "" {
		err := doc.Load(path)
		switch {
		case err == nil:
		case errors.Is(err, os.ErrNotExist) && path == defaultConfigPath:
			common.GetLogger().Debug("no config file, using defaults", "path", path)
		default:
			return nil, fmt.Errorf("load config: %w", err)
		}
	}
	if lvl := v.GetString("log_level"); lvl != "" {
		doc.Logging.Level = lvl
	}
	if addr := v.GetString("addr"); addr != "" {
		doc.Server.Addr = addr
	}
	if err := doc.SetupLogging(); err != nil {
		return nil, err
	}
	return doc, nil
}

// withWorkspace opens the configured workspace, runs fn and closes it, so
// pending writes are persisted before the command returns.
func withWorkspace(ctx context.Context, fn func(*config.ConfigDoc, *workspace.Workspace) error) (err error) {
	doc, err := loadConfig(viper.GetViper())
	if err != nil {
		return err
	}
	cfg, err := doc.Workspace(ctx)
	if err != nil {
		return err
	}
	ws, err := workspace.Open(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := ws.Close(context.WithoutCancel(ctx)); cerr != nil {
			err = errors.Join(err, fmt.Errorf("close workspace: %w", cerr))
		}
	}()
	return fn(doc, ws)
}
