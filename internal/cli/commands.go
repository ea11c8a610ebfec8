// Copyright 2023 Chainguard, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/chainguard-dev/clog"
	"github.com/chainguard-dev/clog/slag"
	charmlog "github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"sigs.k8s.io/release-utils/version"

	"chainguard.dev/enginefs/pkg/config"
	"chainguard.dev/enginefs/pkg/engine"
	"chainguard.dev/enginefs/pkg/log"
)

// rootOptions holds the flags shared by every command.
type rootOptions struct {
	workDir    string
	configPath string
	envFile    string
	logPolicy  []string
	level      slag.Level
}

func defaultConfigPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "enginefs", "config.yaml")
}

func New() *cobra.Command {
	opts := &rootOptions{level: slag.Level(slog.LevelInfo)}

	cmd := &cobra.Command{
		Use:               "enginefs",
		Short:             "Inspect files through native and mounted file engines",
		DisableAutoGenTag: true,
		SilenceUsage:      true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if opts.workDir != "" {
				if err := os.Chdir(opts.workDir); err != nil {
					return fmt.Errorf("failed to change dir to %s: %w", opts.workDir, err)
				}
			}
			if err := setupLogging(opts); err != nil {
				return err
			}
			explicit := cmd.Flags().Changed("config")
			_, err := setup(cmd.Context(), opts, explicit, engine.DefaultSearchRoots(), engine.DefaultRegistry())
			return err
		},
	}

	cmd.AddCommand(walkCmd())
	cmd.AddCommand(statCmd())
	cmd.AddCommand(canonicalCmd())
	cmd.AddCommand(cleanCmd())
	cmd.AddCommand(catCmd())
	cmd.AddCommand(searchPathsCmd())
	cmd.AddCommand(version.Version())

	cmd.PersistentFlags().StringVarP(&opts.workDir, "workdir", "C", "", "working dir (default is current dir where executed)")
	cmd.PersistentFlags().StringVar(&opts.configPath, "config", defaultConfigPath(), "path to the mount configuration (YAML, or INI with an .ini extension)")
	cmd.PersistentFlags().StringVar(&opts.envFile, "env-file", "", "dotenv file with "+config.EnvPrefix+"* search path variables")
	cmd.PersistentFlags().StringSliceVar(&opts.logPolicy, "log-policy", []string{}, "logging policy to use")
	cmd.PersistentFlags().Var(&opts.level, "log-level", "log level (e.g. debug, info, warn, error)")
	return cmd
}

func setupLogging(opts *rootOptions) error {
	if len(opts.logPolicy) == 0 {
		slog.SetDefault(slog.New(charmlog.NewWithOptions(os.Stderr, charmlog.Options{
			ReportTimestamp: true,
			Level:           charmlog.Level(opts.level),
		})))
		return nil
	}
	h, err := log.Handler(opts.logPolicy, slog.Level(opts.level))
	if err != nil {
		return fmt.Errorf("invalid logging policy: %w", err)
	}
	slog.SetDefault(slog.New(h))
	return nil
}

// setup loads the configuration, overlays the environment and installs the
// result into roots and reg. A missing configuration file is only an error
// when it was named explicitly.
func setup(ctx context.Context, opts *rootOptions, explicit bool, roots *engine.SearchRoots, reg *engine.Registry) ([]engine.Factory, error) {
	log := clog.FromContext(ctx)

	cfg := &config.Config{}
	if opts.configPath != "" {
		loaded, err := config.Load(opts.configPath)
		switch {
		case err == nil:
			cfg = loaded
			log.Debugf("loaded configuration %s", opts.configPath)
		case errors.Is(err, config.ErrConfigNotFound) && !explicit:
			log.Debugf("no configuration at %s", opts.configPath)
		default:
			return nil, err
		}
	}

	cfg.ApplyEnv(os.Environ())
	if opts.envFile != "" {
		if err := cfg.ApplyEnvFile(opts.envFile); err != nil {
			return nil, err
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg.Apply(ctx, roots, reg)
}
