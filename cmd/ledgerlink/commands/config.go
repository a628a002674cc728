package commands

import (
	"fmt"
	"strings"

	"github.com/knadh/koanf/parsers/toml/v2"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/urfave/cli/v3"

	"github.com/mjansen/ledgerlink/internal/app"
)

// envPrefix namespaces the broker's environment variables. Double
// underscores nest keys: LEDGERLINK_SESSION__SIGNING_SECRET →
// session.signing_secret.
const envPrefix = "LEDGERLINK_"

// loadConfig assembles the broker configuration. Precedence, lowest to
// highest: TOML config file, LEDGERLINK_* environment variables, CLI flags.
// Secrets (the session signing secret, the oauth client secret) are
// expected through the environment rather than flags.
func loadConfig(configPath string, cmd *cli.Command, environFunc func() []string) (*app.Config, error) {
	k := koanf.New(".")

	if configPath != "" {
		if err := k.Load(file.Provider(configPath), toml.Parser()); err != nil {
			return nil, fmt.Errorf("loading config file: %w", err)
		}
	}

	if err := k.Load(envConfigProvider(environFunc), nil); err != nil {
		return nil, fmt.Errorf("loading environment variables: %w", err)
	}

	if cmd != nil {
		if err := k.Load(confmap.Provider(setFlagValues(cmd), "."), nil); err != nil {
			return nil, fmt.Errorf("loading CLI flags: %w", err)
		}
	}

	config := &app.Config{}
	if err := k.UnmarshalWithConf("", config, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := config.ApplyDefaults(); err != nil {
		return nil, fmt.Errorf("applying defaults: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return config, nil
}

// envConfigProvider maps LEDGERLINK_* variables onto config keys: the
// prefix is stripped and double underscores become nesting dots.
func envConfigProvider(environFunc func() []string) koanf.Provider {
	return env.Provider(".", env.Opt{
		Prefix: envPrefix,
		TransformFunc: func(key, value string) (string, any) {
			key = strings.TrimPrefix(key, envPrefix)
			return strings.ToLower(strings.ReplaceAll(key, "__", ".")), value
		},
		EnvironFunc: environFunc,
	})
}

// setFlagValues collects the flags the caller actually set, including root
// flags inherited through the command lineage, keyed for koanf:
// --server--host → server.host, --log-level → log_level. Unset flags are
// skipped so file and environment values keep precedence over flag
// defaults.
func setFlagValues(cmd *cli.Command) map[string]any {
	values := make(map[string]any)

	for _, name := range cmd.FlagNames() {
		if !cmd.IsSet(name) {
			continue
		}

		if value := cmd.Value(name); value != nil {
			key := strings.ReplaceAll(name, "--", ".")
			values[strings.ReplaceAll(key, "-", "_")] = value
		}
	}

	return values
}
