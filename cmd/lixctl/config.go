package main

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/lixdb/lix/internal/backend"
	"github.com/lixdb/lix/internal/backend/sqlitebackend"
	"github.com/lixdb/lix/internal/planner"
)

// Config mirrors the way the teacher's internal/config/yaml_config.go loads
// a plain YAML config into a struct: a small set of keys that must resolve
// before any backend connection opens, with command-line flags overriding
// whatever the file sets. DoltDatabase only applies when Dialect is
// "postgres"; it is otherwise ignored.
type Config struct {
	DBPath       string `yaml:"db_path"`
	Dialect      string `yaml:"dialect"`
	DoltDatabase string `yaml:"dolt_database"`
	WriterKey    string `yaml:"writer_key"`
}

// LoadConfig reads path if non-empty, applying defaults for anything the
// file omits. A missing path is not an error: lixctl runs with defaults and
// whatever flags were passed.
func LoadConfig(path string) (Config, error) {
	cfg := Config{
		DBPath:  "lix.db",
		Dialect: "sqlite",
	}
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path) // #nosec G304 -- path is an operator-supplied --config flag
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// OpenBackend opens the backend named by Dialect and returns it alongside
// the matching planner.Dialect the engine must be opened with.
func (c Config) OpenBackend(ctx context.Context) (backend.Backend, planner.Dialect, error) {
	switch c.Dialect {
	case "", "sqlite":
		db, err := sqlitebackend.Open(c.DBPath)
		if err != nil {
			return nil, planner.Dialect{}, err
		}
		return db, planner.SQLite, nil
	case "postgres":
		database := c.DoltDatabase
		if database == "" {
			database = "lix"
		}
		db, err := openDoltBackend(ctx, c.DBPath, database)
		if err != nil {
			return nil, planner.Dialect{}, err
		}
		return db, planner.Postgres, nil
	default:
		return nil, planner.Dialect{}, fmt.Errorf("unknown dialect %q (want sqlite or postgres)", c.Dialect)
	}
}
