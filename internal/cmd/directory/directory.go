// Package directory parses directory service flags and launches the service.
package directory

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/louisbranch/tenantry/internal/authz"
	"github.com/louisbranch/tenantry/internal/directory/invitation"
	"github.com/louisbranch/tenantry/internal/directory/service"
	"github.com/louisbranch/tenantry/internal/directory/storage/sqlite"
	entrypoint "github.com/louisbranch/tenantry/internal/platform/cmd"
)

// Config holds directory command configuration.
type Config struct {
	DBPath string `env:"TENANTRY_DIRECTORY_DB_PATH" envDefault:"directory.db"`
}

// ParseConfig parses environment and flags into Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	fs.StringVar(&cfg.DBPath, "db", cfg.DBPath, "The directory sqlite database path")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run starts the directory service process and blocks until ctx is done.
func Run(ctx context.Context, cfg Config) error {
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceDirectory, func(ctx context.Context) error {
		_, cleanup, err := Build(ctx, cfg)
		if err != nil {
			return err
		}
		defer cleanup()

		log.Printf("directory service ready (db=%s)", cfg.DBPath)
		<-ctx.Done()
		return nil
	})
}

// Build wires the store, the authorization syncer, and the service layer.
// The returned cleanup closes the store.
func Build(_ context.Context, cfg Config) (*service.Service, func(), error) {
	store, err := sqlite.Open(cfg.DBPath)
	if err != nil {
		return nil, nil, fmt.Errorf("open directory store: %w", err)
	}
	cleanup := func() {
		if err := store.Close(); err != nil {
			log.Printf("close directory store: %v", err)
		}
	}

	// Accept grants are optional; processes without a configured key pair
	// run the directory without grant verification.
	var opts []service.Option
	if os.Getenv("TENANTRY_INVITATION_GRANT_ISSUER") != "" {
		grants, err := invitation.LoadGrantConfigFromEnv(nil)
		if err != nil {
			cleanup()
			return nil, nil, err
		}
		opts = append(opts, service.WithGrantConfig(grants))
	}

	syncer := authz.NewSyncer(authz.NewMemoryClient())
	return service.NewService(store, syncer, opts...), cleanup, nil
}
