package main

import (
	"context"
	"os"

	sf "github.com/k-capehart/go-salesforce/v3"
	"github.com/rotisserie/eris"

	"github.com/studio-carto/prospect-cli/internal/store"
	"github.com/studio-carto/prospect-cli/pkg/salesforce"
)

// initStore builds the run store named by store.driver.
func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite", "":
		return store.NewSQLite(cfg.Store.Path)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, nil)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// openStore builds the store and runs migrations.
func openStore(ctx context.Context) (store.Store, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}
	return st, nil
}

// initSalesforce authenticates against Salesforce with the configured JWT
// credentials and returns a client for collection inserts.
func initSalesforce() (salesforce.Client, error) {
	if err := cfg.Validate("salesforce"); err != nil {
		return nil, err
	}

	key, err := os.ReadFile(cfg.Salesforce.KeyPath)
	if err != nil {
		return nil, eris.Wrap(err, "read salesforce JWT private key")
	}

	inner, err := sf.Init(sf.Creds{
		Domain:         cfg.Salesforce.LoginURL,
		Username:       cfg.Salesforce.Username,
		ConsumerKey:    cfg.Salesforce.ClientID,
		ConsumerRSAPem: string(key),
	})
	if err != nil {
		return nil, eris.Wrap(err, "salesforce auth")
	}

	return salesforce.NewClient(inner, salesforce.WithBatchSize(cfg.Salesforce.BatchSize)), nil
}
