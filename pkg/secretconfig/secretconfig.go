// Package secretconfig loads the repository-level configuration (shard
// count, snapshot interval, concurrent load limit, backend DSN) from an
// encrypted blob via gocloud.dev/secrets, so a deployment never needs its
// backend credentials sitting in a plaintext config file or environment
// variable. The secrets.OpenKeeper/Decrypt call shape is narrowed from a
// generic rotating-credential cache down to a one-shot "decrypt, parse,
// done" loader, since this configuration (unlike a NATS NKey or mTLS
// cert) does not need to be rotated or cached with a TTL.
package secretconfig

import (
	"context"
	"encoding/json"
	"fmt"

	"gocloud.dev/secrets"
	// Cloud backends are opt-in; a caller imports the driver it needs:
	//   _ "gocloud.dev/secrets/awskms"
	//   _ "gocloud.dev/secrets/localsecrets"
)

// Config is the repository-level configuration, plus the backend
// connection string it is loaded alongside.
type Config struct {
	ShardCount          int    `json:"shard_count"`
	SnapshotInterval    int64  `json:"snapshot_interval"`
	ConcurrentLoadLimit int    `json:"concurrent_load_limit"`
	BackendDSN          string `json:"backend_dsn"`
}

// DefaultConfig returns the repository's documented defaults.
func DefaultConfig() Config {
	return Config{
		ShardCount:          4,
		SnapshotInterval:    100,
		ConcurrentLoadLimit: 10,
	}
}

// Validate rejects configurations that would leave the repository unable
// to shard, snapshot, or bound its concurrent loads.
func (c Config) Validate() error {
	if c.SnapshotInterval == 0 {
		return fmt.Errorf("secretconfig: snapshot_interval must not be 0")
	}
	if c.ShardCount <= 0 {
		return fmt.Errorf("secretconfig: shard_count must be positive")
	}
	if c.ConcurrentLoadLimit <= 0 {
		return fmt.Errorf("secretconfig: concurrent_load_limit must be positive")
	}
	return nil
}

// Load opens the secret keeper at keeperURL (e.g. "awskms://...",
// "file:///etc/eventstore/config.enc", or "base64key://..." for local
// development), decrypts it, and parses the plaintext as JSON-encoded
// Config. The keeper is closed before Load returns: this is a one-shot
// startup read, not a held connection.
func Load(ctx context.Context, keeperURL string) (Config, error) {
	var cfg Config
	if keeperURL == "" {
		return cfg, fmt.Errorf("secretconfig: keeper URL is required")
	}

	keeper, err := secrets.OpenKeeper(ctx, keeperURL)
	if err != nil {
		return cfg, fmt.Errorf("secretconfig: open keeper: %w", err)
	}
	defer keeper.Close()

	plaintext, err := keeper.Decrypt(ctx, nil)
	if err != nil {
		return cfg, fmt.Errorf("secretconfig: decrypt: %w", err)
	}

	if err := json.Unmarshal(plaintext, &cfg); err != nil {
		return cfg, fmt.Errorf("secretconfig: parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}
