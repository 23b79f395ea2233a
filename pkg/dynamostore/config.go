package dynamostore

// TableNames names the physical tables and their global secondary indexes:
// the journal and its aid-index, the snapshot table, and the outbox.
type TableNames struct {
	Journal          string
	JournalAidIndex  string
	Snapshot         string
	Outbox           string
	InvertedIndex    string
}

// DefaultTableNames returns sensible table names out of the box.
func DefaultTableNames() TableNames {
	return TableNames{
		Journal:         "journal",
		JournalAidIndex: "journal_aid_index",
		Snapshot:        "snapshot",
		Outbox:          "outbox",
		InvertedIndex:   "inverted_index",
	}
}

// Config configures a Store. Constructed through functional options, the
// same pattern sqlitestore's WithDSN/WithWALMode options use for backend
// configuration.
type Config struct {
	tables           TableNames
	shardCount       int
	snapshotInterval int64
}

// Option configures a Store at construction time.
type Option func(*Config)

// WithTableNames overrides the default table names.
func WithTableNames(tables TableNames) Option {
	return func(c *Config) { c.tables = tables }
}

// WithShardCount sets how many partitions a single aggregate type's journal
// rows are spread across. Default is 4.
func WithShardCount(n int) Option {
	return func(c *Config) { c.shardCount = n }
}

// WithSnapshotInterval sets how many journal events elapse between
// automatic snapshots. Default is 100.
func WithSnapshotInterval(n int64) Option {
	return func(c *Config) { c.snapshotInterval = n }
}

func defaultConfig() Config {
	return Config{
		tables:           DefaultTableNames(),
		shardCount:       4,
		snapshotInterval: 100,
	}
}
