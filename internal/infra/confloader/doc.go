// Package confloader loads configuration with koanf.
//
// Sources, lowest priority first: defaults already present in the target
// struct, a YAML file, REACTQ_ environment variables, then overrides
// supplied by the caller (command-line flags).
//
// Environment keys nest with a double underscore so single underscores
// survive inside key names:
//
//	REACTQ_STORE__SNAPSHOT__RETENTION_COUNT=5  ->  store.snapshot.retention_count
package confloader
