// Package manifest finds and decodes the per-host backup manifest that the
// OpsCenter backup service writes next to every snapshot. The manifest maps the
// opaque SSTable object names to the keyspace and table they belong to.
package manifest
