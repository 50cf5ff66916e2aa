// Package export persists identification results.
//
// Dir writes one directory per run holding the realizations as JSON
// (rom_<order>.json), their Hankel singular values (hsv_<order>.csv), the
// metrics history (metrics.csv) and error charts as PNG and HTML. SQLite
// stores the same information in a database whose schema is managed by
// embedded migrations. Both implement era.ModelSink and era.MetricsSink and
// can be combined with Tee.
package export
