// Package ingestion reads the raw records of a staging table.
//
// A staging table is addressed by a path of the form
// [organization/][environment/]connector/staging. Missing leading segments are
// taken from the Session. Sources resolve the path to a concrete location:
// SQLiteSource reads <root>/<org>/<env>/<connector>.db and XLSXSource reads
// <root>/<org>/<env>/<connector>.xlsx; in both the staging name selects the
// table or sheet.
//
// Fetch is best-effort: a failing source is logged and yields no records.
package ingestion
