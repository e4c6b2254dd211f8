// Package config loads the ledgerd configuration.
//
// A YAML file is decoded over Default, LEDGER_* environment variables
// override selected fields, secret references ("secretref:env:NAME",
// "secretref:file:PATH") are resolved, and Validate rejects settings the
// service cannot run with. Durations accept day units ("7d").
package config
