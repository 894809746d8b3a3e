// Package config loads forge-release settings from TOML, a .env file and
// the environment.
//
// Precedence, lowest first: built-in defaults, the TOML file, variables
// from the .env file (which never override the real environment), and the
// environment itself (supabase_url, s3_endpoint, s3_region, s3_bucket in
// either case).
//
// Credential fields hold secret references rather than values. They are
// resolved by the secrets package at the point of use.
package config
