// Package pathres turns location settings into concrete shard file paths.
//
// The sequence containers never read the environment or pick file names
// themselves. The facade builds a Resolver, optionally with an injected
// LookupEnv and TempDir for tests, and hands the resulting Plan to the
// chosen backend.
package pathres
