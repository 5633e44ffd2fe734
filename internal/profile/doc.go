// Package profile persists what has been learned about a target device:
// its architecture, shell prompt, version banner, command table, and
// environment. Profiles are YAML files under the user's configuration
// directory (or any explicit path), written atomically. A profile is a
// cache, not a requirement; every field can be relearned from a live
// target.
package profile
