// Package config loads a node's startup configuration from a TOML file,
// grounded on the teacher ecosystem's github.com/BurntSushi/toml-based
// config loading convention.
package config

import (
	"time"

	"github.com/BurntSushi/toml"
	"github.com/pingcap/errors"

	"github.com/mcprohosting/raft/membership"
	"github.com/mcprohosting/raft/raft"
)

// File is the on-disk shape of a node's configuration.
type File struct {
	ID string `toml:"id"`

	Listen string `toml:"listen"`
	// Peers maps every cluster member's name (including this node's own
	// ID) to its dial address; the entry for ID itself is never dialed,
	// but its presence is what lets Options size the cluster correctly.
	Peers map[string]string `toml:"peers"`

	ElectionMin  string `toml:"election_min"`
	ElectionMax  string `toml:"election_max"`
	HeartbeatMin string `toml:"heartbeat_min"`
	HeartbeatMax string `toml:"heartbeat_max"`

	PreVote bool `toml:"pre_vote"`

	// Threshold is a proximity scalar in [0,1]; zero means "use the
	// package default" (see raft.DefaultThreshold), matching how the
	// duration fields above treat an empty string.
	Threshold float64 `toml:"threshold"`

	LogLevel string `toml:"log_level"`
	LogFile  string `toml:"log_file"`
}

// Load parses path as TOML into a File.
func Load(path string) (File, error) {
	var f File
	if _, err := toml.DecodeFile(path, &f); err != nil {
		return File{}, errors.Annotatef(err, "config: load %s", path)
	}
	return f, nil
}

// Options converts the parsed file into raft.Options, leaving any
// duration field left blank in the file at its package default (Options
// fills zero-valued fields itself; see Options.withDefaults).
func (f File) Options() (raft.Options, error) {
	o := raft.Options{ID: f.ID, PreVote: f.PreVote, Threshold: f.Threshold}

	durations := []struct {
		src string
		dst *time.Duration
	}{
		{f.ElectionMin, &o.ElectionMin},
		{f.ElectionMax, &o.ElectionMax},
		{f.HeartbeatMin, &o.HeartbeatMin},
		{f.HeartbeatMax, &o.HeartbeatMax},
	}
	for _, d := range durations {
		if d.src == "" {
			continue
		}
		parsed, err := raft.ParseDuration(d.src)
		if err != nil {
			return raft.Options{}, errors.Trace(err)
		}
		*d.dst = parsed
	}

	if len(f.Peers) > 0 {
		names := make([]string, 0, len(f.Peers))
		for name := range f.Peers {
			names = append(names, name)
		}
		o.Membership = membership.NewStatic(names...)
	}

	return o, nil
}
