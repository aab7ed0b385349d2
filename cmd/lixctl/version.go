package main

import (
	"fmt"
	"runtime/debug"
)

// Version is lixctl's own build version (overridden by ldflags at build time).
var Version = "0.1.0"

func printVersion() {
	if jsonOutput {
		printJSON(map[string]string{"version": Version, "commit": resolveCommitHash()})
		return
	}
	if commit := resolveCommitHash(); commit != "" {
		fmt.Printf("lixctl version %s (%s)\n", Version, shortCommit(commit))
	} else {
		fmt.Printf("lixctl version %s\n", Version)
	}
}

func resolveCommitHash() string {
	if info, ok := debug.ReadBuildInfo(); ok {
		for _, setting := range info.Settings {
			if setting.Key == "vcs.revision" && setting.Value != "" {
				return setting.Value
			}
		}
	}
	return ""
}

func shortCommit(hash string) string {
	if len(hash) > 12 {
		return hash[:12]
	}
	return hash
}
