package main

import "time"

// GlobalFlags are shared by every subcommand.
type GlobalFlags struct {
	ConfigPath string
	// Remote daemon connection
	APIUrl     string
	APITimeout time.Duration
}

type ServeFlags struct {
	Listen        string
	MetricsListen string
}

type RecordStopFlags struct {
	Discard bool
	Reason  string
}

type EmitFlags struct {
	Type    string
	Payload string // JSON object
	Values  []string
}

type ExportFlags struct {
	Output string
}
