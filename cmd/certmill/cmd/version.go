package cmd

// Version is the build version, overridden at release time with
// -ldflags "-X github.com/quaypoint/certmill/cmd/certmill/cmd.Version=v1.2.3".
var Version = "dev"
