package main

import (
	"log"
)

// Build values injected with -ldflags "-X main.GitCommit=...".
var (
	GitCommit string
	GitTag    string
	BuildTime string
)

// @title        Library Front API
// @version      1.0
// @description  Caching front of the library management api with live views.
// @BasePath     /
func main() {
	app, err := NewApp()
	if err != nil {
		log.Fatalf("library front failed to initialize: %v", err)
	}
	if err = app.Run(); err != nil {
		log.Fatalf("library front exited: %v. check logs for more details.", err)
	}
}
