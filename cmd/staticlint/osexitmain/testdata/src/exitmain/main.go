package main

import (
	"log"
	"os"
	xos "os"
)

func main() {
	if len(os.Args) > 3 {
		os.Exit(2) // want "os.Exit called directly in main"
	}
	defer xos.Exit(0) // want "os.Exit called directly in main"

	cleanup := func() { os.Exit(1) }
	_ = cleanup

	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	if len(os.Args) > 5 {
		os.Exit(3)
	}
	return nil
}
