// The main package for the crawlsup executable.
package main

import (
	"os"

	"github.com/edgi-govdata-archiving/wm-crawl-supervisor/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
