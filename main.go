// Command crawlkit runs a polite, resumable web crawl.
package main

import "github.com/crawlkit/crawlkit/cmd"

func main() {
	cmd.Execute()
}
