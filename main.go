// The main package for the news-archiver executable.
package main

import (
	"os"

	"github.com/JakeFAU/news-archiver/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
