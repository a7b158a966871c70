package main

import (
	"os"

	"github.com/skybrief/skybrief/internal/app"
)

func main() {
	os.Exit(app.Run(os.Args[1:]))
}
