package main

import (
	"os"

	"github.com/sahilchouksey/exam-harvester/app"
)

func main() {
	if err := app.Execute(); err != nil {
		os.Exit(1)
	}
}
