package main

import (
	"os"

	"github.com/prefstore/prefstore/app"
)

func main() {
	err := app.Execute()
	if err != nil {
		os.Exit(1)
	}
}
