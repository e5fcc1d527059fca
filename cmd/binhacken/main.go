package main

import (
	"os"

	"binhacken/cmd/internal/app"
)

func main() {
	if err := app.Run(); err != nil {
		os.Exit(1)
	}
}
