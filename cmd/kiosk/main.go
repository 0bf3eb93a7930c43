package main

import (
	"context"
	"os"

	"github.com/psantana5/kiosk-supervisor/cmd/kiosk/cmd"
)

func main() {
	if err := cmd.Execute(context.Background()); err != nil {
		os.Exit(1)
	}
}
